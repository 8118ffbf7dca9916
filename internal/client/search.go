package client

import (
	"context"
	"strings"
	"time"
)

const searchTimeout = 10 * time.Second

// SetQuery records the query and schedules a fetch once the input has been
// quiet for the debounce interval. An empty query clears the suggestions.
func (s *Store) SetQuery(query string) {
	s.mu.Lock()
	s.state.Search.Query = query
	s.searchSeq++
	seq := s.searchSeq
	if s.searchTimer != nil {
		s.searchTimer.Stop()
		s.searchTimer = nil
	}
	if strings.TrimSpace(query) == "" {
		s.resetSuggestionsLocked()
	} else {
		s.searchTimer = time.AfterFunc(s.debounce, func() { s.runSearch(seq, query) })
	}
	s.mu.Unlock()
	s.notify()
}

// ClearSearch empties the query and suggestions and discards any fetch in
// flight, as on blur or escape.
func (s *Store) ClearSearch() {
	s.mu.Lock()
	s.searchSeq++
	if s.searchTimer != nil {
		s.searchTimer.Stop()
		s.searchTimer = nil
	}
	s.state.Search.Query = ""
	s.resetSuggestionsLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *Store) resetSuggestionsLocked() {
	s.state.Search.Suggestions = SearchSuggestions{}
	s.state.Search.Loading = false
	s.fetchSeq = 0
}

// runSearch fetches suggestions for query. Loading is raised when the fetch
// starts and lowered when its response lands; a response for a superseded
// query is dropped.
func (s *Store) runSearch(seq uint64, query string) {
	s.mu.Lock()
	if seq != s.searchSeq {
		s.mu.Unlock()
		return
	}
	s.fetchSeq = seq
	s.state.Search.Loading = true
	s.mu.Unlock()
	s.notify()

	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	res, err := s.api.Search(ctx, query)
	cancel()

	s.mu.Lock()
	if s.fetchSeq == seq {
		s.state.Search.Loading = false
		s.fetchSeq = 0
	}
	stale := seq != s.searchSeq
	if err == nil && !stale {
		s.state.Search.Suggestions = res
	}
	s.mu.Unlock()

	switch {
	case err != nil && !stale:
		s.logger.Warnw("search failed", "query", query, "error", err)
	case stale:
		s.logger.Debugw("discarding stale search response", "query", query)
	}
	s.notify()
}
