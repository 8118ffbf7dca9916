package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"workhub/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T, handler http.Handler, opts ...Option) *Store {
	t.Helper()
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(NewAPI(srv.URL, srv.Client()), zap.NewNop().Sugar(), opts...)
}

func ana() domain.PublicUser {
	return domain.PublicUser{ID: "u1", Name: "Ana", Email: "ana@example.com", NotifyInApp: true}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestStore_AuthControlsHeader(t *testing.T) {
	var seen atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/api/workspaces", func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized", "message": "No token provided"})
			return
		}
		writeJSON(w, http.StatusOK, []domain.WorkspaceWithRole{{Workspace: domain.Workspace{ID: "w1", Name: "Ops"}, Role: domain.RoleAdmin}})
	})
	s := newTestStore(t, mux)

	s.SetAuth("tok", ana())
	assert.True(t, s.Snapshot().Auth.Authenticated())
	require.NoError(t, s.FetchWorkspaces(context.Background()))
	assert.Equal(t, "Bearer tok", seen.Load())
	require.Len(t, s.Snapshot().Workspaces, 1)

	s.Logout()
	assert.False(t, s.Snapshot().Auth.Authenticated())
	assert.Empty(t, s.API().Authorization())

	err := s.FetchWorkspaces(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "No token provided", apiErr.Message)
}

func TestStore_LogoutClearsHeaderBeforeObserversSeeIt(t *testing.T) {
	s := newTestStore(t, nil)
	s.SetAuth("tok", ana())

	var headerAtClear string
	stop := s.Subscribe(func(st State) {
		if st.Auth.Token == "" {
			headerAtClear = s.API().Authorization()
		}
	})
	defer stop()

	s.Logout()
	assert.Empty(t, headerAtClear)
	assert.False(t, s.Snapshot().Websocket.Connected)
}

func TestStore_LogIn(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/log_in", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "correct horse" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized", "message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": "tok", "user": ana()})
	})
	s := newTestStore(t, mux)

	err := s.LogIn(context.Background(), "ana@example.com", "nope")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, s.Snapshot().Auth.Authenticated())

	require.NoError(t, s.LogIn(context.Background(), "ana@example.com", "correct horse"))
	st := s.Snapshot()
	assert.Equal(t, "tok", st.Auth.Token)
	assert.Equal(t, domain.UserID("u1"), st.Auth.User.ID)
	assert.Equal(t, "Bearer tok", s.API().Authorization())
}

func TestStore_WorkspaceSlice(t *testing.T) {
	s := newTestStore(t, nil)
	w := func(id, name string) domain.WorkspaceWithRole {
		return domain.WorkspaceWithRole{Workspace: domain.Workspace{ID: domain.WorkspaceID(id), Name: name}, Role: domain.RoleMember}
	}

	s.SetWorkspaces([]domain.WorkspaceWithRole{w("w1", "Ops")})
	s.AddWorkspace(w("w2", "Design"))
	s.UpdateWorkspace(w("w1", "Operations"))
	s.UpdateWorkspace(w("w9", "Ghost"))
	s.SetCurrentWorkspace("w2")

	st := s.Snapshot()
	require.Len(t, st.Workspaces, 2)
	assert.Equal(t, "Operations", st.Workspaces[0].Name)
	assert.Equal(t, domain.WorkspaceID("w2"), st.CurrentWorkspaceID)

	s.RemoveWorkspace("w1")
	st = s.Snapshot()
	require.Len(t, st.Workspaces, 1)
	assert.Equal(t, domain.WorkspaceID("w2"), st.Workspaces[0].ID)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := newTestStore(t, nil)
	s.SetSocketRooms([]domain.Room{"user:u1"})

	st := s.Snapshot()
	st.Websocket.Rooms[0] = "user:evil"
	assert.Equal(t, []domain.Room{"user:u1"}, s.Snapshot().Websocket.Rooms)
}

func TestStore_UnreadCounter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/notifications/inbox_count", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"unread_count": 3})
	})
	s := newTestStore(t, mux)
	require.NoError(t, s.FetchUnreadCount(context.Background()))
	assert.Equal(t, 3, s.Snapshot().UnreadCount)

	s.Apply(NotificationCreated{})
	assert.Equal(t, 4, s.Snapshot().UnreadCount)

	s.Apply(NotificationUpdated{domain.NotificationUpdate{NotificationID: "n1", IsRead: true}})
	assert.Equal(t, 3, s.Snapshot().UnreadCount)

	s.Apply(NotificationUpdated{domain.NotificationUpdate{NotificationID: "n1", IsRead: false}})
	assert.Equal(t, 4, s.Snapshot().UnreadCount)

	s.Apply(NotificationUpdated{domain.NotificationUpdate{IsRead: true, AllRead: true}})
	assert.Equal(t, 0, s.Snapshot().UnreadCount)

	s.Apply(NotificationUpdated{domain.NotificationUpdate{NotificationID: "n1", IsRead: true}})
	assert.Equal(t, 0, s.Snapshot().UnreadCount, "clamped at zero")
}

func TestStore_ApplyMembershipOfCurrentUser(t *testing.T) {
	s := newTestStore(t, nil)
	s.SetAuth("tok", ana())
	s.SetWorkspaces([]domain.WorkspaceWithRole{{Workspace: domain.Workspace{ID: "w1"}}})
	s.SetCurrentWorkspace("w1")
	s.Apply(Connected{UserID: "u1", Rooms: []domain.Room{"user:u1", "workspace:w1"}})

	s.Apply(MemberEvent{Kind: domain.KindMemberAdded, Change: domain.MemberChange{WorkspaceID: "w2", UserID: "u1"}})
	s.Apply(MemberEvent{Kind: domain.KindMemberAdded, Change: domain.MemberChange{WorkspaceID: "w3", UserID: "u2"}})
	assert.Equal(t, []domain.Room{"user:u1", "workspace:w1", "workspace:w2"}, s.Snapshot().Websocket.Rooms)

	s.Apply(MemberEvent{Kind: domain.KindMemberRemoved, Change: domain.MemberChange{WorkspaceID: "w1", UserID: "u1"}})
	st := s.Snapshot()
	assert.Equal(t, []domain.Room{"user:u1", "workspace:w2"}, st.Websocket.Rooms)
	assert.Empty(t, st.Workspaces)
	assert.Empty(t, st.CurrentWorkspaceID)
}

func TestStore_Observers(t *testing.T) {
	s := newTestStore(t, nil)

	var counts []int
	stop := s.Subscribe(func(st State) { counts = append(counts, st.UnreadCount) })
	var events []string
	stopEvents := s.SubscribeEvents(func(ev Event) { events = append(events, ev.FrameType()) })

	s.IncrementUnread()
	s.Apply(NotificationCreated{})
	stop()
	stopEvents()
	s.IncrementUnread()
	s.Apply(NotificationCreated{})

	assert.Equal(t, []int{1, 2}, counts)
	assert.Equal(t, []string{"notification_created"}, events)
}

// searchServer answers /api/search, holding each request until release
// receives a value when gate is set.
type searchServer struct {
	mu      sync.Mutex
	queries []string
	gate    chan struct{}
}

func (s *searchServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("query")
	s.mu.Lock()
	s.queries = append(s.queries, q)
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	writeJSON(w, http.StatusOK, SearchSuggestions{
		Projects: []ProjectSuggestion{{ID: "p1", Name: q, Color: "#f00"}},
		Tasks:    []TaskSuggestion{{ID: "t1", Title: q, ProjectID: "p1"}},
	})
}

func (s *searchServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func TestStore_SearchDebounces(t *testing.T) {
	srv := &searchServer{}
	s := newTestStore(t, srv, WithSearchDebounce(50*time.Millisecond))

	s.SetQuery("d")
	s.SetQuery("de")
	s.SetQuery("design")

	require.Eventually(t, func() bool {
		return len(s.Snapshot().Search.Suggestions.Projects) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"design"}, srv.seen())
	st := s.Snapshot().Search
	assert.Equal(t, "design", st.Query)
	assert.Equal(t, "design", st.Suggestions.Tasks[0].Title)
	assert.False(t, st.Loading)
}

func TestStore_SearchLoadingSpansFetch(t *testing.T) {
	srv := &searchServer{gate: make(chan struct{})}
	s := newTestStore(t, srv, WithSearchDebounce(10*time.Millisecond))

	s.SetQuery("ops")
	assert.False(t, s.Snapshot().Search.Loading, "not loading while debouncing")

	require.Eventually(t, func() bool { return s.Snapshot().Search.Loading }, 2*time.Second, 5*time.Millisecond)
	close(srv.gate)
	require.Eventually(t, func() bool { return !s.Snapshot().Search.Loading }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, s.Snapshot().Search.Suggestions.Projects, 1)
}

func TestStore_SearchDiscardsStaleResponse(t *testing.T) {
	srv := &searchServer{gate: make(chan struct{})}
	s := newTestStore(t, srv, WithSearchDebounce(10*time.Millisecond))

	s.SetQuery("old")
	require.Eventually(t, func() bool { return s.Snapshot().Search.Loading }, 2*time.Second, 5*time.Millisecond)

	s.ClearSearch()
	assert.False(t, s.Snapshot().Search.Loading)

	close(srv.gate)
	time.Sleep(100 * time.Millisecond)
	st := s.Snapshot().Search
	assert.Empty(t, st.Query)
	assert.Empty(t, st.Suggestions.Projects)
	assert.False(t, st.Loading)
}

func TestStore_SearchEmptyQueryClears(t *testing.T) {
	srv := &searchServer{}
	s := newTestStore(t, srv, WithSearchDebounce(10*time.Millisecond))

	s.SetQuery("ops")
	require.Eventually(t, func() bool {
		return len(s.Snapshot().Search.Suggestions.Projects) == 1
	}, 2*time.Second, 5*time.Millisecond)

	s.SetQuery("  ")
	st := s.Snapshot().Search
	assert.Empty(t, st.Suggestions.Projects)
	assert.Empty(t, st.Suggestions.Tasks)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"ops"}, srv.seen())
}

func TestPersister_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	p, err := OpenPersister(path)
	require.NoError(t, err)

	_, err = p.Load()
	require.ErrorIs(t, err, ErrNothingPersisted)

	s := newTestStore(t, nil)
	stop := s.AutoPersist(p)
	s.SetAuth("tok", ana())
	s.SetWorkspaces([]domain.WorkspaceWithRole{{Workspace: domain.Workspace{ID: "w1", Name: "Ops"}, Role: domain.RoleAdmin}})
	s.SetCurrentWorkspace("w1")
	s.SetUnreadCount(5)
	s.SetSocketConnected(true)
	stop()
	require.NoError(t, p.Close())

	p, err = OpenPersister(path)
	require.NoError(t, err)
	defer p.Close()

	persisted, err := p.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", persisted.Auth.Token)
	assert.Equal(t, 5, persisted.UnreadCount)
	assert.Equal(t, domain.WorkspaceID("w1"), persisted.CurrentWorkspaceID)

	restored := newTestStore(t, nil)
	restored.Rehydrate(persisted)
	st := restored.Snapshot()
	assert.Equal(t, "Ana", st.Auth.User.Name)
	require.Len(t, st.Workspaces, 1)
	assert.Equal(t, "Ops", st.Workspaces[0].Name)
	assert.False(t, st.Websocket.Connected, "websocket state is not persisted")
	assert.Equal(t, "Bearer tok", restored.API().Authorization())

	require.NoError(t, p.Clear())
	_, err = p.Load()
	assert.ErrorIs(t, err, ErrNothingPersisted)
}

func TestStore_RefreshToleratesMissingInbox(t *testing.T) {
	var inbox atomic.Int32
	inbox.Store(http.StatusNotFound)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/workspaces", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []domain.WorkspaceWithRole{{Workspace: domain.Workspace{ID: "w1", Name: "Ops"}, Role: domain.RoleMember}})
	})
	mux.HandleFunc("/api/notifications/inbox_count", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, int(inbox.Load()), map[string]string{"error": "InternalError", "message": "boom"})
	})
	s := newTestStore(t, mux)
	s.SetAuth("tok", ana())
	s.SetUnreadCount(2)

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, 2, s.Snapshot().UnreadCount)
	assert.Len(t, s.Snapshot().Workspaces, 1)

	inbox.Store(http.StatusInternalServerError)
	err := s.Refresh(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "fetch unread count")
}
