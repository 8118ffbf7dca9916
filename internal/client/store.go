// Package client keeps the client-side view of a workhub session: auth,
// workspaces, unread notifications, search and the realtime connection.
// Every mutation notifies the store's observers with a fresh snapshot.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"workhub/internal/core/domain"
	"workhub/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const DefaultSearchDebounce = 300 * time.Millisecond

type AuthState struct {
	Token string             `json:"token,omitempty"`
	User  *domain.PublicUser `json:"user,omitempty"`
}

func (a AuthState) Authenticated() bool { return a.Token != "" && a.User != nil }

type SearchState struct {
	Query       string
	Suggestions SearchSuggestions
	Loading     bool
}

type WebsocketState struct {
	Connected bool
	Rooms     []domain.Room
}

// State is a copy of the store contents; mutating it has no effect.
type State struct {
	Auth               AuthState
	Workspaces         []domain.WorkspaceWithRole
	CurrentWorkspaceID domain.WorkspaceID
	UnreadCount        int
	Search             SearchState
	Websocket          WebsocketState
}

func (s State) clone() State {
	out := s
	out.Workspaces = append([]domain.WorkspaceWithRole(nil), s.Workspaces...)
	out.Search.Suggestions.Projects = append([]ProjectSuggestion(nil), s.Search.Suggestions.Projects...)
	out.Search.Suggestions.Tasks = append([]TaskSuggestion(nil), s.Search.Suggestions.Tasks...)
	out.Websocket.Rooms = append([]domain.Room(nil), s.Websocket.Rooms...)
	if s.Auth.User != nil {
		u := *s.Auth.User
		out.Auth.User = &u
	}
	return out
}

type Option func(*Store)

func WithSearchDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// WithReconnect sets the backoff used to dial and redial the realtime gateway.
func WithReconnect(cfg retry.Config) Option {
	return func(s *Store) { s.reconnect = cfg }
}

// WithSocketURL overrides the realtime endpoint derived from the API base URL.
func WithSocketURL(u string) Option {
	return func(s *Store) { s.socketURL = u }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(s *Store) { s.dialer = d }
}

type Store struct {
	api    *API
	logger *zap.SugaredLogger

	debounce  time.Duration
	reconnect retry.Config
	socketURL string
	dialer    *websocket.Dialer

	mu    sync.Mutex
	state State

	// search bookkeeping, guarded by mu
	searchSeq   uint64
	fetchSeq    uint64
	searchTimer *time.Timer

	notifyMu  sync.Mutex
	observers observers

	sockMu sync.Mutex
	sock   *socket
}

func New(api *API, logger *zap.SugaredLogger, opts ...Option) *Store {
	s := &Store{
		api:       api,
		logger:    logger,
		debounce:  DefaultSearchDebounce,
		reconnect: retry.DefaultConfig(),
		dialer:    websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.socketURL == "" {
		s.socketURL = SocketURL(api.BaseURL(), "/ws")
	}
	return s
}

func (s *Store) API() *API { return s.api }

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// update applies fn under the lock and then notifies observers.
func (s *Store) update(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
	s.notify()
}

// SetAuth stores the session and makes the REST client send the token.
func (s *Store) SetAuth(token string, user domain.PublicUser) {
	s.api.SetBearer(token)
	s.update(func(st *State) {
		st.Auth = AuthState{Token: token, User: &user}
	})
}

// ClearAuth drops the Authorization header before clearing the session.
func (s *Store) ClearAuth() {
	s.api.ClearBearer()
	s.update(func(st *State) { st.Auth = AuthState{} })
}

// LogIn authenticates against the API and stores the session.
func (s *Store) LogIn(ctx context.Context, email, password string) error {
	res, err := s.api.LogIn(ctx, email, password)
	if err != nil {
		return err
	}
	s.SetAuth(res.Token, res.User)
	return nil
}

// Logout clears auth, then tears down the realtime connection.
func (s *Store) Logout() {
	s.ClearAuth()
	s.DisconnectSocket()
}

func (s *Store) SetWorkspaces(list []domain.WorkspaceWithRole) {
	s.update(func(st *State) {
		st.Workspaces = append([]domain.WorkspaceWithRole(nil), list...)
	})
}

func (s *Store) AddWorkspace(ws domain.WorkspaceWithRole) {
	s.update(func(st *State) { st.Workspaces = append(st.Workspaces, ws) })
}

// UpdateWorkspace replaces the entry with the same id; unknown ids are ignored.
func (s *Store) UpdateWorkspace(ws domain.WorkspaceWithRole) {
	s.update(func(st *State) {
		for i := range st.Workspaces {
			if st.Workspaces[i].ID == ws.ID {
				st.Workspaces[i] = ws
				return
			}
		}
	})
}

func (s *Store) RemoveWorkspace(id domain.WorkspaceID) {
	s.update(func(st *State) { st.Workspaces = removeWorkspace(st.Workspaces, id) })
}

func removeWorkspace(list []domain.WorkspaceWithRole, id domain.WorkspaceID) []domain.WorkspaceWithRole {
	out := list[:0]
	for _, ws := range list {
		if ws.ID != id {
			out = append(out, ws)
		}
	}
	return out
}

func (s *Store) FetchWorkspaces(ctx context.Context) error {
	list, err := s.api.Workspaces(ctx)
	if err != nil {
		return err
	}
	s.SetWorkspaces(list)
	return nil
}

func (s *Store) SetCurrentWorkspace(id domain.WorkspaceID) {
	s.update(func(st *State) { st.CurrentWorkspaceID = id })
}

func (s *Store) SetUnreadCount(n int) {
	if n < 0 {
		n = 0
	}
	s.update(func(st *State) { st.UnreadCount = n })
}

func (s *Store) IncrementUnread() {
	s.update(func(st *State) { st.UnreadCount++ })
}

// DecrementUnread never goes below zero.
func (s *Store) DecrementUnread() {
	s.update(func(st *State) {
		if st.UnreadCount > 0 {
			st.UnreadCount--
		}
	})
}

func (s *Store) FetchUnreadCount(ctx context.Context) error {
	n, err := s.api.UnreadCount(ctx)
	if err != nil {
		return err
	}
	s.SetUnreadCount(n)
	return nil
}

// Refresh reloads workspaces and the unread counter. A server without the
// notifications inbox leaves the counter at its current value.
func (s *Store) Refresh(ctx context.Context) error {
	if err := s.FetchWorkspaces(ctx); err != nil {
		return fmt.Errorf("fetch workspaces: %w", err)
	}
	if err := s.FetchUnreadCount(ctx); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("fetch unread count: %w", err)
		}
		s.logger.Warnw("unread count unavailable", "error", err)
	}
	return nil
}

func (s *Store) SetSocketConnected(connected bool) {
	s.update(func(st *State) { st.Websocket.Connected = connected })
}

func (s *Store) SetSocketRooms(rooms []domain.Room) {
	s.update(func(st *State) { st.Websocket.Rooms = append([]domain.Room(nil), rooms...) })
}

func (s *Store) AddSocketRoom(room domain.Room) {
	s.update(func(st *State) {
		for _, r := range st.Websocket.Rooms {
			if r == room {
				return
			}
		}
		st.Websocket.Rooms = append(st.Websocket.Rooms, room)
	})
}

func (s *Store) RemoveSocketRoom(room domain.Room) {
	s.update(func(st *State) {
		out := st.Websocket.Rooms[:0]
		for _, r := range st.Websocket.Rooms {
			if r != room {
				out = append(out, r)
			}
		}
		st.Websocket.Rooms = out
	})
}

// Apply folds a realtime event into the store and forwards it to event
// observers.
func (s *Store) Apply(ev Event) {
	switch e := ev.(type) {
	case Connected:
		s.update(func(st *State) {
			st.Websocket.Connected = true
			st.Websocket.Rooms = append([]domain.Room(nil), e.Rooms...)
		})

	case NotificationCreated:
		s.IncrementUnread()

	case NotificationUpdated:
		switch {
		case e.AllRead:
			s.SetUnreadCount(0)
		case e.IsRead:
			s.DecrementUnread()
		default:
			s.IncrementUnread()
		}

	case MemberEvent:
		me := s.currentUserID()
		if me == "" || e.Change.UserID != me {
			break
		}
		room := domain.WorkspaceRoom(e.Change.WorkspaceID)
		if e.Removed() {
			s.update(func(st *State) {
				st.Workspaces = removeWorkspace(st.Workspaces, e.Change.WorkspaceID)
				if st.CurrentWorkspaceID == e.Change.WorkspaceID {
					st.CurrentWorkspaceID = ""
				}
			})
			s.RemoveSocketRoom(room)
		} else {
			s.AddSocketRoom(room)
		}
	}

	s.notifyEvent(ev)
}

func (s *Store) currentUserID() domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Auth.User == nil {
		return ""
	}
	return s.state.Auth.User.ID
}
