package memory

import (
	"context"
	"maps"
	"sync"

	"workhub/internal/core/domain"
	"workhub/internal/core/ports"
)

type memberKey struct {
	workspace domain.WorkspaceID
	user      domain.UserID
}

// data holds values, never pointers, so a shallow map clone is a full snapshot.
type data struct {
	users        map[domain.UserID]domain.User
	emails       map[string]domain.UserID
	tokens       map[string]domain.OneTimeToken
	emailChanges map[string]domain.EmailChangeRequest
	workspaces   map[domain.WorkspaceID]domain.Workspace
	memberships  map[memberKey]domain.Membership
	invites      map[string]domain.Invite
}

func newData() *data {
	return &data{
		users:        make(map[domain.UserID]domain.User),
		emails:       make(map[string]domain.UserID),
		tokens:       make(map[string]domain.OneTimeToken),
		emailChanges: make(map[string]domain.EmailChangeRequest),
		workspaces:   make(map[domain.WorkspaceID]domain.Workspace),
		memberships:  make(map[memberKey]domain.Membership),
		invites:      make(map[string]domain.Invite),
	}
}

func (d *data) clone() *data {
	return &data{
		users:        maps.Clone(d.users),
		emails:       maps.Clone(d.emails),
		tokens:       maps.Clone(d.tokens),
		emailChanges: maps.Clone(d.emailChanges),
		workspaces:   maps.Clone(d.workspaces),
		memberships:  maps.Clone(d.memberships),
		invites:      maps.Clone(d.invites),
	}
}

// Store is an in-memory CredentialStore. Transactions run on a snapshot that
// replaces the live data only when the callback succeeds. Writes hold txMu,
// so they are serialized with transactions; reads only wait for the swap.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *data
}

func NewStore() *Store {
	return &Store{data: newData()}
}

var _ ports.CredentialStore = (*Store)(nil)

// access targets live data, or a transaction snapshot when tx is set.
type access struct {
	store *Store
	tx    *data
}

func (a access) read(fn func(d *data) error) error {
	if a.tx != nil {
		return fn(a.tx)
	}
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	return fn(a.store.data)
}

func (a access) write(fn func(d *data) error) error {
	if a.tx != nil {
		return fn(a.tx)
	}
	a.store.txMu.Lock()
	defer a.store.txMu.Unlock()
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	return fn(a.store.data)
}

type repos struct {
	access
}

func (r repos) Users() ports.UserRepository               { return userRepository{r.access} }
func (r repos) Tokens() ports.TokenRepository             { return tokenRepository{r.access} }
func (r repos) EmailChanges() ports.EmailChangeRepository { return emailChangeRepository{r.access} }
func (r repos) Workspaces() ports.WorkspaceRepository     { return workspaceRepository{r.access} }
func (r repos) Memberships() ports.MembershipRepository   { return membershipRepository{r.access} }
func (r repos) Invites() ports.InviteRepository           { return inviteRepository{r.access} }

func (s *Store) live() repos { return repos{access{store: s}} }

func (s *Store) Users() ports.UserRepository               { return s.live().Users() }
func (s *Store) Tokens() ports.TokenRepository             { return s.live().Tokens() }
func (s *Store) EmailChanges() ports.EmailChangeRepository { return s.live().EmailChanges() }
func (s *Store) Workspaces() ports.WorkspaceRepository     { return s.live().Workspaces() }
func (s *Store) Memberships() ports.MembershipRepository   { return s.live().Memberships() }
func (s *Store) Invites() ports.InviteRepository           { return s.live().Invites() }

func (s *Store) WithinTx(ctx context.Context, fn func(repos ports.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(repos{access{store: s, tx: snapshot}}); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = snapshot
	s.mu.Unlock()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}
