package client

import (
	"encoding/json"
	"errors"
	"fmt"

	"workhub/internal/core/domain"

	"go.etcd.io/bbolt"
)

var bucketState = []byte("state")

var (
	keyAuth               = []byte("auth")
	keyWorkspaces         = []byte("workspaces")
	keyCurrentWorkspaceID = []byte("current_workspace_id")
	keyNotifications      = []byte("notifications")
)

var ErrNothingPersisted = errors.New("no persisted state")

// Persisted holds the slices that survive a restart. Search and websocket
// state are never written.
type Persisted struct {
	Auth               AuthState
	Workspaces         []domain.WorkspaceWithRole
	CurrentWorkspaceID domain.WorkspaceID
	UnreadCount        int
}

type notificationsRecord struct {
	UnreadCount int `json:"unread_count"`
}

// Persister stores the whitelisted slices in a bbolt file.
type Persister struct {
	db *bbolt.DB
}

func OpenPersister(path string) (*Persister, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create state bucket: %w", err)
	}
	return &Persister{db: db}, nil
}

func (p *Persister) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Persister) Save(st State) error {
	records := []struct {
		key   []byte
		value any
	}{
		{keyAuth, st.Auth},
		{keyWorkspaces, st.Workspaces},
		{keyCurrentWorkspaceID, st.CurrentWorkspaceID},
		{keyNotifications, notificationsRecord{UnreadCount: st.UnreadCount}},
	}

	return p.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketState)
		if bucket == nil {
			return fmt.Errorf("state bucket not found")
		}
		for _, r := range records {
			data, err := json.Marshal(r.value)
			if err != nil {
				return fmt.Errorf("failed to marshal %s: %w", r.key, err)
			}
			if err := bucket.Put(r.key, data); err != nil {
				return fmt.Errorf("failed to save %s: %w", r.key, err)
			}
		}
		return nil
	})
}

// Load returns ErrNothingPersisted when Save has never run.
func (p *Persister) Load() (*Persisted, error) {
	var out Persisted
	var notifications notificationsRecord

	err := p.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketState)
		if bucket == nil {
			return fmt.Errorf("state bucket not found")
		}
		if bucket.Get(keyAuth) == nil {
			return ErrNothingPersisted
		}

		targets := []struct {
			key []byte
			dst any
		}{
			{keyAuth, &out.Auth},
			{keyWorkspaces, &out.Workspaces},
			{keyCurrentWorkspaceID, &out.CurrentWorkspaceID},
			{keyNotifications, &notifications},
		}
		for _, t := range targets {
			data := bucket.Get(t.key)
			if data == nil {
				continue
			}
			if err := json.Unmarshal(data, t.dst); err != nil {
				return fmt.Errorf("failed to unmarshal %s: %w", t.key, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out.UnreadCount = notifications.UnreadCount
	return &out, nil
}

func (p *Persister) Clear() error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketState); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(bucketState)
		return err
	})
}

// Rehydrate restores persisted slices, including the REST bearer token.
func (s *Store) Rehydrate(p *Persisted) {
	if p.Auth.Token != "" {
		s.api.SetBearer(p.Auth.Token)
	} else {
		s.api.ClearBearer()
	}
	s.update(func(st *State) {
		st.Auth = p.Auth
		st.Workspaces = append([]domain.WorkspaceWithRole(nil), p.Workspaces...)
		st.CurrentWorkspaceID = p.CurrentWorkspaceID
		st.UnreadCount = p.UnreadCount
	})
}

// AutoPersist saves the store after every change until the returned func is
// called.
func (s *Store) AutoPersist(p *Persister) (stop func()) {
	return s.Subscribe(func(st State) {
		if err := p.Save(st); err != nil {
			s.logger.Warnw("failed to persist client state", "error", err)
		}
	})
}
