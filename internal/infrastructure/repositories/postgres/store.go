package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"workhub/internal/core/ports"
	"workhub/pkg/tracing"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens a Postgres connection through the pgx stdlib driver and pings it.
func Open(ctx context.Context, dsn string, maxOpenConns int, connMaxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	if connMaxLifetime > 0 {
		db.SetConnMaxLifetime(connMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &Store{db: db}, nil
}

var _ ports.CredentialStore = (*Store)(nil)

type repos struct {
	q querier
}

func (r repos) Users() ports.UserRepository               { return userRepository{r.q} }
func (r repos) Tokens() ports.TokenRepository             { return tokenRepository{r.q} }
func (r repos) EmailChanges() ports.EmailChangeRepository { return emailChangeRepository{r.q} }
func (r repos) Workspaces() ports.WorkspaceRepository     { return workspaceRepository{r.q} }
func (r repos) Memberships() ports.MembershipRepository   { return membershipRepository{r.q} }
func (r repos) Invites() ports.InviteRepository           { return inviteRepository{r.q} }

func (s *Store) Users() ports.UserRepository               { return repos{s.db}.Users() }
func (s *Store) Tokens() ports.TokenRepository             { return repos{s.db}.Tokens() }
func (s *Store) EmailChanges() ports.EmailChangeRepository { return repos{s.db}.EmailChanges() }
func (s *Store) Workspaces() ports.WorkspaceRepository     { return repos{s.db}.Workspaces() }
func (s *Store) Memberships() ports.MembershipRepository   { return repos{s.db}.Memberships() }
func (s *Store) Invites() ports.InviteRepository           { return repos{s.db}.Invites() }

func (s *Store) WithinTx(ctx context.Context, fn func(repos ports.Repositories) error) (err error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "transaction", "")
	defer span.End()
	defer tracing.MeasureDuration(ctx, time.Now(), "transaction")
	defer func() {
		if err != nil {
			tracing.RecordError(ctx, err)
		}
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(repos{tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
