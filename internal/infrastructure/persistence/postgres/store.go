package postgres

import (
	"context"

	"github.com/alem-hub/gamification/internal/domain/leaderboard"
	"github.com/alem-hub/gamification/internal/domain/uow"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// Store implements uow.Store on a PostgreSQL connection pool.
type Store struct {
	conn *Connection
}

// NewStore creates a new Store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// Repositories returns repositories bound to the pool.
func (s *Store) Repositories() uow.Repositories {
	return bind(s.conn.Pool())
}

// WithinTx runs fn in a read-committed transaction. Row locks taken by the
// *ForUpdate methods are held until fn returns.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos uow.Repositories) error) error {
	return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(ctx, bind(tx))
	})
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func bind(q Querier) uow.Repositories {
	return uow.Repositories{
		Ledger:      &ledgerRepo{q: q},
		Stats:       &statsRepo{q: q},
		Badges:      &badgeRepo{q: q},
		Challenges:  &challengeRepo{q: q},
		Leaderboard: &leaderboardRepo{q: q},
		Inbox:       &inboxRepo{q: q},
	}
}

// scopeKey maps a leaderboard scope to the COALESCE(course_id, 0) index key.
func scopeKey(s leaderboard.Scope) int64 {
	if id := s.CourseID(); id != nil {
		return *id
	}
	return 0
}

// nullString maps "" to SQL NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
