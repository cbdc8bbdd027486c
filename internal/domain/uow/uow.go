// Package uow defines the transactional boundary shared by all repositories.
// Every compound write (ledger entry + stat update, progress + payout) runs
// inside one Store.WithinTx call so it commits or rolls back as a unit.
package uow

import (
	"context"
	"time"

	"github.com/alem-hub/gamification/internal/domain/badge"
	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/internal/domain/leaderboard"
	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/internal/domain/stats"
)

// Inbox records processed domain events.
type Inbox interface {
	// MarkProcessed stores the key; false when it was already present.
	MarkProcessed(ctx context.Context, key string, at time.Time) (bool, error)
}

// Repositories is the set of repositories bound to one connection or transaction.
type Repositories struct {
	Ledger      ledger.Repository
	Stats       stats.Repository
	Badges      badge.Repository
	Challenges  challenge.Repository
	Leaderboard leaderboard.Repository
	Inbox       Inbox
}

// Store opens transactions over the repositories.
type Store interface {
	// Repositories returns repositories that run each call in its own implicit transaction.
	Repositories() Repositories

	// WithinTx runs fn in a transaction. A returned error or panic rolls back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error

	// Ping checks that the backing storage is reachable.
	Ping(ctx context.Context) error
}
