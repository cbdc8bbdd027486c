// Package memory provides an in-process implementation of the repositories.
// Transactions are serialized by one mutex and roll back by restoring a
// snapshot, so it honours the same commit-or-nothing contract as Postgres.
// Used by tests and by STORAGE_DRIVER=memory local runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alem-hub/gamification/internal/domain/badge"
	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/internal/domain/leaderboard"
	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/internal/domain/stats"
	"github.com/alem-hub/gamification/internal/domain/uow"
	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// ══════════════════════════════════════════════════════════════════════════════

type state struct {
	entries []ledger.PointEntry
	dedup   map[string]struct{}

	stats map[int64]stats.UserStat

	badges      map[uuid.UUID]badge.Badge
	badgeByCode map[string]uuid.UUID
	userBadges  map[int64]map[uuid.UUID]time.Time

	challenges     map[uuid.UUID]challenge.Challenge
	assignments    map[uuid.UUID]challenge.Record
	assignmentKeys map[string]uuid.UUID

	rankings map[string]map[int64]leaderboard.Entry

	inbox map[string]time.Time
}

func newState() *state {
	return &state{
		dedup:          make(map[string]struct{}),
		stats:          make(map[int64]stats.UserStat),
		badges:         make(map[uuid.UUID]badge.Badge),
		badgeByCode:    make(map[string]uuid.UUID),
		userBadges:     make(map[int64]map[uuid.UUID]time.Time),
		challenges:     make(map[uuid.UUID]challenge.Challenge),
		assignments:    make(map[uuid.UUID]challenge.Record),
		assignmentKeys: make(map[string]uuid.UUID),
		rankings:       make(map[string]map[int64]leaderboard.Entry),
		inbox:          make(map[string]time.Time),
	}
}

// clone deep-copies the maps. Stored values are never mutated in place,
// so copying them by value is enough.
func (s *state) clone() *state {
	c := newState()
	c.entries = append([]ledger.PointEntry(nil), s.entries...)
	for k, v := range s.dedup {
		c.dedup[k] = v
	}
	for k, v := range s.stats {
		c.stats[k] = v
	}
	for k, v := range s.badges {
		c.badges[k] = v
	}
	for k, v := range s.badgeByCode {
		c.badgeByCode[k] = v
	}
	for user, held := range s.userBadges {
		m := make(map[uuid.UUID]time.Time, len(held))
		for k, v := range held {
			m[k] = v
		}
		c.userBadges[user] = m
	}
	for k, v := range s.challenges {
		c.challenges[k] = v
	}
	for k, v := range s.assignments {
		c.assignments[k] = v
	}
	for k, v := range s.assignmentKeys {
		c.assignmentKeys[k] = v
	}
	for scope, rows := range s.rankings {
		m := make(map[int64]leaderboard.Entry, len(rows))
		for k, v := range rows {
			m[k] = v
		}
		c.rankings[scope] = m
	}
	for k, v := range s.inbox {
		c.inbox[k] = v
	}
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store implements uow.Store in memory.
type Store struct {
	mu    sync.Mutex
	state *state

	faultMu sync.Mutex
	faults  map[string]error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		state:  newState(),
		faults: make(map[string]error),
	}
}

// InjectFault makes every call to op (e.g. "stats.Save") fail with err
// until cleared with a nil error.
func (s *Store) InjectFault(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	return s.faults[op]
}

// Repositories returns repositories that lock the store for each call.
func (s *Store) Repositories() uow.Repositories {
	return s.bind(func(fn func(st *state) error) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn(s.state)
	})
}

// WithinTx runs fn against a snapshot and commits it only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos uow.Repositories) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	repos := s.bind(func(fn func(st *state) error) error {
		return fn(work)
	})

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("transaction panicked: %v", p)
		}
	}()

	if err := fn(ctx, repos); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

type accessor func(fn func(st *state) error) error

func (s *Store) bind(with accessor) uow.Repositories {
	base := repo{store: s, with: with}
	return uow.Repositories{
		Ledger:      &ledgerRepo{base},
		Stats:       &statsRepo{base},
		Badges:      &badgeRepo{base},
		Challenges:  &challengeRepo{base},
		Leaderboard: &leaderboardRepo{base},
		Inbox:       &inboxRepo{base},
	}
}

// repo is embedded by every repository.
type repo struct {
	store *Store
	with  accessor
}

// do runs fn against the bound state unless a fault is injected for op.
func (r repo) do(ctx context.Context, op string, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.store.fault(op); err != nil {
		return err
	}
	return r.with(fn)
}

var _ uow.Store = (*Store)(nil)
