package command_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alem-hub/gamification/internal/application/command"
	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/internal/domain/stats"
	"github.com/alem-hub/gamification/internal/domain/uow"
	"github.com/alem-hub/gamification/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/gamification/pkg/timeutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Wednesday, 10:00 UTC.
var baseTime = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) count(t shared.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.EventType() == t {
			n++
		}
	}
	return n
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	clock  *testClock
	events *recordingPublisher
	h      *command.Handlers
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, command.Options{})
}

func newFixtureWith(t *testing.T, opts command.Options) *fixture {
	t.Helper()

	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  memory.NewStore(),
		clock:  &testClock{now: baseTime},
		events: &recordingPublisher{},
	}
	if opts.Milestones.StreakDays == nil && opts.Milestones.Levels == nil {
		opts.Milestones = command.DefaultMilestones()
	}

	env := command.Env{
		Store:     f.store,
		Publisher: f.events,
		Clock:     f.clock.Now,
		Calendar:  timeutil.NewCalendar(time.UTC),
	}
	f.h = command.NewHandlers(env, opts)
	return f
}

func (f *fixture) stats(userID int64) *stats.UserStat {
	f.t.Helper()
	st, err := f.store.Repositories().Stats.Get(f.ctx, userID)
	require.NoError(f.t, err)
	return st
}

func (f *fixture) entries(userID int64) []*ledger.PointEntry {
	f.t.Helper()
	entries, err := f.store.Repositories().Ledger.ListByUser(f.ctx, userID, 0, 0)
	require.NoError(f.t, err)
	return entries
}

func (f *fixture) entriesFrom(userID int64, typ ledger.SourceType) []*ledger.PointEntry {
	var out []*ledger.PointEntry
	for _, e := range f.entries(userID) {
		if e.Source.Type() == typ {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) createChallenge(typ challenge.Type, criteria challenge.CriteriaType, target, reward int64) *challenge.Challenge {
	f.t.Helper()
	cmd := command.CreateChallengeCommand{
		Title:        string(criteria) + " challenge",
		Type:         typ,
		Criteria:     challenge.Criteria{Type: criteria, Target: target},
		PointsReward: reward,
	}
	if typ == challenge.TypeSpecial {
		end := f.clock.Now().Add(72 * time.Hour)
		cmd.EndAt = &end
	}
	c, err := f.h.CreateChallenge.Handle(f.ctx, cmd)
	require.NoError(f.t, err)
	return c
}

// assign creates an assignment for the challenge's current period directly.
func (f *fixture) assign(userID int64, c *challenge.Challenge) uuid.UUID {
	f.t.Helper()
	now := f.clock.Now()
	date, expires := c.Period(now, timeutil.NewCalendar(time.UTC))
	a := challenge.NewAssignment(userID, c.ID, date, expires, now)
	created, err := f.store.Repositories().Challenges.CreateAssignment(f.ctx, a)
	require.NoError(f.t, err)
	require.True(f.t, created)
	return a.ID()
}

func (f *fixture) assignment(id uuid.UUID) *challenge.Assignment {
	f.t.Helper()
	var a *challenge.Assignment
	err := f.store.WithinTx(f.ctx, func(ctx context.Context, repos uow.Repositories) error {
		var err error
		a, err = repos.Challenges.GetAssignmentForUpdate(ctx, id)
		return err
	})
	require.NoError(f.t, err)
	return a
}

func (f *fixture) progress(userID int64, criteria challenge.CriteriaType, inc int64) *command.ProgressResult {
	f.t.Helper()
	res, err := f.h.Progress.Handle(f.ctx, command.UpdateProgressCommand{UserID: userID, Criteria: criteria, Increment: inc})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) record(ev shared.LearningEvent) *command.LearningEventResult {
	f.t.Helper()
	res, err := f.h.LearningEvents.Handle(f.ctx, ev)
	require.NoError(f.t, err)
	return res
}
