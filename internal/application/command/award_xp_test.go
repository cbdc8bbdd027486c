package command_test

import (
	"errors"
	"testing"

	"github.com/alem-hub/gamification/internal/application/command"
	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lessonAward(userID, lessonID, points int64) command.AwardXPCommand {
	return command.AwardXPCommand{
		UserID: userID,
		Points: points,
		Reason: ledger.ReasonCompletion,
		Source: ledger.LessonSource(lessonID),
	}
}

func TestAwardXP_SuppressesDuplicateAward(t *testing.T) {
	f := newFixture(t)

	first, err := f.h.AwardXP.Handle(f.ctx, lessonAward(7, 42, 10))
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, int64(10), first.Stats.TotalXP)

	second, err := f.h.AwardXP.Handle(f.ctx, lessonAward(7, 42, 10))
	require.NoError(t, err)
	assert.True(t, second.Suppressed())
	assert.Nil(t, second.Entry)

	assert.Len(t, f.entries(7), 1)
	assert.Equal(t, int64(10), f.stats(7).TotalXP)
	assert.Equal(t, 1, f.events.count(shared.EventXPAwarded))
}

func TestAwardXP_AllowMultipleWritesEveryAward(t *testing.T) {
	f := newFixture(t)

	cmd := command.AwardXPCommand{
		UserID:  7,
		Points:  20,
		Reason:  ledger.ReasonCompletion,
		Source:  ledger.AssignmentSource(5),
		Options: ledger.AwardOptions{AllowMultiple: true},
	}

	for i := 0; i < 2; i++ {
		res, err := f.h.AwardXP.Handle(f.ctx, cmd)
		require.NoError(t, err)
		assert.True(t, res.Created)
	}

	assert.Len(t, f.entries(7), 2)
	assert.Equal(t, int64(40), f.stats(7).TotalXP)
}

func TestAwardXP_SameSourceDifferentReason(t *testing.T) {
	f := newFixture(t)

	_, err := f.h.AwardXP.Handle(f.ctx, lessonAward(7, 42, 10))
	require.NoError(t, err)

	bonus := lessonAward(7, 42, 5)
	bonus.Reason = ledger.ReasonBonus
	res, err := f.h.AwardXP.Handle(f.ctx, bonus)
	require.NoError(t, err)
	assert.True(t, res.Created)

	assert.Equal(t, int64(15), f.stats(7).TotalXP)
}

func TestAwardXP_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		cmd  command.AwardXPCommand
	}{
		{"zero points", lessonAward(7, 1, 0)},
		{"negative points", lessonAward(7, 1, -5)},
		{"missing user", lessonAward(0, 1, 10)},
		{"missing source", command.AwardXPCommand{UserID: 7, Points: 10, Reason: ledger.ReasonCompletion}},
		{"positive penalty", command.AwardXPCommand{UserID: 7, Points: 10, Reason: ledger.ReasonPenalty, Source: ledger.SystemSource("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.h.AwardXP.Handle(f.ctx, tt.cmd)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
		})
	}

	assert.Empty(t, f.entries(7))
}

func TestAwardXP_LevelUpPublishesEvent(t *testing.T) {
	f := newFixture(t)

	res, err := f.h.AwardXP.Handle(f.ctx, lessonAward(7, 1, 260))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Level.OldLevel)
	assert.Equal(t, 3, res.Level.NewLevel)
	assert.Equal(t, 3, f.stats(7).GlobalLevel)
	assert.Equal(t, 1, f.events.count(shared.EventLevelUp))
}

func TestPenalize_KeepsGrossPoints(t *testing.T) {
	f := newFixture(t)

	_, err := f.h.AwardXP.Handle(f.ctx, lessonAward(7, 1, 100))
	require.NoError(t, err)

	res, err := f.h.AwardXP.Penalize(f.ctx, command.PenalizeCommand{
		UserID:      7,
		Points:      30,
		Source:      ledger.SystemSource("plagiarism:1"),
		Description: "copied submission",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-30), res.Entry.Points)

	st := f.stats(7)
	assert.Equal(t, int64(70), st.TotalXP)
	assert.Equal(t, int64(100), st.TotalPoints)
	assert.Equal(t, 1, st.GlobalLevel)

	_, err = f.h.AwardXP.Penalize(f.ctx, command.PenalizeCommand{UserID: 7, Points: 0, Source: ledger.SystemSource("x")})
	assert.True(t, shared.IsValidation(err))
}

func TestAwardXP_RollsBackWhenStatsFail(t *testing.T) {
	f := newFixture(t)
	f.store.InjectFault("stats.Save", errors.New("disk full"))

	_, err := f.h.AwardXP.Handle(f.ctx, lessonAward(7, 42, 10))
	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))
	assert.ErrorIs(t, err, shared.ErrStorage)

	f.store.InjectFault("stats.Save", nil)

	assert.Empty(t, f.entries(7), "ledger entry must not survive the failed transaction")
	assert.Zero(t, f.events.count(shared.EventXPAwarded))

	res, err := f.h.AwardXP.Handle(f.ctx, lessonAward(7, 42, 10))
	require.NoError(t, err)
	assert.True(t, res.Created, "retry after rollback must not be suppressed")
	assert.Equal(t, int64(10), f.stats(7).TotalXP)
}

func TestReconcile_RepairsDriftedCounters(t *testing.T) {
	f := newFixture(t)

	_, err := f.h.AwardXP.Handle(f.ctx, lessonAward(7, 1, 120))
	require.NoError(t, err)

	st := f.stats(7)
	st.TotalXP = 999
	st.GlobalLevel = 5
	require.NoError(t, f.store.Repositories().Stats.Save(f.ctx, st))

	res, err := f.h.Stats.Reconcile(f.ctx, 7)
	require.NoError(t, err)
	assert.True(t, res.Changed())
	assert.Equal(t, int64(999), res.Before.TotalXP)
	assert.Equal(t, int64(120), res.After.TotalXP)
	assert.Equal(t, 2, res.After.GlobalLevel)

	again, err := f.h.Stats.Reconcile(f.ctx, 7)
	require.NoError(t, err)
	assert.False(t, again.Changed())
}

func TestGetOrCreateStats_CreatesZeroRow(t *testing.T) {
	f := newFixture(t)

	st, err := f.h.Stats.GetOrCreateStats(f.ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(11), st.UserID)
	assert.Equal(t, 1, st.GlobalLevel)
	assert.Zero(t, st.TotalXP)

	_, err = f.h.Stats.GetOrCreateStats(f.ctx, 0)
	assert.True(t, shared.IsValidation(err))
}
