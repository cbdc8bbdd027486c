package command_test

import (
	"testing"

	"github.com/alem-hub/gamification/internal/application/command"
	"github.com/alem-hub/gamification/internal/domain/badge"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwardBadge_GrantsOnce(t *testing.T) {
	f := newFixture(t)

	cmd := command.AwardBadgeCommand{UserID: 7, Code: "first-steps", Name: "First Steps"}

	for i := 0; i < 3; i++ {
		res, err := f.h.AwardBadge.Handle(f.ctx, cmd)
		require.NoError(t, err)
		assert.Equal(t, i == 0, res.Granted)
		assert.Equal(t, "first-steps", res.Badge.Code)
	}

	held, err := f.store.Repositories().Badges.ListByUser(f.ctx, 7)
	require.NoError(t, err)
	assert.Len(t, held, 1)

	assert.Equal(t, 1, f.stats(7).TotalBadges)
	assert.Equal(t, 1, f.events.count(shared.EventBadgeAwarded))
	assert.Empty(t, f.entries(7), "badges never write XP")
}

func TestAwardBadge_SameCatalogRowForEveryUser(t *testing.T) {
	f := newFixture(t)

	a, err := f.h.AwardBadge.Handle(f.ctx, command.AwardBadgeCommand{UserID: 1, Code: "helper"})
	require.NoError(t, err)
	b, err := f.h.AwardBadge.Handle(f.ctx, command.AwardBadgeCommand{UserID: 2, Code: "helper"})
	require.NoError(t, err)

	assert.Equal(t, a.Badge.ID, b.Badge.ID)
	assert.True(t, b.Granted)
}

func TestAwardBadge_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.h.AwardBadge.Handle(f.ctx, command.AwardBadgeCommand{UserID: 7})
	assert.ErrorIs(t, err, shared.ErrInvalidBadgeCode)

	_, err = f.h.AwardBadge.Handle(f.ctx, command.AwardBadgeCommand{Code: "x"})
	assert.True(t, shared.IsValidation(err))
}

func TestCreateBadge_IdempotentByCode(t *testing.T) {
	f := newFixture(t)

	first, err := f.h.AwardBadge.CreateBadge(f.ctx, command.CreateBadgeCommand{
		Code: "marathon", Name: "Marathon", Type: badge.TypeAchievement, Icon: "runner",
	})
	require.NoError(t, err)
	assert.Equal(t, "runner", first.Icon)

	second, err := f.h.AwardBadge.CreateBadge(f.ctx, command.CreateBadgeCommand{Code: "marathon", Name: "Other"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Marathon", second.Name)
}
