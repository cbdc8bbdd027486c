package command

import (
	"github.com/alem-hub/gamification/internal/domain/leaderboard"
	"github.com/alem-hub/gamification/internal/domain/ledger"
)

// Options configures the command handlers.
type Options struct {
	Curve            ledger.LevelCurve
	Points           PointsConfig
	Milestones       MilestoneConfig
	Assign           AssignOptions
	ExpireBatchSize  int
	LeaderboardCache leaderboard.Cache
}

// Handlers groups every command handler wired to one environment.
type Handlers struct {
	Stats           *StatAggregator
	AwardXP         *AwardXPHandler
	AwardBadge      *AwardBadgeHandler
	Progress        *ProgressHandler
	ClaimReward     *ClaimRewardHandler
	CreateChallenge *CreateChallengeHandler
	Assign          *AssignChallengesHandler
	Expire          *ExpireAssignmentsHandler
	Leaderboard     *RecomputeLeaderboardHandler
	LearningEvents  *RecordLearningEventHandler
}

// NewHandlers builds the handler graph.
func NewHandlers(env Env, opts Options) *Handlers {
	if opts.Curve.IsZero() {
		opts.Curve = ledger.DefaultLevelCurve()
	}

	aggregator := NewStatAggregator(env, opts.Curve)
	xp := NewAwardXPHandler(env, aggregator)
	badges := NewAwardBadgeHandler(env, aggregator)
	progress := NewProgressHandler(env, xp, badges, aggregator)

	return &Handlers{
		Stats:           aggregator,
		AwardXP:         xp,
		AwardBadge:      badges,
		Progress:        progress,
		ClaimReward:     NewClaimRewardHandler(env),
		CreateChallenge: NewCreateChallengeHandler(env),
		Assign:          NewAssignChallengesHandler(env, opts.Assign),
		Expire:          NewExpireAssignmentsHandler(env, opts.ExpireBatchSize),
		Leaderboard:     NewRecomputeLeaderboardHandler(env, opts.LeaderboardCache),
		LearningEvents:  NewRecordLearningEventHandler(env, opts.Points, opts.Milestones, xp, badges, progress, aggregator),
	}
}
