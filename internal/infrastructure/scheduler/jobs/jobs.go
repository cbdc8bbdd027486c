// Package jobs contains the scheduled jobs of the gamification worker.
// Each job is a thin adapter from scheduler.Job to one command handler;
// the handlers key their writes by period so a re-run is a no-op.
package jobs

import (
	"context"
	"time"

	"github.com/alem-hub/gamification/internal/application/command"
	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/pkg/logger"
	"go.uber.org/zap"
)

// Job names, also used as lock names.
const (
	NameAssignDaily   = "assign_daily_challenges"
	NameAssignWeekly  = "assign_weekly_challenges"
	NameAssignSpecial = "assign_special_challenges"
	NameExpire        = "expire_assignments"
	NameLeaderboard   = "recompute_leaderboards"

	// DefaultTimeout bounds a single run.
	DefaultTimeout = 10 * time.Minute
)

// Assigner assigns periodic challenges.
type Assigner interface {
	Handle(ctx context.Context, cmd command.AssignChallengesCommand) (*command.AssignResult, error)
}

// Expirer expires overdue assignments.
type Expirer interface {
	Handle(ctx context.Context) (*command.ExpireResult, error)
}

// Ranker rebuilds every leaderboard scope.
type Ranker interface {
	RecomputeAll(ctx context.Context) ([]*command.RecomputeResult, error)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGN CHALLENGES
// ══════════════════════════════════════════════════════════════════════════════

// AssignChallengesJob assigns every active challenge of one type to active users.
type AssignChallengesJob struct {
	typ      challenge.Type
	assigner Assigner
	timeout  time.Duration
	logger   *zap.Logger
}

// NewAssignChallengesJob creates the assignment job for one challenge type.
func NewAssignChallengesJob(typ challenge.Type, assigner Assigner, timeout time.Duration, log *zap.Logger) *AssignChallengesJob {
	if log == nil {
		log = zap.NewNop()
	}
	return &AssignChallengesJob{typ: typ, assigner: assigner, timeout: timeout, logger: log}
}

// Name is unique per challenge type.
func (j *AssignChallengesJob) Name() string {
	switch j.typ {
	case challenge.TypeWeekly:
		return NameAssignWeekly
	case challenge.TypeSpecial:
		return NameAssignSpecial
	default:
		return NameAssignDaily
	}
}

// Description implements scheduler.Job.
func (j *AssignChallengesJob) Description() string {
	return "assigns active " + string(j.typ) + " challenges to recently active users"
}

// Run assigns the current period's challenges. Existing assignments are counted, not duplicated.
func (j *AssignChallengesJob) Run(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, j.timeout)
	defer cancel()

	res, err := j.assigner.Handle(ctx, command.AssignChallengesCommand{Type: j.typ})
	if err != nil {
		return err
	}
	j.logger.Info("challenges assigned",
		logger.Job(j.Name()),
		zap.Int("users", res.Users),
		zap.Int("challenges", res.Challenges),
		zap.Int("created", res.Created),
		zap.Int("existing", res.Existing),
		zap.Int("failed", res.Failed),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE ASSIGNMENTS
// ══════════════════════════════════════════════════════════════════════════════

// ExpireAssignmentsJob sweeps overdue assignments to expired.
type ExpireAssignmentsJob struct {
	expirer Expirer
	timeout time.Duration
	logger  *zap.Logger
}

// NewExpireAssignmentsJob creates a new ExpireAssignmentsJob.
func NewExpireAssignmentsJob(expirer Expirer, timeout time.Duration, log *zap.Logger) *ExpireAssignmentsJob {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExpireAssignmentsJob{expirer: expirer, timeout: timeout, logger: log}
}

// Name implements scheduler.Job.
func (j *ExpireAssignmentsJob) Name() string { return NameExpire }

// Description implements scheduler.Job.
func (j *ExpireAssignmentsJob) Description() string {
	return "expires pending and in-progress assignments past their deadline"
}

// Run sweeps in batches until nothing overdue is left. It logs only when something expired.
func (j *ExpireAssignmentsJob) Run(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, j.timeout)
	defer cancel()

	res, err := j.expirer.Handle(ctx)
	if err != nil {
		return err
	}
	if res.Expired > 0 {
		j.logger.Info("assignments expired",
			logger.Job(NameExpire),
			zap.Int("expired", res.Expired),
			zap.Int("batches", res.Batches),
		)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE LEADERBOARDS
// ══════════════════════════════════════════════════════════════════════════════

// RecomputeLeaderboardsJob rebuilds the global and every course ranking.
type RecomputeLeaderboardsJob struct {
	ranker  Ranker
	timeout time.Duration
	logger  *zap.Logger
}

// NewRecomputeLeaderboardsJob creates a new RecomputeLeaderboardsJob.
func NewRecomputeLeaderboardsJob(ranker Ranker, timeout time.Duration, log *zap.Logger) *RecomputeLeaderboardsJob {
	if log == nil {
		log = zap.NewNop()
	}
	return &RecomputeLeaderboardsJob{ranker: ranker, timeout: timeout, logger: log}
}

// Name implements scheduler.Job.
func (j *RecomputeLeaderboardsJob) Name() string { return NameLeaderboard }

// Description implements scheduler.Job.
func (j *RecomputeLeaderboardsJob) Description() string {
	return "recomputes the global and per-course leaderboards"
}

// Run rebuilds every scope and logs the totals.
func (j *RecomputeLeaderboardsJob) Run(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, j.timeout)
	defer cancel()

	results, err := j.ranker.RecomputeAll(ctx)
	if err != nil {
		return err
	}

	var entries int
	var pruned int64
	for _, r := range results {
		entries += r.Entries
		pruned += r.Pruned
	}
	j.logger.Info("leaderboards recomputed",
		logger.Job(NameLeaderboard),
		zap.Int("scopes", len(results)),
		zap.Int("entries", entries),
		zap.Int64("pruned", pruned),
	)
	return nil
}
