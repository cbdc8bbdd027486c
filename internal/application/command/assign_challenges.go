package command

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGN CHALLENGES COMMAND
// Creates one assignment per (active user, active challenge, period). The
// (user, challenge, assigned_date) uniqueness makes re-running a period a
// no-op, so the job is safe to retry and to run on several workers.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultActiveWindow is how far back activity counts a user as active.
	DefaultActiveWindow = 30 * 24 * time.Hour

	// DefaultAssignConcurrency bounds parallel per-user transactions.
	DefaultAssignConcurrency = 8
)

// AssignChallengesCommand selects which challenge type to assign.
type AssignChallengesCommand struct {
	Type challenge.Type
}

// AssignResult reports the outcome of an assignment run.
type AssignResult struct {
	Type       challenge.Type
	Users      int
	Challenges int
	Created    int
	Existing   int
	Failed     int
}

// AssignOptions configures AssignChallengesHandler.
type AssignOptions struct {
	ActiveWindow time.Duration
	Concurrency  int
}

// AssignChallengesHandler assigns periodic challenges to active users.
type AssignChallengesHandler struct {
	env    Env
	opts   AssignOptions
	logger *zap.Logger
}

// NewAssignChallengesHandler creates a new AssignChallengesHandler.
func NewAssignChallengesHandler(env Env, opts AssignOptions) *AssignChallengesHandler {
	env = env.withDefaults()
	if opts.ActiveWindow <= 0 {
		opts.ActiveWindow = DefaultActiveWindow
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultAssignConcurrency
	}
	return &AssignChallengesHandler{
		env:    env,
		opts:   opts,
		logger: env.Logger.With(logger.Component("challenge_engine")),
	}
}

// Handle runs one assignment pass for the given challenge type.
func (h *AssignChallengesHandler) Handle(ctx context.Context, cmd AssignChallengesCommand) (*AssignResult, error) {
	if !cmd.Type.IsValid() {
		return nil, shared.ErrInvalidChallenge
	}

	started := time.Now()
	now := h.env.Clock()
	repos := h.env.Store.Repositories()

	challenges, err := repos.Challenges.ListActiveChallenges(ctx, cmd.Type, now)
	if err != nil {
		return nil, fmt.Errorf("assign challenges: %w", storageErr("challenge", "ListActive", err))
	}

	result := &AssignResult{Type: cmd.Type, Challenges: len(challenges)}
	if len(challenges) == 0 {
		return result, nil
	}

	users, err := repos.Stats.ActiveUserIDs(ctx, now.Add(-h.opts.ActiveWindow))
	if err != nil {
		return nil, fmt.Errorf("assign challenges: %w", storageErr("stats", "ActiveUserIDs", err))
	}
	result.Users = len(users)

	var created, existing, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(h.opts.Concurrency))

	for _, userID := range users {
		userID := userID
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			c, e, err := h.assignUser(gctx, userID, challenges, now)
			if err != nil {
				// one user's failure does not abort the period
				failed.Add(1)
				h.logger.Warn("failed to assign challenges",
					logger.UserID(userID),
					logger.Err(err),
				)
				return nil
			}
			created.Add(int64(c))
			existing.Add(int64(e))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("assign challenges: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("assign challenges: %w", err)
	}

	result.Created = int(created.Load())
	result.Existing = int(existing.Load())
	result.Failed = int(failed.Load())

	h.logger.Info("challenges assigned",
		zap.String("type", string(cmd.Type)),
		zap.Int("users", result.Users),
		zap.Int("challenges", result.Challenges),
		zap.Int("created", result.Created),
		zap.Int("existing", result.Existing),
		zap.Int("failed", result.Failed),
		logger.Latency(time.Since(started)),
	)
	return result, nil
}

// assignUser creates the user's assignments for every challenge in one transaction.
func (h *AssignChallengesHandler) assignUser(ctx context.Context, userID int64, challenges []*challenge.Challenge, now time.Time) (created, existing int, err error) {
	err = h.env.run(ctx, func(ctx context.Context, tx *txScope) error {
		created, existing = 0, 0
		for _, c := range challenges {
			assignedDate, expiresAt := c.Period(now, h.env.Calendar)
			if !expiresAt.After(now) {
				continue
			}

			a := challenge.NewAssignment(userID, c.ID, assignedDate, expiresAt, tx.now)
			inserted, err := tx.repos.Challenges.CreateAssignment(ctx, a)
			if err != nil {
				return storageErr("challenge", "CreateAssignment", err)
			}
			if inserted {
				created++
			} else {
				existing++
			}
		}
		return nil
	})
	return created, existing, err
}
