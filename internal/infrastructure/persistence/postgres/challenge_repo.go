package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type challengeRepo struct {
	q Querier
}

const (
	challengeColumns = `id, title, description, type, criteria_type, criteria_target,
		points_reward, badge_id, start_at, end_at, created_at`

	assignmentColumns = `id, user_id, challenge_id, assigned_date, status, current_progress,
		completed_at, reward_claimed, expires_at, created_at, updated_at`
)

// prefixed qualifies a column list with a table alias.
func prefixed(alias string, cols ...string) string {
	qualified := make([]string, len(cols))
	for i, c := range cols {
		qualified[i] = alias + "." + c
	}
	return strings.Join(qualified, ", ")
}

var (
	challengeColumnsC = prefixed("c", "id", "title", "description", "type", "criteria_type", "criteria_target",
		"points_reward", "badge_id", "start_at", "end_at", "created_at")
	assignmentColumnsA = prefixed("a", "id", "user_id", "challenge_id", "assigned_date", "status", "current_progress",
		"completed_at", "reward_claimed", "expires_at", "created_at", "updated_at")
)

func challengeDest(c *challenge.Challenge, typ, criteria *string) []any {
	return []any{
		&c.ID, &c.Title, &c.Description, typ, criteria, &c.Criteria.Target,
		&c.PointsReward, &c.BadgeID, &c.StartAt, &c.EndAt, &c.CreatedAt,
	}
}

func assignmentDest(rec *challenge.Record, status *string) []any {
	return []any{
		&rec.ID, &rec.UserID, &rec.ChallengeID, &rec.AssignedDate, status, &rec.CurrentProgress,
		&rec.CompletedAt, &rec.RewardClaimed, &rec.ExpiresAt, &rec.CreatedAt, &rec.UpdatedAt,
	}
}

func finishChallenge(c *challenge.Challenge, typ, criteria string) *challenge.Challenge {
	c.Type = challenge.Type(typ)
	c.Criteria.Type = challenge.CriteriaType(criteria)
	return c
}

func finishAssignment(rec challenge.Record, status string) (*challenge.Assignment, error) {
	s, err := challenge.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("assignment %s: %w", rec.ID, err)
	}
	rec.Status = s
	return challenge.Rehydrate(rec)
}

func scanChallenge(row pgx.Row) (*challenge.Challenge, error) {
	var (
		c             challenge.Challenge
		typ, criteria string
	)
	if err := row.Scan(challengeDest(&c, &typ, &criteria)...); err != nil {
		return nil, err
	}
	return finishChallenge(&c, typ, criteria), nil
}

func scanAssignment(row pgx.Row) (*challenge.Assignment, error) {
	var (
		rec    challenge.Record
		status string
	)
	if err := row.Scan(assignmentDest(&rec, &status)...); err != nil {
		return nil, err
	}
	return finishAssignment(rec, status)
}

func collectAssignments(rows pgx.Rows) ([]*challenge.Assignment, error) {
	defer rows.Close()

	var result []*challenge.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// ──────────────────────────────────────────────────────────────────────────────
// Templates
// ──────────────────────────────────────────────────────────────────────────────

func (r *challengeRepo) CreateChallenge(ctx context.Context, c *challenge.Challenge) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO challenges (`+challengeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		c.ID, c.Title, c.Description, string(c.Type), string(c.Criteria.Type), c.Criteria.Target,
		c.PointsReward, c.BadgeID, c.StartAt, c.EndAt, c.CreatedAt,
	)
	if IsForeignKeyViolation(err) {
		return shared.ErrBadgeNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}
	return nil
}

func (r *challengeRepo) GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	c, err := scanChallenge(r.q.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, shared.ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return c, nil
}

func (r *challengeRepo) ListActiveChallenges(ctx context.Context, typ challenge.Type, now time.Time) ([]*challenge.Challenge, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+challengeColumns+`
		FROM challenges
		WHERE type = $1 AND start_at <= $2 AND (end_at IS NULL OR end_at > $2)
		ORDER BY created_at, id
	`, string(typ), now)
	if err != nil {
		return nil, fmt.Errorf("failed to list active challenges: %w", err)
	}
	defer rows.Close()

	var result []*challenge.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// ──────────────────────────────────────────────────────────────────────────────
// Assignments
// ──────────────────────────────────────────────────────────────────────────────

func (r *challengeRepo) CreateAssignment(ctx context.Context, a *challenge.Assignment) (bool, error) {
	rec := a.Record()
	tag, err := r.q.Exec(ctx, `
		INSERT INTO user_challenge_assignments (`+assignmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, challenge_id, assigned_date) DO NOTHING
	`,
		rec.ID, rec.UserID, rec.ChallengeID, rec.AssignedDate, rec.Status.String(), rec.CurrentProgress,
		rec.CompletedAt, rec.RewardClaimed, rec.ExpiresAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if IsForeignKeyViolation(err) {
		return false, shared.ErrChallengeNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to create assignment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *challengeRepo) GetAssignmentForUpdate(ctx context.Context, id uuid.UUID) (*challenge.Assignment, error) {
	a, err := scanAssignment(r.q.QueryRow(ctx, `
		SELECT `+assignmentColumns+` FROM user_challenge_assignments WHERE id = $1 FOR UPDATE
	`, id))
	if IsNoRows(err) {
		return nil, shared.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock assignment: %w", err)
	}
	return a, nil
}

func (r *challengeRepo) ListAcceptingForUpdate(ctx context.Context, userID int64, criteria challenge.CriteriaType) ([]challenge.ActiveAssignment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+assignmentColumnsA+`, `+challengeColumnsC+`
		FROM user_challenge_assignments a
		JOIN challenges c ON c.id = a.challenge_id
		WHERE a.user_id = $1
		  AND a.status IN ('pending', 'in_progress')
		  AND c.criteria_type = $2
		ORDER BY a.assigned_date, a.id
		FOR UPDATE OF a
	`, userID, string(criteria))
	if err != nil {
		return nil, fmt.Errorf("failed to lock accepting assignments: %w", err)
	}
	defer rows.Close()

	var result []challenge.ActiveAssignment
	for rows.Next() {
		var (
			rec                   challenge.Record
			c                     challenge.Challenge
			status, typ, critType string
		)
		dest := append(assignmentDest(&rec, &status), challengeDest(&c, &typ, &critType)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a, err := finishAssignment(rec, status)
		if err != nil {
			return nil, err
		}
		result = append(result, challenge.ActiveAssignment{
			Assignment: a,
			Challenge:  finishChallenge(&c, typ, critType),
		})
	}
	return result, rows.Err()
}

func (r *challengeRepo) ListByUser(ctx context.Context, userID int64, status challenge.Status) ([]*challenge.Assignment, error) {
	filter := ""
	if status != 0 {
		filter = status.String()
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM user_challenge_assignments
		WHERE user_id = $1 AND ($2::text = '' OR status = $2::text)
		ORDER BY assigned_date DESC, id::text
	`, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return collectAssignments(rows)
}

func (r *challengeRepo) ListOverdueForUpdate(ctx context.Context, now time.Time, limit int) ([]*challenge.Assignment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM user_challenge_assignments
		WHERE status IN ('pending', 'in_progress') AND expires_at < $1
		ORDER BY expires_at, id
		LIMIT NULLIF($2::int, 0)
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to lock overdue assignments: %w", err)
	}
	return collectAssignments(rows)
}

func (r *challengeRepo) SaveAssignment(ctx context.Context, a *challenge.Assignment) error {
	rec := a.Record()
	tag, err := r.q.Exec(ctx, `
		UPDATE user_challenge_assignments SET
			status = $2,
			current_progress = $3,
			completed_at = $4,
			reward_claimed = $5,
			updated_at = $6
		WHERE id = $1
	`, rec.ID, rec.Status.String(), rec.CurrentProgress, rec.CompletedAt, rec.RewardClaimed, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAssignmentNotFound
	}
	return nil
}

func (r *challengeRepo) CountCompletedByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM user_challenge_assignments
		WHERE user_id = $1 AND status IN ('completed', 'claimed')
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed challenges: %w", err)
	}
	return n, nil
}
