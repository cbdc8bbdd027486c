package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/gamification/internal/domain/leaderboard"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type leaderboardRepo struct {
	q Querier
}

// Replace upserts the ranking in one batch, then prunes the users that
// dropped out of the scope.
func (r *leaderboardRepo) Replace(ctx context.Context, ranking *leaderboard.Ranking) (int64, error) {
	key := scopeKey(ranking.Scope)
	courseID := ranking.Scope.CourseID()

	userIDs := make([]int64, 0, len(ranking.Entries))
	if len(ranking.Entries) > 0 {
		batch := &pgx.Batch{}
		for _, e := range ranking.Entries {
			batch.Queue(`
				INSERT INTO leaderboard_entries (course_id, user_id, total_points, rank, updated_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT ((COALESCE(course_id, 0)), user_id) DO UPDATE SET
					total_points = EXCLUDED.total_points,
					rank = EXCLUDED.rank,
					updated_at = EXCLUDED.updated_at
			`, courseID, e.UserID, e.TotalPoints, int(e.Rank), e.UpdatedAt)
			userIDs = append(userIDs, e.UserID)
		}

		br := r.q.SendBatch(ctx, batch)
		for range ranking.Entries {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return 0, fmt.Errorf("failed to upsert leaderboard entry: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return 0, fmt.Errorf("failed to close leaderboard batch: %w", err)
		}
	}

	tag, err := r.q.Exec(ctx, `
		DELETE FROM leaderboard_entries
		WHERE COALESCE(course_id, 0) = $1 AND NOT (user_id = ANY($2))
	`, key, userIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to prune leaderboard: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEntry(row pgx.Row) (leaderboard.Entry, error) {
	var (
		e    leaderboard.Entry
		rank int
	)
	if err := row.Scan(&e.CourseID, &e.UserID, &e.TotalPoints, &rank, &e.UpdatedAt); err != nil {
		return leaderboard.Entry{}, err
	}
	e.Rank = leaderboard.Rank(rank)
	return e, nil
}

func (r *leaderboardRepo) Page(ctx context.Context, scope leaderboard.Scope, opts leaderboard.PageOptions) ([]leaderboard.Entry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT course_id, user_id, total_points, rank, updated_at
		FROM leaderboard_entries
		WHERE COALESCE(course_id, 0) = $1
		ORDER BY rank ASC
		LIMIT $2 OFFSET $3
	`, scopeKey(scope), opts.Limit(), opts.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard page: %w", err)
	}
	defer rows.Close()

	var entries []leaderboard.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *leaderboardRepo) Count(ctx context.Context, scope leaderboard.Scope) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM leaderboard_entries WHERE COALESCE(course_id, 0) = $1
	`, scopeKey(scope)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count leaderboard: %w", err)
	}
	return n, nil
}

func (r *leaderboardRepo) GetUserEntry(ctx context.Context, scope leaderboard.Scope, userID int64) (*leaderboard.Entry, error) {
	e, err := scanEntry(r.q.QueryRow(ctx, `
		SELECT course_id, user_id, total_points, rank, updated_at
		FROM leaderboard_entries
		WHERE COALESCE(course_id, 0) = $1 AND user_id = $2
	`, scopeKey(scope), userID))
	if IsNoRows(err) {
		return nil, shared.ErrRankNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user rank: %w", err)
	}
	return &e, nil
}
