package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/internal/domain/stats"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type statsRepo struct {
	q Querier
}

const statsColumns = `user_id, total_xp, total_points, global_level, current_streak, longest_streak,
	total_badges, completed_challenges, last_activity_date, stats_updated_at`

func scanStats(row pgx.Row) (*stats.UserStat, error) {
	var s stats.UserStat
	err := row.Scan(
		&s.UserID,
		&s.TotalXP,
		&s.TotalPoints,
		&s.GlobalLevel,
		&s.CurrentStreak,
		&s.LongestStreak,
		&s.TotalBadges,
		&s.CompletedChallenges,
		&s.LastActivityDate,
		&s.StatsUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *statsRepo) Get(ctx context.Context, userID int64) (*stats.UserStat, error) {
	s, err := scanStats(r.q.QueryRow(ctx, `
		SELECT `+statsColumns+` FROM user_gamification_stats WHERE user_id = $1
	`, userID))
	if IsNoRows(err) {
		return nil, shared.ErrStatsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return s, nil
}

func (r *statsRepo) GetOrCreateForUpdate(ctx context.Context, userID int64, now time.Time) (*stats.UserStat, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO user_gamification_stats (user_id, stats_updated_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create stats row: %w", err)
	}

	s, err := scanStats(r.q.QueryRow(ctx, `
		SELECT `+statsColumns+` FROM user_gamification_stats WHERE user_id = $1 FOR UPDATE
	`, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock stats row: %w", err)
	}
	return s, nil
}

func (r *statsRepo) Save(ctx context.Context, s *stats.UserStat) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO user_gamification_stats (`+statsColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			total_xp = EXCLUDED.total_xp,
			total_points = EXCLUDED.total_points,
			global_level = EXCLUDED.global_level,
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			total_badges = EXCLUDED.total_badges,
			completed_challenges = EXCLUDED.completed_challenges,
			last_activity_date = EXCLUDED.last_activity_date,
			stats_updated_at = EXCLUDED.stats_updated_at
	`,
		s.UserID,
		s.TotalXP,
		s.TotalPoints,
		s.GlobalLevel,
		s.CurrentStreak,
		s.LongestStreak,
		s.TotalBadges,
		s.CompletedChallenges,
		s.LastActivityDate,
		s.StatsUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

func (r *statsRepo) ListRanked(ctx context.Context) ([]*stats.UserStat, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+statsColumns+` FROM user_gamification_stats
		ORDER BY total_xp DESC, user_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stats: %w", err)
	}
	defer rows.Close()

	var result []*stats.UserStat
	for rows.Next() {
		s, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *statsRepo) ActiveUserIDs(ctx context.Context, since time.Time) ([]int64, error) {
	u := since.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)

	rows, err := r.q.Query(ctx, `
		SELECT user_id FROM user_gamification_stats
		WHERE last_activity_date >= $1
		ORDER BY user_id
	`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
