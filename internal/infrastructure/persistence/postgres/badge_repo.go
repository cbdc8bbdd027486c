package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/gamification/internal/domain/badge"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type badgeRepo struct {
	q Querier
}

const badgeColumns = `id, code, name, description, icon, type, threshold, created_at`

func scanBadge(row pgx.Row) (*badge.Badge, error) {
	var (
		b   badge.Badge
		typ string
	)
	if err := row.Scan(&b.ID, &b.Code, &b.Name, &b.Description, &b.Icon, &typ, &b.Threshold, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Type = badge.Type(typ)
	return &b, nil
}

func (r *badgeRepo) GetOrCreate(ctx context.Context, b *badge.Badge) (*badge.Badge, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO badges (`+badgeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO NOTHING
	`, b.ID, b.Code, b.Name, b.Description, b.Icon, string(b.Type), b.Threshold, b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create badge: %w", err)
	}
	return r.GetByCode(ctx, b.Code)
}

func (r *badgeRepo) GetByID(ctx context.Context, id uuid.UUID) (*badge.Badge, error) {
	b, err := scanBadge(r.q.QueryRow(ctx, `SELECT `+badgeColumns+` FROM badges WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, shared.ErrBadgeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get badge: %w", err)
	}
	return b, nil
}

func (r *badgeRepo) GetByCode(ctx context.Context, code string) (*badge.Badge, error) {
	b, err := scanBadge(r.q.QueryRow(ctx, `SELECT `+badgeColumns+` FROM badges WHERE code = $1`, code))
	if IsNoRows(err) {
		return nil, shared.ErrBadgeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get badge: %w", err)
	}
	return b, nil
}

func (r *badgeRepo) Grant(ctx context.Context, ub badge.UserBadge) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO user_badges (user_id, badge_id, earned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`, ub.UserID, ub.BadgeID, ub.EarnedAt)
	if IsForeignKeyViolation(err) {
		return false, shared.ErrBadgeNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to grant badge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *badgeRepo) ListByUser(ctx context.Context, userID int64) ([]badge.EarnedBadge, error) {
	rows, err := r.q.Query(ctx, `
		SELECT b.id, b.code, b.name, b.description, b.icon, b.type, b.threshold, b.created_at, ub.earned_at
		FROM user_badges ub
		JOIN badges b ON b.id = ub.badge_id
		WHERE ub.user_id = $1
		ORDER BY ub.earned_at DESC, b.code ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user badges: %w", err)
	}
	defer rows.Close()

	var result []badge.EarnedBadge
	for rows.Next() {
		var (
			eb  badge.EarnedBadge
			typ string
		)
		err := rows.Scan(
			&eb.Badge.ID, &eb.Badge.Code, &eb.Badge.Name, &eb.Badge.Description,
			&eb.Badge.Icon, &typ, &eb.Badge.Threshold, &eb.Badge.CreatedAt, &eb.EarnedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user badge: %w", err)
		}
		eb.Badge.Type = badge.Type(typ)
		result = append(result, eb)
	}
	return result, rows.Err()
}

func (r *badgeRepo) CountByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM user_badges WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count user badges: %w", err)
	}
	return n, nil
}
