package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type ledgerRepo struct {
	q Querier
}

const pointEntryColumns = `id, user_id, source_type, source_id, points, reason, description, course_id, dedup_key, created_at`

func (r *ledgerRepo) Exists(ctx context.Context, userID int64, dedupKey string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM point_entries WHERE user_id = $1 AND dedup_key = $2)
	`, userID, dedupKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger entry: %w", err)
	}
	return exists, nil
}

// Append relies on the (user_id, dedup_key) constraint: a concurrent writer
// that inserted the same key first turns this insert into a no-op.
func (r *ledgerRepo) Append(ctx context.Context, e *ledger.PointEntry) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO point_entries (`+pointEntryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, dedup_key) DO NOTHING
	`,
		e.ID,
		e.UserID,
		string(e.Source.Type()),
		e.Source.ID(),
		e.Points,
		string(e.Reason),
		e.Description,
		e.CourseID,
		nullString(e.DedupKey),
		e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ledgerRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*ledger.PointEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+pointEntryColumns+`
		FROM point_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($2::int, 0) OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var result []*ledger.PointEntry
	for rows.Next() {
		e, err := scanPointEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanPointEntry(row pgx.Row) (*ledger.PointEntry, error) {
	var (
		e                    ledger.PointEntry
		sourceType, sourceID string
		reason               string
		dedupKey             *string
	)
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&sourceType,
		&sourceID,
		&e.Points,
		&reason,
		&e.Description,
		&e.CourseID,
		&dedupKey,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	source, err := ledger.ParseSource(sourceType, sourceID)
	if err != nil {
		return nil, fmt.Errorf("ledger entry %s: %w", e.ID, err)
	}
	e.Source = source
	e.Reason = ledger.Reason(reason)
	if dedupKey != nil {
		e.DedupKey = *dedupKey
	}
	return &e, nil
}

func (r *ledgerRepo) TotalsByUser(ctx context.Context, userID int64) (ledger.Totals, error) {
	var t ledger.Totals
	err := r.q.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(points), 0),
			COALESCE(SUM(points) FILTER (WHERE reason <> 'penalty'), 0)
		FROM point_entries
		WHERE user_id = $1
	`, userID).Scan(&t.Net, &t.Gross)
	if err != nil {
		return ledger.Totals{}, fmt.Errorf("failed to sum ledger: %w", err)
	}
	return t, nil
}

func (r *ledgerRepo) TotalsByCourse(ctx context.Context, courseID int64) ([]ledger.UserTotal, error) {
	rows, err := r.q.Query(ctx, `
		SELECT user_id, SUM(points)
		FROM point_entries
		WHERE course_id = $1
		GROUP BY user_id
		ORDER BY user_id
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum course ledger: %w", err)
	}
	defer rows.Close()

	var result []ledger.UserTotal
	for rows.Next() {
		var t ledger.UserTotal
		if err := rows.Scan(&t.UserID, &t.Total); err != nil {
			return nil, fmt.Errorf("failed to scan course total: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *ledgerRepo) CourseIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT course_id FROM point_entries
		WHERE course_id IS NOT NULL
		ORDER BY course_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan course id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
