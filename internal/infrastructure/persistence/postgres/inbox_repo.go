package postgres

import (
	"context"
	"fmt"
	"time"
)

type inboxRepo struct {
	q Querier
}

// MarkProcessed reports false when the event key was already recorded.
func (r *inboxRepo) MarkProcessed(ctx context.Context, key string, at time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO processed_events (event_key, processed_at)
		VALUES ($1, $2)
		ON CONFLICT (event_key) DO NOTHING
	`, key, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
