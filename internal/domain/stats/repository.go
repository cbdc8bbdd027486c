package stats

import (
	"context"
	"time"
)

// Repository defines the persistence contract for user stats.
type Repository interface {
	// Get returns the user's stats or shared.ErrStatsNotFound.
	Get(ctx context.Context, userID int64) (*UserStat, error)

	// GetOrCreateForUpdate returns the user's row, inserting the zero-value row
	// if absent, and locks it for the rest of the transaction.
	GetOrCreateForUpdate(ctx context.Context, userID int64, now time.Time) (*UserStat, error)

	// Save writes every mutable column of the row.
	Save(ctx context.Context, stat *UserStat) error

	// ListRanked returns all rows ordered by total_xp desc, user_id asc.
	ListRanked(ctx context.Context) ([]*UserStat, error)

	// ActiveUserIDs returns users whose last activity date is on or after since.
	ActiveUserIDs(ctx context.Context, since time.Time) ([]int64, error)
}
