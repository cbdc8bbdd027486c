package ledger

import "context"

// Repository defines the persistence contract for the point ledger.
// Implementations must never update or delete rows.
type Repository interface {
	// Exists reports whether the user already has an entry with this dedup key.
	Exists(ctx context.Context, userID int64, dedupKey string) (bool, error)

	// Append inserts the entry. When the entry carries a dedup key and a
	// concurrent writer inserted the same key first, Append returns false
	// and no error.
	Append(ctx context.Context, entry *PointEntry) (bool, error)

	// ListByUser returns the user's entries, newest first.
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*PointEntry, error)

	// TotalsByUser sums the user's entries.
	TotalsByUser(ctx context.Context, userID int64) (Totals, error)

	// TotalsByCourse returns the net point sum per user for entries scoped to the course.
	TotalsByCourse(ctx context.Context, courseID int64) ([]UserTotal, error)

	// CourseIDs returns every course that has at least one scoped entry.
	CourseIDs(ctx context.Context) ([]int64, error)
}
