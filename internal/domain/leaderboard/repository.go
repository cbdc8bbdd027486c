package leaderboard

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the persistence contract for leaderboard entries.
type Repository interface {
	// Replace upserts every entry of the ranking and deletes entries in the
	// same scope for users absent from it. Returns the number pruned.
	Replace(ctx context.Context, ranking *Ranking) (pruned int64, err error)

	// Page returns entries of the scope ordered by rank.
	Page(ctx context.Context, scope Scope, opts PageOptions) ([]Entry, error)

	// Count returns the number of entries in the scope.
	Count(ctx context.Context, scope Scope) (int, error)

	// GetUserEntry returns one user's entry in the scope or shared.ErrNotFound.
	GetUserEntry(ctx context.Context, scope Scope, userID int64) (*Entry, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Cache defines the contract for a read-side copy of rankings.
// A cache miss is (nil, false, nil); errors are reserved for transport failures.
type Cache interface {
	// Store replaces the cached copy of the ranking's scope.
	Store(ctx context.Context, ranking *Ranking) error

	// Page returns a cached page and whether the scope is cached at all.
	Page(ctx context.Context, scope Scope, opts PageOptions) ([]Entry, int, bool, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageOptions selects a 1-based page.
type PageOptions struct {
	Page     int
	PageSize int
}

// NewPageOptions clamps the page to >= 1 and the size to [1, MaxPageSize].
func NewPageOptions(page, size int) PageOptions {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return PageOptions{Page: page, PageSize: size}
}

// Offset returns the SQL offset.
func (o PageOptions) Offset() int {
	return (o.Page - 1) * o.PageSize
}

// Limit returns the SQL limit.
func (o PageOptions) Limit() int {
	return o.PageSize
}
