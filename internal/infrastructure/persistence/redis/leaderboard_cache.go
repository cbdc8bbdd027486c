package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alem-hub/gamification/internal/domain/leaderboard"
	"github.com/alem-hub/gamification/pkg/circuitbreaker"
	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache keeps one sorted set per scope. The member is the user id
// and the score is the rank, so ZRANGE by index returns the same order as
// the database (points desc, user id asc). Points live in a companion hash
// and a meta key marks the scope as cached even when the ranking is empty.
//
//	leaderboard:global          ZSET  user_id -> rank
//	leaderboard:global:info     HASH  user_id -> cachedEntry JSON
//	leaderboard:global:meta     STRING updated_at (RFC 3339)
type LeaderboardCache struct {
	client  *Client
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

var _ leaderboard.Cache = (*LeaderboardCache)(nil)

// NewLeaderboardCache creates a LeaderboardCache. breaker may be nil.
func NewLeaderboardCache(client *Client, breaker *circuitbreaker.CircuitBreaker) *LeaderboardCache {
	ttl := client.config.LeaderboardTTL
	if ttl <= 0 {
		ttl = TTLLeaderboardCache
	}
	return &LeaderboardCache{client: client, ttl: ttl, breaker: breaker}
}

type cachedEntry struct {
	Points    int64     `json:"points"`
	Rank      int       `json:"rank"`
	UpdatedAt time.Time `json:"updated_at"`
}

func infoKey(key string) string { return key + ":info" }
func metaKey(key string) string { return key + ":meta" }

// Store replaces the cached copy of the ranking's scope in one MULTI/EXEC.
func (l *LeaderboardCache) Store(ctx context.Context, ranking *leaderboard.Ranking) error {
	return l.guard(ctx, func(ctx context.Context) error {
		key := LeaderboardKey(ranking.Scope.CourseID())

		pipe := l.client.rdb.TxPipeline()
		pipe.Del(ctx, key, infoKey(key))

		if len(ranking.Entries) > 0 {
			members := make([]redis.Z, 0, len(ranking.Entries))
			info := make(map[string]interface{}, len(ranking.Entries))
			for _, e := range ranking.Entries {
				id := strconv.FormatInt(e.UserID, 10)
				members = append(members, redis.Z{Score: float64(e.Rank), Member: id})

				data, err := json.Marshal(cachedEntry{Points: e.TotalPoints, Rank: int(e.Rank), UpdatedAt: e.UpdatedAt})
				if err != nil {
					return fmt.Errorf("failed to encode leaderboard entry: %w", err)
				}
				info[id] = data
			}
			pipe.ZAdd(ctx, key, members...)
			pipe.HSet(ctx, infoKey(key), info)
			pipe.Expire(ctx, key, l.ttl)
			pipe.Expire(ctx, infoKey(key), l.ttl)
		}
		pipe.Set(ctx, metaKey(key), ranking.UpdatedAt.UTC().Format(time.RFC3339Nano), l.ttl)

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to store leaderboard %s: %w", key, err)
		}
		return nil
	})
}

// Page returns a cached page. A scope without a meta key is a miss.
func (l *LeaderboardCache) Page(ctx context.Context, scope leaderboard.Scope, opts leaderboard.PageOptions) ([]leaderboard.Entry, int, bool, error) {
	var (
		entries []leaderboard.Entry
		total   int
		hit     bool
	)
	err := l.guard(ctx, func(ctx context.Context) error {
		key := LeaderboardKey(scope.CourseID())
		start := int64(opts.Offset())
		stop := start + int64(opts.Limit()) - 1

		pipe := l.client.rdb.Pipeline()
		exists := pipe.Exists(ctx, metaKey(key))
		card := pipe.ZCard(ctx, key)
		ids := pipe.ZRange(ctx, key, start, stop)
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to read leaderboard %s: %w", key, err)
		}
		if exists.Val() == 0 {
			return nil
		}
		hit = true
		total = int(card.Val())

		members := ids.Val()
		if len(members) == 0 {
			return nil
		}
		raw, err := l.client.rdb.HMGet(ctx, infoKey(key), members...).Result()
		if err != nil {
			return fmt.Errorf("failed to read leaderboard info %s: %w", key, err)
		}

		entries, err = decodeEntries(scope, members, raw)
		return err
	})
	if err != nil {
		return nil, 0, false, err
	}
	return entries, total, hit, nil
}

// decodeEntries joins ZRANGE members with their HMGET values.
func decodeEntries(scope leaderboard.Scope, members []string, raw []interface{}) ([]leaderboard.Entry, error) {
	if len(raw) != len(members) {
		return nil, fmt.Errorf("%w: %d members, %d info values", ErrCacheCorrupt, len(members), len(raw))
	}

	entries := make([]leaderboard.Entry, 0, len(members))
	for i, member := range members {
		userID, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: member %q", ErrCacheCorrupt, member)
		}
		s, ok := raw[i].(string)
		if !ok {
			return nil, fmt.Errorf("%w: no info for user %d", ErrCacheCorrupt, userID)
		}
		var ce cachedEntry
		if err := json.Unmarshal([]byte(s), &ce); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
		}
		entries = append(entries, leaderboard.Entry{
			CourseID:    scope.CourseID(),
			UserID:      userID,
			TotalPoints: ce.Points,
			Rank:        leaderboard.Rank(ce.Rank),
			UpdatedAt:   ce.UpdatedAt,
		})
	}
	return entries, nil
}

// Invalidate drops the cached copy of a scope.
func (l *LeaderboardCache) Invalidate(ctx context.Context, scope leaderboard.Scope) error {
	key := LeaderboardKey(scope.CourseID())
	return l.client.rdb.Del(ctx, key, infoKey(key), metaKey(key)).Err()
}

func (l *LeaderboardCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if l.breaker == nil {
		return fn(ctx)
	}
	return l.breaker.Execute(ctx, fn)
}
