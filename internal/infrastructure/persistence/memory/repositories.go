package memory

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/alem-hub/gamification/internal/domain/badge"
	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/internal/domain/leaderboard"
	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/internal/domain/stats"
	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

type ledgerRepo struct{ repo }

func dedupIndex(userID int64, key string) string {
	return strconv.FormatInt(userID, 10) + "|" + key
}

func (r *ledgerRepo) Exists(ctx context.Context, userID int64, dedupKey string) (bool, error) {
	var found bool
	err := r.do(ctx, "ledger.Exists", func(st *state) error {
		_, found = st.dedup[dedupIndex(userID, dedupKey)]
		return nil
	})
	return found, err
}

func (r *ledgerRepo) Append(ctx context.Context, entry *ledger.PointEntry) (bool, error) {
	var inserted bool
	err := r.do(ctx, "ledger.Append", func(st *state) error {
		if entry.DedupKey != "" {
			k := dedupIndex(entry.UserID, entry.DedupKey)
			if _, dup := st.dedup[k]; dup {
				return nil
			}
			st.dedup[k] = struct{}{}
		}
		st.entries = append(st.entries, *entry)
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *ledgerRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*ledger.PointEntry, error) {
	var result []*ledger.PointEntry
	err := r.do(ctx, "ledger.ListByUser", func(st *state) error {
		for i := len(st.entries) - 1; i >= 0; i-- {
			if st.entries[i].UserID != userID {
				continue
			}
			if offset > 0 {
				offset--
				continue
			}
			e := st.entries[i]
			result = append(result, &e)
			if limit > 0 && len(result) == limit {
				break
			}
		}
		return nil
	})
	return result, err
}

func (r *ledgerRepo) TotalsByUser(ctx context.Context, userID int64) (ledger.Totals, error) {
	var totals ledger.Totals
	err := r.do(ctx, "ledger.TotalsByUser", func(st *state) error {
		for i := range st.entries {
			if st.entries[i].UserID == userID {
				totals = totals.Add(&st.entries[i])
			}
		}
		return nil
	})
	return totals, err
}

func (r *ledgerRepo) TotalsByCourse(ctx context.Context, courseID int64) ([]ledger.UserTotal, error) {
	var result []ledger.UserTotal
	err := r.do(ctx, "ledger.TotalsByCourse", func(st *state) error {
		sums := make(map[int64]int64)
		for _, e := range st.entries {
			if e.CourseID != nil && *e.CourseID == courseID {
				sums[e.UserID] += e.Points
			}
		}
		for user, total := range sums {
			result = append(result, ledger.UserTotal{UserID: user, Total: total})
		}
		sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
		return nil
	})
	return result, err
}

func (r *ledgerRepo) CourseIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.do(ctx, "ledger.CourseIDs", func(st *state) error {
		seen := make(map[int64]struct{})
		for _, e := range st.entries {
			if e.CourseID == nil {
				continue
			}
			if _, ok := seen[*e.CourseID]; !ok {
				seen[*e.CourseID] = struct{}{}
				ids = append(ids, *e.CourseID)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return nil
	})
	return ids, err
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

type statsRepo struct{ repo }

func (r *statsRepo) Get(ctx context.Context, userID int64) (*stats.UserStat, error) {
	var result *stats.UserStat
	err := r.do(ctx, "stats.Get", func(st *state) error {
		row, ok := st.stats[userID]
		if !ok {
			return shared.ErrStatsNotFound
		}
		result = &row
		return nil
	})
	return result, err
}

func (r *statsRepo) GetOrCreateForUpdate(ctx context.Context, userID int64, now time.Time) (*stats.UserStat, error) {
	var result *stats.UserStat
	err := r.do(ctx, "stats.GetOrCreateForUpdate", func(st *state) error {
		row, ok := st.stats[userID]
		if !ok {
			row = *stats.New(userID, now)
			st.stats[userID] = row
		}
		result = &row
		return nil
	})
	return result, err
}

func (r *statsRepo) Save(ctx context.Context, stat *stats.UserStat) error {
	return r.do(ctx, "stats.Save", func(st *state) error {
		st.stats[stat.UserID] = *stat
		return nil
	})
}

func (r *statsRepo) ListRanked(ctx context.Context) ([]*stats.UserStat, error) {
	var result []*stats.UserStat
	err := r.do(ctx, "stats.ListRanked", func(st *state) error {
		for _, row := range st.stats {
			row := row
			result = append(result, &row)
		}
		sort.Slice(result, func(i, j int) bool {
			if result[i].TotalXP != result[j].TotalXP {
				return result[i].TotalXP > result[j].TotalXP
			}
			return result[i].UserID < result[j].UserID
		})
		return nil
	})
	return result, err
}

func (r *statsRepo) ActiveUserIDs(ctx context.Context, since time.Time) ([]int64, error) {
	var ids []int64
	u := since.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	err := r.do(ctx, "stats.ActiveUserIDs", func(st *state) error {
		for id, row := range st.stats {
			if row.LastActivityDate != nil && !row.LastActivityDate.Before(day) {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return nil
	})
	return ids, err
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

type badgeRepo struct{ repo }

func (r *badgeRepo) GetOrCreate(ctx context.Context, b *badge.Badge) (*badge.Badge, error) {
	var result badge.Badge
	err := r.do(ctx, "badge.GetOrCreate", func(st *state) error {
		if id, ok := st.badgeByCode[b.Code]; ok {
			result = st.badges[id]
			return nil
		}
		st.badges[b.ID] = *b
		st.badgeByCode[b.Code] = b.ID
		result = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *badgeRepo) GetByID(ctx context.Context, id uuid.UUID) (*badge.Badge, error) {
	var result badge.Badge
	err := r.do(ctx, "badge.GetByID", func(st *state) error {
		b, ok := st.badges[id]
		if !ok {
			return shared.ErrBadgeNotFound
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *badgeRepo) GetByCode(ctx context.Context, code string) (*badge.Badge, error) {
	var result badge.Badge
	err := r.do(ctx, "badge.GetByCode", func(st *state) error {
		id, ok := st.badgeByCode[code]
		if !ok {
			return shared.ErrBadgeNotFound
		}
		result = st.badges[id]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *badgeRepo) Grant(ctx context.Context, ub badge.UserBadge) (bool, error) {
	var granted bool
	err := r.do(ctx, "badge.Grant", func(st *state) error {
		if _, ok := st.badges[ub.BadgeID]; !ok {
			return shared.ErrBadgeNotFound
		}
		held := st.userBadges[ub.UserID]
		if held == nil {
			held = make(map[uuid.UUID]time.Time)
			st.userBadges[ub.UserID] = held
		}
		if _, ok := held[ub.BadgeID]; ok {
			return nil
		}
		held[ub.BadgeID] = ub.EarnedAt
		granted = true
		return nil
	})
	return granted, err
}

func (r *badgeRepo) ListByUser(ctx context.Context, userID int64) ([]badge.EarnedBadge, error) {
	var result []badge.EarnedBadge
	err := r.do(ctx, "badge.ListByUser", func(st *state) error {
		for id, at := range st.userBadges[userID] {
			result = append(result, badge.EarnedBadge{Badge: st.badges[id], EarnedAt: at})
		}
		sort.Slice(result, func(i, j int) bool {
			if !result[i].EarnedAt.Equal(result[j].EarnedAt) {
				return result[i].EarnedAt.After(result[j].EarnedAt)
			}
			return result[i].Badge.Code < result[j].Badge.Code
		})
		return nil
	})
	return result, err
}

func (r *badgeRepo) CountByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.do(ctx, "badge.CountByUser", func(st *state) error {
		n = len(st.userBadges[userID])
		return nil
	})
	return n, err
}

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGES
// ══════════════════════════════════════════════════════════════════════════════

type challengeRepo struct{ repo }

func assignmentKey(userID int64, challengeID uuid.UUID, date time.Time) string {
	return strconv.FormatInt(userID, 10) + "|" + challengeID.String() + "|" + date.Format("2006-01-02")
}

func (r *challengeRepo) CreateChallenge(ctx context.Context, c *challenge.Challenge) error {
	return r.do(ctx, "challenge.CreateChallenge", func(st *state) error {
		if _, ok := st.challenges[c.ID]; ok {
			return shared.NewDomainError("challenge", "Create", shared.ErrAlreadyExists, "challenge already exists")
		}
		st.challenges[c.ID] = *c
		return nil
	})
}

func (r *challengeRepo) GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	var result challenge.Challenge
	err := r.do(ctx, "challenge.GetChallenge", func(st *state) error {
		c, ok := st.challenges[id]
		if !ok {
			return shared.ErrChallengeNotFound
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *challengeRepo) ListActiveChallenges(ctx context.Context, typ challenge.Type, now time.Time) ([]*challenge.Challenge, error) {
	var result []*challenge.Challenge
	err := r.do(ctx, "challenge.ListActiveChallenges", func(st *state) error {
		for _, c := range st.challenges {
			c := c
			if c.Type == typ && c.IsActive(now) {
				result = append(result, &c)
			}
		}
		sort.Slice(result, func(i, j int) bool {
			if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
				return result[i].CreatedAt.Before(result[j].CreatedAt)
			}
			return result[i].ID.String() < result[j].ID.String()
		})
		return nil
	})
	return result, err
}

func (r *challengeRepo) CreateAssignment(ctx context.Context, a *challenge.Assignment) (bool, error) {
	var inserted bool
	err := r.do(ctx, "challenge.CreateAssignment", func(st *state) error {
		if _, ok := st.challenges[a.ChallengeID()]; !ok {
			return shared.ErrChallengeNotFound
		}
		k := assignmentKey(a.UserID(), a.ChallengeID(), a.AssignedDate())
		if _, ok := st.assignmentKeys[k]; ok {
			return nil
		}
		st.assignmentKeys[k] = a.ID()
		st.assignments[a.ID()] = a.Record()
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *challengeRepo) GetAssignmentForUpdate(ctx context.Context, id uuid.UUID) (*challenge.Assignment, error) {
	var result *challenge.Assignment
	err := r.do(ctx, "challenge.GetAssignmentForUpdate", func(st *state) error {
		rec, ok := st.assignments[id]
		if !ok {
			return shared.ErrAssignmentNotFound
		}
		var err error
		result, err = challenge.Rehydrate(rec)
		return err
	})
	return result, err
}

func (r *challengeRepo) ListAcceptingForUpdate(ctx context.Context, userID int64, criteria challenge.CriteriaType) ([]challenge.ActiveAssignment, error) {
	var result []challenge.ActiveAssignment
	err := r.do(ctx, "challenge.ListAcceptingForUpdate", func(st *state) error {
		for _, rec := range st.assignments {
			if rec.UserID != userID || !rec.Status.AcceptsProgress() {
				continue
			}
			c, ok := st.challenges[rec.ChallengeID]
			if !ok || c.Criteria.Type != criteria {
				continue
			}
			a, err := challenge.Rehydrate(rec)
			if err != nil {
				return err
			}
			result = append(result, challenge.ActiveAssignment{Assignment: a, Challenge: &c})
		}
		sort.Slice(result, func(i, j int) bool {
			ai, aj := result[i].Assignment, result[j].Assignment
			if !ai.AssignedDate().Equal(aj.AssignedDate()) {
				return ai.AssignedDate().Before(aj.AssignedDate())
			}
			return ai.ID().String() < aj.ID().String()
		})
		return nil
	})
	return result, err
}

func (r *challengeRepo) ListByUser(ctx context.Context, userID int64, status challenge.Status) ([]*challenge.Assignment, error) {
	var result []*challenge.Assignment
	err := r.do(ctx, "challenge.ListByUser", func(st *state) error {
		for _, rec := range st.assignments {
			if rec.UserID != userID || (status != 0 && rec.Status != status) {
				continue
			}
			a, err := challenge.Rehydrate(rec)
			if err != nil {
				return err
			}
			result = append(result, a)
		}
		sort.Slice(result, func(i, j int) bool {
			if !result[i].AssignedDate().Equal(result[j].AssignedDate()) {
				return result[i].AssignedDate().After(result[j].AssignedDate())
			}
			return result[i].ID().String() < result[j].ID().String()
		})
		return nil
	})
	return result, err
}

func (r *challengeRepo) ListOverdueForUpdate(ctx context.Context, now time.Time, limit int) ([]*challenge.Assignment, error) {
	var result []*challenge.Assignment
	err := r.do(ctx, "challenge.ListOverdueForUpdate", func(st *state) error {
		for _, rec := range st.assignments {
			if !rec.Status.AcceptsProgress() || !rec.ExpiresAt.Before(now) {
				continue
			}
			a, err := challenge.Rehydrate(rec)
			if err != nil {
				return err
			}
			result = append(result, a)
		}
		sort.Slice(result, func(i, j int) bool {
			if !result[i].ExpiresAt().Equal(result[j].ExpiresAt()) {
				return result[i].ExpiresAt().Before(result[j].ExpiresAt())
			}
			return result[i].ID().String() < result[j].ID().String()
		})
		if limit > 0 && len(result) > limit {
			result = result[:limit]
		}
		return nil
	})
	return result, err
}

func (r *challengeRepo) SaveAssignment(ctx context.Context, a *challenge.Assignment) error {
	return r.do(ctx, "challenge.SaveAssignment", func(st *state) error {
		if _, ok := st.assignments[a.ID()]; !ok {
			return shared.ErrAssignmentNotFound
		}
		st.assignments[a.ID()] = a.Record()
		return nil
	})
}

func (r *challengeRepo) CountCompletedByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.do(ctx, "challenge.CountCompletedByUser", func(st *state) error {
		for _, rec := range st.assignments {
			if rec.UserID == userID && (rec.Status == challenge.StatusCompleted || rec.Status == challenge.StatusClaimed) {
				n++
			}
		}
		return nil
	})
	return n, err
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

type leaderboardRepo struct{ repo }

func (r *leaderboardRepo) Replace(ctx context.Context, ranking *leaderboard.Ranking) (int64, error) {
	var pruned int64
	err := r.do(ctx, "leaderboard.Replace", func(st *state) error {
		key := ranking.Scope.Key()
		old := st.rankings[key]
		rows := make(map[int64]leaderboard.Entry, len(ranking.Entries))
		for _, e := range ranking.Entries {
			rows[e.UserID] = e
		}
		for user := range old {
			if _, ok := rows[user]; !ok {
				pruned++
			}
		}
		st.rankings[key] = rows
		return nil
	})
	return pruned, err
}

func (r *leaderboardRepo) sorted(st *state, scope leaderboard.Scope) []leaderboard.Entry {
	rows := st.rankings[scope.Key()]
	entries := make([]leaderboard.Entry, 0, len(rows))
	for _, e := range rows {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })
	return entries
}

func (r *leaderboardRepo) Page(ctx context.Context, scope leaderboard.Scope, opts leaderboard.PageOptions) ([]leaderboard.Entry, error) {
	var result []leaderboard.Entry
	err := r.do(ctx, "leaderboard.Page", func(st *state) error {
		entries := r.sorted(st, scope)
		from := opts.Offset()
		if from >= len(entries) {
			return nil
		}
		to := from + opts.Limit()
		if to > len(entries) {
			to = len(entries)
		}
		result = append(result, entries[from:to]...)
		return nil
	})
	return result, err
}

func (r *leaderboardRepo) Count(ctx context.Context, scope leaderboard.Scope) (int, error) {
	var n int
	err := r.do(ctx, "leaderboard.Count", func(st *state) error {
		n = len(st.rankings[scope.Key()])
		return nil
	})
	return n, err
}

func (r *leaderboardRepo) GetUserEntry(ctx context.Context, scope leaderboard.Scope, userID int64) (*leaderboard.Entry, error) {
	var result leaderboard.Entry
	err := r.do(ctx, "leaderboard.GetUserEntry", func(st *state) error {
		e, ok := st.rankings[scope.Key()][userID]
		if !ok {
			return shared.ErrRankNotFound
		}
		result = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// INBOX
// ══════════════════════════════════════════════════════════════════════════════

type inboxRepo struct{ repo }

func (r *inboxRepo) MarkProcessed(ctx context.Context, key string, at time.Time) (bool, error) {
	var fresh bool
	err := r.do(ctx, "inbox.MarkProcessed", func(st *state) error {
		if _, ok := st.inbox[key]; ok {
			return nil
		}
		st.inbox[key] = at
		fresh = true
		return nil
	})
	return fresh, err
}
