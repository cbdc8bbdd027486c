package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/internal/domain/leaderboard"
	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/internal/domain/uow"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run against a real database when DATABASE_URL is set. Each
// test gets its own schema, dropped on cleanup.

func openIntegration(t *testing.T) (*Connection, *Store) {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	admin, err := NewConnection(ctx, Config{URL: url, MaxConns: 2, MinConns: 1})
	require.NoError(t, err)

	schema := "gamification_it_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	_, err = admin.Pool().Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Pool().Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	poolCfg, err := Config{URL: url, MaxConns: 4, MinConns: 1}.PoolConfig()
	require.NoError(t, err)
	poolCfg.ConnConfig.RuntimeParams["search_path"] = schema

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	require.NoError(t, err)
	conn := &Connection{pool: pool}
	t.Cleanup(conn.Close)

	return conn, NewStore(conn)
}

func migratedStore(t *testing.T) *Store {
	t.Helper()
	conn, store := openIntegration(t)
	_, err := NewMigrator(conn).Migrate(context.Background())
	require.NoError(t, err)
	return store
}

func TestIntegration_MigratorRoundTrip(t *testing.T) {
	conn, _ := openIntegration(t)
	ctx := context.Background()
	m := NewMigrator(conn)
	total := len(GetMigrations())

	n, err := m.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, n)

	n, err = m.Migrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second run applies nothing")

	states, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, states, total)
	for _, st := range states {
		assert.True(t, st.Applied(), st.Name)
	}

	version, err := m.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, version)

	states, err = m.Status(ctx)
	require.NoError(t, err)
	assert.False(t, states[total-1].Applied())
	assert.True(t, states[0].Applied())

	n, err = m.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIntegration_LedgerDedupKey(t *testing.T) {
	store := migratedStore(t)
	ctx := context.Background()
	repo := store.Repositories().Ledger
	now := time.Now().UTC()
	course := int64(9)

	award := ledger.Award{
		UserID:  7,
		Points:  10,
		Reason:  ledger.ReasonCompletion,
		Source:  ledger.LessonSource(42),
		Options: ledger.AwardOptions{CourseID: &course},
	}
	first, err := ledger.NewEntry(award, now)
	require.NoError(t, err)
	second, err := ledger.NewEntry(award, now.Add(time.Second))
	require.NoError(t, err)

	created, err := repo.Append(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Append(ctx, second)
	require.NoError(t, err)
	assert.False(t, created, "same (user, dedup key) is a no-op")

	exists, err := repo.Exists(ctx, 7, first.DedupKey)
	require.NoError(t, err)
	assert.True(t, exists)

	// Entries without a dedup key never collide.
	award.Options.AllowMultiple = true
	for i := 0; i < 2; i++ {
		e, err := ledger.NewEntry(award, now)
		require.NoError(t, err)
		created, err := repo.Append(ctx, e)
		require.NoError(t, err)
		assert.True(t, created)
	}

	entries, err := repo.ListByUser(ctx, 7, 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	totals, err := repo.TotalsByCourse(ctx, course)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, int64(30), totals[0].Total)
}

func TestIntegration_LeaderboardReplaceIsScoped(t *testing.T) {
	store := migratedStore(t)
	ctx := context.Background()
	repo := store.Repositories().Leaderboard
	now := time.Now().UTC()

	replace := func(scope leaderboard.Scope, standings ...leaderboard.Standing) int64 {
		t.Helper()
		r, err := leaderboard.BuildRanking(scope, standings, now)
		require.NoError(t, err)
		pruned, err := repo.Replace(ctx, r)
		require.NoError(t, err)
		return pruned
	}

	replace(leaderboard.Global(), leaderboard.Standing{UserID: 1, Points: 50}, leaderboard.Standing{UserID: 2, Points: 40}, leaderboard.Standing{UserID: 3, Points: 30})
	replace(leaderboard.Course(5), leaderboard.Standing{UserID: 1, Points: 20}, leaderboard.Standing{UserID: 2, Points: 25})

	n, err := repo.Count(ctx, leaderboard.Global())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// User 2 drops out of the global scope; the course scope keeps them.
	pruned := replace(leaderboard.Global(), leaderboard.Standing{UserID: 1, Points: 50}, leaderboard.Standing{UserID: 3, Points: 60})
	assert.Equal(t, int64(1), pruned)

	_, err = repo.GetUserEntry(ctx, leaderboard.Global(), 2)
	assert.ErrorIs(t, err, shared.ErrRankNotFound)

	top, err := repo.GetUserEntry(ctx, leaderboard.Global(), 3)
	require.NoError(t, err)
	assert.Equal(t, leaderboard.Rank(1), top.Rank)
	assert.Equal(t, int64(60), top.TotalPoints)
	assert.Nil(t, top.CourseID)

	inCourse, err := repo.GetUserEntry(ctx, leaderboard.Course(5), 2)
	require.NoError(t, err)
	assert.Equal(t, leaderboard.Rank(1), inCourse.Rank)
	require.NotNil(t, inCourse.CourseID)
	assert.Equal(t, int64(5), *inCourse.CourseID)

	page, err := repo.Page(ctx, leaderboard.Course(5), leaderboard.NewPageOptions(1, 10))
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].UserID)
}

func TestIntegration_InboxMarksOnce(t *testing.T) {
	store := migratedStore(t)
	ctx := context.Background()
	inbox := store.Repositories().Inbox

	fresh, err := inbox.MarkProcessed(ctx, "lesson_completed:7:42", time.Now())
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = inbox.MarkProcessed(ctx, "lesson_completed:7:42", time.Now())
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestIntegration_OverdueSweepSkipsLockedRows(t *testing.T) {
	store := migratedStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c, err := challenge.NewChallenge("lessons", "", challenge.TypeDaily,
		challenge.Criteria{Type: challenge.CriteriaLessonsCompleted, Target: 3}, 20, nil, now.Add(-72*time.Hour), nil, now)
	require.NoError(t, err)
	require.NoError(t, store.Repositories().Challenges.CreateChallenge(ctx, c))

	day := now.Add(-48 * time.Hour).Truncate(24 * time.Hour)
	for _, userID := range []int64{1, 2} {
		a := challenge.NewAssignment(userID, c.ID, day, day.Add(24*time.Hour), day)
		created, err := store.Repositories().Challenges.CreateAssignment(ctx, a)
		require.NoError(t, err)
		require.True(t, created)

		again, err := store.Repositories().Challenges.CreateAssignment(ctx, challenge.NewAssignment(userID, c.ID, day, day.Add(24*time.Hour), day))
		require.NoError(t, err)
		assert.False(t, again, "one assignment per (user, challenge, date)")
	}

	err = store.WithinTx(ctx, func(ctx context.Context, repos uow.Repositories) error {
		held, err := repos.Challenges.ListOverdueForUpdate(ctx, now, 1)
		require.NoError(t, err)
		require.Len(t, held, 1)

		// A second sweeper sees only the row this transaction has not locked.
		return store.WithinTx(ctx, func(ctx context.Context, other uow.Repositories) error {
			rest, err := other.Challenges.ListOverdueForUpdate(ctx, now, 10)
			require.NoError(t, err)
			require.Len(t, rest, 1)
			assert.NotEqual(t, held[0].ID(), rest[0].ID())
			return nil
		})
	})
	require.NoError(t, err)
}
