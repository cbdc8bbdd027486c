package bootstrap_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alem-hub/gamification/config"
	"github.com/alem-hub/gamification/internal/bootstrap"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/internal/infrastructure/scheduler/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func memoryConfig(t *testing.T, extra map[string]string) *config.Config {
	t.Helper()
	vars := map[string]string{
		"STORAGE_DRIVER": "memory",
		"REDIS_ENABLED":  "false",
		"NATS_ENABLED":   "false",
	}
	for k, v := range extra {
		vars[k] = v
	}
	cfg, err := config.LoadFrom(vars)
	require.NoError(t, err)
	return cfg
}

func TestNew_MemoryDriver(t *testing.T) {
	ctx := context.Background()
	app, err := bootstrap.New(ctx, memoryConfig(t, nil), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	assert.Nil(t, app.Cache)
	assert.Nil(t, app.Locker)

	res, err := app.Commands.LearningEvents.Handle(ctx, shared.NewLessonCompletedEvent(7, 1, 1))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	stats, err := app.Queries.UserStats.Handle(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.TotalXP)

	status := app.Health.Check(ctx)
	assert.True(t, status.Healthy)
	assert.Contains(t, status.Checks, "store")
}

func TestNewScheduler_RegistersJobs(t *testing.T) {
	app, err := bootstrap.New(context.Background(), memoryConfig(t, map[string]string{"APP_TIMEZONE": "Asia/Almaty"}), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	s, err := app.NewScheduler()
	require.NoError(t, err)

	var names []string
	for _, j := range s.ListJobs() {
		names = append(names, j.Name)
	}
	assert.ElementsMatch(t, []string{jobs.NameAssignDaily, jobs.NameAssignWeekly, jobs.NameAssignSpecial, jobs.NameExpire, jobs.NameLeaderboard}, names)

	res, err := s.RunNow(context.Background(), jobs.NameLeaderboard)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestNewHTTPServer_ServesHealth(t *testing.T) {
	app, err := bootstrap.New(context.Background(), memoryConfig(t, nil), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	srv, err := app.NewHTTPServer()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewConsumer_ReportsDisconnected(t *testing.T) {
	app, err := bootstrap.New(context.Background(), memoryConfig(t, nil), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	consumer, err := app.NewConsumer()
	require.NoError(t, err)
	assert.False(t, consumer.Connected())

	status := app.Health.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "Some checks failed: nats", status.Message)
}

func TestRunMigration_RejectsUnknownAction(t *testing.T) {
	err := bootstrap.RunMigration(context.Background(), memoryConfig(t, nil), zaptest.NewLogger(t), "sideways")
	assert.ErrorIs(t, err, bootstrap.ErrUnknownMigrateAction)
}

func TestRunMigration_NeedsPostgres(t *testing.T) {
	err := bootstrap.RunMigration(context.Background(), memoryConfig(t, nil), zaptest.NewLogger(t), bootstrap.MigrateStatus)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_DRIVER=postgres")
}
