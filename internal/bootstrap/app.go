// Package bootstrap assembles the gamification engine from configuration:
// storage, cache, event buses, command and query handlers. The api and worker
// binaries each start the parts they serve.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/gamification/config"
	"github.com/alem-hub/gamification/internal/application/command"
	"github.com/alem-hub/gamification/internal/application/eventhandler"
	"github.com/alem-hub/gamification/internal/application/query"
	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/internal/domain/leaderboard"
	"github.com/alem-hub/gamification/internal/domain/uow"
	"github.com/alem-hub/gamification/internal/infrastructure/messaging"
	"github.com/alem-hub/gamification/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/gamification/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/gamification/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/gamification/internal/infrastructure/scheduler"
	"github.com/alem-hub/gamification/internal/infrastructure/scheduler/jobs"
	apihttp "github.com/alem-hub/gamification/internal/interface/http"
	"github.com/alem-hub/gamification/internal/interface/http/handlers"
	"github.com/alem-hub/gamification/pkg/circuitbreaker"
	"github.com/alem-hub/gamification/pkg/logger"
	"github.com/alem-hub/gamification/pkg/retry"
	"github.com/alem-hub/gamification/pkg/timeutil"
	"go.uber.org/zap"
)

// Queries groups the read-side handlers.
type Queries struct {
	Leaderboard *query.GetLeaderboardHandler
	UserStats   *query.GetUserStatsHandler
	XPHistory   *query.GetXPHistoryHandler
	Assignments *query.ListAssignmentsHandler
	Badges      *query.ListUserBadgesHandler
}

// App is the assembled engine.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	Store    uow.Store
	Calendar timeutil.Calendar

	// Cache and Locker are nil when Redis is disabled or unreachable.
	Cache  leaderboard.Cache
	Locker scheduler.Locker

	// Events carries outbound gamification events to the audit log.
	Events *messaging.InMemoryEventBus

	Commands *command.Handlers
	Queries  Queries
	Health   *handlers.CompositeHealthChecker

	closers []func()
}

// New connects to storage and builds the handler graph. Connection attempts
// are retried with backoff; a Redis failure degrades to database reads.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	a := &App{
		Config:   cfg,
		Logger:   log,
		Calendar: timeutil.NewCalendar(cfg.App.Location()),
		Health:   handlers.NewCompositeHealthChecker(cfg.App.Version),
	}

	retrier := retry.StartupRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("startup dependency not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			logger.Err(err),
		)
	})

	if err := a.openStore(ctx, retrier); err != nil {
		a.Close()
		return nil, err
	}
	a.openRedis(ctx, retrier)
	a.Health.AddCheck("store", handlers.PingCheck(a.Store))

	if err := a.buildEvents(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildHandlers(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context, retrier *retry.Retrier) error {
	cfg := a.Config.Database
	if cfg.Driver == config.DriverMemory {
		a.Logger.Warn("using in-memory storage; data is lost on exit")
		a.Store = memory.NewStore()
		return nil
	}

	conn, err := connectPostgres(ctx, cfg, a.Logger, retrier)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() {
		a.Logger.Info("closing database connection...")
		conn.Close()
	})

	if cfg.AutoMigrate {
		n, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.Logger.Info("database schema is up to date", zap.Int("applied", n))
	}

	a.Store = postgres.NewStore(conn)
	return nil
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger, retrier *retry.Retrier) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.URL
	pgCfg.MaxConns = cfg.MaxConns
	pgCfg.MinConns = cfg.MinConns
	pgCfg.MaxConnLifetime = cfg.MaxConnLifetime
	pgCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	log.Info("connecting to database...")
	conn, err := retry.DoWithData(ctx, retrier, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, pgCfg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")
	return conn, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Migration actions accepted by RunMigration.
const (
	MigrateUp     = "up"
	MigrateDown   = "down"
	MigrateStatus = "status"
)

// ErrUnknownMigrateAction is returned for an action other than up, down or status.
var ErrUnknownMigrateAction = errors.New("unknown migrate action")

// RunMigration performs a one-shot schema operation against PostgreSQL and
// logs the state of every migration afterwards. down reverts one version.
func RunMigration(ctx context.Context, cfg *config.Config, log *zap.Logger, action string) error {
	switch action {
	case MigrateUp, MigrateDown, MigrateStatus:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMigrateAction, action)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("migrations need STORAGE_DRIVER=postgres, got %q", cfg.Database.Driver)
	}
	if log == nil {
		log = zap.NewNop()
	}

	retrier := retry.StartupRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("database not ready, retrying", zap.Int("attempt", attempt), zap.Duration("delay", delay), logger.Err(err))
	})
	conn, err := connectPostgres(ctx, cfg.Database, log, retrier)
	if err != nil {
		return err
	}
	defer conn.Close()

	m := postgres.NewMigrator(conn)
	switch action {
	case MigrateUp:
		n, err := m.Migrate(ctx)
		if err != nil {
			return err
		}
		log.Info("migrations applied", zap.Int("applied", n))
	case MigrateDown:
		version, err := m.Rollback(ctx)
		if err != nil {
			return err
		}
		if version == 0 {
			log.Info("nothing to roll back")
		} else {
			log.Info("migration rolled back", zap.Int("version", version))
		}
	}

	states, err := m.Status(ctx)
	if err != nil {
		return err
	}
	for _, st := range states {
		fields := []zap.Field{zap.Int("version", st.Version), zap.String("name", st.Name), zap.Bool("applied", st.Applied())}
		if st.Applied() {
			fields = append(fields, zap.Time("applied_at", *st.AppliedAt))
		}
		log.Info("migration", fields...)
	}
	return nil
}

func (a *App) openRedis(ctx context.Context, retrier *retry.Retrier) {
	cfg := a.Config.Redis
	if !cfg.Enabled {
		a.Logger.Info("Redis disabled; leaderboards read from the database")
		return
	}

	redisCfg := redis.DefaultConfig()
	redisCfg.Host = cfg.Host
	redisCfg.Port = cfg.Port
	redisCfg.Password = cfg.Password
	redisCfg.DB = cfg.DB
	redisCfg.PoolSize = cfg.PoolSize
	redisCfg.LeaderboardTTL = cfg.LeaderboardTTL

	client, err := retry.DoWithData(ctx, retrier, func(ctx context.Context) (*redis.Client, error) {
		return redis.NewClient(ctx, redisCfg)
	})
	if err != nil {
		a.Logger.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		return
	}
	a.closers = append(a.closers, func() { _ = client.Close() })

	breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
		a.Logger.Warn("circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	})

	a.Cache = redis.NewLeaderboardCache(client, breaker)
	a.Locker = redis.NewLocker(client)
	a.Health.AddCheck("redis", handlers.PingCheck(client))
	a.Logger.Info("Redis connection established", zap.String("addr", redisCfg.Addr()))
}

func (a *App) buildEvents() error {
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = a.Logger
	busCfg.AsyncMode = true

	a.Events = messaging.NewInMemoryEventBus(busCfg)
	a.Events.Use(messaging.RecoveryMiddleware(a.Logger))
	a.closers = append(a.closers, func() { _ = a.Events.Close() })

	if err := eventhandler.NewAuditLogHandler(a.Logger).Register(a.Events); err != nil {
		return fmt.Errorf("register audit log: %w", err)
	}
	return nil
}

func (a *App) buildHandlers() error {
	cfg := a.Config

	curve, err := cfg.Progression.Curve()
	if err != nil {
		return fmt.Errorf("level curve: %w", err)
	}

	a.Commands = command.NewHandlers(command.Env{
		Store:     a.Store,
		Publisher: a.Events,
		Clock:     timeutil.SystemClock,
		Calendar:  a.Calendar,
		Logger:    a.Logger,
	}, command.Options{
		Curve: curve,
		Points: command.PointsConfig{
			LessonComplete:   cfg.Points.LessonComplete,
			AssignmentSubmit: cfg.Points.AssignmentSubmit,
			QuizComplete:     cfg.Points.QuizComplete,
			CourseComplete:   cfg.Points.CourseComplete,
			CourseBonus:      cfg.Points.CourseBonus,
		},
		Milestones: command.MilestoneConfig{
			StreakDays: cfg.Progression.StreakMilestones,
			Levels:     cfg.Progression.LevelMilestones,
		},
		Assign: command.AssignOptions{
			ActiveWindow: cfg.Scheduler.ActiveWindow,
			Concurrency:  cfg.Scheduler.AssignConcurrency,
		},
		ExpireBatchSize:  cfg.Scheduler.ExpireBatchSize,
		LeaderboardCache: a.Cache,
	})

	repos := a.Store.Repositories()
	assignments, err := query.NewListAssignmentsHandler(repos.Challenges, query.DefaultChallengeCacheSize)
	if err != nil {
		return fmt.Errorf("challenge cache: %w", err)
	}

	a.Queries = Queries{
		Leaderboard: query.NewGetLeaderboardHandler(repos.Leaderboard, a.Cache, a.Logger),
		UserStats:   query.NewGetUserStatsHandler(repos.Stats, repos.Leaderboard, curve, timeutil.SystemClock),
		XPHistory:   query.NewGetXPHistoryHandler(repos.Ledger),
		Assignments: assignments,
		Badges:      query.NewListUserBadgesHandler(repos.Badges),
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RUNNABLE PARTS
// ══════════════════════════════════════════════════════════════════════════════

// NewScheduler registers the periodic jobs on their configured schedules.
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	cfg := a.Config.Scheduler
	loc := a.Calendar.Location()

	schedCfg := scheduler.DefaultConfig()
	schedCfg.Logger = a.Logger
	schedCfg.LockTTL = cfg.LockTTL
	if a.Locker != nil {
		schedCfg.Locker = a.Locker
	}
	s := scheduler.New(schedCfg)

	entries := []struct {
		job  scheduler.Job
		spec string
	}{
		{jobs.NewAssignChallengesJob(challenge.TypeDaily, a.Commands.Assign, cfg.JobTimeout, a.Logger), cfg.DailyAssignment},
		{jobs.NewAssignChallengesJob(challenge.TypeWeekly, a.Commands.Assign, cfg.JobTimeout, a.Logger), cfg.WeeklyAssignment},
		{jobs.NewAssignChallengesJob(challenge.TypeSpecial, a.Commands.Assign, cfg.JobTimeout, a.Logger), cfg.SpecialAssignment},
		{jobs.NewExpireAssignmentsJob(a.Commands.Expire, cfg.JobTimeout, a.Logger), cfg.Expiration},
		{jobs.NewRecomputeLeaderboardsJob(a.Commands.Leaderboard, cfg.JobTimeout, a.Logger), cfg.Leaderboard},
	}

	for _, e := range entries {
		sched, err := scheduler.ParseSchedule(e.spec, loc)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", e.job.Name(), err)
		}
		if err := s.Register(e.job, sched); err != nil {
			return nil, fmt.Errorf("register %s: %w", e.job.Name(), err)
		}
	}
	return s, nil
}

// NewConsumer builds the NATS consumer. Learning events are dispatched on a
// synchronous bus so handler errors decide between ack, nak and term.
func (a *App) NewConsumer() (*messaging.Consumer, error) {
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = a.Logger
	busCfg.AsyncMode = false

	inbound := messaging.NewInMemoryEventBus(busCfg)
	inbound.Use(
		messaging.RecoveryMiddleware(a.Logger),
		messaging.LoggingMiddleware(a.Logger),
	)
	a.closers = append(a.closers, func() { _ = inbound.Close() })

	if err := eventhandler.NewOnLearningEventHandler(a.Commands.LearningEvents, a.Logger).Register(inbound); err != nil {
		return nil, fmt.Errorf("register learning events: %w", err)
	}

	n := a.Config.NATS
	consumer := messaging.NewConsumer(messaging.ConsumerConfig{
		URL:            n.URL,
		Stream:         n.Stream,
		SubjectPrefix:  n.SubjectPrefix,
		Durable:        n.Durable,
		QueueGroup:     n.QueueGroup,
		MaxDeliver:     n.MaxDeliver,
		AckWait:        n.AckWait,
		NakDelay:       n.NakDelay,
		HandlerTimeout: n.HandlerTimeout,
		CreateStream:   n.CreateStream,
	}, inbound, a.Logger)

	a.Health.AddCheck("nats", func(context.Context) error {
		if !consumer.Connected() {
			return errors.New("nats: not connected")
		}
		return nil
	})
	return consumer, nil
}

// NewHTTPServer builds the API server.
func (a *App) NewHTTPServer() (*apihttp.Server, error) {
	httpCfg := apihttp.DefaultConfig()
	httpCfg.Addr = a.Config.HTTP.Addr
	httpCfg.ReadTimeout = a.Config.HTTP.ReadTimeout
	httpCfg.WriteTimeout = a.Config.HTTP.WriteTimeout
	httpCfg.AdminAPIKeyHash = a.Config.Admin.APIKeyHash
	httpCfg.RateLimit.RequestsPerMinute = a.Config.HTTP.RateLimit
	httpCfg.RateLimit.BurstSize = a.Config.HTTP.RateLimitBurst
	if a.Config.IsDevelopment() {
		httpCfg.Mode = "debug"
	}

	return apihttp.NewServer(httpCfg, apihttp.Dependencies{
		Commands:    a.Commands,
		Leaderboard: a.Queries.Leaderboard,
		UserStats:   a.Queries.UserStats,
		XPHistory:   a.Queries.XPHistory,
		Assignments: a.Queries.Assignments,
		Badges:      a.Queries.Badges,
		Health:      a.Health,
		Logger:      a.Logger,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
