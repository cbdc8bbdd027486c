package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alem-hub/gamification/internal/application/command"
	"github.com/alem-hub/gamification/internal/application/query"
	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/gamification/internal/interface/http/handlers"
	"github.com/alem-hub/gamification/pkg/timeutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const adminKey = "test-admin-key"

type apiFixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Store
	commands *command.Handlers
	health   *handlers.CompositeHealthChecker
	server   *Server
}

func newAPIFixture(t *testing.T, withAdmin bool, tune ...func(*Config)) *apiFixture {
	t.Helper()

	store := memory.NewStore()
	repos := store.Repositories()
	curve := ledger.DefaultLevelCurve()

	commands := command.NewHandlers(command.Env{
		Store:    store,
		Calendar: timeutil.NewCalendar(time.UTC),
	}, command.Options{Curve: curve, Milestones: command.DefaultMilestones()})

	assignments, err := query.NewListAssignmentsHandler(repos.Challenges, 16)
	require.NoError(t, err)

	health := handlers.NewCompositeHealthChecker("test")
	health.AddCheck("store", handlers.PingCheck(store))

	cfg := DefaultConfig()
	cfg.Mode = gin.TestMode
	cfg.RateLimit = handlers.RateLimitConfig{}
	for _, fn := range tune {
		fn(&cfg)
	}
	if withAdmin {
		hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.MinCost)
		require.NoError(t, err)
		cfg.AdminAPIKeyHash = string(hash)
	}

	server, err := NewServer(cfg, Dependencies{
		Commands:    commands,
		Leaderboard: query.NewGetLeaderboardHandler(repos.Leaderboard, nil, nil),
		UserStats:   query.NewGetUserStatsHandler(repos.Stats, repos.Leaderboard, curve, nil),
		XPHistory:   query.NewGetXPHistoryHandler(repos.Ledger),
		Assignments: assignments,
		Badges:      query.NewListUserBadgesHandler(repos.Badges),
		Health:      health,
	})
	require.NoError(t, err)

	return &apiFixture{
		t:        t,
		ctx:      context.Background(),
		store:    store,
		commands: commands,
		health:   health,
		server:   server,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *ResponseMeta   `json:"meta"`
}

func (f *apiFixture) do(method, path string, body interface{}, headers map[string]string) (int, envelope) {
	f.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var env envelope
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (f *apiFixture) admin(method, path string, body interface{}) (int, envelope) {
	return f.do(method, path, body, map[string]string{handlers.HeaderAPIKey: adminKey})
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (f *apiFixture) lesson(userID, lessonID int64) {
	f.t.Helper()
	_, err := f.commands.LearningEvents.Handle(f.ctx, shared.NewLessonCompletedEvent(userID, lessonID, 1))
	require.NoError(f.t, err)
}

// ══════════════════════════════════════════════════════════════════════════════

func TestHealthAndReady(t *testing.T) {
	f := newAPIFixture(t, false)

	code, env := f.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	code, _ = f.do(http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, code)

	f.health.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	code, _ = f.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, env = f.do(http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Message, "redis")
}

func TestUserStats(t *testing.T) {
	f := newAPIFixture(t, false)

	code, env := f.do(http.MethodGet, "/api/v1/users/7/stats", nil, nil)
	require.Equal(t, http.StatusOK, code)
	empty := decode[query.UserStatsDTO](t, env)
	assert.Zero(t, empty.TotalXP)
	assert.Equal(t, 1, empty.Level)

	f.lesson(7, 1)

	_, env = f.do(http.MethodGet, "/api/v1/users/7/stats", nil, nil)
	st := decode[query.UserStatsDTO](t, env)
	assert.Equal(t, int64(10), st.TotalXP)
	assert.Equal(t, 1, st.CurrentStreak)

	code, env = f.do(http.MethodGet, "/api/v1/users/7/xp?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, code)
	history := decode[[]query.PointEntryDTO](t, env)
	require.Len(t, history, 1)
	assert.Equal(t, "lesson", history[0].SourceType)

	code, env = f.do(http.MethodGet, "/api/v1/users/abc/stats", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_input", env.Error.Code)

	code, _ = f.do(http.MethodGet, "/api/v1/users/7/xp?limit=lots", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestChallengeLifecycle(t *testing.T) {
	f := newAPIFixture(t, true)

	code, env := f.admin(http.MethodPost, "/api/v1/admin/challenges", createChallengeRequest{
		Title:        "One lesson a day",
		Type:         "daily",
		CriteriaType: "lessons_completed",
		Target:       1,
		PointsReward: 25,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	created := decode[challengeResponse](t, env)
	assert.Equal(t, "daily", created.Type)

	// the first lesson makes user 7 active; the next one counts toward the challenge
	f.lesson(7, 1)
	res, err := f.commands.Assign.Handle(f.ctx, command.AssignChallengesCommand{Type: challenge.TypeDaily})
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)
	f.lesson(7, 2)

	code, env = f.do(http.MethodGet, "/api/v1/users/7/challenges?status=completed", nil, nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[[]query.AssignmentDTO](t, env)
	require.Len(t, list, 1)
	assert.Equal(t, "One lesson a day", list[0].Title)

	claimPath := "/api/v1/users/7/challenges/" + list[0].ID.String() + "/claim"

	code, env = f.do(http.MethodPost, "/api/v1/users/8/challenges/"+list[0].ID.String()+"/claim", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Error.Code)

	code, env = f.do(http.MethodPost, claimPath, nil, nil)
	require.Equal(t, http.StatusOK, code)
	claimed := decode[claimResponse](t, env)
	assert.True(t, claimed.RewardClaimed)
	assert.Equal(t, "claimed", claimed.Status)

	code, env = f.do(http.MethodPost, claimPath, nil, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_state_transition", env.Error.Code)

	code, _ = f.do(http.MethodGet, "/api/v1/users/7/challenges?status=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(http.MethodPost, "/api/v1/users/7/challenges/not-a-uuid/claim", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	// 10 + 10 for lessons, 25 paid at completion, nothing at claim
	_, env = f.do(http.MethodGet, "/api/v1/users/7/stats", nil, nil)
	assert.Equal(t, int64(45), decode[query.UserStatsDTO](t, env).TotalXP)
}

func TestLeaderboards(t *testing.T) {
	f := newAPIFixture(t, false)

	for user, lessons := range map[int64]int{1: 1, 2: 3, 3: 2} {
		for i := 0; i < lessons; i++ {
			ev := shared.NewLessonCompletedEvent(user, user*100+int64(i), 1)
			course := int64(9)
			ev.CourseID = &course
			_, err := f.commands.LearningEvents.Handle(f.ctx, ev)
			require.NoError(t, err)
		}
	}
	_, err := f.commands.Leaderboard.RecomputeAll(f.ctx)
	require.NoError(t, err)

	code, env := f.do(http.MethodGet, "/api/v1/leaderboard?page=1&page_size=2", nil, nil)
	require.Equal(t, http.StatusOK, code)
	page := decode[query.GetLeaderboardResult](t, env)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, int64(2), page.Entries[0].UserID)
	assert.Equal(t, 1, page.Entries[0].Rank)
	assert.Equal(t, 3, page.TotalCount)
	assert.True(t, page.HasMore)
	assert.Equal(t, 3, env.Meta.TotalCount)

	code, env = f.do(http.MethodGet, "/api/v1/courses/9/leaderboard", nil, nil)
	require.Equal(t, http.StatusOK, code)
	course := decode[query.GetLeaderboardResult](t, env)
	assert.Len(t, course.Entries, 3)
	assert.Equal(t, "course:9", course.Scope)

	code, _ = f.do(http.MethodGet, "/api/v1/courses/0/leaderboard", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAdminRequiresAPIKey(t *testing.T) {
	f := newAPIFixture(t, true)
	body := createBadgeRequest{Code: "helper", Name: "Helper"}

	code, env := f.do(http.MethodPost, "/api/v1/admin/badges", body, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "missing_api_key", env.Error.Code)

	code, env = f.do(http.MethodPost, "/api/v1/admin/badges", body, map[string]string{handlers.HeaderAPIKey: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid_api_key", env.Error.Code)

	code, _ = f.do(http.MethodPost, "/api/v1/admin/badges", body, map[string]string{"Authorization": "Bearer " + adminKey})
	assert.Equal(t, http.StatusCreated, code)
}

func TestAdminDisabledWithoutHash(t *testing.T) {
	f := newAPIFixture(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/badges", nil)
	req.Header.Set(handlers.HeaderAPIKey, adminKey)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminBadgesPenaltiesReconcile(t *testing.T) {
	f := newAPIFixture(t, true)

	code, env := f.admin(http.MethodPost, "/api/v1/admin/badges", createBadgeRequest{Code: "mentor", Name: "Mentor", Type: "achievement"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "mentor", decode[badgeResponse](t, env).Code)

	code, env = f.admin(http.MethodPost, "/api/v1/admin/badges", createBadgeRequest{Code: "x", Type: "legendary"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = f.admin(http.MethodPost, "/api/v1/admin/users/7/badges", awardBadgeRequest{Code: "mentor"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, decode[map[string]interface{}](t, env)["granted"])

	code, env = f.admin(http.MethodPost, "/api/v1/admin/users/7/badges", awardBadgeRequest{Code: "mentor"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, decode[map[string]interface{}](t, env)["granted"])

	code, env = f.do(http.MethodGet, "/api/v1/users/7/badges", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]query.UserBadgeDTO](t, env), 1)

	f.lesson(7, 1)

	code, env = f.admin(http.MethodPost, "/api/v1/admin/users/7/penalties", penaltyRequest{Points: 4, Reference: "spam-1"})
	require.Equal(t, http.StatusOK, code)
	penalty := decode[map[string]interface{}](t, env)
	assert.Equal(t, true, penalty["created"])
	assert.Equal(t, float64(6), penalty["total_xp"])

	code, env = f.admin(http.MethodPost, "/api/v1/admin/users/7/penalties", penaltyRequest{Points: 4, Reference: "spam-1"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, decode[map[string]interface{}](t, env)["created"])

	code, _ = f.admin(http.MethodPost, "/api/v1/admin/users/7/penalties", penaltyRequest{Points: 0, Reference: "spam-2"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.admin(http.MethodPost, "/api/v1/admin/users/7/penalties", penaltyRequest{Points: 3})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = f.admin(http.MethodPost, "/api/v1/admin/users/7/reconcile", nil)
	require.Equal(t, http.StatusOK, code)
	rec := decode[map[string]interface{}](t, env)
	assert.Equal(t, false, rec["changed"])
}

func TestAdminMalformedBody(t *testing.T) {
	f := newAPIFixture(t, true)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/challenges", bytes.NewBufferString("{not json"))
	req.Header.Set(handlers.HeaderAPIKey, adminKey)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{shared.ErrInvalidUserID, http.StatusBadRequest},
		{shared.ErrAssignmentNotFound, http.StatusNotFound},
		{shared.ErrNotClaimable, http.StatusConflict},
		{shared.StorageError("stats", "Save", errors.New("disk full")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}

func TestNewServer_RequiresHandlers(t *testing.T) {
	_, err := NewServer(DefaultConfig(), Dependencies{})
	assert.Error(t, err)
}

func TestRateLimit_AppliesToAPIOnly(t *testing.T) {
	f := newAPIFixture(t, false, func(c *Config) {
		c.RateLimit = handlers.RateLimitConfig{RequestsPerMinute: 60, BurstSize: 1}
	})

	code, _ := f.do(http.MethodGet, "/api/v1/leaderboard", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	code, body := f.do(http.MethodGet, "/api/v1/leaderboard", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "rate_limited", body.Error.Code)

	for i := 0; i < 3; i++ {
		code, _ = f.do(http.MethodGet, "/health", nil, nil)
		assert.Equal(t, http.StatusOK, code)
	}
}
