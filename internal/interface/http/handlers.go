package http

import (
	"net/http"
	"time"

	"github.com/alem-hub/gamification/internal/application/command"
	"github.com/alem-hub/gamification/internal/application/query"
	"github.com/alem-hub/gamification/internal/domain/badge"
	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/internal/domain/stats"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Health == nil {
		writeJSON(c, http.StatusOK, gin.H{"status": "healthy", "uptime": s.Uptime().String()})
		return
	}

	status := s.deps.Health.Check(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(c, code, status)
}

// handleReady answers 503 until every dependency check passes.
func (s *Server) handleReady(c *gin.Context) {
	if s.deps.Health != nil {
		status := s.deps.Health.Check(c.Request.Context())
		if !status.Healthy {
			writeJSONError(c, http.StatusServiceUnavailable, "not_ready", status.Message)
			return
		}
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ready"})
}

// ══════════════════════════════════════════════════════════════════════════════
// USER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetUserStats handles GET /api/v1/users/:userId/stats
func (s *Server) handleGetUserStats(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	dto, err := s.deps.UserStats.Handle(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, dto)
}

// handleGetXPHistory handles GET /api/v1/users/:userId/xp?limit=&offset=
func (s *Server) handleGetXPHistory(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	entries, err := s.deps.XPHistory.Handle(c.Request.Context(), query.GetXPHistoryQuery{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, entries)
}

// handleListBadges handles GET /api/v1/users/:userId/badges
func (s *Server) handleListBadges(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	earned, err := s.deps.Badges.Handle(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, earned)
}

// handleListChallenges handles GET /api/v1/users/:userId/challenges?status=
func (s *Server) handleListChallenges(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	assignments, err := s.deps.Assignments.Handle(c.Request.Context(), query.ListAssignmentsQuery{
		UserID: userID,
		Status: c.Query("status"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, assignments)
}

type claimResponse struct {
	AssignmentID  uuid.UUID  `json:"assignment_id"`
	Status        string     `json:"status"`
	RewardClaimed bool       `json:"reward_claimed"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// handleClaimChallenge handles POST /api/v1/users/:userId/challenges/:assignmentId/claim
func (s *Server) handleClaimChallenge(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	assignmentID, err := uuid.Parse(c.Param("assignmentId"))
	if err != nil {
		writeJSONError(c, http.StatusBadRequest, "invalid_input", "assignmentId must be a UUID")
		return
	}

	a, err := s.deps.Commands.ClaimReward.Handle(c.Request.Context(), command.ClaimRewardCommand{
		UserID:       userID,
		AssignmentID: assignmentID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	writeJSON(c, http.StatusOK, claimResponse{
		AssignmentID:  a.ID(),
		Status:        a.Status().String(),
		RewardClaimed: a.RewardClaimed(),
		CompletedAt:   a.CompletedAt(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGlobalLeaderboard handles GET /api/v1/leaderboard?page=&page_size=
func (s *Server) handleGlobalLeaderboard(c *gin.Context) {
	s.leaderboard(c, nil)
}

// handleCourseLeaderboard handles GET /api/v1/courses/:courseId/leaderboard
func (s *Server) handleCourseLeaderboard(c *gin.Context) {
	courseID, ok := pathID(c, "courseId")
	if !ok {
		return
	}
	s.leaderboard(c, &courseID)
}

func (s *Server) leaderboard(c *gin.Context, courseID *int64) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := queryInt(c, "page_size", 0)
	if !ok {
		return
	}

	result, err := s.deps.Leaderboard.Handle(c.Request.Context(), query.GetLeaderboardQuery{
		CourseID: courseID,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	writeJSONWithMeta(c, http.StatusOK, result, &ResponseMeta{
		TotalCount: result.TotalCount,
		Page:       result.Page,
		PageSize:   result.PageSize,
		HasMore:    result.HasMore,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type createChallengeRequest struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Type         string     `json:"type"`
	CriteriaType string     `json:"criteria_type"`
	Target       int64      `json:"target"`
	PointsReward int64      `json:"points_reward"`
	BadgeID      *uuid.UUID `json:"badge_id"`
	StartAt      *time.Time `json:"start_at"`
	EndAt        *time.Time `json:"end_at"`
}

type challengeResponse struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Type         string     `json:"type"`
	CriteriaType string     `json:"criteria_type"`
	Target       int64      `json:"target"`
	PointsReward int64      `json:"points_reward"`
	BadgeID      *uuid.UUID `json:"badge_id,omitempty"`
	StartAt      time.Time  `json:"start_at"`
	EndAt        *time.Time `json:"end_at,omitempty"`
}

func toChallengeResponse(ch *challenge.Challenge) challengeResponse {
	return challengeResponse{
		ID:           ch.ID,
		Title:        ch.Title,
		Description:  ch.Description,
		Type:         string(ch.Type),
		CriteriaType: string(ch.Criteria.Type),
		Target:       ch.Criteria.Target,
		PointsReward: ch.PointsReward,
		BadgeID:      ch.BadgeID,
		StartAt:      ch.StartAt,
		EndAt:        ch.EndAt,
	}
}

// handleCreateChallenge handles POST /api/v1/admin/challenges
func (s *Server) handleCreateChallenge(c *gin.Context) {
	var req createChallengeRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := command.CreateChallengeCommand{
		Title:        req.Title,
		Description:  req.Description,
		Type:         challenge.Type(req.Type),
		Criteria:     challenge.Criteria{Type: challenge.CriteriaType(req.CriteriaType), Target: req.Target},
		PointsReward: req.PointsReward,
		BadgeID:      req.BadgeID,
		EndAt:        req.EndAt,
	}
	if req.StartAt != nil {
		cmd.StartAt = *req.StartAt
	}

	ch, err := s.deps.Commands.CreateChallenge.Handle(c.Request.Context(), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toChallengeResponse(ch))
}

type createBadgeRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Type        string `json:"type"`
	Threshold   int    `json:"threshold"`
}

type badgeResponse struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Type        string    `json:"type"`
	Threshold   int       `json:"threshold,omitempty"`
}

func toBadgeResponse(b *badge.Badge) badgeResponse {
	return badgeResponse{
		ID:          b.ID,
		Code:        b.Code,
		Name:        b.Name,
		Description: b.Description,
		Icon:        b.Icon,
		Type:        string(b.Type),
		Threshold:   b.Threshold,
	}
}

// handleCreateBadge handles POST /api/v1/admin/badges. Registering an
// existing code returns the stored badge unchanged.
func (s *Server) handleCreateBadge(c *gin.Context) {
	var req createBadgeRequest
	if !bindJSON(c, &req) {
		return
	}

	b, err := s.deps.Commands.AwardBadge.CreateBadge(c.Request.Context(), command.CreateBadgeCommand{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Type:        badge.Type(req.Type),
		Threshold:   req.Threshold,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toBadgeResponse(b))
}

type awardBadgeRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleAwardBadge handles POST /api/v1/admin/users/:userId/badges
func (s *Server) handleAwardBadge(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	var req awardBadgeRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.deps.Commands.AwardBadge.Handle(c.Request.Context(), command.AwardBadgeCommand{
		UserID:      userID,
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"badge":   toBadgeResponse(res.Badge),
		"granted": res.Granted,
	})
}

type penaltyRequest struct {
	Points int64 `json:"points"`

	// Reference identifies the offence; repeated references are suppressed
	// unless AllowMultiple is set.
	Reference     string `json:"reference"`
	Description   string `json:"description"`
	AllowMultiple bool   `json:"allow_multiple"`
}

// handlePenalize handles POST /api/v1/admin/users/:userId/penalties
func (s *Server) handlePenalize(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	var req penaltyRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Reference == "" {
		writeJSONError(c, http.StatusBadRequest, "invalid_input", "reference is required")
		return
	}

	res, err := s.deps.Commands.AwardXP.Penalize(c.Request.Context(), command.PenalizeCommand{
		UserID:        userID,
		Points:        req.Points,
		Source:        ledger.SystemSource("penalty:" + req.Reference),
		Description:   req.Description,
		AllowMultiple: req.AllowMultiple,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	body := gin.H{"created": res.Created}
	if res.Stats != nil {
		body["total_xp"] = res.Stats.TotalXP
		body["level"] = res.Stats.GlobalLevel
	}
	writeJSON(c, http.StatusOK, body)
}

type statCounters struct {
	TotalXP             int64 `json:"total_xp"`
	TotalPoints         int64 `json:"total_points"`
	Level               int   `json:"level"`
	TotalBadges         int   `json:"total_badges"`
	CompletedChallenges int   `json:"completed_challenges"`
}

func counters(st stats.UserStat) statCounters {
	return statCounters{
		TotalXP:             st.TotalXP,
		TotalPoints:         st.TotalPoints,
		Level:               st.GlobalLevel,
		TotalBadges:         st.TotalBadges,
		CompletedChallenges: st.CompletedChallenges,
	}
}

// handleReconcile handles POST /api/v1/admin/users/:userId/reconcile
func (s *Server) handleReconcile(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	res, err := s.deps.Commands.Stats.Reconcile(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"changed": res.Changed(),
		"before":  counters(res.Before),
		"after":   counters(res.After),
	})
}
