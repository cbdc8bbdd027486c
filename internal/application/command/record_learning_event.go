package command

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alem-hub/gamification/internal/domain/badge"
	"github.com/alem-hub/gamification/internal/domain/challenge"
	"github.com/alem-hub/gamification/internal/domain/ledger"
	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/internal/domain/stats"
	"github.com/alem-hub/gamification/pkg/logger"
	"go.uber.org/zap"
)

// ══════════════════════════════════════════════════════════════════════════════
// POINTS CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// PointsConfig holds the XP granted per learner action.
type PointsConfig struct {
	LessonComplete   int64
	AssignmentSubmit int64
	QuizComplete     int64
	CourseComplete   int64
	CourseBonus      int64
}

// DefaultPoints returns the documented defaults.
func DefaultPoints() PointsConfig {
	return PointsConfig{
		LessonComplete:   10,
		AssignmentSubmit: 20,
		QuizComplete:     15,
		CourseComplete:   100,
		CourseBonus:      50,
	}
}

// Normalize replaces missing or non-positive values with the defaults and
// returns the names of the values it replaced.
func (p PointsConfig) Normalize() (PointsConfig, []string) {
	def := DefaultPoints()
	var replaced []string

	fix := func(name string, v *int64, fallback int64) {
		if *v <= 0 {
			*v = fallback
			replaced = append(replaced, name)
		}
	}
	fix("lesson_complete", &p.LessonComplete, def.LessonComplete)
	fix("assignment_submit", &p.AssignmentSubmit, def.AssignmentSubmit)
	fix("quiz_complete", &p.QuizComplete, def.QuizComplete)
	fix("course_complete", &p.CourseComplete, def.CourseComplete)
	fix("course_bonus", &p.CourseBonus, def.CourseBonus)

	return p, replaced
}

// MilestoneConfig lists the thresholds that earn milestone badges.
type MilestoneConfig struct {
	StreakDays []int
	Levels     []int
}

// DefaultMilestones returns the documented defaults.
func DefaultMilestones() MilestoneConfig {
	return MilestoneConfig{
		StreakDays: []int{3, 7, 30},
		Levels:     []int{5, 10},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD LEARNING EVENT COMMAND
// Turns one learner event into XP, streak, challenge progress and badges in a
// single transaction. The event key is recorded in the inbox first, so a
// redelivered event changes nothing.
// ══════════════════════════════════════════════════════════════════════════════

// LearningEventResult summarizes the effect of one event.
type LearningEventResult struct {
	// Duplicate is true when the event had already been processed.
	Duplicate bool

	XP       *AwardXPResult
	Bonus    *AwardXPResult
	Streak   stats.StreakChange
	Progress ProgressResult
	Badges   []string
}

// eventPlan is the award and progress derived from one event.
type eventPlan struct {
	award    AwardXPCommand
	criteria challenge.CriteriaType

	// completedCourse is set for course completions.
	completedCourse int64
}

// RecordLearningEventHandler is the entry point for inbound learner events.
type RecordLearningEventHandler struct {
	env        Env
	points     PointsConfig
	milestones MilestoneConfig
	xp         *AwardXPHandler
	badges     *AwardBadgeHandler
	progress   *ProgressHandler
	stats      *StatAggregator
	logger     *zap.Logger
}

// NewRecordLearningEventHandler creates a new RecordLearningEventHandler.
func NewRecordLearningEventHandler(
	env Env,
	points PointsConfig,
	milestones MilestoneConfig,
	xp *AwardXPHandler,
	badges *AwardBadgeHandler,
	progress *ProgressHandler,
	aggregator *StatAggregator,
) *RecordLearningEventHandler {
	env = env.withDefaults()
	log := env.Logger.With(logger.Component("learning_events"))

	points, replaced := points.Normalize()
	if len(replaced) > 0 {
		log.Warn("points not configured, using defaults",
			zap.Strings("fields", replaced),
			logger.Err(shared.ErrConfigurationMissing),
		)
	}

	return &RecordLearningEventHandler{
		env:        env,
		points:     points,
		milestones: milestones,
		xp:         xp,
		badges:     badges,
		progress:   progress,
		stats:      aggregator,
		logger:     log,
	}
}

// Handle processes one learner event.
func (h *RecordLearningEventHandler) Handle(ctx context.Context, ev shared.LearningEvent) (*LearningEventResult, error) {
	plan, err := h.plan(ev)
	if err != nil {
		return nil, err
	}

	var result *LearningEventResult
	err = h.env.run(ctx, func(ctx context.Context, tx *txScope) error {
		fresh, err := tx.repos.Inbox.MarkProcessed(ctx, ev.DedupKey(), tx.now)
		if err != nil {
			return storageErr("inbox", "MarkProcessed", err)
		}
		if !fresh {
			result = &LearningEventResult{Duplicate: true}
			return nil
		}

		result, err = h.apply(ctx, tx, plan)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", ev.EventType(), err)
	}

	if result.Duplicate {
		h.logger.Debug("duplicate event skipped",
			logger.EventType(string(ev.EventType())),
			zap.String("event_key", ev.DedupKey()),
		)
	}
	return result, nil
}

func (h *RecordLearningEventHandler) plan(ev shared.LearningEvent) (eventPlan, error) {
	if ev.UserID() <= 0 {
		return eventPlan{}, shared.ErrInvalidUserID
	}

	switch e := ev.(type) {
	case shared.LessonCompletedEvent:
		return eventPlan{
			award: AwardXPCommand{
				UserID: e.User,
				Points: h.points.LessonComplete,
				Reason: ledger.ReasonCompletion,
				Source: ledger.LessonSource(e.LessonID),
				Options: ledger.AwardOptions{
					Description: "lesson completed",
					CourseID:    e.CourseID,
				},
			},
			criteria: challenge.CriteriaLessonsCompleted,
		}, nil

	case shared.SubmissionCreatedEvent:
		return eventPlan{
			award: AwardXPCommand{
				UserID: e.User,
				Points: h.points.AssignmentSubmit,
				Reason: ledger.ReasonCompletion,
				Source: ledger.AssignmentSource(e.SubmissionID),
				Options: ledger.AwardOptions{
					AllowMultiple: true,
					Description:   "assignment submitted",
					CourseID:      e.CourseID,
				},
			},
			criteria: challenge.CriteriaAssignmentsSubmitted,
		}, nil

	case shared.AttemptCompletedEvent:
		return eventPlan{
			award: AwardXPCommand{
				UserID: e.User,
				Points: h.points.QuizComplete,
				Reason: ledger.ReasonScore,
				Source: ledger.AttemptSource(e.AttemptID),
				Options: ledger.AwardOptions{
					AllowMultiple: true,
					Description:   "quiz attempt completed",
					CourseID:      e.CourseID,
				},
			},
			criteria: challenge.CriteriaQuizzesCompleted,
		}, nil

	case shared.CourseCompletedEvent:
		if e.CourseID <= 0 {
			return eventPlan{}, shared.ErrInvalidCourseID
		}
		courseID := e.CourseID
		return eventPlan{
			award: AwardXPCommand{
				UserID: e.User,
				Points: h.points.CourseComplete,
				Reason: ledger.ReasonCompletion,
				Source: ledger.SystemSource("course:" + strconv.FormatInt(courseID, 10)),
				Options: ledger.AwardOptions{
					Description: "course completed",
					CourseID:    &courseID,
				},
			},
			criteria:        challenge.CriteriaCoursesCompleted,
			completedCourse: courseID,
		}, nil
	}

	return eventPlan{}, shared.NewDomainError("events", "Plan", shared.ErrInvalidInput,
		"unsupported event type "+string(ev.EventType()))
}

func (h *RecordLearningEventHandler) apply(ctx context.Context, tx *txScope, p eventPlan) (*LearningEventResult, error) {
	userID := p.award.UserID
	result := &LearningEventResult{}

	var err error
	result.XP, err = h.xp.award(ctx, tx, p.award)
	if err != nil {
		return nil, err
	}
	earned := awardedPoints(result.XP)

	if p.completedCourse > 0 {
		bonus, err := h.completeCourse(ctx, tx, userID, p.completedCourse, result)
		if err != nil {
			return nil, err
		}
		earned += bonus
	}

	streak, st, err := h.stats.recordActivity(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	result.Streak = streak

	steps := []UpdateProgressCommand{
		{UserID: userID, Criteria: p.criteria, Increment: 1},
	}
	if streak.Advanced() {
		// progress tracks the longest run of consecutive days, so a reset never counts
		steps = append(steps, UpdateProgressCommand{UserID: userID, Criteria: challenge.CriteriaStreakDays, Level: int64(st.CurrentStreak)})
	}
	if earned > 0 {
		steps = append(steps, UpdateProgressCommand{UserID: userID, Criteria: challenge.CriteriaXPEarned, Increment: earned})
	}

	for _, step := range steps {
		out, err := h.progress.advance(ctx, tx, step)
		if err != nil {
			return nil, err
		}
		result.Progress.merge(out)
	}

	codes, err := h.checkMilestones(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	result.Badges = append(result.Badges, codes...)

	return result, nil
}

// completeCourse grants the course badge and the one-time course bonus.
func (h *RecordLearningEventHandler) completeCourse(ctx context.Context, tx *txScope, userID, courseID int64, result *LearningEventResult) (int64, error) {
	code := badge.CourseCompletionCode(courseID)
	granted, err := h.badges.award(ctx, tx, AwardBadgeCommand{
		UserID:      userID,
		Code:        code,
		Name:        fmt.Sprintf("Course %d complete", courseID),
		Description: "Completed every lesson of the course",
		Type:        badge.TypeCompletion,
	})
	if err != nil {
		return 0, err
	}
	if granted.Granted {
		result.Badges = append(result.Badges, code)
	}

	result.Bonus, err = h.xp.award(ctx, tx, AwardXPCommand{
		UserID: userID,
		Points: h.points.CourseBonus,
		Reason: ledger.ReasonBonus,
		Source: ledger.SystemSource("course-bonus:" + strconv.FormatInt(courseID, 10)),
		Options: ledger.AwardOptions{
			Description: "course completion bonus",
			CourseID:    &courseID,
		},
	})
	if err != nil {
		return 0, err
	}
	return awardedPoints(result.Bonus), nil
}

// checkMilestones grants every streak and level badge the user qualifies for.
// Grants are idempotent, so evaluating from the current totals is enough.
func (h *RecordLearningEventHandler) checkMilestones(ctx context.Context, tx *txScope, userID int64) ([]string, error) {
	st, err := tx.repos.Stats.GetOrCreateForUpdate(ctx, userID, tx.now)
	if err != nil {
		return nil, storageErr("stats", "Lock", err)
	}

	var candidates []AwardBadgeCommand
	for _, days := range h.milestones.StreakDays {
		if days > 0 && st.LongestStreak >= days {
			candidates = append(candidates, AwardBadgeCommand{
				UserID:      userID,
				Code:        badge.StreakCode(days),
				Name:        fmt.Sprintf("%d-day streak", days),
				Description: fmt.Sprintf("Active %d days in a row", days),
				Type:        badge.TypeMilestone,
				Threshold:   days,
			})
		}
	}
	for _, level := range h.milestones.Levels {
		if level > 1 && st.GlobalLevel >= level {
			candidates = append(candidates, AwardBadgeCommand{
				UserID:      userID,
				Code:        badge.LevelCode(level),
				Name:        fmt.Sprintf("Level %d", level),
				Description: fmt.Sprintf("Reached level %d", level),
				Type:        badge.TypeMilestone,
				Threshold:   level,
			})
		}
	}

	var granted []string
	for _, cmd := range candidates {
		res, err := h.badges.award(ctx, tx, cmd)
		if err != nil {
			return nil, err
		}
		if res.Granted {
			granted = append(granted, cmd.Code)
		}
	}
	return granted, nil
}

func awardedPoints(r *AwardXPResult) int64 {
	if r == nil || !r.Created || r.Entry == nil {
		return 0
	}
	return r.Entry.Points
}
