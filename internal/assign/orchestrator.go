// Package assign fans a workout template out to trainees: clone the
// template per trainee, expand the recurrence into dated sessions,
// persist them, and report per-trainee outcomes.
package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claude/repcoach/internal/events"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/schedule"
	"github.com/google/uuid"
)

// Validation errors reported synchronously to the caller.
var (
	ErrNoExercises = errors.New("template has no exercises")
	ErrNoTrainees  = errors.New("no trainees given")
)

// Store is the slice of persistence the orchestrator needs.
type Store interface {
	GetTemplate(ctx context.Context, id uuid.UUID) (*models.WorkoutTemplate, error)
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
	InsertPlan(ctx context.Context, p *models.TraineePlan) error
	InsertSessions(ctx context.Context, rows []models.ScheduledSession) (int64, error)
}

// PlanSettings describe when the cloned plan's sessions take place.
type PlanSettings struct {
	StartDate   time.Time          `json:"startDate"`
	EndDate     time.Time          `json:"endDate"`
	Frequency   schedule.Frequency `json:"frequency"`
	DaysOfWeek  []time.Weekday     `json:"daysOfWeek,omitempty"`
	MaxSessions int                `json:"maxSessions,omitempty"`
}

// TraineeResult is the outcome for one trainee in a batch.
type TraineeResult struct {
	TraineeID      uuid.UUID `json:"traineeId"`
	Success        bool      `json:"success"`
	PlanID         uuid.UUID `json:"planId,omitempty"`
	SessionsCreated int      `json:"sessionsCreated"`
	Error          string    `json:"error,omitempty"`
}

// BatchResult is the itemized report of one assignment call. Callers
// retry only the failed entries; collapsing this to a single boolean
// would lose that.
type BatchResult struct {
	Total      int             `json:"total"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Results    []TraineeResult `json:"results"`
}

// Orchestrator assigns templates to trainees.
type Orchestrator struct {
	store Store
	bus   *events.Bus
	loc   *time.Location
	log   *slog.Logger
}

// New creates an Orchestrator. Events go out on bus; loc is the
// timezone recurrence dates are generated in.
func New(store Store, bus *events.Bus, loc *time.Location, log *slog.Logger) *Orchestrator {
	if loc == nil {
		loc = time.UTC
	}
	return &Orchestrator{store: store, bus: bus, loc: loc, log: log}
}

// Assign clones the template for every trainee and schedules their
// sessions. One trainee's failure never aborts the batch: the result
// carries a per-trainee report plus summary counts.
//
// A missing or structurally invalid template is fatal to the whole
// call, since no trainee could succeed.
func (o *Orchestrator) Assign(ctx context.Context, templateID uuid.UUID, traineeIDs []uuid.UUID, settings PlanSettings) (*BatchResult, error) {
	if len(traineeIDs) == 0 {
		return nil, ErrNoTrainees
	}

	tmpl, err := o.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("loading template: %w", err)
	}
	if len(tmpl.Exercises) == 0 {
		return nil, ErrNoExercises
	}

	dates := schedule.Expand(settings.StartDate, settings.EndDate, settings.Frequency, settings.DaysOfWeek, o.loc)
	if settings.MaxSessions > 0 {
		dates = schedule.Cap(dates, settings.MaxSessions)
	}

	result := &BatchResult{Total: len(traineeIDs)}

	for _, traineeID := range traineeIDs {
		r := o.assignOne(ctx, tmpl, traineeID, dates)
		if r.Success {
			result.Successful++
		} else {
			result.Failed++
			o.log.Warn("trainee assignment failed", "trainee", traineeID, "error", r.Error)
		}
		result.Results = append(result.Results, r)
	}

	return result, nil
}

func (o *Orchestrator) assignOne(ctx context.Context, tmpl *models.WorkoutTemplate, traineeID uuid.UUID, dates []time.Time) TraineeResult {
	exists, err := o.store.UserExists(ctx, traineeID)
	if err != nil {
		return TraineeResult{TraineeID: traineeID, Error: fmt.Sprintf("checking trainee: %v", err)}
	}
	if !exists {
		return TraineeResult{TraineeID: traineeID, Error: "unknown trainee"}
	}

	plan := clonePlan(tmpl, traineeID)
	if err := o.store.InsertPlan(ctx, plan); err != nil {
		return TraineeResult{TraineeID: traineeID, Error: fmt.Sprintf("cloning plan: %v", err)}
	}

	sessions := make([]models.ScheduledSession, len(dates))
	for i, d := range dates {
		sessions[i] = models.ScheduledSession{
			ID:            uuid.New(),
			PlanID:        plan.ID,
			TraineeID:     traineeID,
			ScheduledDate: d,
			Status:        models.StatusScheduled,
		}
	}
	if _, err := o.store.InsertSessions(ctx, sessions); err != nil {
		return TraineeResult{TraineeID: traineeID, PlanID: plan.ID, Error: fmt.Sprintf("persisting sessions: %v", err)}
	}

	// Fire-and-forget: notification subscribers may be slow or absent,
	// the assignment already succeeded.
	for _, s := range sessions {
		o.bus.Publish(events.Event{
			Type:      events.SessionAssigned,
			TraineeID: traineeID,
			SessionID: s.ID,
			At:        time.Now(),
			Payload:   map[string]any{"date": s.ScheduledDate.Format("2006-01-02"), "plan": plan.Name},
		})
	}

	return TraineeResult{
		TraineeID:       traineeID,
		Success:         true,
		PlanID:          plan.ID,
		SessionsCreated: len(sessions),
	}
}

// clonePlan deep-copies the template into a trainee-scoped plan with
// fresh IDs. Copy, not reference: template edits after assignment must
// not reach already-assigned work.
func clonePlan(tmpl *models.WorkoutTemplate, traineeID uuid.UUID) *models.TraineePlan {
	plan := &models.TraineePlan{
		ID:               uuid.New(),
		SourceTemplateID: tmpl.ID,
		TraineeID:        traineeID,
		Name:             tmpl.Name,
		EstimatedMinutes: tmpl.EstimatedMinutes,
	}
	for _, ex := range tmpl.Exercises {
		clone := models.TemplateExercise{
			ID:          uuid.New(),
			ExerciseID:  ex.ExerciseID,
			OrderIndex:  ex.OrderIndex,
			RestSeconds: ex.RestSeconds,
		}
		for _, set := range ex.Sets {
			setClone := set
			setClone.ID = uuid.New()
			clone.Sets = append(clone.Sets, setClone)
		}
		plan.Exercises = append(plan.Exercises, clone)
	}
	return plan
}
