package assign

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/events"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/schedule"
	"github.com/google/uuid"
)

// fakeStore is an in-memory Store with per-trainee fault injection.
type fakeStore struct {
	template    *models.WorkoutTemplate
	templateErr error

	failPlanFor    map[uuid.UUID]error
	failSessionFor map[uuid.UUID]error
	unknownTrainee map[uuid.UUID]bool

	plans    []*models.TraineePlan
	sessions []models.ScheduledSession
}

func (f *fakeStore) UserExists(_ context.Context, id uuid.UUID) (bool, error) {
	return !f.unknownTrainee[id], nil
}

func (f *fakeStore) GetTemplate(_ context.Context, id uuid.UUID) (*models.WorkoutTemplate, error) {
	if f.templateErr != nil {
		return nil, f.templateErr
	}
	return f.template, nil
}

func (f *fakeStore) InsertPlan(_ context.Context, p *models.TraineePlan) error {
	if err := f.failPlanFor[p.TraineeID]; err != nil {
		return err
	}
	f.plans = append(f.plans, p)
	return nil
}

func (f *fakeStore) InsertSessions(_ context.Context, rows []models.ScheduledSession) (int64, error) {
	if len(rows) > 0 {
		if err := f.failSessionFor[rows[0].TraineeID]; err != nil {
			return 0, err
		}
	}
	f.sessions = append(f.sessions, rows...)
	return int64(len(rows)), nil
}

func testTemplate() *models.WorkoutTemplate {
	w := 100.0
	return &models.WorkoutTemplate{
		ID:      uuid.New(),
		CoachID: uuid.New(),
		Name:    "Push Day",
		Exercises: []models.TemplateExercise{
			{
				ID: uuid.New(), ExerciseID: uuid.New(), OrderIndex: 0, RestSeconds: 90,
				Sets: []models.TemplateSet{
					{ID: uuid.New(), SetNumber: 1, Type: models.SetWorking, TargetReps: 8, TargetWeightKg: &w},
					{ID: uuid.New(), SetNumber: 2, Type: models.SetWorking, TargetReps: 8, TargetWeightKg: &w},
					{ID: uuid.New(), SetNumber: 3, Type: models.SetWorking, TargetReps: 8, TargetWeightKg: &w},
				},
			},
			{
				ID: uuid.New(), ExerciseID: uuid.New(), OrderIndex: 1, RestSeconds: 60,
				Sets: []models.TemplateSet{
					{ID: uuid.New(), SetNumber: 1, Type: models.SetWorking, TargetReps: 10},
					{ID: uuid.New(), SetNumber: 2, Type: models.SetWorking, TargetReps: 10},
					{ID: uuid.New(), SetNumber: 3, Type: models.SetWorking, TargetReps: 10},
				},
			},
		},
	}
}

func testOrchestrator(store Store) (*Orchestrator, *events.Bus) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.NewBus(log)
	return New(store, bus, time.UTC, log), bus
}

func mwfSettings() PlanSettings {
	return PlanSettings{
		StartDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC),
		Frequency:  schedule.FrequencyWeekly,
		DaysOfWeek: []time.Weekday{time.Monday, time.Wednesday, time.Friday},
	}
}

// TestAssignSchedulesSessions: 2 exercises × 3 sets, Mon/Wed/Fri over
// three weeks produces exactly 9 sessions per trainee.
func TestAssignSchedulesSessions(t *testing.T) {
	store := &fakeStore{template: testTemplate()}
	o, _ := testOrchestrator(store)
	trainee := uuid.New()

	res, err := o.Assign(context.Background(), store.template.ID, []uuid.UUID{trainee}, mwfSettings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Successful != 1 || res.Failed != 0 {
		t.Fatalf("successful = %d, failed = %d, want 1/0", res.Successful, res.Failed)
	}
	if len(store.sessions) != 9 {
		t.Fatalf("sessions = %d, want 9", len(store.sessions))
	}
	for _, s := range store.sessions {
		if s.Status != models.StatusScheduled {
			t.Errorf("session status = %q, want scheduled", s.Status)
		}
		switch s.ScheduledDate.Weekday() {
		case time.Monday, time.Wednesday, time.Friday:
		default:
			t.Errorf("session on %v, want Mon/Wed/Fri", s.ScheduledDate.Weekday())
		}
	}
}

// TestAssignClonesTemplate verifies copy-on-write: the stored plan has
// fresh IDs throughout and a trainee owner, while structure matches.
func TestAssignClonesTemplate(t *testing.T) {
	store := &fakeStore{template: testTemplate()}
	o, _ := testOrchestrator(store)
	trainee := uuid.New()

	if _, err := o.Assign(context.Background(), store.template.ID, []uuid.UUID{trainee}, mwfSettings()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.plans) != 1 {
		t.Fatalf("plans = %d, want 1", len(store.plans))
	}
	plan := store.plans[0]
	if plan.ID == store.template.ID {
		t.Error("plan reuses the template ID")
	}
	if plan.TraineeID != trainee {
		t.Errorf("plan trainee = %v, want %v", plan.TraineeID, trainee)
	}
	if plan.SourceTemplateID != store.template.ID {
		t.Errorf("plan source = %v, want template ID", plan.SourceTemplateID)
	}
	if len(plan.Exercises) != 2 {
		t.Fatalf("plan exercises = %d, want 2", len(plan.Exercises))
	}
	for i, ex := range plan.Exercises {
		src := store.template.Exercises[i]
		if ex.ID == src.ID {
			t.Errorf("exercise %d reuses the template exercise ID", i)
		}
		if ex.ExerciseID != src.ExerciseID {
			t.Errorf("exercise %d library ref = %v, want %v", i, ex.ExerciseID, src.ExerciseID)
		}
		if len(ex.Sets) != len(src.Sets) {
			t.Errorf("exercise %d sets = %d, want %d", i, len(ex.Sets), len(src.Sets))
		}
		for j, set := range ex.Sets {
			if set.ID == src.Sets[j].ID {
				t.Errorf("set %d/%d reuses the template set ID", i, j)
			}
			if set.TargetReps != src.Sets[j].TargetReps {
				t.Errorf("set %d/%d target reps = %d, want %d", i, j, set.TargetReps, src.Sets[j].TargetReps)
			}
		}
	}
}

// TestAssignIsolatesFailures verifies that one trainee's persistence
// fault does not abort the batch: N-1 succeed and the report itemizes
// the failure.
func TestAssignIsolatesFailures(t *testing.T) {
	trainees := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	store := &fakeStore{
		template:    testTemplate(),
		failPlanFor: map[uuid.UUID]error{trainees[1]: errors.New("constraint violation")},
	}
	o, _ := testOrchestrator(store)

	res, err := o.Assign(context.Background(), store.template.ID, trainees, mwfSettings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Total != 3 || res.Successful != 2 || res.Failed != 1 {
		t.Fatalf("summary = %d/%d/%d, want 3/2/1", res.Total, res.Successful, res.Failed)
	}
	if len(res.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(res.Results))
	}
	bad := res.Results[1]
	if bad.Success {
		t.Error("trainee 1 reported success, want failure")
	}
	if bad.TraineeID != trainees[1] {
		t.Errorf("failure trainee = %v, want %v", bad.TraineeID, trainees[1])
	}
	if bad.Error == "" {
		t.Error("failure carries no error text")
	}
	// The other two trainees' sessions exist in the store.
	if len(store.sessions) != 18 {
		t.Errorf("sessions = %d, want 18 (9 × 2 trainees)", len(store.sessions))
	}
}

// TestAssignPublishesEvents verifies session_assigned events go out on
// the bus for successful assignments.
func TestAssignPublishesEvents(t *testing.T) {
	store := &fakeStore{template: testTemplate()}
	o, bus := testOrchestrator(store)
	sub := bus.Subscribe()

	if _, err := o.Assign(context.Background(), store.template.ID, []uuid.UUID{uuid.New()}, mwfSettings()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := 0
	for {
		select {
		case e := <-sub:
			if e.Type != events.SessionAssigned {
				t.Errorf("event type = %q, want session_assigned", e.Type)
			}
			got++
			if got == 9 {
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("events received = %d, want 9", got)
		}
	}
}

// TestAssignRejectsEmptyTemplate verifies a template with zero
// exercises is fatal to the whole call.
func TestAssignRejectsEmptyTemplate(t *testing.T) {
	store := &fakeStore{template: &models.WorkoutTemplate{ID: uuid.New(), Name: "Empty"}}
	o, _ := testOrchestrator(store)

	_, err := o.Assign(context.Background(), store.template.ID, []uuid.UUID{uuid.New()}, mwfSettings())
	if !errors.Is(err, ErrNoExercises) {
		t.Fatalf("err = %v, want ErrNoExercises", err)
	}
}

// TestAssignMaxSessions verifies the occurrence cap for callers that
// want a fixed number of sessions rather than a fixed window.
func TestAssignMaxSessions(t *testing.T) {
	store := &fakeStore{template: testTemplate()}
	o, _ := testOrchestrator(store)

	settings := mwfSettings()
	settings.MaxSessions = 4

	res, err := o.Assign(context.Background(), store.template.ID, []uuid.UUID{uuid.New()}, settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Results[0].SessionsCreated != 4 {
		t.Errorf("sessions created = %d, want 4", res.Results[0].SessionsCreated)
	}
}

// TestAssignUnknownTrainee verifies an unregistered trainee is reported
// as a per-trainee failure without aborting the batch.
func TestAssignUnknownTrainee(t *testing.T) {
	known, unknown := uuid.New(), uuid.New()
	store := &fakeStore{
		template:       testTemplate(),
		unknownTrainee: map[uuid.UUID]bool{unknown: true},
	}
	o, _ := testOrchestrator(store)

	res, err := o.Assign(context.Background(), store.template.ID, []uuid.UUID{known, unknown}, mwfSettings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Successful != 1 || res.Failed != 1 {
		t.Fatalf("summary = %d/%d, want 1 successful, 1 failed", res.Successful, res.Failed)
	}
	bad := res.Results[1]
	if bad.Success || bad.Error != "unknown trainee" {
		t.Fatalf("result = %+v, want unknown trainee failure", bad)
	}
	if len(store.plans) != 1 {
		t.Fatalf("plans = %d, want 1", len(store.plans))
	}
	if store.plans[0].TraineeID != known {
		t.Errorf("plan owner = %v, want %v", store.plans[0].TraineeID, known)
	}
	if len(store.sessions) != 9 {
		t.Errorf("sessions = %d, want 9 (known trainee only)", len(store.sessions))
	}
}
