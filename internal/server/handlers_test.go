package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/assign"
	"github.com/claude/repcoach/internal/events"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
)

const testAPIKey = "test-key"

// memStore backs the full handler surface in memory: the handlers'
// Store, the orchestrator's Store and the session manager's loader.
type memStore struct {
	mu        sync.Mutex
	templates map[uuid.UUID]*models.WorkoutTemplate
	plans     map[uuid.UUID]*models.TraineePlan
	sessions  map[uuid.UUID]*models.ScheduledSession
	sets      map[uuid.UUID][]models.PerformedSet
	history   map[uuid.UUID][]models.SessionPerformance
	exercises []models.ExerciseInfo
}

func newMemStore() *memStore {
	return &memStore{
		templates: make(map[uuid.UUID]*models.WorkoutTemplate),
		plans:     make(map[uuid.UUID]*models.TraineePlan),
		sessions:  make(map[uuid.UUID]*models.ScheduledSession),
		sets:      make(map[uuid.UUID][]models.PerformedSet),
		history:   make(map[uuid.UUID][]models.SessionPerformance),
	}
}

func (m *memStore) InsertTemplate(_ context.Context, t *models.WorkoutTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
	return nil
}

func (m *memStore) GetTemplate(_ context.Context, id uuid.UUID) (*models.WorkoutTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t, nil
}

func (m *memStore) ListTemplates(_ context.Context, coachID uuid.UUID) ([]models.WorkoutTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkoutTemplate
	for _, t := range m.templates {
		if t.CoachID == coachID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) UserExists(_ context.Context, _ uuid.UUID) (bool, error) {
	return true, nil
}

func (m *memStore) InsertPlan(_ context.Context, p *models.TraineePlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.ID] = p
	return nil
}

func (m *memStore) GetPlan(_ context.Context, id uuid.UUID) (*models.TraineePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

func (m *memStore) InsertSessions(_ context.Context, rows []models.ScheduledSession) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range rows {
		row := rows[i]
		m.sessions[row.ID] = &row
	}
	return int64(len(rows)), nil
}

func (m *memStore) GetSession(_ context.Context, id uuid.UUID) (*models.ScheduledSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s, nil
}

func (m *memStore) ListSessionsForTrainee(_ context.Context, traineeID uuid.UUID, start, end time.Time) ([]models.ScheduledSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ScheduledSession
	for _, s := range m.sessions {
		if s.TraineeID == traineeID && !s.ScheduledDate.Before(start) && !s.ScheduledDate.After(end) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) StartSession(_ context.Context, id uuid.UUID, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	if s.Status != models.StatusScheduled {
		return storage.ErrSessionNotStartable
	}
	s.Status = models.StatusInProgress
	s.StartedAt = &startedAt
	return nil
}

func (m *memStore) CompleteSession(_ context.Context, id uuid.UUID, completedAt time.Time, vol float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	s.Status = models.StatusCompleted
	s.CompletedAt = &completedAt
	s.TotalVolumeKg = vol
	return nil
}

func (m *memStore) CancelSession(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	if s.Status.Terminal() {
		return storage.ErrSessionTerminal
	}
	s.Status = models.StatusCancelled
	return nil
}

func (m *memStore) UpdateSessionNotes(_ context.Context, id uuid.UUID, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	s.Notes = notes
	return nil
}

func (m *memStore) InsertPerformedSet(_ context.Context, ps models.PerformedSet) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[ps.SessionID] = append(m.sets[ps.SessionID], ps)
	return true, nil
}

func (m *memStore) ListPerformedSets(_ context.Context, sessionID uuid.UUID) ([]models.PerformedSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PerformedSet, len(m.sets[sessionID]))
	copy(out, m.sets[sessionID])
	return out, nil
}

func (m *memStore) GetExercise(_ context.Context, id uuid.UUID) (*models.ExerciseInfo, error) {
	for i := range m.exercises {
		if m.exercises[i].ID == id {
			return &m.exercises[i], nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) ListExercises(_ context.Context) ([]models.ExerciseInfo, error) {
	return m.exercises, nil
}

func (m *memStore) ExerciseHistory(_ context.Context, traineeID, exerciseID uuid.UUID, _ int) ([]models.SessionPerformance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history[exerciseID], nil
}

func newTestServer(t *testing.T) (*Server, *memStore) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemStore()
	bus := events.NewBus(log)
	orch := assign.New(store, bus, time.UTC, log)
	mgr := session.NewManager(store, bus, clock.NewMock(), log)
	return New(store, orch, mgr, testAPIKey, log), store
}

func doJSON(t *testing.T, s *Server, method, path string, body any, withKey bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if withKey {
		req.Header.Set("X-API-Key", testAPIKey)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func validTemplate(coachID uuid.UUID) models.WorkoutTemplate {
	weight := 100.0
	return models.WorkoutTemplate{
		CoachID: coachID,
		Name:    "Push Day",
		Exercises: []models.TemplateExercise{{
			ExerciseID:  uuid.New(),
			OrderIndex:  0,
			RestSeconds: 90,
			Sets: []models.TemplateSet{
				{SetNumber: 1, Type: models.SetWorking, TargetReps: 8, TargetWeightKg: &weight},
				{SetNumber: 2, Type: models.SetWorking, TargetReps: 8, TargetWeightKg: &weight},
			},
		}},
	}
}

func TestCreateTemplate(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/templates/", validTemplate(uuid.New()), true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body)
	}
	var created models.WorkoutTemplate
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Error("created template has nil ID")
	}
}

func TestCreateTemplateRejectsEmpty(t *testing.T) {
	s, _ := newTestServer(t)

	tmpl := validTemplate(uuid.New())
	tmpl.Exercises = nil
	rec := doJSON(t, s, http.MethodPost, "/api/v1/templates/", tmpl, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no exercises: status = %d, want 400", rec.Code)
	}

	tmpl = validTemplate(uuid.New())
	tmpl.Exercises[0].Sets[0].TargetReps = 0
	rec = doJSON(t, s, http.MethodPost, "/api/v1/templates/", tmpl, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero reps: status = %d, want 400", rec.Code)
	}
}

func TestGetTemplateNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/templates/"+uuid.NewString(), nil, true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAssignEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	tmpl := validTemplate(uuid.New())
	tmpl.ID = uuid.New()
	store.templates[tmpl.ID] = &tmpl

	body := assignRequest{
		TraineeIDs: []uuid.UUID{uuid.New(), uuid.New()},
		StartDate:  "2026-09-07",
		EndDate:    "2026-09-20",
		Frequency:  "weekly",
		DaysOfWeek: []string{"monday", "thursday"},
	}
	rec := doJSON(t, s, http.MethodPost, "/api/v1/templates/"+tmpl.ID.String()+"/assign", body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body)
	}

	var result assign.BatchResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.Total != 2 || result.Successful != 2 {
		t.Errorf("result = %d/%d successful, want 2/2", result.Successful, result.Total)
	}
	// Mon 7, Thu 10, Mon 14, Thu 17 for each of two trainees.
	if len(store.sessions) != 8 {
		t.Errorf("sessions created = %d, want 8", len(store.sessions))
	}
}

func TestAssignRejectsBadFrequency(t *testing.T) {
	s, store := newTestServer(t)
	tmpl := validTemplate(uuid.New())
	tmpl.ID = uuid.New()
	store.templates[tmpl.ID] = &tmpl

	body := assignRequest{
		TraineeIDs: []uuid.UUID{uuid.New()},
		StartDate:  "2026-09-07",
		Frequency:  "fortnightly",
	}
	rec := doJSON(t, s, http.MethodPost, "/api/v1/templates/"+tmpl.ID.String()+"/assign", body, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTemplateRoutesRequireKey(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/templates/", validTemplate(uuid.New()), false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// seedSession plants a scheduled session with its plan.
func seedSession(store *memStore, sets int, rest int) *models.ScheduledSession {
	plan := &models.TraineePlan{ID: uuid.New(), TraineeID: uuid.New(), Name: "Plan"}
	ex := models.TemplateExercise{ID: uuid.New(), ExerciseID: uuid.New(), RestSeconds: rest}
	for n := 1; n <= sets; n++ {
		ex.Sets = append(ex.Sets, models.TemplateSet{ID: uuid.New(), SetNumber: n, Type: models.SetWorking, TargetReps: 8})
	}
	plan.Exercises = []models.TemplateExercise{ex}
	store.plans[plan.ID] = plan

	sess := &models.ScheduledSession{
		ID: uuid.New(), PlanID: plan.ID, TraineeID: plan.TraineeID,
		ScheduledDate: time.Now(), Status: models.StatusScheduled,
	}
	store.sessions[sess.ID] = sess
	return sess
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	s, store := newTestServer(t)
	sess := seedSession(store, 3, 0)
	base := "/api/v1/sessions/" + sess.ID.String()

	rec := doJSON(t, s, http.MethodPost, base+"/start", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body)
	}
	var snap session.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.State != session.StateRunning {
		t.Fatalf("state = %q, want running", snap.State)
	}

	// Double start conflicts.
	rec = doJSON(t, s, http.MethodPost, base+"/start", nil, false)
	if rec.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, base+"/sets", session.SetResult{Reps: 8, WeightKg: 100}, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("set status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, s, http.MethodPost, base+"/sets", session.SetResult{Reps: 0}, false)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero-rep set status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, base+"/finish", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("finish status = %d, body %s", rec.Code, rec.Body)
	}
	var summary models.SessionSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatal(err)
	}
	if summary.SetsCompleted != 1 || summary.SetsPlanned != 3 {
		t.Errorf("summary = %d/%d, want 1/3", summary.SetsCompleted, summary.SetsPlanned)
	}

	// The machine is released after finishing.
	rec = doJSON(t, s, http.MethodPost, base+"/sets", session.SetResult{Reps: 8, WeightKg: 100}, false)
	if rec.Code != http.StatusConflict {
		t.Errorf("set after finish status = %d, want 409", rec.Code)
	}
}

func TestCancelOverHTTP(t *testing.T) {
	s, store := newTestServer(t)
	sess := seedSession(store, 2, 0)
	base := "/api/v1/sessions/" + sess.ID.String()

	if rec := doJSON(t, s, http.MethodPost, base+"/start", nil, false); rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}
	rec := doJSON(t, s, http.MethodPost, base+"/cancel", nil, false)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d, want 204", rec.Code)
	}
	if store.sessions[sess.ID].Status != models.StatusCancelled {
		t.Errorf("status = %q, want cancelled", store.sessions[sess.ID].Status)
	}
}

func TestCancelScheduledSession(t *testing.T) {
	s, store := newTestServer(t)
	sess := seedSession(store, 2, 0)

	// Never started, so there is no live machine to go through.
	rec := doJSON(t, s, http.MethodPost, "/api/v1/sessions/"+sess.ID.String()+"/cancel", nil, false)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d, want 204", rec.Code)
	}
	if store.sessions[sess.ID].Status != models.StatusCancelled {
		t.Errorf("status = %q, want cancelled", store.sessions[sess.ID].Status)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/sessions/"+sess.ID.String()+"/cancel", nil, false)
	if rec.Code != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", rec.Code)
	}
}

func TestGetSessionIncludesLiveSnapshot(t *testing.T) {
	s, store := newTestServer(t)
	sess := seedSession(store, 2, 0)
	base := "/api/v1/sessions/" + sess.ID.String()

	rec := doJSON(t, s, http.MethodGet, base, nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if _, ok := resp["live"]; ok {
		t.Error("idle session carries a live snapshot")
	}

	doJSON(t, s, http.MethodPost, base+"/start", nil, false)
	rec = doJSON(t, s, http.MethodGet, base, nil, false)
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if _, ok := resp["live"]; !ok {
		t.Error("running session missing live snapshot")
	}
}

func TestProgressionEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	traineeID := uuid.New()
	exerciseID := uuid.New()
	rpe := 6
	store.history[exerciseID] = []models.SessionPerformance{{
		SessionID: uuid.New(),
		Date:      time.Now(),
		Sets: []models.SetPerformance{
			{SetNumber: 1, Type: models.SetWorking, TargetReps: 8, ActualReps: 8, ActualWeightKg: 100, RPE: &rpe, Completed: true},
		},
	}}

	rec := doJSON(t, s, http.MethodGet,
		"/api/v1/trainees/"+traineeID.String()+"/progression?exercise="+exerciseID.String(), nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var recm models.ProgressionRecommendation
	if err := json.NewDecoder(rec.Body).Decode(&recm); err != nil {
		t.Fatal(err)
	}
	if recm.Category != models.ProgressionIncreaseWeight {
		t.Errorf("category = %q, want increase_weight", recm.Category)
	}
	if recm.WeightKg != 107.5 {
		t.Errorf("weight = %v, want 107.5", recm.WeightKg)
	}
	if recm.ExerciseID != exerciseID {
		t.Errorf("exercise id not echoed")
	}
}

func TestProgressionRequiresExercise(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/trainees/"+uuid.NewString()+"/progression", nil, false)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSessionNotes(t *testing.T) {
	s, store := newTestServer(t)
	sess := seedSession(store, 1, 0)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/sessions/"+sess.ID.String()+"/notes",
		map[string]string{"notes": "felt strong"}, false)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if store.sessions[sess.ID].Notes != "felt strong" {
		t.Errorf("notes = %q", store.sessions[sess.ID].Notes)
	}
}
