package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/assign"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/progression"
	"github.com/claude/repcoach/internal/schedule"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
)

// progressionWindow is the default number of past sessions fed to the
// recommendation engine.
const progressionWindow = 5

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl models.WorkoutTemplate
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := validateTemplate(&tmpl); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if tmpl.ID == uuid.Nil {
		tmpl.ID = uuid.New()
	}
	if err := s.store.InsertTemplate(r.Context(), &tmpl); err != nil {
		s.log.Error("create template", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}

// validateTemplate rejects structurally empty templates before they
// reach storage.
func validateTemplate(t *models.WorkoutTemplate) error {
	if t.Name == "" {
		return errors.New("template name required")
	}
	if len(t.Exercises) == 0 {
		return errors.New("template needs at least one exercise")
	}
	for _, ex := range t.Exercises {
		if len(ex.Sets) == 0 {
			return errors.New("each exercise needs at least one set")
		}
		if ex.RestSeconds < 0 {
			return errors.New("rest seconds cannot be negative")
		}
		for _, set := range ex.Sets {
			if set.TargetReps <= 0 {
				return errors.New("target reps must be positive")
			}
			if set.TargetRPE != nil && !models.ValidRPE(*set.TargetRPE) {
				return errors.New("target rpe must be between 1 and 10")
			}
		}
	}
	return nil
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	coachID, err := uuid.Parse(r.URL.Query().Get("coach"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "coach parameter required"})
		return
	}
	templates, err := s.store.ListTemplates(r.Context(), coachID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid template ID"})
		return
	}
	tmpl, err := s.store.GetTemplate(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "template not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

// assignRequest is the batch assignment payload.
type assignRequest struct {
	TraineeIDs  []uuid.UUID `json:"traineeIds"`
	StartDate   string      `json:"startDate"`
	EndDate     string      `json:"endDate,omitempty"`
	Frequency   string      `json:"frequency"`
	DaysOfWeek  []string    `json:"daysOfWeek,omitempty"`
	MaxSessions int         `json:"maxSessions,omitempty"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	templateID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid template ID"})
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	settings, err := req.toSettings()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := s.orch.Assign(r.Context(), templateID, req.TraineeIDs, settings)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "template not found"})
		case errors.Is(err, assign.ErrNoExercises), errors.Is(err, assign.ErrNoTrainees):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			s.log.Error("assign", "template_id", templateID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (req *assignRequest) toSettings() (assign.PlanSettings, error) {
	var settings assign.PlanSettings

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return settings, errors.New("startDate must be YYYY-MM-DD")
	}
	settings.StartDate = start

	if req.EndDate != "" {
		end, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			return settings, errors.New("endDate must be YYYY-MM-DD")
		}
		settings.EndDate = end
	}

	switch schedule.Frequency(req.Frequency) {
	case schedule.FrequencyDaily:
		settings.Frequency = schedule.FrequencyDaily
	case schedule.FrequencyWeekly:
		settings.Frequency = schedule.FrequencyWeekly
	default:
		return settings, errors.New("frequency must be daily or weekly")
	}

	for _, name := range req.DaysOfWeek {
		day, ok := weekdayByName[name]
		if !ok {
			return settings, errors.New("unknown weekday: " + name)
		}
		settings.DaysOfWeek = append(settings.DaysOfWeek, day)
	}
	settings.MaxSessions = req.MaxSessions
	return settings, nil
}

var weekdayByName = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	traineeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid trainee ID"})
		return
	}
	start, end, err := parseDateRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sessions, err := s.store.ListSessionsForTrainee(r.Context(), traineeID, start, end)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	sets, err := s.store.ListPerformedSets(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := map[string]any{"session": sess, "sets": sets}
	if m, ok := s.sessions.Get(id); ok {
		resp["live"] = m.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}
	m, err := s.sessions.Start(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		case errors.Is(err, session.ErrAlreadyActive), errors.Is(err, storage.ErrSessionNotStartable):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, session.ErrNoExercises):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			s.log.Error("start session", "session_id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

// liveMachine resolves the running machine for a session or writes the
// error response itself.
func (s *Server) liveMachine(w http.ResponseWriter, r *http.Request) (*session.Machine, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return nil, false
	}
	m, ok := s.sessions.Get(id)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "no live execution for session"})
		return nil, false
	}
	return m, true
}

func (s *Server) handleCompleteSet(w http.ResponseWriter, r *http.Request) {
	m, ok := s.liveMachine(w, r)
	if !ok {
		return
	}
	var res session.SetResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := m.CompleteSet(r.Context(), res); err != nil {
		switch {
		case errors.Is(err, session.ErrZeroReps), errors.Is(err, session.ErrInvalidRPE):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, session.ErrNotRunning), errors.Is(err, session.ErrSetAlreadyRecorded):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

func (s *Server) handleSkipRest(w http.ResponseWriter, r *http.Request) {
	m, ok := s.liveMachine(w, r)
	if !ok {
		return
	}
	if err := m.SkipRest(); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	m, ok := s.liveMachine(w, r)
	if !ok {
		return
	}
	if err := m.Pause(); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	m, ok := s.liveMachine(w, r)
	if !ok {
		return
	}
	if err := m.Resume(); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	m, ok := s.liveMachine(w, r)
	if !ok {
		return
	}
	var req struct {
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	var delta int
	switch req.Direction {
	case "next":
		delta = 1
	case "prev":
		delta = -1
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "direction must be next or prev"})
		return
	}
	if err := m.Navigate(delta); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}
	m, ok := s.sessions.Get(id)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "no live execution for session"})
		return
	}
	summary, err := m.Finish(r.Context())
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	s.sessions.Release(id)
	writeJSON(w, http.StatusOK, summary)
}

// handleCancel cancels a session. Running sessions go through their
// live machine so timers stop; scheduled ones cancel straight in the
// store.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}
	if m, ok := s.sessions.Get(id); ok {
		if err := m.Cancel(r.Context()); err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		s.sessions.Release(id)
		writeJSON(w, http.StatusNoContent, nil)
		return
	}
	if err := s.store.CancelSession(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		case errors.Is(err, storage.ErrSessionTerminal):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleGetExercise(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid exercise ID"})
		return
	}
	ex, err := s.store.GetExercise(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "exercise not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (s *Server) handleSessionNotes(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := s.store.UpdateSessionNotes(r.Context(), id, req.Notes); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleProgression(w http.ResponseWriter, r *http.Request) {
	traineeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid trainee ID"})
		return
	}
	exerciseID, err := uuid.Parse(r.URL.Query().Get("exercise"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exercise parameter required"})
		return
	}

	history, err := s.store.ExerciseHistory(r.Context(), traineeID, exerciseID, progressionWindow)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	rec := progression.Recommend(history)
	rec.ExerciseID = exerciseID
	rec.TraineeID = traineeID
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	exercises, err := s.store.ListExercises(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, exercises)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// parseDateRange reads start/end query params as dates. Defaults cover
// the last week through the next scheduling window.
func parseDateRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" {
		now := time.Now()
		return now.AddDate(0, 0, -7), now.AddDate(0, 0, schedule.DefaultWindowDays), nil
	}

	start, err = time.Parse("2006-01-02", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("start must be YYYY-MM-DD")
	}
	if endStr == "" {
		end = start.AddDate(0, 0, schedule.DefaultWindowDays)
		return
	}
	end, err = time.Parse("2006-01-02", endStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("end must be YYYY-MM-DD")
	}
	return
}
