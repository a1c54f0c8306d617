// Package server exposes the coaching and execution API over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/assign"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/session"
)

// Store is the slice of persistence the handlers read and write
// directly. Assignment and live execution go through their own
// components.
type Store interface {
	InsertTemplate(ctx context.Context, t *models.WorkoutTemplate) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*models.WorkoutTemplate, error)
	ListTemplates(ctx context.Context, coachID uuid.UUID) ([]models.WorkoutTemplate, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.ScheduledSession, error)
	ListSessionsForTrainee(ctx context.Context, traineeID uuid.UUID, start, end time.Time) ([]models.ScheduledSession, error)
	CancelSession(ctx context.Context, id uuid.UUID) error
	UpdateSessionNotes(ctx context.Context, id uuid.UUID, notes string) error
	ListPerformedSets(ctx context.Context, sessionID uuid.UUID) ([]models.PerformedSet, error)
	GetExercise(ctx context.Context, id uuid.UUID) (*models.ExerciseInfo, error)
	ListExercises(ctx context.Context) ([]models.ExerciseInfo, error)
	ExerciseHistory(ctx context.Context, traineeID, exerciseID uuid.UUID, sessionLimit int) ([]models.SessionPerformance, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store    Store
	orch     *assign.Orchestrator
	sessions *session.Manager
	log      *slog.Logger
	apiKey   string
	router   chi.Router
}

// New creates a new Server with all routes configured.
func New(store Store, orch *assign.Orchestrator, sessions *session.Manager, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		store:    store,
		orch:     orch,
		sessions: sessions,
		log:      log,
		apiKey:   apiKey,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	// Coach endpoints (API key required)
	s.router.Route("/api/v1/templates", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/", s.handleCreateTemplate)
		r.Get("/", s.handleListTemplates)
		r.Get("/{id}", s.handleGetTemplate)
		r.Post("/{id}/assign", s.handleAssign)
	})

	// Trainee endpoints (no auth, tsnet handles access)
	s.router.Get("/api/v1/trainees/{id}/sessions", s.handleListSessions)
	s.router.Get("/api/v1/trainees/{id}/progression", s.handleProgression)
	s.router.Get("/api/v1/exercises", s.handleListExercises)
	s.router.Get("/api/v1/exercises/{id}", s.handleGetExercise)

	// Session detail and live execution
	s.router.Route("/api/v1/sessions/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Post("/start", s.handleStartSession)
		r.Post("/sets", s.handleCompleteSet)
		r.Post("/rest/skip", s.handleSkipRest)
		r.Post("/pause", s.handlePause)
		r.Post("/resume", s.handleResume)
		r.Post("/navigate", s.handleNavigate)
		r.Post("/finish", s.handleFinish)
		r.Post("/cancel", s.handleCancel)
		r.Post("/notes", s.handleSessionNotes)
	})
}
