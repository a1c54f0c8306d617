package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/storage"
)

// DataSource abstracts the data layer for MCP tools.
type DataSource interface {
	ListSessionsForTrainee(ctx context.Context, traineeID uuid.UUID, start, end time.Time) ([]models.ScheduledSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.ScheduledSession, error)
	ListPerformedSets(ctx context.Context, sessionID uuid.UUID) ([]models.PerformedSet, error)
	ExerciseHistory(ctx context.Context, traineeID, exerciseID uuid.UUID, sessionLimit int) ([]models.SessionPerformance, error)
	ListExercises(ctx context.Context) ([]models.ExerciseInfo, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
