package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Sentinel errors for illegal session transitions. The WHERE clauses on
// the transition updates make each check atomic: a second concurrent
// start sees zero rows affected, not a race.
var (
	ErrSessionNotStartable = errors.New("session is not in scheduled state")
	ErrSessionNotActive    = errors.New("session is not in progress")
	ErrSessionTerminal     = errors.New("session already reached a terminal state")
)

// InsertSessions batch-inserts scheduled sessions. Returns count inserted.
func (db *DB) InsertSessions(ctx context.Context, rows []models.ScheduledSession) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := `INSERT INTO scheduled_sessions (id, plan_id, trainee_id, scheduled_date, status) VALUES `
	args := make([]any, 0, len(rows)*5)
	valueStrings := make([]string, 0, len(rows))

	for i, r := range rows {
		base := i * 5
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, r.ID, r.PlanID, r.TraineeID, r.ScheduledDate, r.Status)
	}

	query += strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING"

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetSession retrieves a single scheduled session.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*models.ScheduledSession, error) {
	var s models.ScheduledSession
	err := db.Pool.QueryRow(ctx,
		`SELECT id, plan_id, trainee_id, scheduled_date, status, started_at, completed_at, total_volume_kg, notes
		 FROM scheduled_sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.PlanID, &s.TraineeID, &s.ScheduledDate, &s.Status,
			&s.StartedAt, &s.CompletedAt, &s.TotalVolumeKg, &s.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return &s, nil
}

// ListSessionsForTrainee retrieves a trainee's sessions in a date range,
// oldest first.
func (db *DB) ListSessionsForTrainee(ctx context.Context, traineeID uuid.UUID, start, end time.Time) ([]models.ScheduledSession, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, plan_id, trainee_id, scheduled_date, status, started_at, completed_at, total_volume_kg, notes
		 FROM scheduled_sessions
		 WHERE trainee_id = $1 AND scheduled_date >= $2 AND scheduled_date <= $3
		 ORDER BY scheduled_date ASC`,
		traineeID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var result []models.ScheduledSession
	for rows.Next() {
		var s models.ScheduledSession
		if err := rows.Scan(&s.ID, &s.PlanID, &s.TraineeID, &s.ScheduledDate, &s.Status,
			&s.StartedAt, &s.CompletedAt, &s.TotalVolumeKg, &s.Notes); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// StartSession moves a session from scheduled to in_progress. Rejects
// the transition when the session is already started, finished or
// missed, so no two executions can run against the same session.
func (db *DB) StartSession(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE scheduled_sessions
		 SET status = 'in_progress', started_at = $2
		 WHERE id = $1 AND status = 'scheduled'`,
		id, startedAt)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotStartable
	}
	return nil
}

// CompleteSession moves an in_progress session to completed, recording
// completion time and total volume load.
func (db *DB) CompleteSession(ctx context.Context, id uuid.UUID, completedAt time.Time, totalVolumeKg float64) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE scheduled_sessions
		 SET status = 'completed', completed_at = $2, total_volume_kg = $3
		 WHERE id = $1 AND status = 'in_progress'`,
		id, completedAt, totalVolumeKg)
	if err != nil {
		return fmt.Errorf("completing session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotActive
	}
	return nil
}

// CancelSession cancels a session that has not reached a terminal
// state. Performed sets already persisted stay untouched.
func (db *DB) CancelSession(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE scheduled_sessions
		 SET status = 'cancelled'
		 WHERE id = $1 AND status IN ('scheduled', 'in_progress')`,
		id)
	if err != nil {
		return fmt.Errorf("cancelling session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionTerminal
	}
	return nil
}

// UpdateSessionNotes replaces the free-text notes on a session.
func (db *DB) UpdateSessionNotes(ctx context.Context, id uuid.UUID, notes string) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE scheduled_sessions SET notes = $2 WHERE id = $1`, id, notes)
	if err != nil {
		return fmt.Errorf("updating session notes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkMissedBefore flips still-scheduled sessions dated strictly before
// the given day to missed. Returns count updated. Run by the sweeper.
func (db *DB) MarkMissedBefore(ctx context.Context, day time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE scheduled_sessions
		 SET status = 'missed'
		 WHERE status = 'scheduled' AND scheduled_date < $1`,
		day)
	if err != nil {
		return 0, fmt.Errorf("marking missed sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
