package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
)

// InsertPerformedSet appends one completed set attempt. Rows are never
// updated afterwards; re-recording the same set is a conflict and
// reports zero rows, which callers treat as already-done.
func (db *DB) InsertPerformedSet(ctx context.Context, ps models.PerformedSet) (bool, error) {
	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO performed_sets (id, session_id, plan_exercise_id, set_number, set_type,
		 actual_reps, actual_weight_kg, duration_sec, distance_m, rpe, completed, completed_at, volume_kg)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		 ON CONFLICT DO NOTHING`,
		ps.ID, ps.SessionID, ps.PlanExerciseID, ps.SetNumber, ps.Type,
		ps.ActualReps, ps.ActualWeightKg, ps.DurationSec, ps.DistanceM, ps.RPE,
		ps.Completed, ps.CompletedAt, ps.VolumeKg)
	if err != nil {
		return false, fmt.Errorf("inserting performed set: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListPerformedSets retrieves all performed sets of a session in
// exercise then set order. This is the durable source of truth for
// which sets are done; a resumed session rebuilds its cursor from it.
func (db *DB) ListPerformedSets(ctx context.Context, sessionID uuid.UUID) ([]models.PerformedSet, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT ps.id, ps.session_id, ps.plan_exercise_id, ps.set_number, ps.set_type,
		 ps.actual_reps, ps.actual_weight_kg, ps.duration_sec, ps.distance_m, ps.rpe,
		 ps.completed, ps.completed_at, ps.volume_kg
		 FROM performed_sets ps
		 JOIN plan_exercises pe ON pe.id = ps.plan_exercise_id
		 WHERE ps.session_id = $1
		 ORDER BY pe.order_index, ps.set_number`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying performed sets: %w", err)
	}
	defer rows.Close()

	var result []models.PerformedSet
	for rows.Next() {
		var ps models.PerformedSet
		if err := rows.Scan(&ps.ID, &ps.SessionID, &ps.PlanExerciseID, &ps.SetNumber, &ps.Type,
			&ps.ActualReps, &ps.ActualWeightKg, &ps.DurationSec, &ps.DistanceM, &ps.RPE,
			&ps.Completed, &ps.CompletedAt, &ps.VolumeKg); err != nil {
			return nil, fmt.Errorf("scanning performed set: %w", err)
		}
		result = append(result, ps)
	}
	return result, rows.Err()
}

// ExerciseHistory returns the recorded sets of the most recent
// completed sessions for one trainee/exercise pair, newest session
// first. Planned sets the trainee never recorded appear with
// Completed = false so the progression engine sees completion rate.
func (db *DB) ExerciseHistory(ctx context.Context, traineeID, exerciseID uuid.UUID, sessionLimit int) ([]models.SessionPerformance, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT s.id, s.completed_at, pls.set_number, pls.set_type, pls.target_reps, pls.target_weight_kg,
		 COALESCE(pf.actual_reps, 0), COALESCE(pf.actual_weight_kg, 0), pf.rpe, (pf.id IS NOT NULL)
		 FROM scheduled_sessions s
		 JOIN plan_exercises pe ON pe.plan_id = s.plan_id AND pe.exercise_id = $2
		 JOIN plan_sets pls ON pls.plan_exercise_id = pe.id
		 LEFT JOIN performed_sets pf
		   ON pf.session_id = s.id AND pf.plan_exercise_id = pe.id AND pf.set_number = pls.set_number
		 WHERE s.trainee_id = $1 AND s.status = 'completed'
		 AND s.id IN (
		   SELECT s2.id FROM scheduled_sessions s2
		   JOIN plan_exercises pe2 ON pe2.plan_id = s2.plan_id AND pe2.exercise_id = $2
		   WHERE s2.trainee_id = $1 AND s2.status = 'completed'
		   ORDER BY s2.completed_at DESC LIMIT $3
		 )
		 ORDER BY s.completed_at DESC, pls.set_number ASC`,
		traineeID, exerciseID, sessionLimit)
	if err != nil {
		return nil, fmt.Errorf("querying exercise history: %w", err)
	}
	defer rows.Close()

	var history []models.SessionPerformance
	var current *models.SessionPerformance

	for rows.Next() {
		var sessionID uuid.UUID
		var completedAt *time.Time
		var sp models.SetPerformance
		if err := rows.Scan(&sessionID, &completedAt, &sp.SetNumber, &sp.Type, &sp.TargetReps,
			&sp.TargetWeightKg, &sp.ActualReps, &sp.ActualWeightKg, &sp.RPE, &sp.Completed); err != nil {
			return nil, fmt.Errorf("scanning exercise history: %w", err)
		}
		if current == nil || current.SessionID != sessionID {
			if current != nil {
				history = append(history, *current)
			}
			current = &models.SessionPerformance{SessionID: sessionID}
			if completedAt != nil {
				current.Date = *completedAt
			}
		}
		current.Sets = append(current.Sets, sp)
	}
	if current != nil {
		history = append(history, *current)
	}
	return history, rows.Err()
}
