package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InsertTemplate persists a template with its exercises and sets in one
// transaction.
func (db *DB) InsertTemplate(ctx context.Context, t *models.WorkoutTemplate) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO workout_templates (id, coach_id, name, estimated_minutes)
		 VALUES ($1, $2, $3, $4)`,
		t.ID, t.CoachID, t.Name, t.EstimatedMinutes)
	if err != nil {
		return fmt.Errorf("inserting template: %w", err)
	}

	for _, ex := range t.Exercises {
		_, err = tx.Exec(ctx,
			`INSERT INTO template_exercises (id, template_id, exercise_id, order_index, rest_seconds)
			 VALUES ($1, $2, $3, $4, $5)`,
			ex.ID, t.ID, ex.ExerciseID, ex.OrderIndex, ex.RestSeconds)
		if err != nil {
			return fmt.Errorf("inserting template exercise: %w", err)
		}
		for _, set := range ex.Sets {
			_, err = tx.Exec(ctx,
				`INSERT INTO template_sets (id, template_exercise_id, set_number, set_type, target_reps, target_weight_kg, target_rpe)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				set.ID, ex.ID, set.SetNumber, set.Type, set.TargetReps, set.TargetWeightKg, set.TargetRPE)
			if err != nil {
				return fmt.Errorf("inserting template set: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}

// GetTemplate retrieves a template with its ordered exercises and sets.
func (db *DB) GetTemplate(ctx context.Context, id uuid.UUID) (*models.WorkoutTemplate, error) {
	var t models.WorkoutTemplate
	err := db.Pool.QueryRow(ctx,
		`SELECT id, coach_id, name, estimated_minutes, created_at
		 FROM workout_templates WHERE id = $1`, id).
		Scan(&t.ID, &t.CoachID, &t.Name, &t.EstimatedMinutes, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying template: %w", err)
	}

	t.Exercises, err = db.templateExercises(ctx, id)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTemplates returns all templates authored by a coach, without
// nested exercises.
func (db *DB) ListTemplates(ctx context.Context, coachID uuid.UUID) ([]models.WorkoutTemplate, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, coach_id, name, estimated_minutes, created_at
		 FROM workout_templates WHERE coach_id = $1 ORDER BY created_at DESC`, coachID)
	if err != nil {
		return nil, fmt.Errorf("querying templates: %w", err)
	}
	defer rows.Close()

	var result []models.WorkoutTemplate
	for rows.Next() {
		var t models.WorkoutTemplate
		if err := rows.Scan(&t.ID, &t.CoachID, &t.Name, &t.EstimatedMinutes, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning template: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (db *DB) templateExercises(ctx context.Context, templateID uuid.UUID) ([]models.TemplateExercise, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, exercise_id, order_index, rest_seconds
		 FROM template_exercises WHERE template_id = $1 ORDER BY order_index`, templateID)
	if err != nil {
		return nil, fmt.Errorf("querying template exercises: %w", err)
	}
	defer rows.Close()

	var exercises []models.TemplateExercise
	for rows.Next() {
		var ex models.TemplateExercise
		if err := rows.Scan(&ex.ID, &ex.ExerciseID, &ex.OrderIndex, &ex.RestSeconds); err != nil {
			return nil, fmt.Errorf("scanning template exercise: %w", err)
		}
		exercises = append(exercises, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range exercises {
		setRows, err := db.Pool.Query(ctx,
			`SELECT id, set_number, set_type, target_reps, target_weight_kg, target_rpe
			 FROM template_sets WHERE template_exercise_id = $1 ORDER BY set_number`, exercises[i].ID)
		if err != nil {
			return nil, fmt.Errorf("querying template sets: %w", err)
		}
		for setRows.Next() {
			var s models.TemplateSet
			if err := setRows.Scan(&s.ID, &s.SetNumber, &s.Type, &s.TargetReps, &s.TargetWeightKg, &s.TargetRPE); err != nil {
				setRows.Close()
				return nil, fmt.Errorf("scanning template set: %w", err)
			}
			exercises[i].Sets = append(exercises[i].Sets, s)
		}
		if err := setRows.Err(); err != nil {
			setRows.Close()
			return nil, err
		}
		setRows.Close()
	}

	return exercises, nil
}
