package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InsertPlan persists a trainee-scoped plan clone with its exercises
// and sets in one transaction. The clone carries fresh IDs so that
// later edits to the source template never touch it.
func (db *DB) InsertPlan(ctx context.Context, p *models.TraineePlan) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO trainee_plans (id, source_template_id, trainee_id, name, estimated_minutes)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.SourceTemplateID, p.TraineeID, p.Name, p.EstimatedMinutes)
	if err != nil {
		return fmt.Errorf("inserting plan: %w", err)
	}

	for _, ex := range p.Exercises {
		_, err = tx.Exec(ctx,
			`INSERT INTO plan_exercises (id, plan_id, exercise_id, order_index, rest_seconds)
			 VALUES ($1, $2, $3, $4, $5)`,
			ex.ID, p.ID, ex.ExerciseID, ex.OrderIndex, ex.RestSeconds)
		if err != nil {
			return fmt.Errorf("inserting plan exercise: %w", err)
		}
		for _, set := range ex.Sets {
			_, err = tx.Exec(ctx,
				`INSERT INTO plan_sets (id, plan_exercise_id, set_number, set_type, target_reps, target_weight_kg, target_rpe)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				set.ID, ex.ID, set.SetNumber, set.Type, set.TargetReps, set.TargetWeightKg, set.TargetRPE)
			if err != nil {
				return fmt.Errorf("inserting plan set: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}

// GetPlan retrieves a plan clone with its ordered exercises and sets.
func (db *DB) GetPlan(ctx context.Context, id uuid.UUID) (*models.TraineePlan, error) {
	var p models.TraineePlan
	err := db.Pool.QueryRow(ctx,
		`SELECT id, source_template_id, trainee_id, name, estimated_minutes, created_at
		 FROM trainee_plans WHERE id = $1`, id).
		Scan(&p.ID, &p.SourceTemplateID, &p.TraineeID, &p.Name, &p.EstimatedMinutes, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying plan: %w", err)
	}

	exRows, err := db.Pool.Query(ctx,
		`SELECT id, exercise_id, order_index, rest_seconds
		 FROM plan_exercises WHERE plan_id = $1 ORDER BY order_index`, id)
	if err != nil {
		return nil, fmt.Errorf("querying plan exercises: %w", err)
	}
	defer exRows.Close()

	for exRows.Next() {
		var ex models.TemplateExercise
		if err := exRows.Scan(&ex.ID, &ex.ExerciseID, &ex.OrderIndex, &ex.RestSeconds); err != nil {
			return nil, fmt.Errorf("scanning plan exercise: %w", err)
		}
		p.Exercises = append(p.Exercises, ex)
	}
	if err := exRows.Err(); err != nil {
		return nil, err
	}

	for i := range p.Exercises {
		setRows, err := db.Pool.Query(ctx,
			`SELECT id, set_number, set_type, target_reps, target_weight_kg, target_rpe
			 FROM plan_sets WHERE plan_exercise_id = $1 ORDER BY set_number`, p.Exercises[i].ID)
		if err != nil {
			return nil, fmt.Errorf("querying plan sets: %w", err)
		}
		for setRows.Next() {
			var s models.TemplateSet
			if err := setRows.Scan(&s.ID, &s.SetNumber, &s.Type, &s.TargetReps, &s.TargetWeightKg, &s.TargetRPE); err != nil {
				setRows.Close()
				return nil, fmt.Errorf("scanning plan set: %w", err)
			}
			p.Exercises[i].Sets = append(p.Exercises[i].Sets, s)
		}
		if err := setRows.Err(); err != nil {
			setRows.Close()
			return nil, err
		}
		setRows.Close()
	}

	return &p, nil
}
