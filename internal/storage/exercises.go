package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// GetExercise looks up exercise-library metadata by ID.
func (db *DB) GetExercise(ctx context.Context, id uuid.UUID) (*models.ExerciseInfo, error) {
	var e models.ExerciseInfo
	err := db.Pool.QueryRow(ctx,
		`SELECT id, name, primary_muscle, secondary_muscles, equipment
		 FROM exercises WHERE id = $1`, id).
		Scan(&e.ID, &e.Name, &e.PrimaryMuscle, &e.SecondaryMuscles, &e.Equipment)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying exercise: %w", err)
	}
	return &e, nil
}

// ListExercises returns the whole exercise library, ordered by muscle
// group then name.
func (db *DB) ListExercises(ctx context.Context) ([]models.ExerciseInfo, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, name, primary_muscle, secondary_muscles, equipment
		 FROM exercises ORDER BY primary_muscle, name`)
	if err != nil {
		return nil, fmt.Errorf("querying exercises: %w", err)
	}
	defer rows.Close()

	var result []models.ExerciseInfo
	for rows.Next() {
		var e models.ExerciseInfo
		if err := rows.Scan(&e.ID, &e.Name, &e.PrimaryMuscle, &e.SecondaryMuscles, &e.Equipment); err != nil {
			return nil, fmt.Errorf("scanning exercise: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// UpsertExercise inserts or updates a library exercise by name. Used by
// seeding and by the history importer, which discovers exercises from
// export files.
func (db *DB) UpsertExercise(ctx context.Context, e models.ExerciseInfo) (uuid.UUID, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	var id uuid.UUID
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO exercises (id, name, primary_muscle, secondary_muscles, equipment)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE
			SET equipment = COALESCE(NULLIF($5, ''), exercises.equipment)
		RETURNING id
	`, e.ID, e.Name, e.PrimaryMuscle, e.SecondaryMuscles, e.Equipment).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting exercise %q: %w", e.Name, err)
	}
	return id, nil
}
