package models

import (
	"time"

	"github.com/google/uuid"
)

// SetType classifies a set within an exercise.
type SetType string

const (
	SetWarmup  SetType = "warmup"
	SetWorking SetType = "working"
	SetDrop    SetType = "drop"
	SetFailure SetType = "failure"
)

// ExerciseInfo is read-only exercise-library metadata, looked up when
// cloning templates.
type ExerciseInfo struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	PrimaryMuscle    string    `json:"primaryMuscle"`
	SecondaryMuscles []string  `json:"secondaryMuscles,omitempty"`
	Equipment        string    `json:"equipment"`
}

// WorkoutTemplate is a coach-authored, reusable workout definition.
// Assigning it to a trainee clones it; later edits to the template do
// not affect copies already assigned.
type WorkoutTemplate struct {
	ID               uuid.UUID          `json:"id"`
	CoachID          uuid.UUID          `json:"coachId"`
	Name             string             `json:"name"`
	EstimatedMinutes int                `json:"estimatedMinutes"`
	Exercises        []TemplateExercise `json:"exercises"`
	CreatedAt        time.Time          `json:"createdAt"`
}

// TemplateExercise is one exercise slot within a template, ordered by
// OrderIndex.
type TemplateExercise struct {
	ID          uuid.UUID     `json:"id"`
	ExerciseID  uuid.UUID     `json:"exerciseId"`
	OrderIndex  int           `json:"orderIndex"`
	RestSeconds int           `json:"restSeconds"`
	Sets        []TemplateSet `json:"sets"`
}

// TemplateSet is a single target set. TargetWeightKg and TargetRPE are
// nullable: bodyweight work has no target weight and not every coach
// prescribes an RPE.
type TemplateSet struct {
	ID             uuid.UUID `json:"id"`
	SetNumber      int       `json:"setNumber"`
	Type           SetType   `json:"type"`
	TargetReps     int       `json:"targetReps"`
	TargetWeightKg *float64  `json:"targetWeightKg,omitempty"`
	TargetRPE      *int      `json:"targetRpe,omitempty"`
}

// TraineePlan is the trainee-scoped clone produced by assignment.
// Structure mirrors WorkoutTemplate but every row has fresh IDs and an
// owning trainee.
type TraineePlan struct {
	ID               uuid.UUID          `json:"id"`
	SourceTemplateID uuid.UUID          `json:"sourceTemplateId"`
	TraineeID        uuid.UUID          `json:"traineeId"`
	Name             string             `json:"name"`
	EstimatedMinutes int                `json:"estimatedMinutes"`
	Exercises        []TemplateExercise `json:"exercises"`
	CreatedAt        time.Time          `json:"createdAt"`
}

// ValidRPE reports whether v is a legal RPE value (integer 1..10).
func ValidRPE(v int) bool {
	return v >= 1 && v <= 10
}

// MeaningfulRPE reports whether a reported RPE carries signal for
// progression. Values below 6 are treated as noise.
func MeaningfulRPE(v int) bool {
	return v >= 6 && v <= 10
}
