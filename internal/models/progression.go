package models

import (
	"time"

	"github.com/google/uuid"
)

// ProgressionCategory tags which progression rule fired.
type ProgressionCategory string

const (
	ProgressionInitial        ProgressionCategory = "initial"
	ProgressionIncreaseWeight ProgressionCategory = "increase_weight"
	ProgressionSmallIncrease  ProgressionCategory = "small_increase"
	ProgressionIncreaseReps   ProgressionCategory = "increase_reps"
	ProgressionMaintain       ProgressionCategory = "maintain"
	ProgressionDecreaseWeight ProgressionCategory = "decrease_weight"
)

// ProgressionRecommendation is a derived value, recomputed on demand
// and never stored.
type ProgressionRecommendation struct {
	ExerciseID uuid.UUID           `json:"exerciseId"`
	TraineeID  uuid.UUID           `json:"traineeId"`
	Category   ProgressionCategory `json:"category"`
	WeightKg   float64             `json:"weightKg"`
	Reps       int                 `json:"reps"`
	Confidence int                 `json:"confidence"`
	Rationale  []string            `json:"rationale"`
}

// SetPerformance pairs one planned set with what was actually done.
// Completed is false when the set was planned but never recorded.
type SetPerformance struct {
	SetNumber      int      `json:"setNumber"`
	Type           SetType  `json:"type"`
	TargetReps     int      `json:"targetReps"`
	TargetWeightKg *float64 `json:"targetWeightKg,omitempty"`
	ActualReps     int      `json:"actualReps"`
	ActualWeightKg float64  `json:"actualWeightKg"`
	RPE            *int     `json:"rpe,omitempty"`
	Completed      bool     `json:"completed"`
}

// SessionPerformance is one completed session's recorded sets for one
// exercise, the unit of input to the progression engine. Histories are
// ordered newest first.
type SessionPerformance struct {
	SessionID uuid.UUID        `json:"sessionId"`
	Date      time.Time        `json:"date"`
	Sets      []SetPerformance `json:"sets"`
}
