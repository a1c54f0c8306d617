package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a scheduled session.
// Transitions are monotonic: scheduled → in_progress → completed, or
// scheduled/in_progress → cancelled, or scheduled → missed. Nothing
// moves backward.
type SessionStatus string

const (
	StatusScheduled  SessionStatus = "scheduled"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusCancelled  SessionStatus = "cancelled"
	StatusMissed     SessionStatus = "missed"
)

// Terminal reports whether no further transition is allowed from s.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusMissed
}

// CanTransitionTo reports whether moving from s to next is a legal
// forward transition.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case StatusScheduled:
		return next == StatusInProgress || next == StatusCancelled || next == StatusMissed
	case StatusInProgress:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}

// ScheduledSession is one dated instance of a plan for one trainee.
// Created by assignment; status, timestamps and volume are mutated only
// by the live execution flow or by explicit cancellation.
type ScheduledSession struct {
	ID            uuid.UUID     `json:"id"`
	PlanID        uuid.UUID     `json:"planId"`
	TraineeID     uuid.UUID     `json:"traineeId"`
	ScheduledDate time.Time     `json:"scheduledDate"`
	Status        SessionStatus `json:"status"`
	StartedAt     *time.Time    `json:"startedAt,omitempty"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
	TotalVolumeKg float64       `json:"totalVolumeKg"`
	Notes         string        `json:"notes,omitempty"`
}

// PerformedSet is one completed set attempt. Append-only: rows are
// never updated after insertion, and they survive session cancellation
// because they represent work actually done.
type PerformedSet struct {
	ID             uuid.UUID `json:"id"`
	SessionID      uuid.UUID `json:"sessionId"`
	PlanExerciseID uuid.UUID `json:"planExerciseId"`
	SetNumber      int       `json:"setNumber"`
	Type           SetType   `json:"type"`
	ActualReps     int       `json:"actualReps"`
	ActualWeightKg float64   `json:"actualWeightKg"`
	DurationSec    *float64  `json:"durationSec,omitempty"`
	DistanceM      *float64  `json:"distanceM,omitempty"`
	RPE            *int      `json:"rpe,omitempty"`
	Completed      bool      `json:"completed"`
	CompletedAt    time.Time `json:"completedAt"`
	VolumeKg       float64   `json:"volumeKg"`
}

// Volume returns reps × weight for a single set.
func (p PerformedSet) Volume() float64 {
	return float64(p.ActualReps) * p.ActualWeightKg
}

// SessionSummary is emitted when a session reaches completed.
type SessionSummary struct {
	SessionID     uuid.UUID      `json:"sessionId"`
	TraineeID     uuid.UUID      `json:"traineeId"`
	StartedAt     time.Time      `json:"startedAt"`
	CompletedAt   time.Time      `json:"completedAt"`
	ElapsedSec    int            `json:"elapsedSec"`
	SetsCompleted int            `json:"setsCompleted"`
	SetsPlanned   int            `json:"setsPlanned"`
	TotalVolumeKg float64        `json:"totalVolumeKg"`
	Sets          []PerformedSet `json:"sets,omitempty"`
}
