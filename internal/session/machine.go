// Package session drives one trainee through one scheduled session:
// exercise and set sequencing, the elapsed-time clock, the rest
// countdown, and recording of performed sets.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/claude/repcoach/internal/events"
	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
)

// State is the live machine state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateResting   State = "resting"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// Validation and transition errors reported synchronously.
var (
	ErrNoExercises        = errors.New("session plan has no exercises")
	ErrNotRunning         = errors.New("no set is active")
	ErrNotResting         = errors.New("no rest countdown is active")
	ErrZeroReps           = errors.New("cannot complete a set with zero reps")
	ErrInvalidRPE         = errors.New("rpe must be between 1 and 10")
	ErrTerminal           = errors.New("session already finished")
	ErrNotStarted         = errors.New("session not started")
	ErrSetAlreadyRecorded = errors.New("set already recorded")
)

// restCueAt is the remaining-seconds mark where the countdown cue fires.
const restCueAt = 10

// Store is the slice of persistence the machine needs. The persisted
// PerformedSet list, not the in-memory cursor, is the source of truth
// for which sets are done.
type Store interface {
	StartSession(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	CompleteSession(ctx context.Context, id uuid.UUID, completedAt time.Time, totalVolumeKg float64) error
	CancelSession(ctx context.Context, id uuid.UUID) error
	InsertPerformedSet(ctx context.Context, ps models.PerformedSet) (bool, error)
	ListPerformedSets(ctx context.Context, sessionID uuid.UUID) ([]models.PerformedSet, error)
}

// SetResult is what the trainee reports when marking a set complete.
type SetResult struct {
	Reps        int      `json:"reps"`
	WeightKg    float64  `json:"weightKg"`
	RPE         *int     `json:"rpe,omitempty"`
	DurationSec *float64 `json:"durationSec,omitempty"`
	DistanceM   *float64 `json:"distanceM,omitempty"`
}

// Snapshot is a point-in-time view of the machine for display.
type Snapshot struct {
	SessionID     uuid.UUID `json:"sessionId"`
	State         State     `json:"state"`
	ExerciseIndex int       `json:"exerciseIndex"`
	SetIndex      int       `json:"setIndex"`
	ElapsedSec    int       `json:"elapsedSec"`
	Paused        bool      `json:"paused"`
	RestRemaining int       `json:"restRemainingSec"`
	SetsCompleted int       `json:"setsCompleted"`
	SetsPlanned   int       `json:"setsPlanned"`
}

// Machine executes one live session. All methods are safe for
// concurrent use; at most one Machine may exist per session (enforced
// by Manager and by the store's atomic status transition).
type Machine struct {
	store Store
	bus   *events.Bus
	clk   clock.Clock
	log   *slog.Logger

	sess *models.ScheduledSession
	plan *models.TraineePlan

	mu       sync.Mutex
	state    State
	exIdx    int
	setIdx   int
	done     map[uuid.UUID]map[int]bool // plan exercise ID → set numbers recorded
	elapsed  int
	paused   bool
	restLeft int
	restSeq  int // increments per rest period, guards stale ticks

	stopTimers chan struct{}
}

// NewMachine creates a Machine in idle state. clk defaults to the real
// clock when nil.
func NewMachine(store Store, bus *events.Bus, clk clock.Clock, sess *models.ScheduledSession, plan *models.TraineePlan, log *slog.Logger) *Machine {
	if clk == nil {
		clk = clock.New()
	}
	return &Machine{
		store:      store,
		bus:        bus,
		clk:        clk,
		log:        log,
		sess:       sess,
		plan:       plan,
		state:      StateIdle,
		done:       make(map[uuid.UUID]map[int]bool),
		stopTimers: make(chan struct{}),
	}
}

// Start validates the plan, claims the session in the store and enters
// running at the first unfinished set. Completion state is re-derived
// from persisted sets, so a crashed session resumes where its durable
// record says it was, not where a lost cursor said.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return fmt.Errorf("start from %s: %w", m.state, ErrTerminal)
	}
	if len(m.plan.Exercises) == 0 {
		return ErrNoExercises
	}

	startedAt := m.clk.Now()
	if err := m.store.StartSession(ctx, m.sess.ID, startedAt); err != nil {
		return err
	}
	m.sess.Status = models.StatusInProgress
	m.sess.StartedAt = &startedAt

	persisted, err := m.store.ListPerformedSets(ctx, m.sess.ID)
	if err != nil {
		return fmt.Errorf("restoring completion state: %w", err)
	}
	for _, ps := range persisted {
		m.markDone(ps.PlanExerciseID, ps.SetNumber)
	}

	m.state = StateRunning
	m.exIdx, m.setIdx = m.firstUnfinished()
	go m.elapsedLoop()
	return nil
}

// CompleteSet records the current set. The PerformedSet is persisted
// before the cursor moves: a persistence failure is returned to the
// caller and the same set can be retried.
func (m *Machine) CompleteSet(ctx context.Context, res SetResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRunning {
		return ErrNotRunning
	}
	if res.Reps <= 0 {
		return ErrZeroReps
	}
	if res.RPE != nil && !models.ValidRPE(*res.RPE) {
		return ErrInvalidRPE
	}

	ex := m.plan.Exercises[m.exIdx]
	set := ex.Sets[m.setIdx]

	ps := models.PerformedSet{
		ID:             uuid.New(),
		SessionID:      m.sess.ID,
		PlanExerciseID: ex.ID,
		SetNumber:      set.SetNumber,
		Type:           set.Type,
		ActualReps:     res.Reps,
		ActualWeightKg: res.WeightKg,
		DurationSec:    res.DurationSec,
		DistanceM:      res.DistanceM,
		RPE:            res.RPE,
		Completed:      true,
		CompletedAt:    m.clk.Now(),
	}
	ps.VolumeKg = ps.Volume()

	inserted, err := m.store.InsertPerformedSet(ctx, ps)
	if err != nil {
		return fmt.Errorf("persisting set: %w", err)
	}
	if !inserted {
		// The set was recorded earlier (navigation back over completed
		// work). The new numbers were NOT stored; resync the cursor and
		// report the conflict instead of a silent success.
		m.markDone(ex.ID, set.SetNumber)
		m.exIdx, m.setIdx = m.firstUnfinished()
		return ErrSetAlreadyRecorded
	}

	m.markDone(ex.ID, set.SetNumber)

	if !m.hasNextSet() {
		return m.finishLocked(ctx)
	}
	if ex.RestSeconds > 0 {
		m.enterRest(ex.RestSeconds)
		return nil
	}
	m.advanceCursor()
	return nil
}

// SkipRest abandons the current countdown early and moves straight to
// the next set. Skipping and reaching zero are mutually exclusive ends
// of a rest period.
func (m *Machine) SkipRest() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateResting {
		return ErrNotResting
	}
	m.restLeft = 0
	m.restSeq++ // invalidate in-flight ticks
	m.state = StateRunning
	m.advanceCursor()
	return nil
}

// Pause stops the elapsed clock without losing accumulated time.
func (m *Machine) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning && m.state != StateResting {
		return ErrNotStarted
	}
	m.paused = true
	return nil
}

// Resume restarts the elapsed clock.
func (m *Machine) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning && m.state != StateResting {
		return ErrNotStarted
	}
	m.paused = false
	return nil
}

// Navigate moves the exercise cursor for review. delta is -1 or +1.
// Completion state of already-recorded sets is untouched; the set
// cursor lands on the first unfinished set of the target exercise.
func (m *Machine) Navigate(delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRunning && m.state != StateResting {
		return ErrNotRunning
	}
	next := m.exIdx + delta
	if next < 0 || next >= len(m.plan.Exercises) {
		return fmt.Errorf("exercise index %d out of range", next)
	}
	if m.state == StateResting {
		// Navigation implies the trainee stopped waiting.
		m.restSeq++
		m.restLeft = 0
		m.state = StateRunning
	}
	m.exIdx = next
	m.setIdx = m.firstUnfinishedIn(next)
	return nil
}

// Finish ends the workout explicitly, even with sets remaining.
func (m *Machine) Finish(ctx context.Context) (*models.SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRunning && m.state != StateResting {
		return nil, ErrNotStarted
	}
	if err := m.finishLocked(ctx); err != nil {
		return nil, err
	}
	return m.summaryLocked(ctx)
}

// Cancel aborts from any non-terminal state. Both timers stop, no
// summary is produced, and performed sets already persisted stay: they
// represent real work done.
func (m *Machine) Cancel(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateCompleted || m.state == StateCancelled {
		return ErrTerminal
	}
	if err := m.store.CancelSession(ctx, m.sess.ID); err != nil {
		return err
	}
	m.state = StateCancelled
	m.restSeq++
	m.stopTimersOnce()
	m.bus.Publish(events.Event{
		Type:      events.SessionCancelled,
		TraineeID: m.sess.TraineeID,
		SessionID: m.sess.ID,
		At:        m.clk.Now(),
	})
	return nil
}

// Snapshot returns the current view of the machine.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	planned := 0
	for _, ex := range m.plan.Exercises {
		planned += len(ex.Sets)
	}
	completed := 0
	for _, sets := range m.done {
		completed += len(sets)
	}
	return Snapshot{
		SessionID:     m.sess.ID,
		State:         m.state,
		ExerciseIndex: m.exIdx,
		SetIndex:      m.setIdx,
		ElapsedSec:    m.elapsed,
		Paused:        m.paused,
		RestRemaining: m.restLeft,
		SetsCompleted: completed,
		SetsPlanned:   planned,
	}
}

// Terminal reports whether the machine reached completed or cancelled.
func (m *Machine) Terminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateCompleted || m.state == StateCancelled
}

// --- internals (m.mu held unless noted) ---

func (m *Machine) markDone(planExerciseID uuid.UUID, setNumber int) {
	if m.done[planExerciseID] == nil {
		m.done[planExerciseID] = make(map[int]bool)
	}
	m.done[planExerciseID][setNumber] = true
}

func (m *Machine) isDone(exIdx, setIdx int) bool {
	ex := m.plan.Exercises[exIdx]
	return m.done[ex.ID][ex.Sets[setIdx].SetNumber]
}

// firstUnfinished finds the earliest not-yet-recorded set in plan order.
func (m *Machine) firstUnfinished() (int, int) {
	for i := range m.plan.Exercises {
		for j := range m.plan.Exercises[i].Sets {
			if !m.isDone(i, j) {
				return i, j
			}
		}
	}
	return 0, 0
}

func (m *Machine) firstUnfinishedIn(exIdx int) int {
	for j := range m.plan.Exercises[exIdx].Sets {
		if !m.isDone(exIdx, j) {
			return j
		}
	}
	return 0
}

// hasNextSet reports whether any set after the current cursor remains.
func (m *Machine) hasNextSet() bool {
	if m.setIdx+1 < len(m.plan.Exercises[m.exIdx].Sets) {
		return true
	}
	return m.exIdx+1 < len(m.plan.Exercises)
}

// advanceCursor moves to the next set, rolling over to the next
// exercise's first set.
func (m *Machine) advanceCursor() {
	if m.setIdx+1 < len(m.plan.Exercises[m.exIdx].Sets) {
		m.setIdx++
		return
	}
	m.exIdx++
	m.setIdx = 0
}

func (m *Machine) enterRest(seconds int) {
	m.state = StateResting
	m.restLeft = seconds
	m.restSeq++
	seq := m.restSeq
	// A rest of restCueAt seconds or less never passes the decrement
	// threshold, so its countdown cue fires on entry.
	if seconds <= restCueAt {
		m.publishCue(events.RestCountdown, seconds)
	}
	go m.restLoop(seq)
}

// restLoop drives the countdown at one-second resolution. It exits when
// its rest period ends for any reason (zero, skip, cancel).
func (m *Machine) restLoop(seq int) {
	ticker := m.clk.Ticker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !m.restTick(seq) {
				return
			}
		case <-m.stopTimers:
			return
		}
	}
}

// restTick advances the countdown by one second and returns false once
// the rest period it belongs to is over. The seq check makes the
// rest-end cue fire exactly once even if a stale tick arrives after a
// skip or a rescheduled timer.
func (m *Machine) restTick(seq int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateResting || seq != m.restSeq {
		return false
	}
	if m.paused {
		return true
	}
	if m.restLeft > 0 {
		m.restLeft--
	}
	if m.restLeft == restCueAt {
		m.publishCue(events.RestCountdown, m.restLeft)
	}
	if m.restLeft <= 0 {
		m.restLeft = 0
		m.publishCue(events.RestEnded, 0)
		m.restSeq++
		m.state = StateRunning
		m.advanceCursor()
		return false
	}
	return true
}

// publishCue emits a timer cue. Cues are best-effort and must never
// block the transition; the bus guarantees a non-blocking publish.
func (m *Machine) publishCue(t events.EventType, remaining int) {
	m.bus.Publish(events.Event{
		Type:      t,
		TraineeID: m.sess.TraineeID,
		SessionID: m.sess.ID,
		At:        m.clk.Now(),
		Payload:   map[string]any{"remainingSec": remaining},
	})
}

// elapsedLoop accumulates session time. Paused seconds do not count;
// pausing and resuming never loses what was already accumulated.
func (m *Machine) elapsedLoop() {
	ticker := m.clk.Ticker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			if m.state == StateCompleted || m.state == StateCancelled {
				m.mu.Unlock()
				return
			}
			if !m.paused {
				m.elapsed++
			}
			m.mu.Unlock()
		case <-m.stopTimers:
			return
		}
	}
}

// finishLocked computes total volume from the persisted sets and moves
// the session to completed.
func (m *Machine) finishLocked(ctx context.Context) error {
	persisted, err := m.store.ListPerformedSets(ctx, m.sess.ID)
	if err != nil {
		return fmt.Errorf("loading performed sets: %w", err)
	}
	var volume float64
	for _, ps := range persisted {
		if ps.Completed {
			volume += ps.VolumeKg
		}
	}

	completedAt := m.clk.Now()
	if err := m.store.CompleteSession(ctx, m.sess.ID, completedAt, volume); err != nil {
		return err
	}

	m.state = StateCompleted
	m.restSeq++
	m.sess.TotalVolumeKg = volume
	m.sess.CompletedAt = &completedAt
	m.stopTimersOnce()

	m.bus.Publish(events.Event{
		Type:      events.SessionCompleted,
		TraineeID: m.sess.TraineeID,
		SessionID: m.sess.ID,
		At:        completedAt,
		Payload:   map[string]any{"totalVolumeKg": volume, "setsCompleted": len(persisted)},
	})
	return nil
}

func (m *Machine) summaryLocked(ctx context.Context) (*models.SessionSummary, error) {
	persisted, err := m.store.ListPerformedSets(ctx, m.sess.ID)
	if err != nil {
		return nil, fmt.Errorf("loading performed sets: %w", err)
	}
	planned := 0
	for _, ex := range m.plan.Exercises {
		planned += len(ex.Sets)
	}
	summary := &models.SessionSummary{
		SessionID:     m.sess.ID,
		TraineeID:     m.sess.TraineeID,
		ElapsedSec:    m.elapsed,
		SetsCompleted: len(persisted),
		SetsPlanned:   planned,
		TotalVolumeKg: m.sess.TotalVolumeKg,
		Sets:          persisted,
	}
	if m.sess.StartedAt != nil {
		summary.StartedAt = *m.sess.StartedAt
	}
	if m.sess.CompletedAt != nil {
		summary.CompletedAt = *m.sess.CompletedAt
	}
	return summary, nil
}

func (m *Machine) stopTimersOnce() {
	select {
	case <-m.stopTimers:
	default:
		close(m.stopTimers)
	}
}
