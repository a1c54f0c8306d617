package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/claude/repcoach/internal/events"
	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
)

// ErrAlreadyActive is returned when a live machine already exists for a
// session.
var ErrAlreadyActive = errors.New("session already has a live execution")

// loader is the extra slice of persistence the manager needs beyond
// what a running machine uses.
type loader interface {
	Store
	GetSession(ctx context.Context, id uuid.UUID) (*models.ScheduledSession, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*models.TraineePlan, error)
}

// Manager owns the live machines: at most one per session. The store's
// atomic status transition backs this up across processes; the manager
// enforces it within one.
type Manager struct {
	store loader
	bus   *events.Bus
	clk   clock.Clock
	log   *slog.Logger

	mu     sync.Mutex
	active map[uuid.UUID]*Machine
}

// NewManager creates a Manager. clk defaults to the real clock when nil.
func NewManager(store loader, bus *events.Bus, clk clock.Clock, log *slog.Logger) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		store:  store,
		bus:    bus,
		clk:    clk,
		log:    log,
		active: make(map[uuid.UUID]*Machine),
	}
}

// Start loads the session and its plan and brings up a live machine.
func (mgr *Manager) Start(ctx context.Context, sessionID uuid.UUID) (*Machine, error) {
	sess, err := mgr.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	plan, err := mgr.store.GetPlan(ctx, sess.PlanID)
	if err != nil {
		return nil, err
	}

	mgr.mu.Lock()
	if existing, ok := mgr.active[sessionID]; ok && !existing.Terminal() {
		mgr.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	m := NewMachine(mgr.store, mgr.bus, mgr.clk, sess, plan, mgr.log)
	mgr.active[sessionID] = m
	mgr.mu.Unlock()

	if err := m.Start(ctx); err != nil {
		mgr.Release(sessionID)
		return nil, err
	}
	return m, nil
}

// Get returns the live machine for a session, if any.
func (mgr *Manager) Get(sessionID uuid.UUID) (*Machine, bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	m, ok := mgr.active[sessionID]
	return m, ok
}

// Release drops the machine for a session. Called after the machine
// reaches a terminal state.
func (mgr *Manager) Release(sessionID uuid.UUID) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	delete(mgr.active, sessionID)
}
