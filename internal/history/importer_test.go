package history

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/models"
)

type importStore struct {
	users     map[string]uuid.UUID
	exercises map[string]uuid.UUID
	templates []models.WorkoutTemplate
	plans     []models.TraineePlan
	sessions  []models.ScheduledSession
	sets      []models.PerformedSet
	completed map[uuid.UUID]float64
}

func newImportStore() *importStore {
	return &importStore{
		users:     make(map[string]uuid.UUID),
		exercises: make(map[string]uuid.UUID),
		completed: make(map[uuid.UUID]float64),
	}
}

func (s *importStore) GetOrCreateUser(_ context.Context, login, _, _ string) (uuid.UUID, error) {
	if id, ok := s.users[login]; ok {
		return id, nil
	}
	id := uuid.New()
	s.users[login] = id
	return id, nil
}

func (s *importStore) UpsertExercise(_ context.Context, e models.ExerciseInfo) (uuid.UUID, error) {
	if id, ok := s.exercises[e.Name]; ok {
		return id, nil
	}
	id := uuid.New()
	s.exercises[e.Name] = id
	return id, nil
}

func (s *importStore) InsertTemplate(_ context.Context, t *models.WorkoutTemplate) error {
	s.templates = append(s.templates, *t)
	return nil
}

func (s *importStore) InsertPlan(_ context.Context, p *models.TraineePlan) error {
	s.plans = append(s.plans, *p)
	return nil
}

func (s *importStore) InsertSessions(_ context.Context, rows []models.ScheduledSession) (int64, error) {
	s.sessions = append(s.sessions, rows...)
	return int64(len(rows)), nil
}

func (s *importStore) StartSession(context.Context, uuid.UUID, time.Time) error { return nil }

func (s *importStore) CompleteSession(_ context.Context, id uuid.UUID, _ time.Time, vol float64) error {
	s.completed[id] = vol
	return nil
}

func (s *importStore) InsertPerformedSet(_ context.Context, ps models.PerformedSet) (bool, error) {
	s.sets = append(s.sets, ps)
	return true, nil
}

func writeExport(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(sampleExport), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImportReplaysSessions(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "export.csv")

	store := newImportStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	imp := New(store, log, false)

	stats, err := imp.Import(context.Background(), dir, t.TempDir(), "alice")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if stats.FilesProcessed != 1 {
		t.Errorf("files processed = %d, want 1", stats.FilesProcessed)
	}
	if stats.SessionsImported != 2 {
		t.Errorf("sessions imported = %d, want 2", stats.SessionsImported)
	}
	if len(store.sessions) != 2 {
		t.Fatalf("sessions stored = %d, want 2", len(store.sessions))
	}
	if len(store.templates) != 2 || len(store.plans) != 2 {
		t.Errorf("templates/plans = %d/%d, want 2/2", len(store.templates), len(store.plans))
	}
	// Sessions must be completed with their computed volume.
	for _, sess := range store.sessions {
		if _, ok := store.completed[sess.ID]; !ok {
			t.Errorf("session %s never completed", sess.ID)
		}
	}
	// Repeated exercise names resolve to the same library entry.
	if len(store.exercises) != 4 {
		t.Errorf("distinct exercises = %d, want 4", len(store.exercises))
	}
}

func TestImportConvertsRIRToRPE(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "export.csv")

	store := newImportStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	imp := New(store, log, false)
	if _, err := imp.Import(context.Background(), dir, t.TempDir(), "alice"); err != nil {
		t.Fatal(err)
	}

	var sawWorking, sawWarmup bool
	for _, ps := range store.sets {
		switch ps.Type {
		case models.SetWorking:
			sawWorking = true
			if ps.RPE == nil {
				t.Fatalf("working set %d has no RPE", ps.SetNumber)
			}
			if !models.ValidRPE(*ps.RPE) {
				t.Errorf("rpe = %d out of range", *ps.RPE)
			}
		case models.SetWarmup:
			sawWarmup = true
			if ps.RPE != nil {
				t.Errorf("warmup set carries RPE %d", *ps.RPE)
			}
		}
	}
	if !sawWorking || !sawWarmup {
		t.Error("expected both working and warmup sets in import")
	}
}

func TestImportSkipsAlreadyImported(t *testing.T) {
	dir := t.TempDir()
	stateDir := t.TempDir()
	writeExport(t, dir, "export.csv")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := newImportStore()
	if _, err := New(store, log, false).Import(context.Background(), dir, stateDir, "alice"); err != nil {
		t.Fatal(err)
	}

	second := newImportStore()
	stats, err := New(second, log, false).Import(context.Background(), dir, stateDir, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesSkipped != 1 || stats.FilesProcessed != 0 {
		t.Errorf("second run = %d processed, %d skipped, want 0/1", stats.FilesProcessed, stats.FilesSkipped)
	}
	if len(second.sessions) != 0 {
		t.Errorf("second run stored %d sessions, want 0", len(second.sessions))
	}
}

func TestImportDryRun(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "export.csv")

	store := newImportStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	stats, err := New(store, log, true).Import(context.Background(), dir, t.TempDir(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if stats.SessionsImported != 2 {
		t.Errorf("dry run counted %d sessions, want 2", stats.SessionsImported)
	}
	if len(store.sessions) != 0 || len(store.sets) != 0 {
		t.Error("dry run wrote to the store")
	}
}

func TestRIRToRPE(t *testing.T) {
	cases := []struct {
		rir  float64
		want int
	}{
		{0, 10},
		{1, 9},
		{2, 8},
		{4, 6},
		{12, 1},
	}
	for _, tc := range cases {
		got, ok := rirToRPE(tc.rir)
		if !ok {
			t.Fatalf("rirToRPE(%v) not ok", tc.rir)
		}
		if got != tc.want {
			t.Errorf("rirToRPE(%v) = %d, want %d", tc.rir, got, tc.want)
		}
	}
	if _, ok := rirToRPE(-1); ok {
		t.Error("negative RIR accepted")
	}
}
