package history

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/models"
)

// Stats tracks import progress.
type Stats struct {
	FilesProcessed   int
	FilesSkipped     int
	FilesErrored     int
	SessionsImported int
	SetsInserted     int
}

// Store is the slice of persistence the importer needs.
type Store interface {
	GetOrCreateUser(ctx context.Context, login, displayName, role string) (uuid.UUID, error)
	UpsertExercise(ctx context.Context, e models.ExerciseInfo) (uuid.UUID, error)
	InsertTemplate(ctx context.Context, t *models.WorkoutTemplate) error
	InsertPlan(ctx context.Context, p *models.TraineePlan) error
	InsertSessions(ctx context.Context, rows []models.ScheduledSession) (int64, error)
	StartSession(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	CompleteSession(ctx context.Context, id uuid.UUID, completedAt time.Time, totalVolumeKg float64) error
	InsertPerformedSet(ctx context.Context, ps models.PerformedSet) (bool, error)
}

// Importer reads training log exports from a directory and replays them
// into the database as completed sessions.
type Importer struct {
	db     Store
	log    *slog.Logger
	dryRun bool
	stats  Stats
}

// New creates a new Importer.
func New(db Store, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{db: db, log: log, dryRun: dryRun}
}

// Import processes all .csv exports under dir for the given trainee
// login. File-level dedup state lives in stateDir.
func (imp *Importer) Import(ctx context.Context, dir, stateDir, traineeLogin string) (*Stats, error) {
	state, err := OpenStateDB(stateDir)
	if err != nil {
		return &imp.stats, err
	}
	defer state.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return &imp.stats, fmt.Errorf("reading %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			imp.stats.FilesErrored++
			continue
		}
		hash, err := HashFile(path)
		if err != nil {
			imp.stats.FilesErrored++
			imp.log.Error("hashing export", "file", entry.Name(), "error", err)
			continue
		}
		done, err := state.IsImported(entry.Name(), info.Size(), hash)
		if err != nil {
			return &imp.stats, fmt.Errorf("checking import state: %w", err)
		}
		if done {
			imp.stats.FilesSkipped++
			continue
		}

		sessions, err := imp.importFile(ctx, path, traineeLogin)
		if err != nil {
			imp.stats.FilesErrored++
			imp.log.Error("importing export", "file", entry.Name(), "error", err)
			continue
		}
		imp.stats.FilesProcessed++

		if !imp.dryRun {
			if err := state.MarkImported(entry.Name(), info.Size(), hash, sessions); err != nil {
				return &imp.stats, fmt.Errorf("recording import state: %w", err)
			}
		}
	}

	return &imp.stats, nil
}

func (imp *Importer) importFile(ctx context.Context, path, traineeLogin string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sessions, err := Parse(f)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	if imp.dryRun {
		imp.stats.SessionsImported += len(sessions)
		for _, s := range sessions {
			for _, ex := range s.Exercises {
				imp.stats.SetsInserted += len(ex.Sets)
			}
		}
		return len(sessions), nil
	}

	traineeID, err := imp.db.GetOrCreateUser(ctx, traineeLogin, traineeLogin, "trainee")
	if err != nil {
		return 0, fmt.Errorf("resolving trainee: %w", err)
	}

	for _, s := range sessions {
		if err := imp.importSession(ctx, traineeID, s); err != nil {
			return 0, fmt.Errorf("session %q on %s: %w", s.Name, s.Date.Format("2006-01-02"), err)
		}
		imp.stats.SessionsImported++
	}
	return len(sessions), nil
}

// importSession replays one logged workout through the normal pipeline:
// a template owned by the trainee, a plan clone, and a completed
// session with its performed sets.
func (imp *Importer) importSession(ctx context.Context, traineeID uuid.UUID, s ParsedSession) error {
	tmpl := models.WorkoutTemplate{
		ID:      uuid.New(),
		CoachID: traineeID,
		Name:    fmt.Sprintf("%s (imported %s)", s.Name, s.Date.Format("2006-01-02")),
	}
	plan := models.TraineePlan{
		ID:               uuid.New(),
		SourceTemplateID: tmpl.ID,
		TraineeID:        traineeID,
		Name:             tmpl.Name,
	}

	for i, ex := range s.Exercises {
		exerciseID, err := imp.db.UpsertExercise(ctx, models.ExerciseInfo{
			Name:      ex.Name,
			Equipment: ex.Equipment,
		})
		if err != nil {
			return fmt.Errorf("upserting exercise %q: %w", ex.Name, err)
		}

		te := models.TemplateExercise{ID: uuid.New(), ExerciseID: exerciseID, OrderIndex: i}
		pe := models.TemplateExercise{ID: uuid.New(), ExerciseID: exerciseID, OrderIndex: i}
		for j, set := range ex.Sets {
			ts := models.TemplateSet{
				SetNumber:  j + 1,
				Type:       models.SetWorking,
				TargetReps: ex.TargetReps,
			}
			if set.IsWarmup {
				ts.Type = models.SetWarmup
				ts.TargetReps = set.Reps
			}
			w := set.WeightKg
			ts.TargetWeightKg = &w

			ts.ID = uuid.New()
			te.Sets = append(te.Sets, ts)
			ps := ts
			ps.ID = uuid.New()
			pe.Sets = append(pe.Sets, ps)
		}
		tmpl.Exercises = append(tmpl.Exercises, te)
		plan.Exercises = append(plan.Exercises, pe)
	}

	if err := imp.db.InsertTemplate(ctx, &tmpl); err != nil {
		return fmt.Errorf("inserting template: %w", err)
	}
	if err := imp.db.InsertPlan(ctx, &plan); err != nil {
		return fmt.Errorf("inserting plan: %w", err)
	}

	sessionID := uuid.New()
	if _, err := imp.db.InsertSessions(ctx, []models.ScheduledSession{{
		ID:            sessionID,
		PlanID:        plan.ID,
		TraineeID:     traineeID,
		ScheduledDate: s.Date,
		Status:        models.StatusScheduled,
	}}); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	if err := imp.db.StartSession(ctx, sessionID, s.Date); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}

	var volume float64
	for exIdx, ex := range s.Exercises {
		pe := plan.Exercises[exIdx]
		for j, set := range ex.Sets {
			ps := models.PerformedSet{
				ID:             uuid.New(),
				SessionID:      sessionID,
				PlanExerciseID: pe.ID,
				SetNumber:      j + 1,
				Type:           models.SetWorking,
				ActualReps:     set.Reps,
				ActualWeightKg: set.WeightKg,
				Completed:      true,
				CompletedAt:    s.Date,
			}
			if set.IsWarmup {
				ps.Type = models.SetWarmup
			} else if rpe, ok := rirToRPE(set.RIR); ok {
				ps.RPE = &rpe
			}
			ps.VolumeKg = ps.Volume()
			volume += ps.VolumeKg

			if _, err := imp.db.InsertPerformedSet(ctx, ps); err != nil {
				return fmt.Errorf("inserting set: %w", err)
			}
			imp.stats.SetsInserted++
		}
	}

	if err := imp.db.CompleteSession(ctx, sessionID, s.Date, volume); err != nil {
		return fmt.Errorf("completing session: %w", err)
	}
	return nil
}

// rirToRPE converts reps-in-reserve to the RPE scale the progression
// engine works with. RIR 0 is RPE 10, RIR 4+ maps to the low end.
func rirToRPE(rir float64) (int, bool) {
	if rir < 0 {
		return 0, false
	}
	rpe := 10 - int(math.Round(rir))
	if rpe < 1 {
		rpe = 1
	}
	if rpe > 10 {
		rpe = 10
	}
	return rpe, true
}
