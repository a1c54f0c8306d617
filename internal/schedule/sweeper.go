package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron"
)

// missedMarker is the slice of storage the sweeper needs.
type missedMarker interface {
	MarkMissedBefore(ctx context.Context, day time.Time) (int64, error)
}

// Sweeper marks still-scheduled sessions from past days as missed. It
// runs once at startup and then every midnight in the configured
// timezone, so "yesterday" means yesterday for the trainees, not for
// the server.
type Sweeper struct {
	store missedMarker
	loc   *time.Location
	log   *slog.Logger
	cron  *cron.Cron
}

// NewSweeper creates a Sweeper. Call Start to begin the schedule.
func NewSweeper(store missedMarker, loc *time.Location, log *slog.Logger) *Sweeper {
	if loc == nil {
		loc = time.UTC
	}
	return &Sweeper{store: store, loc: loc, log: log}
}

// Start runs one immediate sweep and schedules a midnight sweep.
func (s *Sweeper) Start() {
	s.Sweep(context.Background())

	s.cron = cron.NewWithLocation(s.loc)
	s.cron.AddFunc("@midnight", func() {
		s.Sweep(context.Background())
	})
	s.cron.Start()
}

// Stop halts the midnight schedule.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Sweep marks sessions scheduled before today (in the configured
// timezone) as missed.
func (s *Sweeper) Sweep(ctx context.Context) {
	today := civilDate(time.Now(), s.loc)
	n, err := s.store.MarkMissedBefore(ctx, today)
	if err != nil {
		s.log.Error("missed-session sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("marked past-due sessions as missed", "count", n)
	}
}
