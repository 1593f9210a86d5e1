package application

import (
	"context"
	"fmt"
	"log"
	"time"

	"tankwatch-cloud/internal/synclog"
)

// Scheduler triggers fleet-wide recalculation on a daily schedule.
type Scheduler struct {
	engine   *Engine
	recorder synclog.Recorder
	hour     int
	minute   int
	logger   *log.Logger
}

// NewScheduler constructs a Scheduler. dailyAt is an "HH:MM" UTC time;
// an unparseable value is a configuration error.
func NewScheduler(engine *Engine, recorder synclog.Recorder, dailyAt string, logger *log.Logger) (*Scheduler, error) {
	hour, minute, err := parseDailyAt(dailyAt)
	if err != nil {
		return nil, fmt.Errorf("analytics: invalid daily schedule %q: %w", dailyAt, err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		engine:   engine,
		recorder: recorder,
		hour:     hour,
		minute:   minute,
		logger:   logger,
	}, nil
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.engine == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.UTC()) {
				continue
			}
			s.runOnce(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	return now.Hour() == s.hour && now.Minute() == s.minute
}

func (s *Scheduler) runOnce(ctx context.Context, start time.Time) {
	result, err := s.engine.RecalculateAll(ctx)
	if err != nil {
		s.logger.Printf("recalc schedule error: %v", err)
		return
	}
	s.logger.Printf("recalc schedule: processed=%d updated=%d failed=%d", result.Processed, result.Updated, result.Failed)

	if s.recorder == nil {
		return
	}
	status := "success"
	if result.Failed > 0 {
		status = "partial"
	}
	entry := synclog.Entry{
		ID:              synclog.NewID(),
		Source:          "scheduled",
		Status:          status,
		AssetsProcessed: result.Processed,
		ErrorCount:      result.Failed,
		Duration:        time.Since(start),
		StartedAt:       start,
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Printf("recalc schedule: sync log write error: %v", err)
	}
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
