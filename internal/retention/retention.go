// Package retention periodically deletes log files and history rows older
// than a configured number of days.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// LogPruner removes dated log files older than a cutoff.
type LogPruner interface {
	Prune(before time.Time) (int, error)
}

// HistoryPruner removes stored results older than a cutoff.
type HistoryPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether schedule is a usable cron expression.
func ValidateSchedule(schedule string) error {
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

// Pruner deletes everything older than keepDays whole UTC days.
type Pruner struct {
	logs     LogPruner
	history  HistoryPruner
	keepDays int
	now      func() time.Time
	logger   *slog.Logger
	c        *cron.Cron
}

// New creates a Pruner. history may be nil when no database is configured.
// Pass nil logger to use the default logger.
func New(logs LogPruner, history HistoryPruner, keepDays int, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		logs:     logs,
		history:  history,
		keepDays: keepDays,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock replaces the time source (for testing).
func (p *Pruner) SetClock(now func() time.Time) {
	p.now = now
}

// Cutoff returns the start of the oldest UTC day that is kept. Today counts
// as one of the kept days.
func (p *Pruner) Cutoff() time.Time {
	today := p.now().UTC().Truncate(24 * time.Hour)
	return today.AddDate(0, 0, -(p.keepDays - 1))
}

// RunOnce prunes log files and history once.
func (p *Pruner) RunOnce(ctx context.Context) error {
	cutoff := p.Cutoff()

	files, err := p.logs.Prune(cutoff)
	if err != nil {
		return fmt.Errorf("pruning log files: %w", err)
	}

	var rows int64
	if p.history != nil {
		rows, err = p.history.Prune(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("pruning history: %w", err)
		}
	}

	p.logger.Info("retention pass complete",
		slog.Time("cutoff", cutoff),
		slog.Int("files", files),
		slog.Int64("rows", rows),
	)
	return nil
}

// Start schedules RunOnce on schedule (cron syntax, UTC).
func (p *Pruner) Start(ctx context.Context, schedule string) error {
	p.c = cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC))
	_, err := p.c.AddFunc(schedule, func() {
		if err := p.RunOnce(ctx); err != nil {
			p.logger.Error("retention pass failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling retention %q: %w", schedule, err)
	}
	p.c.Start()
	p.logger.Info("retention scheduled", slog.String("schedule", schedule), slog.Int("keep_days", p.keepDays))
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (p *Pruner) Stop() {
	if p.c == nil {
		return
	}
	<-p.c.Stop().Done()
}
