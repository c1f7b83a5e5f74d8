package generator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/wachiwi/suno-sounds/pkg/logger"
)

// Watch runs CheckStatus now and then on schedule (cron syntax or
// descriptors like "@every 2m") until nothing is left pending or ctx ends.
func (g *Generator) Watch(ctx context.Context, schedule string) error {
	cronLogger := &logger.CronLogger{Logger: slog.Default()}
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
	)

	finished := make(chan struct{})
	var once sync.Once
	cycle := func() {
		report, err := g.CheckStatus(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("Status check failed", "error", err)
			}
			return
		}
		if report.Pending == 0 {
			once.Do(func() { close(finished) })
		}
	}

	if _, err := c.AddFunc(schedule, cycle); err != nil {
		return fmt.Errorf("invalid watch schedule %q: %w", schedule, err)
	}

	cycle()
	select {
	case <-finished:
		return nil
	default:
	}

	slog.Info("Watching pending tasks", "schedule", schedule)
	c.Start()
	defer func() { <-c.Stop().Done() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-finished:
		slog.Info("No pending tasks left")
		return nil
	}
}
