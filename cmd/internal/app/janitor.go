package app

import (
	"context"
	"log/slog"
	"time"

	"ava/cmd/internal/metrics"
)

// Purger deletes rows that expired before now.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type janitorTask struct {
	table  string
	purger Purger
}

// Janitor periodically purges expired sessions and recovery codes.
type Janitor struct {
	log      *slog.Logger
	interval time.Duration
	metrics  *metrics.Registry
	now      func() time.Time
	tasks    []janitorTask
}

// NewJanitor returns a Janitor that ticks every interval.
func NewJanitor(log *slog.Logger, interval time.Duration, m *metrics.Registry) *Janitor {
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{log: log, interval: interval, metrics: m, now: time.Now}
}

// Add registers a purger; table labels its logs and metrics.
func (j *Janitor) Add(table string, p Purger) {
	j.tasks = append(j.tasks, janitorTask{table: table, purger: p})
}

// RunOnce runs every purger once. A failing purger does not stop the others.
func (j *Janitor) RunOnce(ctx context.Context) {
	now := j.now().UTC()
	for _, t := range j.tasks {
		n, err := t.purger.PurgeExpired(ctx, now)
		if err != nil {
			j.log.Error("janitor.purge.fail", "table", t.table, "err", err)
			continue
		}
		j.metrics.Purged(t.table, n)
		if n > 0 {
			j.log.Info("janitor.purge", "table", t.table, "rows", n)
		}
	}
}

// Run purges on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 || len(j.tasks) == 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}
