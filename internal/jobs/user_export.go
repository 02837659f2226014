// Package jobs holds the background jobs started by cmd/server.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dpc-platform/dpc-admin/internal/config"
	"github.com/dpc-platform/dpc-admin/internal/export"
	"github.com/dpc-platform/dpc-admin/internal/telemetry"
)

// Export triggers, used as the user_exports_total label.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// exportArchiver is satisfied by *export.Archiver
type exportArchiver interface {
	Archive(ctx context.Context, exp *export.Export) (*export.ArchiveResult, error)
}

// UserExportJob periodically archives a full export of the user directory.
type UserExportJob struct {
	users    export.UserSource
	archiver exportArchiver
	interval time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewUserExportJob creates the job. interval_hours below 1 defaults to 24.
func NewUserExportJob(users export.UserSource, archiver exportArchiver, cfg *config.ExportsConfig) *UserExportJob {
	hours := cfg.IntervalHours
	if hours <= 0 {
		hours = 24
	}
	return &UserExportJob{
		users:    users,
		archiver: archiver,
		interval: time.Duration(hours) * time.Hour,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Interval returns the time between runs
func (j *UserExportJob) Interval() time.Duration {
	return j.interval
}

// Start runs the job on every tick until ctx is cancelled or Stop is called. The first
// run happens one interval after start.
func (j *UserExportJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("user export job started", "interval", j.interval)

	for {
		select {
		case <-ticker.C:
			if _, err := j.Run(ctx, TriggerScheduled); err != nil {
				slog.Error("scheduled user export failed", "error", err)
			}
		case <-j.stopChan:
			slog.Info("user export job stopped")
			return
		case <-ctx.Done():
			slog.Info("user export job context cancelled")
			return
		}
	}
}

// Stop signals the loop to exit. It is safe to call more than once.
func (j *UserExportJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

// Run builds and archives one export
func (j *UserExportJob) Run(ctx context.Context, trigger string) (*export.ArchiveResult, error) {
	start := time.Now()

	exp, err := export.Build(ctx, j.users, j.now())
	if err != nil {
		return nil, fmt.Errorf("failed to build user export: %w", err)
	}
	res, err := j.archiver.Archive(ctx, exp)
	if err != nil {
		return nil, err
	}

	telemetry.UserExportsTotal.WithLabelValues(trigger).Inc()
	telemetry.UserExportRows.Set(float64(exp.Rows))
	slog.Info("user export completed",
		"trigger", trigger,
		"path", res.Path,
		"rows", exp.Rows,
		"duration", time.Since(start))
	return res, nil
}
