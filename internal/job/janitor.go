package job

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nodnarbrox/gpuxcode/internal/config"
)

// Janitors runs two periodic sweeps: an orphan reaper that cancels jobs a
// client has stopped polling, and a temp-tree cleaner that removes terminal
// jobs' output directories and any leftover directory the registry no
// longer knows about.
type Janitors struct {
	registry *Registry
	cfg      *config.Config
	logger   *slog.Logger
}

// NewJanitors builds a Janitors bound to registry and cfg.
func NewJanitors(registry *Registry, cfg *config.Config, logger *slog.Logger) *Janitors {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitors{registry: registry, cfg: cfg, logger: logger}
}

// Run starts both sweep loops; they stop when ctx is cancelled.
func (j *Janitors) Run(ctx context.Context) {
	go j.runOrphanReaper(ctx)
	go j.runTempCleaner(ctx)
}

// runOrphanReaper cancels any running/queued job that has gone unpolled for
// longer than OrphanMaxSilence. Jobs that have never been polled at all are
// deliberately left alone, so a freshly enqueued job cannot be reaped before
// any client has had a chance to poll it.
func (j *Janitors) runOrphanReaper(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Jobs.OrphanPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.reapOrphans()
		}
	}
}

func (j *Janitors) reapOrphans() {
	for _, job := range j.registry.List() {
		switch job.Status() {
		case StatusRunning, StatusQueued:
		default:
			continue
		}
		silence, everPolled := job.SilentFor()
		if !everPolled || silence <= j.cfg.Jobs.OrphanMaxSilence {
			continue
		}
		j.logger.Warn("orphan reaper cancelling unpolled job",
			slog.String("job_id", job.ID),
			slog.Duration("silence", silence),
		)
		job.Cancel()
		job.Broadcast(job.Snapshot())
	}
}

// runTempCleaner removes terminal jobs' output directories once TempRetention
// has elapsed past completed-at, then sweeps the temp root for directories
// the registry no longer tracks.
func (j *Janitors) runTempCleaner(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Jobs.TempCleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.cleanTerminalJobs()
			j.sweepOrphanDirs()
		}
	}
}

func (j *Janitors) cleanTerminalJobs() {
	now := time.Now()
	for _, job := range j.registry.List() {
		if !job.Status().Terminal() {
			continue
		}
		completedAt := job.CompletedAt()
		if completedAt.IsZero() || now.Sub(completedAt) < j.cfg.Jobs.TempRetention {
			continue
		}
		if job.Spec.OutputDir != "" {
			if err := os.RemoveAll(job.Spec.OutputDir); err != nil {
				j.logger.Warn("temp cleaner failed to remove output dir",
					slog.String("job_id", job.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		j.registry.Remove(job.ID)
	}
}

// sweepOrphanDirs removes any directory directly under the temp root that
// has no matching registry entry and whose mtime exceeds OrphanDirMaxAge —
// the backstop for dirs left behind by a worker restart mid-job.
func (j *Janitors) sweepOrphanDirs() {
	entries, err := os.ReadDir(j.cfg.Storage.TempDir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-j.cfg.Storage.OrphanDirMaxAge)
	for _, entry := range entries {
		if !entry.IsDir() || j.registry.Has(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.cfg.Storage.TempDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn("temp cleaner failed to remove orphan dir",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		j.logger.Debug("temp cleaner removed orphan dir", slog.String("path", path))
	}
}
