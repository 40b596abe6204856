// Package engine wires the Job Registry, Job Scheduler, Transcoder Driver,
// and Janitors into the single process-wide value the rest of the service
// depends on. Per the design note against ambient singletons, every piece
// of global mutable state — the registry, the queue, the FFmpeg config —
// lives as a field here, constructed once at startup.
package engine

import (
	"context"
	"log/slog"

	"github.com/nodnarbrox/gpuxcode/internal/config"
	"github.com/nodnarbrox/gpuxcode/internal/ffmpeg"
	"github.com/nodnarbrox/gpuxcode/internal/job"
	"github.com/nodnarbrox/gpuxcode/internal/pathmap"
)

// Engine is the worker's top-level runtime value.
type Engine struct {
	Config    *config.Config
	Registry  *job.Registry
	Scheduler *job.Scheduler
	Driver    *job.Driver
	Janitors  *job.Janitors
	Mapper    *pathmap.Mapper
	Detector  *ffmpeg.Detector
	Logger    *slog.Logger
}

// New constructs an Engine from cfg, wiring the mapper from cfg.PathMap,
// the binary detector from cfg.FFmpeg, and the scheduler's worker pool to
// cfg.Jobs.MaxConcurrent.
func New(cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	rules := make([]pathmap.Rule, 0, len(cfg.PathMap.Pairs()))
	for _, pair := range cfg.PathMap.Pairs() {
		rules = append(rules, pathmap.Rule{From: pair[0], To: pair[1]})
	}
	mapper := pathmap.New(rules...)

	detector := ffmpeg.NewDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	registry := job.NewRegistry()
	driver := job.NewDriver(cfg, mapper, detector, logger)

	queueDepth := cfg.Jobs.MaxConcurrent * 4
	scheduler := job.NewScheduler(driver, registry, cfg.Jobs.MaxConcurrent, queueDepth, logger)
	janitors := job.NewJanitors(registry, cfg, logger)

	return &Engine{
		Config:    cfg,
		Registry:  registry,
		Scheduler: scheduler,
		Driver:    driver,
		Janitors:  janitors,
		Mapper:    mapper,
		Detector:  detector,
		Logger:    logger,
	}
}

// Start launches the janitor sweep loops; they run until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.Janitors.Run(ctx)
}

// Shutdown drains the scheduler's worker pool.
func (e *Engine) Shutdown() {
	e.Scheduler.Shutdown()
}
