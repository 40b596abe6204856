// Package handlers provides HTTP API handlers for gpuxcoded.
package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/nodnarbrox/gpuxcode/internal/config"
	"github.com/nodnarbrox/gpuxcode/internal/ffmpeg"
	"github.com/nodnarbrox/gpuxcode/internal/job"
	"github.com/nodnarbrox/gpuxcode/internal/sysinfo"
)

// HealthHandler backs GET /health.
type HealthHandler struct {
	accelerator config.Accelerator
	storageDir  string
	detector    *ffmpeg.Detector
	scheduler   *job.Scheduler
	startTime   time.Time
}

// NewHealthHandler creates a health handler bound to the running scheduler
// and binary detector. storageDir, when non-empty, is where disk free space
// is reported from.
func NewHealthHandler(accelerator config.Accelerator, storageDir string, detector *ffmpeg.Detector, scheduler *job.Scheduler) *HealthHandler {
	return &HealthHandler{
		accelerator: accelerator,
		storageDir:  storageDir,
		detector:    detector,
		scheduler:   scheduler,
		startTime:   time.Now(),
	}
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status          string        `json:"status"`
	Accelerator     string        `json:"accelerator"`
	ActiveJobs      int           `json:"active_jobs"`
	FFmpegReachable bool          `json:"ffmpeg_reachable"`
	UptimeSeconds   float64       `json:"uptime_seconds"`
	System          sysinfo.Stats `json:"system"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Liveness probe: accelerator in use, active job count, and FFmpeg binary reachability",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	_, err := h.detector.Detect(ctx)
	reachable := err == nil

	status := "healthy"
	if !reachable {
		status = "degraded"
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:          status,
			Accelerator:     string(h.accelerator),
			ActiveJobs:      h.scheduler.ActiveCount(),
			FFmpegReachable: reachable,
			UptimeSeconds:   time.Since(h.startTime).Seconds(),
			System:          sysinfo.Collect(ctx, h.storageDir),
		},
	}, nil
}
