package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/nodnarbrox/gpuxcode/internal/config"
	"github.com/nodnarbrox/gpuxcode/internal/gpuxerr"
	"github.com/nodnarbrox/gpuxcode/internal/job"
)

// JobHandler backs the job-lifecycle query/control endpoints: GET
// /status/{job_id}, DELETE /job/{job_id}, and GET /jobs.
type JobHandler struct {
	cfg      *config.Config
	registry *job.Registry
}

// NewJobHandler creates a job handler bound to the engine's registry.
func NewJobHandler(cfg *config.Config, registry *job.Registry) *JobHandler {
	return &JobHandler{cfg: cfg, registry: registry}
}

// Register registers the job routes with the API.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getJobStatus",
		Method:      "GET",
		Path:        "/status/{job_id}",
		Summary:     "Get job status",
		Description: "Returns the job's progress record and stamps last-polled-at for non-terminal jobs",
		Tags:        []string{"Jobs"},
	}, h.Status)

	huma.Register(api, huma.Operation{
		OperationID: "cancelJob",
		Method:      "DELETE",
		Path:        "/job/{job_id}",
		Summary:     "Cancel job",
		Description: "Cancels a queued or running job",
		Tags:        []string{"Jobs"},
	}, h.Cancel)

	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      "GET",
		Path:        "/jobs",
		Summary:     "List jobs",
		Description: "Returns every known job and its current progress",
		Tags:        []string{"Jobs"},
	}, h.List)
}

// JobStatusInput is the input for GET /status/{job_id}.
type JobStatusInput struct {
	JobID string `path:"job_id"`
}

// JobProgressResponse is the wire representation of a Job's progress.
type JobProgressResponse struct {
	JobID         string  `json:"job_id"`
	Status        string  `json:"status"`
	Frame         int     `json:"frame"`
	FPS           float64 `json:"fps"`
	Bitrate       string  `json:"bitrate"`
	TotalSize     int64   `json:"total_size"`
	OutTimeMicros int64   `json:"out_time_micros"`
	Speed         float64 `json:"speed"`
	Percent       float64 `json:"percent"`
	Done          bool    `json:"done"`
	Error         string  `json:"error,omitempty"`
}

func progressResponse(j *job.Job) JobProgressResponse {
	snap := j.Snapshot()
	return JobProgressResponse{
		JobID:         j.ID,
		Status:        string(snap.Status),
		Frame:         snap.Frame,
		FPS:           snap.FPS,
		Bitrate:       snap.Bitrate,
		TotalSize:     snap.TotalSize,
		OutTimeMicros: snap.OutTimeMicros,
		Speed:         snap.Speed,
		Percent:       snap.Percent,
		Done:          snap.Done,
		Error:         snap.Error,
	}
}

// JobStatusOutput is the output for GET /status/{job_id}.
type JobStatusOutput struct {
	Body JobProgressResponse
}

// Status returns a job's progress record and, for non-terminal jobs,
// stamps last-polled-at so the orphan reaper sees this caller as alive.
func (h *JobHandler) Status(ctx context.Context, input *JobStatusInput) (*JobStatusOutput, error) {
	j, ok := h.registry.Get(input.JobID)
	if !ok {
		return nil, httpError(gpuxerr.New(gpuxerr.KindNotFound, "job "+input.JobID+" not found"))
	}
	j.MarkPolled()
	return &JobStatusOutput{Body: progressResponse(j)}, nil
}

// CancelJobInput is the input for DELETE /job/{job_id}.
type CancelJobInput struct {
	JobID  string `path:"job_id"`
	APIKey string `header:"X-API-Key"`
}

// CancelJobOutput is the output for DELETE /job/{job_id}.
type CancelJobOutput struct {
	Body struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
}

// Cancel cancels a queued or running job. Cancelling an already-terminal
// job is a no-op, not an error.
func (h *JobHandler) Cancel(ctx context.Context, input *CancelJobInput) (*CancelJobOutput, error) {
	if err := checkAPIKey(h.cfg.Auth.APIKey, input.APIKey); err != nil {
		return nil, err
	}

	j, ok := h.registry.Get(input.JobID)
	if !ok {
		return nil, httpError(gpuxerr.New(gpuxerr.KindNotFound, "job "+input.JobID+" not found"))
	}
	j.Cancel()

	out := &CancelJobOutput{}
	out.Body.JobID = j.ID
	out.Body.Status = string(j.Status())
	return out, nil
}

// ListJobsInput is the input for GET /jobs.
type ListJobsInput struct{}

// ListJobsOutput is the output for GET /jobs.
type ListJobsOutput struct {
	Body struct {
		Jobs []JobProgressResponse `json:"jobs"`
	}
}

// List returns every known job and its current progress.
func (h *JobHandler) List(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	jobs := h.registry.List()
	out := &ListJobsOutput{}
	out.Body.Jobs = make([]JobProgressResponse, 0, len(jobs))
	for _, j := range jobs {
		out.Body.Jobs = append(out.Body.Jobs, progressResponse(j))
	}
	return out, nil
}
