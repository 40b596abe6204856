package handlers

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"

	"github.com/nodnarbrox/gpuxcode/internal/bytesize"
	"github.com/nodnarbrox/gpuxcode/internal/config"
	"github.com/nodnarbrox/gpuxcode/internal/job"
	"github.com/nodnarbrox/gpuxcode/internal/rewrite"
)

// TranscodeHandler backs the job-submission endpoints: POST /transcode and
// POST /transcode/raw. Direct-stream submission lives in stream.go since it
// bypasses huma's JSON request/response cycle entirely.
type TranscodeHandler struct {
	cfg       *config.Config
	registry  *job.Registry
	scheduler *job.Scheduler
}

// NewTranscodeHandler creates a transcode handler bound to the engine's
// registry and scheduler.
func NewTranscodeHandler(cfg *config.Config, registry *job.Registry, scheduler *job.Scheduler) *TranscodeHandler {
	return &TranscodeHandler{cfg: cfg, registry: registry, scheduler: scheduler}
}

// Register registers the transcode routes with the API.
func (h *TranscodeHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "submitTranscode",
		Method:      "POST",
		Path:        "/transcode",
		Summary:     "Submit a transcode job",
		Description: "Registers a job and, unless beam_stream is set, enqueues it onto the worker pool",
		Tags:        []string{"Transcode"},
	}, h.Submit)

	huma.Register(api, huma.Operation{
		OperationID: "submitTranscodeRaw",
		Method:      "POST",
		Path:        "/transcode/raw",
		Summary:     "Submit a transcode job from a parsed-args shortcut",
		Description: "Enqueue from a parsed-args shortcut used by upstream-A",
		Tags:        []string{"Transcode"},
	}, h.SubmitRaw)
}

// TranscodeInputBody describes a job submission.
type TranscodeInputBody struct {
	JobID     string              `json:"job_id" doc:"Caller-assigned job identifier"`
	Input     TranscodeInputSpec  `json:"input"`
	Output    TranscodeOutputSpec `json:"output"`
	Arguments TranscodeArguments  `json:"arguments"`
	Source    string              `json:"source" enum:"upstream-A,upstream-B" doc:"Caller dialect"`
	// BeamStream, when true, registers the job without enqueuing it — the
	// caller drives it afterward via POST /beam/stream/{job_id}.
	BeamStream  bool   `json:"beam_stream,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// TranscodeInputSpec describes where the job's input comes from.
type TranscodeInputSpec struct {
	// Type is "path" for a shared-filesystem input, or "upload" for one
	// already placed via PUT /beam/upload/{job_id}.
	Type string `json:"type" enum:"path,upload"`
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
}

// TranscodeOutputSpec describes where the job writes its output.
type TranscodeOutputSpec struct {
	// Type is "shared" for the shared output mount, or "beam" for the
	// worker's private temp tree served back via /beam/segment.
	Type            string  `json:"type" enum:"shared,beam"`
	SegmentDuration float64 `json:"segment_duration,omitempty"`
}

// TranscodeArguments carries the caller's raw FFmpeg-style argument vector.
type TranscodeArguments struct {
	RawArgs []string `json:"raw_args"`
}

// TranscodeInput is the huma input wrapper for POST /transcode.
type TranscodeInput struct {
	APIKey string `header:"X-API-Key"`
	Body   TranscodeInputBody
}

// TranscodeOutputBody is the response body shared by both submission
// endpoints.
type TranscodeOutputBody struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// TranscodeOutput is the huma output wrapper for POST /transcode.
type TranscodeOutput struct {
	Body TranscodeOutputBody
}

func dialectFor(source string) (rewrite.Dialect, error) {
	switch source {
	case string(rewrite.DialectUpstreamA):
		return rewrite.DialectUpstreamA, nil
	case string(rewrite.DialectUpstreamB):
		return rewrite.DialectUpstreamB, nil
	default:
		return "", fmt.Errorf("unknown source dialect %q", source)
	}
}

// outputDirFor resolves a job's working/output directory from the
// requested output type.
func (h *TranscodeHandler) outputDirFor(outputType, jobID string) string {
	if outputType == "shared" {
		return filepath.Join(h.cfg.Storage.SharedOutputDir, jobID)
	}
	return filepath.Join(h.cfg.Storage.TempDir, jobID)
}

// beamMaxBitrate returns the configured beam-mode bitrate cap formatted for
// rewrite.Request.BeamMaxBitrate, or "" if none is configured.
func (h *TranscodeHandler) beamMaxBitrate() string {
	if h.cfg.Beam.MaxBitrate == bytesize.Size(0) {
		return ""
	}
	return h.cfg.Beam.MaxBitrate.String()
}

// Submit registers a job and, for non-beam-stream modes, enqueues it.
func (h *TranscodeHandler) Submit(ctx context.Context, input *TranscodeInput) (*TranscodeOutput, error) {
	if err := checkAPIKey(h.cfg.Auth.APIKey, input.APIKey); err != nil {
		return nil, err
	}

	body := input.Body
	if body.JobID == "" {
		return nil, huma.Error400BadRequest("job_id is required")
	}
	if h.registry.Has(body.JobID) {
		return nil, huma.Error400BadRequest(fmt.Sprintf("job %s already submitted", body.JobID))
	}

	dialect, err := dialectFor(body.Source)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	spec := job.Spec{
		JobID:      body.JobID,
		RawArgs:    body.Arguments.RawArgs,
		Dialect:    dialect,
		OutputDir:  h.outputDirFor(body.Output.Type, body.JobID),
		MaxBitrate: h.beamMaxBitrate(),
	}

	switch {
	case body.BeamStream:
		spec.IOMode = job.IOBeamStream
	case body.Input.Type == "upload":
		spec.IOMode = job.IOShared
		spec.InputPath = filepath.Join(h.cfg.Storage.TempDir, body.JobID, "input")
	default:
		spec.IOMode = job.IOShared
	}

	j := job.NewJob(spec)
	h.registry.Add(j)

	if spec.IOMode == job.IOBeamStream {
		return &TranscodeOutput{Body: TranscodeOutputBody{
			JobID:   j.ID,
			Status:  string(j.Status()),
			Message: "job registered; awaiting POST /beam/stream/" + j.ID,
		}}, nil
	}

	if !h.scheduler.Enqueue(j) {
		return nil, huma.Error500InternalServerError("queue is full")
	}

	return &TranscodeOutput{Body: TranscodeOutputBody{
		JobID:   j.ID,
		Status:  string(j.Status()),
		Message: "job queued",
	}}, nil
}

// SubmitRawInput is the input for POST /transcode/raw.
type SubmitRawInput struct {
	JobID  string `query:"job_id" doc:"Caller-assigned job identifier"`
	APIKey string `header:"X-API-Key"`
	Body   struct {
		RawArgs []string `json:"raw_args"`
		Source  string   `json:"source" enum:"upstream-A,upstream-B"`
	}
}

// SubmitRaw enqueues a job from a parsed-args shortcut used by upstream-A:
// the job_id travels in the query string and the body carries only the
// argument vector and dialect.
func (h *TranscodeHandler) SubmitRaw(ctx context.Context, input *SubmitRawInput) (*TranscodeOutput, error) {
	if err := checkAPIKey(h.cfg.Auth.APIKey, input.APIKey); err != nil {
		return nil, err
	}

	if input.JobID == "" {
		return nil, huma.Error400BadRequest("job_id is required")
	}
	if h.registry.Has(input.JobID) {
		return nil, huma.Error400BadRequest(fmt.Sprintf("job %s already submitted", input.JobID))
	}

	dialect, err := dialectFor(input.Body.Source)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	spec := job.Spec{
		JobID:      input.JobID,
		RawArgs:    input.Body.RawArgs,
		Dialect:    dialect,
		IOMode:     job.IOShared,
		OutputDir:  h.outputDirFor("beam", input.JobID),
		MaxBitrate: h.beamMaxBitrate(),
	}

	j := job.NewJob(spec)
	h.registry.Add(j)
	if !h.scheduler.Enqueue(j) {
		return nil, huma.Error500InternalServerError("queue is full")
	}

	return &TranscodeOutput{Body: TranscodeOutputBody{
		JobID:   j.ID,
		Status:  string(j.Status()),
		Message: "job queued",
	}}, nil
}
