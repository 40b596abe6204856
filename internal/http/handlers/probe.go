package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/nodnarbrox/gpuxcode/internal/config"
	"github.com/nodnarbrox/gpuxcode/internal/ffmpeg"
	"github.com/nodnarbrox/gpuxcode/internal/gpuxerr"
)

// ProbeHandler backs GET /probe.
type ProbeHandler struct {
	ffprobePath string
}

// NewProbeHandler creates a probe handler bound to the configured FFprobe
// binary.
func NewProbeHandler(cfg *config.Config) *ProbeHandler {
	return &ProbeHandler{ffprobePath: cfg.FFmpeg.ProbePath}
}

// Register registers the probe route with the API.
func (h *ProbeHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "probeInput",
		Method:      "GET",
		Path:        "/probe",
		Summary:     "Probe an input file",
		Description: "Returns the duration of the file at path by invoking FFprobe",
		Tags:        []string{"Probe"},
	}, h.Probe)
}

// ProbeInput is the input for GET /probe.
type ProbeInput struct {
	Path string `query:"path" required:"true"`
}

// ProbeOutput is the output for GET /probe.
type ProbeOutput struct {
	Body struct {
		Duration float64 `json:"duration"`
	}
}

// Probe invokes FFprobe against the requested path.
func (h *ProbeHandler) Probe(ctx context.Context, input *ProbeInput) (*ProbeOutput, error) {
	if input.Path == "" {
		return nil, httpError(gpuxerr.New(gpuxerr.KindBadRequest, "path is required"))
	}

	result, err := ffmpeg.Probe(ctx, h.ffprobePath, input.Path)
	if err != nil {
		return nil, httpError(gpuxerr.Wrap(gpuxerr.KindSubprocessFailed, "ffprobe failed", err))
	}

	out := &ProbeOutput{}
	out.Body.Duration = result.DurationSeconds
	return out, nil
}
