package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/nodnarbrox/gpuxcode/internal/config"
	"github.com/nodnarbrox/gpuxcode/internal/gpuxerr"
	"github.com/nodnarbrox/gpuxcode/internal/http/middleware"
	"github.com/nodnarbrox/gpuxcode/internal/job"
)

// StreamHandler backs POST /transcode/stream: it bypasses huma entirely
// since the response body is the live FFmpeg container output, not JSON.
type StreamHandler struct {
	cfg      *config.Config
	registry *job.Registry
	driver   *job.Driver
	logger   *slog.Logger
}

// NewStreamHandler creates a direct-stream handler.
func NewStreamHandler(cfg *config.Config, registry *job.Registry, driver *job.Driver, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{cfg: cfg, registry: registry, driver: driver, logger: logger}
}

// RegisterRoutes mounts the direct-stream route on router, behind the
// shared-secret header when one is configured.
func (h *StreamHandler) RegisterRoutes(router chi.Router) {
	router.With(middleware.RequireAPIKey(h.cfg.Auth.APIKey)).Post("/transcode/stream", h.ServeHTTP)
}

type directStreamRequest struct {
	InputPath string   `json:"input_path"`
	Format    string   `json:"format"`
	RawArgs   []string `json:"raw_args"`
	Source    string   `json:"source"`
}

func writeJSONErr(w http.ResponseWriter, kind gpuxerr.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.StatusCode())
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ServeHTTP drives a direct-stream transcode: FFmpeg's stdout is copied
// straight into the response as it is produced.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req directStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONErr(w, gpuxerr.KindBadRequest, "invalid request body: "+err.Error())
		return
	}

	dialect, err := dialectFor(req.Source)
	if err != nil {
		writeJSONErr(w, gpuxerr.KindBadRequest, err.Error())
		return
	}
	if req.InputPath == "" {
		writeJSONErr(w, gpuxerr.KindBadRequest, "input_path is required")
		return
	}

	jobID := ulid.Make().String()
	spec := job.Spec{
		JobID:           jobID,
		RawArgs:         req.RawArgs,
		Dialect:         dialect,
		IOMode:          job.IODirectStream,
		InputPath:       req.InputPath,
		ContainerFormat: req.Format,
	}
	j := job.NewJob(spec)
	h.registry.Add(j)
	defer h.registry.Remove(j.ID)

	// The server's default WriteTimeout is far shorter than firstByteTimeout
	// and a transcode's total runtime; this response runs to completion on
	// its own terms.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "video/mp2t")
	if req.Format != "" && req.Format != "mpegts" {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.WriteHeader(http.StatusOK)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if err := h.driver.RunDirectStream(r.Context(), j, w); err != nil {
		h.logger.Error("direct-stream job failed",
			slog.String("job_id", j.ID),
			slog.Any("error", err),
		)
	}
}
