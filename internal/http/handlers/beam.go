package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nodnarbrox/gpuxcode/internal/config"
	"github.com/nodnarbrox/gpuxcode/internal/gpuxerr"
	"github.com/nodnarbrox/gpuxcode/internal/http/middleware"
	"github.com/nodnarbrox/gpuxcode/internal/job"
)

// BeamHandler backs the beam-mode upload/stream/segment-serving routes.
// These bypass huma: the bodies are raw byte streams, not JSON.
type BeamHandler struct {
	cfg      *config.Config
	registry *job.Registry
	driver   *job.Driver
	logger   *slog.Logger
}

// NewBeamHandler creates a beam-mode handler.
func NewBeamHandler(cfg *config.Config, registry *job.Registry, driver *job.Driver, logger *slog.Logger) *BeamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BeamHandler{cfg: cfg, registry: registry, driver: driver, logger: logger}
}

// RegisterRoutes mounts the beam-mode routes on router. The two mutating
// routes (stream, upload) require the shared-secret header when one is
// configured; the read-only segment routes do not.
func (h *BeamHandler) RegisterRoutes(router chi.Router) {
	authed := router.With(middleware.RequireAPIKey(h.cfg.Auth.APIKey))
	authed.Post("/beam/stream/{job_id}", h.Stream)
	authed.Put("/beam/upload/{job_id}", h.Upload)
	router.Get("/beam/segments/{job_id}", h.ListSegments)
	router.Get("/beam/segment/{job_id}/{filename}", h.ServeSegment)
}

// containsUnsafePathElement rejects a filename that could escape the job's
// output directory via a path separator or a "..", ".." component.
func containsUnsafePathElement(name string) bool {
	return name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..")
}

// Stream drives beam-stream mode: the request body is forwarded into the
// FFmpeg subprocess's stdin. The job must have been registered with
// beam_stream:true via POST /transcode first.
func (h *BeamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	j, ok := h.registry.Get(jobID)
	if !ok {
		writeJSONErr(w, gpuxerr.KindNotFound, "job "+jobID+" not found")
		return
	}
	if j.Spec.IOMode != job.IOBeamStream {
		writeJSONErr(w, gpuxerr.KindBadRequest, "job "+jobID+" was not registered for beam-stream mode")
		return
	}

	// The server's default read/write timeouts are far shorter than a
	// transcode's runtime; this request body is consumed for as long as
	// the subprocess is alive.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	if err := h.driver.RunBeamStream(r.Context(), j, r.Body); err != nil {
		h.logger.Error("beam-stream job failed",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		writeJSONErr(w, gpuxerr.KindSubprocessFailed, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"job_id": jobID, "status": string(j.Status())})
}

// Upload writes the request body to <temp>/<job_id>/input so a subsequent
// POST /transcode submission can reference it as an upload-mode input.
func (h *BeamHandler) Upload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if containsUnsafePathElement(jobID) {
		writeJSONErr(w, gpuxerr.KindBadRequest, "invalid job_id")
		return
	}

	dir := filepath.Join(h.cfg.Storage.TempDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		writeJSONErr(w, gpuxerr.KindSubprocessFailed, "creating upload directory: "+err.Error())
		return
	}

	dst, err := os.Create(filepath.Join(dir, "input"))
	if err != nil {
		writeJSONErr(w, gpuxerr.KindSubprocessFailed, "creating upload file: "+err.Error())
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r.Body); err != nil {
		writeJSONErr(w, gpuxerr.KindSubprocessFailed, "writing upload: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"job_id": jobID, "status": "uploaded"})
}

// ListSegments lists the output filenames for a beam-mode job, excluding
// the uploaded input and any in-progress temp files.
func (h *BeamHandler) ListSegments(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	j, ok := h.registry.Get(jobID)
	var dir string
	if ok {
		dir = j.Spec.OutputDir
	} else {
		dir = filepath.Join(h.cfg.Storage.TempDir, jobID)
	}

	names, err := listOutputFiles(dir)
	if err != nil {
		writeJSONErr(w, gpuxerr.KindNotFound, "job "+jobID+" has no output directory")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string][]string{"segments": names})
}

// ServeSegment serves one output file from a beam-mode job's directory.
func (h *BeamHandler) ServeSegment(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	filename := chi.URLParam(r, "filename")
	if containsUnsafePathElement(filename) {
		writeJSONErr(w, gpuxerr.KindBadRequest, "invalid filename")
		return
	}

	j, ok := h.registry.Get(jobID)
	var dir string
	if ok {
		dir = j.Spec.OutputDir
	} else {
		dir = filepath.Join(h.cfg.Storage.TempDir, jobID)
	}

	http.ServeFile(w, r, filepath.Join(dir, filename))
}

// listOutputFiles returns the names of regular files in dir, excluding the
// beam-upload input and any file still being written (suffix ".tmp").
func listOutputFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == "input" || strings.HasSuffix(name, ".tmp") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
