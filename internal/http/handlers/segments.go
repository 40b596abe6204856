package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/nodnarbrox/gpuxcode/internal/config"
	"github.com/nodnarbrox/gpuxcode/internal/gpuxerr"
	"github.com/nodnarbrox/gpuxcode/internal/job"
)

// SegmentsHandler backs GET /segments/{job_id}/{filename}: the
// shared-filesystem-mode counterpart of BeamHandler.ServeSegment.
type SegmentsHandler struct {
	cfg      *config.Config
	registry *job.Registry
}

// NewSegmentsHandler creates a shared-output segment server.
func NewSegmentsHandler(cfg *config.Config, registry *job.Registry) *SegmentsHandler {
	return &SegmentsHandler{cfg: cfg, registry: registry}
}

// RegisterRoutes mounts the segment route on router.
func (h *SegmentsHandler) RegisterRoutes(router chi.Router) {
	router.Get("/segments/{job_id}/{filename}", h.ServeSegment)
}

// ServeSegment serves one output file from a shared-filesystem-mode job's
// output directory.
func (h *SegmentsHandler) ServeSegment(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	filename := chi.URLParam(r, "filename")
	if containsUnsafePathElement(filename) {
		writeJSONErr(w, gpuxerr.KindBadRequest, "invalid filename")
		return
	}

	dir := filepath.Join(h.cfg.Storage.SharedOutputDir, jobID)
	if j, ok := h.registry.Get(jobID); ok {
		dir = j.Spec.OutputDir
	}

	http.ServeFile(w, r, filepath.Join(dir, filename))
}
