package handlers

import (
	"crypto/sha256"
	"crypto/subtle"

	"github.com/danielgtaylor/huma/v2"

	"github.com/nodnarbrox/gpuxcode/internal/gpuxerr"
)

// httpError maps a classified gpuxerr.Error to its huma status error,
// falling back to 500 for anything else.
func httpError(err error) error {
	if classified, ok := gpuxerr.As(err); ok {
		return huma.NewError(classified.Kind.StatusCode(), classified.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}

// checkAPIKey enforces the optional shared-secret header on a mutating huma
// operation. An empty configured key disables the check. Comparison is
// constant-time to avoid leaking the key length/prefix via response timing.
func checkAPIKey(configured, provided string) error {
	if configured == "" {
		return nil
	}
	want := sha256.Sum256([]byte(configured))
	got := sha256.Sum256([]byte(provided))
	if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
		return huma.Error401Unauthorized("invalid or missing API key")
	}
	return nil
}
