package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAPIKey_EmptyKeyDisablesCheck(t *testing.T) {
	h := RequireAPIKey("")(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/transcode", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAPIKey_MissingHeaderRejected(t *testing.T) {
	h := RequireAPIKey("s3cr3t")(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/transcode", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAPIKey_WrongHeaderRejected(t *testing.T) {
	h := RequireAPIKey("s3cr3t")(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/transcode", nil)
	req.Header.Set(AuthHeader, "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAPIKey_CorrectHeaderAccepted(t *testing.T) {
	h := RequireAPIKey("s3cr3t")(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/transcode", nil)
	req.Header.Set(AuthHeader, "s3cr3t")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
