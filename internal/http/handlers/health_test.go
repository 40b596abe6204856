package handlers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodnarbrox/gpuxcode/internal/config"
	"github.com/nodnarbrox/gpuxcode/internal/ffmpeg"
	"github.com/nodnarbrox/gpuxcode/internal/job"
)

func fakeFFmpegBinary(t *testing.T, versionLine string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\necho '" + versionLine + "'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestHealthHandler_GetHealth_Reachable(t *testing.T) {
	bin := fakeFFmpegBinary(t, "ffmpeg version 6.1 Copyright (c) 2000-2023")
	detector := ffmpeg.NewDetector(bin, bin)
	scheduler := job.NewScheduler(noopRunner{}, job.NewRegistry(), 1, 4, nil)

	h := NewHealthHandler(config.AccelNVENC, "", detector, scheduler)
	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "healthy", out.Body.Status)
	assert.Equal(t, "nvenc", out.Body.Accelerator)
	assert.True(t, out.Body.FFmpegReachable)
	assert.Equal(t, 0, out.Body.ActiveJobs)
}

func TestHealthHandler_GetHealth_Unreachable(t *testing.T) {
	detector := ffmpeg.NewDetector("/no/such/ffmpeg-binary", "/no/such/ffprobe-binary")
	scheduler := job.NewScheduler(noopRunner{}, job.NewRegistry(), 1, 4, nil)

	h := NewHealthHandler(config.AccelNone, "", detector, scheduler)
	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "degraded", out.Body.Status)
	assert.False(t, out.Body.FFmpegReachable)
}

// noopRunner satisfies the scheduler's queueRunner interface without
// spawning anything; these tests only care about ActiveCount().
type noopRunner struct{}

func (noopRunner) RunQueued(ctx context.Context, j *job.Job) error { return nil }
