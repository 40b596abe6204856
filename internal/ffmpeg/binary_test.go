package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg writes an executable shell script that prints versionLine to
// stdout for "-version" and exits 0, standing in for a real FFmpeg binary.
func fakeFFmpeg(t *testing.T, versionLine string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\necho '" + versionLine + "'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestFFmpegVersion_ParsesMajorMinor(t *testing.T) {
	path := fakeFFmpeg(t, "ffmpeg version 6.1.1 Copyright (c) 2000-2024 the FFmpeg developers")
	v, err := ffmpegVersion(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 6, v.major)
	assert.Equal(t, 1, v.minor)
	assert.Equal(t, "6.1.1", v.full)
}

func TestFFmpegVersion_ParsesNPrefixedDevBuild(t *testing.T) {
	path := fakeFFmpeg(t, "ffmpeg version n5.1-dev-1234-gabcdef Copyright (c) 2000-2024 the FFmpeg developers")
	v, err := ffmpegVersion(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 5, v.major)
	assert.Equal(t, 1, v.minor)
}

func TestFFmpegVersion_RejectsUnrecognizedOutput(t *testing.T) {
	path := fakeFFmpeg(t, "not ffmpeg at all")
	_, err := ffmpegVersion(context.Background(), path)
	assert.Error(t, err)
}

func TestReachable(t *testing.T) {
	good := fakeFFmpeg(t, "ffmpeg version 6.0 Copyright")
	assert.True(t, Reachable(context.Background(), good))
	assert.False(t, Reachable(context.Background(), filepath.Join(t.TempDir(), "missing")))
}

func TestDetector_DetectCachesUntilTTL(t *testing.T) {
	path := fakeFFmpeg(t, "ffmpeg version 6.0 Copyright")
	d := NewDetector(path, path)
	d.cacheTTL = 20 * time.Millisecond

	info, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, info.MajorVersion)
	assert.Equal(t, path, info.FFprobePath)

	cached, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Same(t, info, cached)

	time.Sleep(30 * time.Millisecond)
	refreshed, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, info, refreshed)
}

func TestDetector_DetectErrorsOnMissingBinary(t *testing.T) {
	d := NewDetector(filepath.Join(t.TempDir(), "missing"), "ffprobe")
	_, err := d.Detect(context.Background())
	assert.Error(t, err)
}
