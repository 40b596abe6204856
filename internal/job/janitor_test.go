package job

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodnarbrox/gpuxcode/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Jobs.OrphanPollInterval = 10 * time.Millisecond
	cfg.Jobs.OrphanMaxSilence = 50 * time.Millisecond
	cfg.Jobs.TempCleanInterval = 10 * time.Millisecond
	cfg.Jobs.TempRetention = 50 * time.Millisecond
	cfg.Storage.TempDir = t.TempDir()
	cfg.Storage.OrphanDirMaxAge = time.Hour
	return cfg
}

func TestJanitors_ReapOrphans(t *testing.T) {
	registry := NewRegistry()
	j := NewJob(Spec{JobID: "j1"})
	j.MarkRunning()
	j.MarkPolled()
	registry.Add(j)

	cfg := testConfig(t)
	janitors := NewJanitors(registry, cfg, nil)

	// Still fresh: not reaped.
	janitors.reapOrphans()
	assert.Equal(t, StatusRunning, j.Status())

	// Rewind last-polled-at past the silence threshold by waiting it out.
	time.Sleep(cfg.Jobs.OrphanMaxSilence + 20*time.Millisecond)
	janitors.reapOrphans()
	assert.Equal(t, StatusCancelled, j.Status())
}

func TestJanitors_ReapOrphans_NeverPolledIsSpared(t *testing.T) {
	registry := NewRegistry()
	j := NewJob(Spec{JobID: "j1"})
	j.MarkRunning() // no MarkPolled call
	registry.Add(j)

	cfg := testConfig(t)
	cfg.Jobs.OrphanMaxSilence = 0 // would reap immediately if polled

	janitors := NewJanitors(registry, cfg, nil)
	janitors.reapOrphans()
	assert.Equal(t, StatusRunning, j.Status())
}

func TestJanitors_CleanTerminalJobs(t *testing.T) {
	cfg := testConfig(t)
	registry := NewRegistry()

	outputDir := filepath.Join(cfg.Storage.TempDir, "j1")
	require.NoError(t, os.MkdirAll(outputDir, 0o755))

	j := NewJob(Spec{JobID: "j1", OutputDir: outputDir})
	j.MarkRunning()
	j.Finish(nil, "")
	registry.Add(j)

	janitors := NewJanitors(registry, cfg, nil)

	// Not yet past retention.
	janitors.cleanTerminalJobs()
	_, ok := registry.Get("j1")
	assert.True(t, ok)
	_, statErr := os.Stat(outputDir)
	assert.NoError(t, statErr)

	time.Sleep(cfg.Jobs.TempRetention + 20*time.Millisecond)
	janitors.cleanTerminalJobs()
	_, ok = registry.Get("j1")
	assert.False(t, ok)
	_, statErr = os.Stat(outputDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestJanitors_SweepOrphanDirs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.OrphanDirMaxAge = 0 // treat everything as old enough
	registry := NewRegistry()

	orphanDir := filepath.Join(cfg.Storage.TempDir, "orphan")
	require.NoError(t, os.MkdirAll(orphanDir, 0o755))

	knownDir := filepath.Join(cfg.Storage.TempDir, "known")
	require.NoError(t, os.MkdirAll(knownDir, 0o755))
	registry.Add(NewJob(Spec{JobID: "known"}))

	janitors := NewJanitors(registry, cfg, nil)
	janitors.sweepOrphanDirs()

	_, err := os.Stat(orphanDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(knownDir)
	assert.NoError(t, err)
}
