// Package ffmpeg wraps the FFmpeg/FFprobe subprocess contract: binary
// discovery and version detection, FFprobe media inspection, and the
// progress-pipe parser consumed by the job package's Transcoder Driver.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// BinaryInfo describes the local FFmpeg installation.
type BinaryInfo struct {
	FFmpegPath   string
	FFprobePath  string
	Version      string
	MajorVersion int
	MinorVersion int
}

// Detector discovers and caches FFmpeg/FFprobe binary information.
type Detector struct {
	ffmpegPath  string
	ffprobePath string

	mu           sync.RWMutex
	info         *BinaryInfo
	lastDetected time.Time
	cacheTTL     time.Duration
}

// NewDetector creates a Detector for the given (configured) binary paths.
func NewDetector(ffmpegPath, ffprobePath string) *Detector {
	return &Detector{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		cacheTTL:    5 * time.Minute,
	}
}

// Detect returns cached binary information, refreshing it if the cache TTL
// has elapsed. Used by the /health endpoint to report accelerator/binary
// reachability without shelling out on every request.
func (d *Detector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		info := d.info
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	info, err := d.detect(ctx)
	if err != nil {
		return nil, err
	}
	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

func (d *Detector) detect(ctx context.Context) (*BinaryInfo, error) {
	version, err := ffmpegVersion(ctx, d.ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not reachable at %q: %w", d.ffmpegPath, err)
	}

	return &BinaryInfo{
		FFmpegPath:   d.ffmpegPath,
		FFprobePath:  d.ffprobePath,
		Version:      version.full,
		MajorVersion: version.major,
		MinorVersion: version.minor,
	}, nil
}

type parsedVersion struct {
	full  string
	major int
	minor int
}

var versionPattern = regexp.MustCompile(`^n?(\d+)\.(\d+)`)

// ffmpegVersion runs "ffmpeg -version" and extracts the release string and
// numeric major/minor components. The major version gates the ochl/ocl
// dialect-A filter rewrite in the rewrite package.
func ffmpegVersion(ctx context.Context, ffmpegPath string) (parsedVersion, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return parsedVersion{}, err
	}

	firstLine, _, _ := strings.Cut(string(output), "\n")
	fields := strings.Fields(firstLine)
	if len(fields) < 3 || fields[0] != "ffmpeg" || fields[1] != "version" {
		return parsedVersion{}, fmt.Errorf("ffmpeg: unrecognized -version output")
	}

	v := parsedVersion{full: fields[2]}
	if m := versionPattern.FindStringSubmatch(fields[2]); m != nil {
		v.major, _ = strconv.Atoi(m[1])
		v.minor, _ = strconv.Atoi(m[2])
	}
	return v, nil
}

// Reachable reports whether the ffmpeg binary can be invoked at all,
// independent of the detection cache.
func Reachable(ctx context.Context, ffmpegPath string) bool {
	_, err := ffmpegVersion(ctx, ffmpegPath)
	return err == nil
}
