package job

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/nodnarbrox/gpuxcode/internal/config"
	"github.com/nodnarbrox/gpuxcode/internal/ffmpeg"
	"github.com/nodnarbrox/gpuxcode/internal/gpuxerr"
	"github.com/nodnarbrox/gpuxcode/internal/pathmap"
	"github.com/nodnarbrox/gpuxcode/internal/rewrite"
)

// Direct-stream read timeouts: a generous window for the first byte while
// FFmpeg probes/seeks, then a tighter window once bytes are flowing.
const (
	firstByteTimeout    = 120 * time.Second
	continuationTimeout = 30 * time.Second
	beamDrainSize       = 512 * 1024
)

// Driver owns a single FFmpeg subprocess per call: it resolves the argument
// vector via the Argument Rewriter, spawns FFmpeg in the mode the job's
// JobSpec calls for, and supervises it to a terminal outcome.
type Driver struct {
	cfg      *config.Config
	mapper   *pathmap.Mapper
	detector *ffmpeg.Detector
	logger   *slog.Logger
}

// NewDriver builds a Driver. detector may be nil, in which case the rewriter
// is never told an FFmpeg major version (dialect A's ochl/ocl rewrite then
// assumes the newer ochl= spelling).
func NewDriver(cfg *config.Config, mapper *pathmap.Mapper, detector *ffmpeg.Detector, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{cfg: cfg, mapper: mapper, detector: detector, logger: logger}
}

func (d *Driver) buildArgs(ctx context.Context, j *Job) (rewrite.Result, error) {
	major := 0
	if d.detector != nil {
		if info, err := d.detector.Detect(ctx); err == nil {
			major = info.MajorVersion
		}
	}
	req := rewrite.Request{
		JobID:              j.ID,
		RawArgs:            j.Spec.RawArgs,
		Dialect:            j.Spec.Dialect,
		Accelerator:        d.cfg.Accelerator.Type,
		Device:             d.cfg.Accelerator.Device,
		BeamStream:         j.Spec.IOMode == IOBeamStream,
		OutputDir:          j.Spec.OutputDir,
		FFmpegMajorVersion: major,
		Mapper:             d.mapper,
		UploadedInputPath:  j.Spec.InputPath,
		BeamMaxBitrate:     j.Spec.MaxBitrate,
	}
	return rewrite.Rewrite(req)
}

// RunQueued drives the shared-filesystem and beam-upload modes: FFmpeg reads
// its input from disk (or the pre-uploaded file) and writes segments/files
// directly into the job's output directory. Called by the scheduler's
// worker loop, which has already marked the job running.
func (d *Driver) RunQueued(ctx context.Context, j *Job) error {
	result, err := d.buildArgs(ctx, j)
	if err != nil {
		j.Finish(err, err.Error())
		return err
	}
	if err := os.MkdirAll(j.Spec.OutputDir, 0o755); err != nil {
		j.Finish(err, err.Error())
		return err
	}

	cmd := exec.Command(d.cfg.FFmpeg.BinaryPath, result.Args...)
	cmd.Dir = j.Spec.OutputDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		j.Finish(err, err.Error())
		return err
	}
	tail := &stderrTail{}
	cmd.Stderr = tail

	proc, err := startProcess(cmd)
	if err != nil {
		j.Finish(err, err.Error())
		return err
	}
	j.SetCancelFunc(proc.terminate)

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		var p ffmpeg.Progress
		ffmpeg.ScanProgress(stdout, &p, func(snap ffmpeg.Progress) {
			j.SetProgress(snap)
			j.Broadcast(j.Snapshot())
		})
	}()
	<-progressDone

	waitErr := d.classifyExit(proc.wait())
	j.Finish(waitErr, tail.String())
	j.Broadcast(j.Snapshot())
	return waitErr
}

// RunBeamStream drives the beam-stream mode: the caller forwards the HTTP
// request body into FFmpeg's stdin while output is written to the job's
// output directory as usual. Called directly by the HTTP handler, bypassing
// the scheduler's queue.
func (d *Driver) RunBeamStream(ctx context.Context, j *Job, body io.Reader) error {
	result, err := d.buildArgs(ctx, j)
	if err != nil {
		j.Finish(err, err.Error())
		return err
	}
	if err := os.MkdirAll(j.Spec.OutputDir, 0o755); err != nil {
		j.Finish(err, err.Error())
		return err
	}

	cmd := exec.Command(d.cfg.FFmpeg.BinaryPath, result.Args...)
	cmd.Dir = j.Spec.OutputDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		j.Finish(err, err.Error())
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		j.Finish(err, err.Error())
		return err
	}
	tail := &stderrTail{}
	cmd.Stderr = tail

	proc, err := startProcess(cmd)
	if err != nil {
		j.Finish(err, err.Error())
		return err
	}
	j.SetCancelFunc(proc.terminate)
	j.MarkRunning()

	if f, ok := stdin.(*os.File); ok {
		enlargePipeBuffer(f)
	}

	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		defer stdin.Close()
		buf := make([]byte, beamDrainSize)
		for {
			n, rerr := body.Read(buf)
			if n > 0 {
				if _, werr := stdin.Write(buf[:n]); werr != nil {
					// Broken pipe means FFmpeg exited early; expected, not fatal.
					return
				}
			}
			if rerr != nil {
				return
			}
		}
	}()

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		var p ffmpeg.Progress
		ffmpeg.ScanProgress(stdout, &p, func(snap ffmpeg.Progress) {
			j.SetProgress(snap)
			j.Broadcast(j.Snapshot())
		})
	}()

	<-forwardDone
	<-progressDone

	waitErr := d.classifyExit(proc.wait())
	j.Finish(waitErr, tail.String())
	j.Broadcast(j.Snapshot())
	return waitErr
}

// RunDirectStream drives the direct-stream mode: FFmpeg's stdout is the
// container byte stream, copied straight into w with first-byte and
// continuation read timeouts. Called directly by the HTTP handler.
func (d *Driver) RunDirectStream(ctx context.Context, j *Job, w io.Writer) error {
	result, err := d.buildArgs(ctx, j)
	if err != nil {
		j.Finish(err, err.Error())
		return err
	}
	args := directStreamArgs(result.Args, j.Spec.ContainerFormat)

	cmd := exec.Command(d.cfg.FFmpeg.BinaryPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		j.Finish(err, err.Error())
		return err
	}
	tail := &stderrTail{}
	cmd.Stderr = tail

	proc, err := startProcess(cmd)
	if err != nil {
		j.Finish(err, err.Error())
		return err
	}
	j.SetCancelFunc(proc.terminate)
	j.MarkRunning()

	buf := make([]byte, 64*1024)
	timeout := firstByteTimeout
	for {
		n, readErr := readWithTimeout(ctx, stdout, buf, timeout)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				proc.terminate()
				waitErr := proc.wait()
				j.Finish(waitErr, tail.String())
				return werr
			}
			timeout = continuationTimeout
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			proc.terminate()
			proc.wait()
			j.Finish(readErr, tail.String())
			return readErr
		}
	}

	waitErr := d.classifyExit(proc.wait())
	j.Finish(waitErr, tail.String())
	return waitErr
}

// directStreamArgs drops the rewriter's resolved output path and substitutes
// "-f <format> pipe:1" so the subprocess writes the container to stdout.
func directStreamArgs(rewritten []string, format string) []string {
	args := make([]string, len(rewritten))
	copy(args, rewritten)
	if len(args) > 0 {
		args = args[:len(args)-1]
	}
	if format != "" {
		args = append(args, "-f", format)
	}
	return append(args, "pipe:1")
}

// classifyExit wraps a non-nil subprocess exit error in gpuxerr's
// SubprocessFailure kind so handlers can map it to the right status code.
func (d *Driver) classifyExit(err error) error {
	if err == nil {
		return nil
	}
	return gpuxerr.Wrap(gpuxerr.KindSubprocessFailed, "ffmpeg exited non-zero", err)
}
