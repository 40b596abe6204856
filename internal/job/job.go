// Package job implements the Job Registry, Job Scheduler, and Transcoder
// Driver: the engine that supervises FFmpeg subprocesses from submission
// through a terminal state.
package job

import (
	"sync"
	"time"

	"github.com/nodnarbrox/gpuxcode/internal/ffmpeg"
	"github.com/nodnarbrox/gpuxcode/internal/rewrite"
)

// Status is a job's position in its lifecycle.
type Status string

// Lifecycle states. Completed, Failed, and Cancelled are absorbing.
const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is one of the absorbing states.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IOMode selects how the Transcoder Driver feeds input and captures output.
type IOMode string

// Supported I/O modes.
const (
	IOShared       IOMode = "shared"        // shared-filesystem or beam-upload
	IOBeamStream   IOMode = "beam-stream"   // input delivered over HTTP into stdin
	IODirectStream IOMode = "direct-stream" // output streamed directly to the HTTP response
)

// Spec records what the job description asked for — the immutable request
// that produced this Job.
type Spec struct {
	JobID      string
	RawArgs    []string
	Dialect    rewrite.Dialect
	IOMode     IOMode
	InputPath  string // resolved/uploaded input path for shared/beam-upload modes
	OutputDir  string
	MaxBitrate string // beam-mode bitrate override, empty if unset

	// ContainerFormat is the "-f" value for direct-stream mode only.
	ContainerFormat string
}

// Progress is the mutable telemetry surfaced via /status and the WebSocket
// push channel.
type Progress struct {
	ffmpeg.Progress
	Status Status
	Error  string
}

// Job is a single transcode request and its runtime state.
type Job struct {
	ID   string
	Spec Spec

	mu            sync.Mutex
	status        Status
	startedAt     time.Time
	completedAt   time.Time
	lastPolledAt  time.Time
	lastPolledSet bool
	progress      Progress
	cancel        func()
	subscribers   map[int]chan Progress
	nextSubID     int
}

// NewJob creates a Job in the pending state.
func NewJob(spec Spec) *Job {
	return &Job{
		ID:          spec.JobID,
		Spec:        spec,
		status:      StatusPending,
		progress:    Progress{Status: StatusPending},
		subscribers: make(map[int]chan Progress),
	}
}

// Status returns the job's current status.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// setStatus transitions the job and, for terminal states, stamps
// completedAt. It does not push to subscribers — callers broadcast
// separately.
func (j *Job) setStatus(s Status) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = s
	j.progress.Status = s
	if s == StatusRunning && j.startedAt.IsZero() {
		j.startedAt = time.Now()
	}
	if s.Terminal() && j.completedAt.IsZero() {
		j.completedAt = time.Now()
	}
}

// MarkPolled stamps last-polled-at for non-terminal jobs; per the orphan
// reaper's contract, terminal jobs and never-polled jobs are left alone.
func (j *Job) MarkPolled() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.lastPolledAt = time.Now()
	j.lastPolledSet = true
}

// SilentFor reports how long it has been since the last poll, and whether a
// poll has ever been recorded at all.
func (j *Job) SilentFor() (d time.Duration, everPolled bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.lastPolledSet {
		return 0, false
	}
	return time.Since(j.lastPolledAt), true
}

// CompletedAt returns the terminal timestamp, zero if not yet terminal.
func (j *Job) CompletedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.completedAt
}

// MarkQueued transitions a pending job onto the scheduler's queue.
func (j *Job) MarkQueued() { j.setStatus(StatusQueued) }

// MarkRunning transitions a job to running, either via worker dequeue or a
// beam-stream connection that bypasses the queue entirely.
func (j *Job) MarkRunning() { j.setStatus(StatusRunning) }

// Finish records the outcome of a subprocess run. A nil err marks the job
// completed; a non-nil err marks it failed and records errMsg as the
// progress error. Already-terminal jobs (typically cancelled mid-run) are
// left untouched so a race between cancellation and subprocess exit never
// resurrects a cancelled job as completed or failed.
func (j *Job) Finish(err error, errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	if err != nil {
		j.status = StatusFailed
		j.progress.Status = StatusFailed
		j.progress.Error = errMsg
	} else {
		j.status = StatusCompleted
		j.progress.Status = StatusCompleted
		j.progress.Percent = 100
		j.progress.Done = true
	}
	if j.completedAt.IsZero() {
		j.completedAt = time.Now()
	}
}

// SetProgress updates the progress snapshot under lock.
func (j *Job) SetProgress(p ffmpeg.Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress.Progress = p
	if p.Done && j.status == StatusRunning {
		j.status = StatusCompleted
		j.progress.Status = StatusCompleted
		j.completedAt = time.Now()
	}
}

// Snapshot returns a copy of the current progress record for serialization.
func (j *Job) Snapshot() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	p := j.progress
	p.Status = j.status
	return p
}

// SetCancelFunc stores the function that terminates the running subprocess.
// Called by the Transcoder Driver once the subprocess has been spawned.
func (j *Job) SetCancelFunc(cancel func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancel = cancel
}

// Cancel invokes the stored cancel function, if any, and marks the job
// cancelled. Safe to call on a queued job that never spawned a subprocess.
func (j *Job) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	alreadyTerminal := j.status.Terminal()
	j.mu.Unlock()

	if alreadyTerminal {
		return
	}
	if cancel != nil {
		cancel()
	}
	j.setStatus(StatusCancelled)
}

// Subscribe registers a channel to receive progress pushes and returns an
// unsubscribe function. The subscriber channels live on the Job itself;
// Broadcast delivers to them directly, with no registry lookup.
func (j *Job) Subscribe(buf int) (ch <-chan Progress, unsubscribe func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	id := j.nextSubID
	j.nextSubID++
	c := make(chan Progress, buf)
	j.subscribers[id] = c
	return c, func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if existing, ok := j.subscribers[id]; ok {
			delete(j.subscribers, id)
			close(existing)
		}
	}
}

// Broadcast pushes a progress snapshot to every subscriber, dropping (not
// blocking on) any subscriber whose buffer is full. The send happens under
// the same lock Subscribe's unsubscribe closure uses to delete-and-close a
// subscriber channel, so a send here can never race a close there.
func (j *Job) Broadcast(p Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range j.subscribers {
		select {
		case c <- p:
		default:
		}
	}
}
