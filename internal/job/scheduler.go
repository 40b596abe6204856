package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// queueRunner is the subset of *Driver the Scheduler depends on, narrowed so
// tests can substitute a fake without spawning real FFmpeg subprocesses.
type queueRunner interface {
	RunQueued(ctx context.Context, j *Job) error
}

// Scheduler is a bounded FIFO queue feeding a fixed pool of worker
// goroutines sized to the configured concurrency cap. Shared/beam-upload
// jobs are enqueued here; beam-stream and direct-stream jobs bypass it and
// invoke the Driver directly from the HTTP handler.
type Scheduler struct {
	driver   queueRunner
	registry *Registry
	logger   *slog.Logger

	queue chan *Job

	mu     sync.Mutex
	active map[string]struct{}

	wg sync.WaitGroup
}

// NewScheduler builds a Scheduler with workerCount workers and a queue deep
// enough to absorb bursts without blocking the submitting handler
// indefinitely.
func NewScheduler(driver queueRunner, registry *Registry, workerCount, queueDepth int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if workerCount < 1 {
		workerCount = 1
	}
	if queueDepth < workerCount {
		queueDepth = workerCount
	}
	s := &Scheduler{
		driver:   driver,
		registry: registry,
		logger:   logger,
		queue:    make(chan *Job, queueDepth),
		active:   make(map[string]struct{}),
	}
	s.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go s.worker(i)
	}
	return s
}

// Enqueue marks j queued and submits it to the worker pool. It returns
// false, without blocking, if the queue is currently full.
func (s *Scheduler) Enqueue(j *Job) bool {
	j.MarkQueued()
	select {
	case s.queue <- j:
		return true
	default:
		return false
	}
}

// ActiveCount reports the number of jobs currently running, for /health and
// the concurrency-cap testable property.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	for j := range s.queue {
		s.runGuarded(j)
	}
	_ = id
}

// runGuarded wraps run with a recover so a panic surfaced from deep in the
// Driver or Argument Rewriter fails only the one job, not the worker.
func (s *Scheduler) runGuarded(j *Job) {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			delete(s.active, j.ID)
			s.mu.Unlock()
			j.Finish(fmt.Errorf("panic: %v", r), fmt.Sprintf("worker panic: %v", r))
			s.logger.Error("worker recovered from panic",
				slog.String("job_id", j.ID),
				slog.Any("panic", r),
			)
		}
	}()
	s.run(j)
}

// run drives one job to a terminal state. A job already cancelled while
// queued (DELETE raced the dequeue) is skipped without ever spawning a
// subprocess, satisfying the cancellation-race testable property.
func (s *Scheduler) run(j *Job) {
	if j.Status() == StatusCancelled {
		j.Broadcast(j.Snapshot())
		return
	}

	s.mu.Lock()
	s.active[j.ID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, j.ID)
		s.mu.Unlock()
	}()

	j.MarkRunning()
	if err := s.driver.RunQueued(context.Background(), j); err != nil {
		s.logger.Warn("job ended with error",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
	j.Broadcast(j.Snapshot())
}

// Shutdown closes the queue and waits for the workers to exit. Workers keep
// dequeuing until the queue is empty, so every job still buffered is run
// (or skipped, if already cancelled) before Shutdown returns; running jobs
// are not cancelled.
func (s *Scheduler) Shutdown() {
	close(s.queue)
	s.wg.Wait()
}
