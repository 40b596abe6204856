package job

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver simulates a Transcoder Driver that "runs" for a configurable
// duration, tracking concurrent invocations so tests can assert the
// concurrency cap is respected.
type fakeDriver struct {
	mu          sync.Mutex
	concurrent  int
	maxObserved int
	runTime     time.Duration
	failJobs    map[string]bool
}

func (f *fakeDriver) RunQueued(ctx context.Context, j *Job) error {
	f.mu.Lock()
	f.concurrent++
	if f.concurrent > f.maxObserved {
		f.maxObserved = f.concurrent
	}
	f.mu.Unlock()

	time.Sleep(f.runTime)

	f.mu.Lock()
	f.concurrent--
	fail := f.failJobs[j.ID]
	f.mu.Unlock()

	if fail {
		err := fmt.Errorf("simulated failure")
		j.Finish(err, "simulated stderr tail")
		return err
	}
	j.Finish(nil, "")
	return nil
}

func TestScheduler_RespectsConcurrencyCap(t *testing.T) {
	const workerCap = 3
	const submissions = workerCap + 10

	driver := &fakeDriver{runTime: 20 * time.Millisecond}
	registry := NewRegistry()
	sched := NewScheduler(driver, registry, workerCap, submissions, nil)

	jobs := make([]*Job, submissions)
	for i := range jobs {
		j := NewJob(Spec{JobID: fmt.Sprintf("job-%d", i)})
		registry.Add(j)
		jobs[i] = j
		require.True(t, sched.Enqueue(j))
	}

	require.Eventually(t, func() bool {
		for _, j := range jobs {
			if !j.Status().Terminal() {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	sched.Shutdown()

	driver.mu.Lock()
	defer driver.mu.Unlock()
	assert.LessOrEqual(t, driver.maxObserved, workerCap)

	for _, j := range jobs {
		assert.Equal(t, StatusCompleted, j.Status())
	}
}

func TestScheduler_FailedJobMarksFailed(t *testing.T) {
	driver := &fakeDriver{failJobs: map[string]bool{"bad": true}}
	registry := NewRegistry()
	sched := NewScheduler(driver, registry, 1, 4, nil)

	j := NewJob(Spec{JobID: "bad"})
	registry.Add(j)
	sched.Enqueue(j)

	require.Eventually(t, func() bool { return j.Status().Terminal() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusFailed, j.Status())
	assert.Equal(t, "simulated stderr tail", j.Snapshot().Error)

	sched.Shutdown()
}

func TestScheduler_CancellationRaceSkipsDequeue(t *testing.T) {
	driver := &fakeDriver{}
	registry := NewRegistry()
	sched := NewScheduler(driver, registry, 1, 4, nil)

	j := NewJob(Spec{JobID: "j1"})
	registry.Add(j)
	j.MarkQueued()
	j.Cancel() // races the dequeue: already cancelled before the worker sees it

	select {
	case sched.queue <- j:
	default:
		t.Fatal("expected queue to accept job")
	}

	require.Eventually(t, func() bool { return j.Status() == StatusCancelled }, time.Second, 5*time.Millisecond)
	sched.Shutdown()

	// The worker skipped the cancelled job without invoking the driver.
	assert.Zero(t, driver.maxObserved)
}
