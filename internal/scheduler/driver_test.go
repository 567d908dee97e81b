package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/quality-escalation/internal/jobs"
	"github.com/nhle/quality-escalation/internal/logger"
)

type fakeJob struct {
	name    string
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	res     jobs.Result
	err     error
	panics  bool
}

func newFakeJob(name string) *fakeJob {
	return &fakeJob{name: name}
}

// blocking makes Run signal started and wait for release.
func (f *fakeJob) blocking() *fakeJob {
	f.started = make(chan struct{}, 8)
	f.release = make(chan struct{})
	return f
}

func (f *fakeJob) Name() string { return f.name }

func (f *fakeJob) Run(ctx context.Context) (jobs.Result, error) {
	f.calls.Add(1)
	if f.panics {
		panic("boom")
	}
	if f.started != nil {
		f.started <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return jobs.Result{}, ctx.Err()
		}
	}
	return f.res, f.err
}

func TestStopIsIdempotent(t *testing.T) {
	d := New(logger.Discard())
	require.NoError(t, d.Register(newFakeJob("a"), time.Minute))

	d.Start()
	d.Start()
	d.Stop()
	d.Stop()
}

func TestStopWithoutStart(t *testing.T) {
	d := New(logger.Discard())
	d.Stop()
	d.Start()
	assert.Empty(t, d.Statuses())
}

func TestRegisterValidation(t *testing.T) {
	d := New(logger.Discard())
	defer d.Stop()

	require.NoError(t, d.Register(newFakeJob("a"), time.Minute))
	assert.Error(t, d.Register(newFakeJob("a"), time.Minute))
	assert.Error(t, d.Register(newFakeJob("b"), 0))

	d.Start()
	assert.Error(t, d.Register(newFakeJob("c"), time.Minute))
	assert.Equal(t, []string{"a"}, d.Jobs())
}

func TestRunNowUnknownJob(t *testing.T) {
	d := New(logger.Discard())
	defer d.Stop()

	_, err := d.RunNow(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRunNowReturnsResultAndRecordsStatus(t *testing.T) {
	d := New(logger.Discard())
	defer d.Stop()

	ok := newFakeJob("ok")
	ok.res = jobs.Result{Visited: 2, Sent: 1}
	bad := newFakeJob("bad")
	bad.err = errors.New("smtp down")
	require.NoError(t, d.Register(ok, time.Minute))
	require.NoError(t, d.Register(bad, time.Hour))

	res, err := d.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, jobs.Result{Visited: 2, Sent: 1}, res)

	_, err = d.RunNow(context.Background(), "bad")
	assert.EqualError(t, err, "smtp down")

	statuses := d.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "ok", statuses[0].Job)
	assert.Equal(t, LaneIdle, statuses[0].State)
	assert.Equal(t, 1, statuses[0].Runs)
	assert.Equal(t, time.Minute, statuses[0].Cadence)
	assert.Equal(t, "bad", statuses[1].Job)
	assert.Equal(t, LaneError, statuses[1].State)
	assert.Equal(t, "error", statuses[1].StateName)
	assert.Equal(t, "smtp down", statuses[1].LastError)
}

func TestTickSkipsWhileSameLaneIsRunning(t *testing.T) {
	d := New(logger.Discard())
	defer d.Stop()

	job := newFakeJob("slow").blocking()
	require.NoError(t, d.Register(job, time.Hour))
	l := d.lanes["slow"]

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = d.RunNow(context.Background(), "slow")
	}()
	<-job.started

	d.tick(l)
	d.tick(l)
	assert.Equal(t, int32(1), job.calls.Load())
	assert.Equal(t, 2, d.Statuses()[0].SkippedTicks)
	assert.Equal(t, LaneRunning, d.Statuses()[0].State)

	close(job.release)
	<-done

	d.tick(l)
	assert.Equal(t, int32(2), job.calls.Load())
}

func TestDistinctLanesRunConcurrently(t *testing.T) {
	d := New(logger.Discard())
	defer d.Stop()

	slow := newFakeJob("slow").blocking()
	fast := newFakeJob("fast")
	require.NoError(t, d.Register(slow, time.Hour))
	require.NoError(t, d.Register(fast, time.Hour))

	go func() { _, _ = d.RunNow(context.Background(), "slow") }()
	<-slow.started

	_, err := d.RunNow(context.Background(), "fast")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fast.calls.Load())

	close(slow.release)
}

func TestStopCancelsScheduledPass(t *testing.T) {
	d := New(logger.Discard())
	job := newFakeJob("slow").blocking()
	require.NoError(t, d.Register(job, time.Hour))
	l := d.lanes["slow"]

	go d.tick(l)
	<-job.started

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, LaneError, d.Statuses()[0].State)
}

func TestCronFiresLane(t *testing.T) {
	d := New(logger.Discard())
	job := newFakeJob("tick")
	require.NoError(t, d.Register(job, time.Second))

	d.Start()
	defer d.Stop()

	require.Eventually(t, func() bool { return job.calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	assert.False(t, d.Statuses()[0].NextRun.IsZero())
}

func TestPanickingJobLeavesLaneInError(t *testing.T) {
	d := New(logger.Discard())
	defer d.Stop()

	job := newFakeJob("a")
	job.panics = true
	require.NoError(t, d.Register(job, time.Minute))

	_, err := d.RunNow(context.Background(), "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	statuses := d.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, LaneError, statuses[0].State)
	assert.Equal(t, 1, statuses[0].Runs)

	// The lane guard was released, so the lane can run again.
	job.panics = false
	_, err = d.RunNow(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, LaneIdle, d.Statuses()[0].State)
}
