// Package scheduler fires each job on its own cadence. Runs of the same
// job never overlap; different jobs run concurrently.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/nhle/quality-escalation/internal/jobs"
	"github.com/nhle/quality-escalation/internal/metrics"
)

// ErrUnknownJob is returned by RunNow for a name with no lane.
var ErrUnknownJob = errors.New("unknown job")

// LaneState represents the current state of a job lane.
type LaneState int

const (
	LaneIdle LaneState = iota
	LaneRunning
	LaneError
)

func (s LaneState) String() string {
	switch s {
	case LaneIdle:
		return "idle"
	case LaneRunning:
		return "running"
	case LaneError:
		return "error"
	}
	return "unknown"
}

// LaneStatus holds the run state of a single job lane.
type LaneStatus struct {
	Job          string        `json:"job"`
	Cadence      time.Duration `json:"cadence"`
	State        LaneState     `json:"-"`
	StateName    string        `json:"state"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	LastResult   jobs.Result   `json:"last_result"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitempty"`
	Runs         int           `json:"runs"`
	SkippedTicks int           `json:"skipped_ticks"`
}

// lane holds a registered job and its run guard.
type lane struct {
	job     jobs.Job
	cadence time.Duration
	entry   cron.EntryID

	// run is held for the whole duration of a pass.
	run    sync.Mutex
	status LaneStatus
}

// drain blocks until no pass holds the lane.
func (l *lane) drain() {
	l.run.Lock()
	defer l.run.Unlock()
}

// Driver owns the cron runner and the job lanes.
type Driver struct {
	cron *cron.Cron
	log  *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	lanes   map[string]*lane
	order   []string
	running bool
	stopped bool
}

// New creates a driver. Panics inside a job are recovered and logged.
func New(log *logrus.Entry) *Driver {
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		lanes:  make(map[string]*lane),
	}
}

// Register adds a lane firing job every cadence. Lanes must be registered
// before Start.
func (d *Driver) Register(job jobs.Job, cadence time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := job.Name()
	switch {
	case d.running || d.stopped:
		return fmt.Errorf("registering %s: driver already started", name)
	case cadence <= 0:
		return fmt.Errorf("registering %s: cadence must be positive, got %s", name, cadence)
	}
	if _, ok := d.lanes[name]; ok {
		return fmt.Errorf("registering %s: lane already exists", name)
	}

	l := &lane{
		job:     job,
		cadence: cadence,
		status:  LaneStatus{Job: name, Cadence: cadence, State: LaneIdle},
	}
	l.entry = d.cron.Schedule(cron.Every(cadence), cron.FuncJob(func() { d.tick(l) }))
	d.lanes[name] = l
	d.order = append(d.order, name)
	return nil
}

// Start begins firing lanes. Calling it again is a no-op.
func (d *Driver) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running || d.stopped {
		return
	}
	d.running = true
	d.cron.Start()
	d.log.WithField("lanes", len(d.lanes)).Info("Scheduler started")
}

// Stop cancels running passes and waits for them to return. It is safe to
// call more than once.
func (d *Driver) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	wasRunning := d.running
	d.running = false
	d.mu.Unlock()

	d.cancel()
	<-d.cron.Stop().Done()

	// Wait for manual runs still holding a lane.
	for _, l := range d.snapshotLanes() {
		l.drain()
	}
	if wasRunning {
		d.log.Info("Scheduler stopped")
	}
}

// RunNow runs the named job immediately, waiting for an in-flight pass of
// the same lane to finish first. The returned error aggregates every item
// failure of the pass.
func (d *Driver) RunNow(ctx context.Context, name string) (jobs.Result, error) {
	d.mu.Lock()
	l, ok := d.lanes[name]
	d.mu.Unlock()
	if !ok {
		return jobs.Result{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}

	l.run.Lock()
	defer l.run.Unlock()
	return d.execute(ctx, l, "manual")
}

// Statuses returns the lane statuses in registration order.
func (d *Driver) Statuses() []LaneStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	statuses := make([]LaneStatus, 0, len(d.order))
	for _, name := range d.order {
		l := d.lanes[name]
		s := l.status
		s.StateName = s.State.String()
		if d.running {
			s.NextRun = d.cron.Entry(l.entry).Next
		}
		statuses = append(statuses, s)
	}
	return statuses
}

// Jobs returns the registered job names in registration order.
func (d *Driver) Jobs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...)
}

// tick is the cron callback. A tick arriving while the previous pass of
// the same lane is still running is dropped.
func (d *Driver) tick(l *lane) {
	if !l.run.TryLock() {
		d.mu.Lock()
		l.status.SkippedTicks++
		d.mu.Unlock()
		metrics.SkippedTick(l.job.Name())
		d.log.WithField("job", l.job.Name()).Warn("Previous run still in progress, skipping tick")
		return
	}
	defer l.run.Unlock()

	// Scheduled failures only surface through logs and metrics.
	_, _ = d.execute(d.ctx, l, "schedule")
}

// execute runs one pass with the lane guard held. A panicking job is
// recorded as a failed pass so the lane never stays running.
func (d *Driver) execute(ctx context.Context, l *lane, trigger string) (res jobs.Result, err error) {
	name := l.job.Name()
	d.setStatus(l, func(s *LaneStatus) { s.State = LaneRunning })

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", name, r)
			d.log.WithField("job", name).WithField("stack", string(debug.Stack())).Error("Job panicked")
		}
		d.finish(l, trigger, start, res, err)
	}()

	return l.job.Run(ctx)
}

// finish records the outcome of a pass.
func (d *Driver) finish(l *lane, trigger string, start time.Time, res jobs.Result, err error) {
	name := l.job.Name()
	took := time.Since(start)
	metrics.ObserveRun(name, took, err)

	d.setStatus(l, func(s *LaneStatus) {
		s.Runs++
		s.LastRun = start
		s.LastDuration = took
		s.LastResult = res
		s.State = LaneIdle
		s.LastError = ""
		if err != nil {
			s.State = LaneError
			s.LastError = err.Error()
		}
	})

	log := d.log.WithFields(logrus.Fields{"job": name, "trigger": trigger, "took": took.Round(time.Millisecond)})
	if err != nil {
		log.WithError(err).Error("Job finished with failures")
	} else {
		log.Debug("Job finished")
	}
}

// setStatus updates the status of a lane under the driver lock.
func (d *Driver) setStatus(l *lane, update func(*LaneStatus)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	update(&l.status)
}

func (d *Driver) snapshotLanes() []*lane {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*lane, 0, len(d.lanes))
	for _, name := range d.order {
		out = append(out, d.lanes[name])
	}
	return out
}
