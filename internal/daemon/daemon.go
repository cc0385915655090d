// Package daemon runs named background jobs on fixed intervals with a
// single-flight guarantee per job name.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"

	"goatbot/internal/metrics"
)

// ErrDuplicateJob is returned when a name is registered twice. Registration
// happens once at startup, so this is a programming defect.
var ErrDuplicateJob = errors.New("daemon: job already registered")

// Job is one unit of recurring work. Errors are logged and counted, never
// fatal; the next firing proceeds on schedule regardless.
type Job func(ctx context.Context) error

// TaskStatus is an observability snapshot of one registered job.
type TaskStatus struct {
	Name     string
	LastRun  time.Time
	Running  bool
	Interval time.Duration
}

type task struct {
	job      Job
	interval time.Duration

	mu      sync.Mutex
	lastRun time.Time
	running bool
}

// Daemon owns the registered jobs and their timers.
type Daemon struct {
	log *zap.Logger

	mu      sync.Mutex
	tasks   map[string]*task
	order   []string
	stopCh  chan struct{}
	started bool

	wg sync.WaitGroup
}

// New returns an empty daemon. Register jobs, then StartAll.
func New(log *zap.Logger) *Daemon {
	return &Daemon{log: log, tasks: make(map[string]*task), stopCh: make(chan struct{})}
}

// Register records a job under a unique name.
func (d *Daemon) Register(name string, job Job, interval time.Duration) error {
	if name == "" || job == nil {
		return errors.New("daemon: name and job required")
	}
	if interval <= 0 {
		return fmt.Errorf("daemon: non-positive interval for %s", name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tasks[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	d.tasks[name] = &task{job: job, interval: interval}
	d.order = append(d.order, name)
	d.log.Info("job registered", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

// StartAll begins executing every registered job: once immediately, then on
// each tick of a fixed-interval timer.
func (d *Daemon) StartAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	for _, name := range d.order {
		t := d.tasks[name]
		d.wg.Add(1)
		go d.runLoop(name, t)
	}
}

// StopAll cancels every job's timer and waits for in-flight executions to
// finish. It never interrupts a running job.
func (d *Daemon) StopAll() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	d.mu.Unlock()
	d.wg.Wait()
	d.log.Info("all jobs stopped")
}

// Status yields a point-in-time snapshot of every registered job. The
// sequence is finite and can be ranged over more than once.
func (d *Daemon) Status() iter.Seq[TaskStatus] {
	d.mu.Lock()
	snap := make([]TaskStatus, 0, len(d.order))
	for _, name := range d.order {
		t := d.tasks[name]
		t.mu.Lock()
		snap = append(snap, TaskStatus{Name: name, LastRun: t.lastRun, Running: t.running, Interval: t.interval})
		t.mu.Unlock()
	}
	d.mu.Unlock()
	return func(yield func(TaskStatus) bool) {
		for _, s := range snap {
			if !yield(s) {
				return
			}
		}
	}
}

// Start adapts the daemon to the process service lifecycle.
func (d *Daemon) Start(ctx context.Context) error { d.StartAll(); return nil }

// Stop waits for in-flight jobs before returning.
func (d *Daemon) Stop(ctx context.Context) error { d.StopAll(); return nil }

func (d *Daemon) runLoop(name string, t *task) {
	defer d.wg.Done()
	d.wg.Add(1)
	go d.execute(name, t)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.wg.Add(1)
			go d.execute(name, t)
		}
	}
}

// execute runs one firing. If the previous run is still going the firing is
// a skip, not a queue.
func (d *Daemon) execute(name string, t *task) {
	defer d.wg.Done()
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		metrics.JobSkips.WithLabelValues(name).Inc()
		d.log.Debug("job still running, skipping tick", zap.String("job", name))
		return
	}
	t.running = true
	t.lastRun = time.Now().UTC()
	t.mu.Unlock()

	start := time.Now()
	metrics.JobRuns.WithLabelValues(name).Inc()
	defer func() {
		if r := recover(); r != nil {
			metrics.JobErrors.WithLabelValues(name).Inc()
			d.log.Error("job panicked", zap.String("job", name), zap.Any("panic", r))
		}
		metrics.ObserveJobDuration(name, start)
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	if err := t.job(context.Background()); err != nil {
		metrics.JobErrors.WithLabelValues(name).Inc()
		d.log.Error("job failed", zap.String("job", name), zap.Error(err))
	}
}
