// Package script runs scripts as actors. Each Resource owns one script, one
// task queue and one worker goroutine; every callback into the script runs on
// that goroutine, one at a time, in the order it was queued.
package script

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/phuhao00/scriptbridge/server/internal/api"
	"github.com/phuhao00/scriptbridge/server/internal/metrics"
	"github.com/phuhao00/scriptbridge/server/internal/utils"
)

const (
	// DefaultTickRate is how many queue drains a resource runs per second.
	DefaultTickRate = 60
	// DefaultAskTimeout bounds how long Ask waits for a verdict.
	DefaultAskTimeout = 5000 * time.Millisecond
)

var (
	ErrAskTimeout = errors.New("script: ask timed out")
	ErrStopped    = errors.New("script: resource stopped")
)

// Script is user logic hosted by a Resource. Init runs on the resource's
// worker before the start event and is where listeners get attached.
type Script interface {
	Init(a *api.API) error
}

// ScriptFunc adapts a plain function to Script.
type ScriptFunc func(a *api.API) error

func (f ScriptFunc) Init(a *api.API) error { return f(a) }

// Options tune a Resource. Zero values pick the defaults.
type Options struct {
	TickRate   int
	AskTimeout time.Duration
	Shutdown   *Signal
}

// Resource is the actor hosting one script.
type Resource struct {
	name       string
	api        *api.API
	script     Script
	tick       time.Duration
	askTimeout time.Duration
	shutdown   *Signal

	mu     sync.Mutex
	queue  []func()
	closed bool

	spare    []func() // worker only
	started  bool     // worker only
	pending  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a resource for s and starts its worker. The first queued task
// runs s.Init and then the start event.
func New(name string, s Script, services *api.Services, opts Options) *Resource {
	if opts.AskTimeout <= 0 {
		opts.AskTimeout = DefaultAskTimeout
	}
	if opts.Shutdown == nil {
		opts.Shutdown = Shutdown
	}
	r := &Resource{
		name:       name,
		api:        api.New(name, services),
		script:     s,
		tick:       utils.TickInterval(opts.TickRate),
		askTimeout: opts.AskTimeout,
		shutdown:   opts.Shutdown,
		pending:    make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	r.api.BindExecutor(func(fn func()) {
		if !r.enqueue(fn) {
			utils.LogDebugf("[Resource %s] Dropped command callback after stop", r.name)
		}
	})
	r.enqueue(r.bootstrap)
	go r.run()
	utils.LogInfof("[Resource %s] Created (tick=%s, askTimeout=%s)", name, r.tick, r.askTimeout)
	return r
}

func (r *Resource) Name() string { return r.name }

func (r *Resource) bootstrap() {
	if err := r.script.Init(r.api); err != nil {
		utils.LogErrorf("[Resource %s] Init failed: %v. Stopping.", r.name, err)
		r.Stop()
		return
	}
	r.started = true
	r.api.InvokeStart()
}

// Notify queues fn to run on the worker. It never blocks. It returns false if
// the resource has already stopped and fn was dropped.
func (r *Resource) Notify(fn func(*api.API)) bool {
	return r.enqueue(func() { fn(r.api) })
}

// Ask queues fn behind every task already queued and waits for its result.
// On timeout or stop it returns false. It must not be called from this
// resource's own worker.
func (r *Resource) Ask(fn func(*api.API) bool) bool {
	v, err := r.AskContext(context.Background(), fn)
	if err != nil {
		utils.LogWarnf("[Resource %s] Ask fell back to default: %v", r.name, err)
	}
	return v
}

// AskContext is Ask with the reason for a fallback reported: ErrAskTimeout
// when the deadline passed, ErrStopped when the resource is gone, or the
// context's error. A timed-out task is not cancelled and may still run later.
func (r *Resource) AskContext(ctx context.Context, fn func(*api.API) bool) (bool, error) {
	reply := make(chan bool, 1)
	queued := r.enqueue(func() {
		result := false
		defer func() { reply <- result }()
		result = fn(r.api)
	})
	if !queued {
		return false, ErrStopped
	}

	timer := time.NewTimer(r.askTimeout)
	defer timer.Stop()
	select {
	case v := <-reply:
		return v, nil
	case <-timer.C:
		metrics.AskTimeouts.Inc()
		return false, ErrAskTimeout
	case <-ctx.Done():
		return false, ctx.Err()
	case <-r.done:
		// The final drain may have answered before the worker exited.
		select {
		case v := <-reply:
			return v, nil
		default:
			return false, ErrStopped
		}
	}
}

// Stop ends this resource independently of the process-wide signal.
func (r *Resource) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Done is closed after the stop event has run and the worker has exited.
func (r *Resource) Done() <-chan struct{} {
	return r.done
}

func (r *Resource) Stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the resource has stopped or ctx ends.
func (r *Resource) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Resource) enqueue(task func()) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.queue = append(r.queue, task)
	r.mu.Unlock()

	select {
	case r.pending <- struct{}{}:
	default:
	}
	return true
}

// run is the worker loop. It sleeps until work arrives, drains everything
// queued, then waits out the rest of the tick so bursts are batched.
func (r *Resource) run() {
	defer close(r.done)

	timer := time.NewTimer(r.tick)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-r.pending:
		case <-r.stopCh:
			r.halt()
			return
		case <-r.shutdown.Done():
			r.halt()
			return
		}

		started := time.Now()
		r.drain()

		if rest := r.tick - time.Since(started); rest > 0 {
			timer.Reset(rest)
			select {
			case <-timer.C:
			case <-r.stopCh:
				timer.Stop()
				r.halt()
				return
			case <-r.shutdown.Done():
				timer.Stop()
				r.halt()
				return
			}
		}
	}
}

// drain swaps the queue out under the lock and runs the batch without it.
func (r *Resource) drain() {
	r.mu.Lock()
	batch := r.queue
	r.queue = r.spare[:0]
	r.mu.Unlock()

	if len(batch) == 0 {
		r.spare = batch
		return
	}
	metrics.QueueDepth.WithLabelValues(r.name).Set(float64(len(batch)))

	started := time.Now()
	for i, task := range batch {
		r.runTask(task)
		batch[i] = nil
	}
	metrics.TickDuration.Observe(time.Since(started).Seconds())
	r.spare = batch[:0]
}

func (r *Resource) runTask(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.TaskPanics.Inc()
			utils.LogErrorf("[Resource %s] Task panicked: %v\n%s", r.name, rec, debug.Stack())
		}
	}()
	metrics.TasksExecuted.Inc()
	task()
}

// halt refuses new work, runs what is already queued, then fires the stop
// event once if the script started.
func (r *Resource) halt() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.drain()
	if r.started {
		r.runTask(r.api.InvokeStop)
	}
	r.api.ReleaseCommands()
	metrics.QueueDepth.DeleteLabelValues(r.name)
	utils.LogInfof("[Resource %s] Stopped.", r.name)
}
