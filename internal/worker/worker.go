// Package worker implements the control loop that keeps a configured number
// of jobs in flight, dispatches them to registered handlers under a per-job
// timeout, and drives retry and ghost transitions through the outcome
// processor.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	qerrors "github.com/muaviaUsmani/papaya/internal/errors"
	"github.com/muaviaUsmani/papaya/internal/job"
	"github.com/muaviaUsmani/papaya/internal/logger"
	"github.com/muaviaUsmani/papaya/internal/metrics"
	"github.com/muaviaUsmani/papaya/internal/queue"
)

const (
	// bufferGrace widens the throttle ring buffer past the concurrency target
	bufferGrace = 5
	// throttleLimit is the window within which a full buffer of loop
	// re-entries counts as spinning
	throttleLimit = 5 * time.Second
	// throttleTimeout is how long the loop pauses once throttled
	throttleTimeout = 5 * time.Second

	defaultPopTimeout = 3 * time.Second
	drainTimeout      = 30 * time.Second
)

// Option configures a Worker.
type Option func(*Worker)

// WithConcurrency sets the target number of in-flight jobs (default 1).
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithPopTimeout sets the blocking-pop timeout (default 3s).
func WithPopTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.popTimeout = d
		}
	}
}

// lease tracks one in-flight job: the record and its timeout timer. Presence
// in the in-flight map is what makes completion idempotent. The first of
// handler return or timer fire removes the entry; anything later is dropped.
type lease struct {
	job   *job.Job
	timer *time.Timer
}

// Worker is the concurrency core. Its bookkeeping (in-flight map, throttle
// ring, disposed flag) is guarded by one mutex; pops, handler invocations
// and persistence all run concurrently and re-enter the loop on completion.
type Worker struct {
	registry *Registry
	queue    *queue.Queue
	outcome  *OutcomeProcessor

	concurrency int
	popTimeout  time.Duration
	log         logger.Logger

	mu          sync.Mutex
	inflight    map[string]*lease
	pendingPops int
	loopTimes   []time.Time
	loopIdx     int
	loopCount   int
	throttled   bool
	disposed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Worker for the given handler registry. The registry must
// hold at least one handler; invalid inputs fail synchronously with
// BadArgument.
func New(registry *Registry, q *queue.Queue, outcome *OutcomeProcessor, opts ...Option) (*Worker, error) {
	if registry == nil || registry.Count() == 0 {
		return nil, fmt.Errorf("%w: at least one handler is required", qerrors.ErrBadArgument)
	}
	if q == nil {
		return nil, fmt.Errorf("%w: queue is required", qerrors.ErrBadArgument)
	}
	if outcome == nil {
		return nil, fmt.Errorf("%w: outcome processor is required", qerrors.ErrBadArgument)
	}

	w := &Worker{
		registry:    registry,
		queue:       q,
		outcome:     outcome,
		concurrency: 1,
		popTimeout:  defaultPopTimeout,
		inflight:    make(map[string]*lease),
		log:         logger.Default().WithComponent(logger.ComponentWorker),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.loopTimes = make([]time.Time, w.concurrency+bufferGrace)
	return w, nil
}

// Start begins processing. The worker runs until Dispose is called or the
// context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.log.Info("Worker started",
		"names", w.registry.Names(),
		"concurrency", w.concurrency,
		"pop_timeout", w.popTimeout)
	w.masterLoop(false)
}

// InflightCount returns the number of jobs currently leased.
func (w *Worker) InflightCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inflight)
}

// masterLoop tops the worker up to its concurrency target. Every entry
// point re-invokes it; fromError marks re-entries caused by pop failures,
// the only path on which throttling is considered.
func (w *Worker) masterLoop(fromError bool) {
	w.mu.Lock()
	if w.disposed || w.throttled {
		w.mu.Unlock()
		return
	}

	now := time.Now()
	w.loopTimes[w.loopIdx] = now
	w.loopIdx = (w.loopIdx + 1) % len(w.loopTimes)
	w.loopCount++

	if fromError && w.loopCount >= len(w.loopTimes) {
		// The slot about to be overwritten holds the oldest recorded entry
		oldest := w.loopTimes[w.loopIdx]
		if now.Sub(oldest) < throttleLimit {
			w.throttled = true
			metrics.Default().RecordThrottleEngaged()
			w.log.Warn("Throttle engaged after rapid pop failures",
				"window", throttleLimit,
				"pause", throttleTimeout)
			time.AfterFunc(throttleTimeout, w.resume)
			w.mu.Unlock()
			return
		}
	}

	for len(w.inflight)+w.pendingPops < w.concurrency {
		w.pendingPops++
		w.wg.Add(1)
		go w.popAndRun()
	}
	w.mu.Unlock()
}

// resume lifts the throttle pause and restarts the loop with a clear buffer.
func (w *Worker) resume() {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	w.throttled = false
	w.loopIdx = 0
	w.loopCount = 0
	w.mu.Unlock()

	w.log.Info("Throttle released, resuming pops")
	w.masterLoop(false)
}

// popAndRun performs one blocking pop and, if a job arrives, runs it.
func (w *Worker) popAndRun() {
	defer w.wg.Done()

	j, err := w.queue.Pop(w.ctx, w.registry.Names(), w.popTimeout)

	w.mu.Lock()
	w.pendingPops--
	disposed := w.disposed
	w.mu.Unlock()
	if disposed {
		return
	}

	if err != nil {
		if qerrors.IsEmpty(err) {
			// Nothing queued; go straight back to blocking
			w.masterLoop(false)
			return
		}
		if w.ctx.Err() != nil {
			return
		}
		w.log.Error("Pop failed", "error", err)
		w.masterLoop(true)
		return
	}

	w.run(j)
}

// run leases the job, arms the timeout timer and invokes the handler. The
// first of handler completion or timer fire reports the outcome; the loser
// finds the lease gone and is dropped.
func (w *Worker) run(j *job.Job) {
	id := j.ID

	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	l := &lease{job: j}
	l.timer = time.AfterFunc(j.ProcessTimeout, func() {
		w.finish(id, l, job.Outcome{
			TimedOut:     true,
			ErrorMessage: fmt.Sprintf("process timeout of %v exceeded", j.ProcessTimeout),
		})
	})
	w.inflight[id] = l
	inflightCount := int64(len(w.inflight))
	w.mu.Unlock()

	metrics.Default().RecordWorkerActivity(inflightCount, int64(w.concurrency))

	hctx, cancel := context.WithTimeout(w.ctx, j.ProcessTimeout)
	hctx = context.WithValue(hctx, logger.CtxJobID, id)
	defer cancel()

	w.log.InfoContext(hctx, "Processing job", "job_name", j.Name, "attempt", len(j.Runs))

	err := w.invoke(hctx, j)

	o := job.Outcome{Success: err == nil}
	if err != nil {
		o.ErrorMessage = err.Error()
	}
	w.finish(id, l, o)
}

// invoke runs the handler for the job, converting a panic into an error
// outcome so one misbehaving consumer cannot take the loop down.
func (w *Worker) invoke(ctx context.Context, j *job.Job) (err error) {
	handler, exists := w.registry.Get(j.Name)
	if !exists {
		return fmt.Errorf("no handler registered for job: %s", j.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			panicErr := qerrors.FromPanic(r)
			w.log.ErrorContext(ctx, "Handler panicked",
				"job_name", j.Name,
				"panic_value", panicErr.Value,
				"stack_trace", panicErr.Stacktrace)
			err = panicErr
		}
	}()

	return handler(ctx, j.View(), j.Data)
}

// finish reports an attempt outcome exactly once per lease. Timer-first
// means a ghost; a handler result landing after the timer fired finds its
// lease gone (or superseded by a newer attempt of the same id) and is
// dropped.
func (w *Worker) finish(id string, l *lease, o job.Outcome) {
	w.mu.Lock()
	if w.inflight[id] != l || w.disposed {
		w.mu.Unlock()
		return
	}
	delete(w.inflight, id)
	l.timer.Stop()
	inflightCount := int64(len(w.inflight))
	w.mu.Unlock()

	metrics.Default().RecordWorkerActivity(inflightCount, int64(w.concurrency))

	if _, err := w.outcome.Process(w.ctx, l.job, o); err != nil {
		// The record stays in processing. Neither this package nor the
		// scheduler moves a job out of processing, so it is not re-run.
		w.log.Error("Failed to persist job outcome", "job_id", id, "error", err)
	}

	w.masterLoop(false)
}

// Dispose short-circuits every entry point, clears pending timers and
// abandons in-flight jobs. Abandoned records stay in processing; the
// scheduler only promotes ids from the scheduled set, so nothing re-queues
// them. Blocks until outstanding
// goroutines drain or the drain timeout passes.
func (w *Worker) Dispose() {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	w.disposed = true
	for _, l := range w.inflight {
		l.timer.Stop()
	}
	w.inflight = make(map[string]*lease)
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info("Worker stopped")
	case <-time.After(drainTimeout):
		w.log.Warn("Worker shutdown timed out", "timeout", drainTimeout)
	}
}
