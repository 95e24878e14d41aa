package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	qerrors "github.com/muaviaUsmani/papaya/internal/errors"
	"github.com/muaviaUsmani/papaya/internal/job"
	"github.com/muaviaUsmani/papaya/internal/keys"
	"github.com/muaviaUsmani/papaya/internal/queue"
	"github.com/muaviaUsmani/papaya/internal/store"
)

func setupWorkerTest(t *testing.T) (*store.Store, *queue.Queue, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client, err := store.Connect("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	s := store.New(client, keys.NewNamer("papaya"))
	return s, queue.New(s), mr
}

func submit(t *testing.T, s *store.Store, q *queue.Queue, mutate func(*job.Job)) string {
	t.Helper()
	ctx := context.Background()

	j := job.New("mail", []byte(`{"to":"a@b.c"}`))
	if mutate != nil {
		mutate(j)
	}
	id, err := s.Create(ctx, j)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := q.Enqueue(ctx, j); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	return id
}

func startWorker(t *testing.T, q *queue.Queue, s *store.Store, handler Handler, opts ...Option) *Worker {
	t.Helper()

	registry := NewRegistry()
	if err := registry.Register("mail", handler); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	opts = append([]Option{WithPopTimeout(100 * time.Millisecond)}, opts...)
	w, err := New(registry, q, NewOutcomeProcessor(s, q), opts...)
	if err != nil {
		t.Fatalf("new worker failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	w.Start(ctx)
	t.Cleanup(w.Dispose)

	return w
}

// waitForState polls the store until the job reaches the wanted state.
func waitForState(t *testing.T, s *store.Store, id string, want job.State, timeout time.Duration) *job.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		j, err := s.Fetch(context.Background(), id)
		if err == nil && j.State == want {
			return j
		}
		time.Sleep(20 * time.Millisecond)
	}
	j, err := s.Fetch(context.Background(), id)
	if err != nil {
		t.Fatalf("job %s never reached %q: fetch error %v", id, want, err)
	}
	t.Fatalf("job %s never reached %q, still %q after %v", id, want, j.State, timeout)
	return nil
}

func TestNew_RequiresHandlers(t *testing.T) {
	_, q, _ := setupWorkerTest(t)

	_, err := New(NewRegistry(), q, nil)
	if !errors.Is(err, qerrors.ErrBadArgument) {
		t.Errorf("expected BadArgument for empty registry, got %v", err)
	}

	registry := NewRegistry()
	if err := registry.Register("mail", func(context.Context, job.View, []byte) error { return nil }); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	_, err = New(registry, nil, nil)
	if !errors.Is(err, qerrors.ErrBadArgument) {
		t.Errorf("expected BadArgument for nil queue, got %v", err)
	}
}

func TestRegistry_Validation(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register("", func(context.Context, job.View, []byte) error { return nil }); !errors.Is(err, qerrors.ErrBadArgument) {
		t.Errorf("expected BadArgument for empty name, got %v", err)
	}
	if err := registry.Register("mail", nil); !errors.Is(err, qerrors.ErrBadArgument) {
		t.Errorf("expected BadArgument for nil handler, got %v", err)
	}
}

func TestWorker_HappyPath(t *testing.T) {
	s, q, _ := setupWorkerTest(t)

	id := submit(t, s, q, nil)

	var got job.View
	var gotData []byte
	var mu sync.Mutex
	startWorker(t, q, s, func(ctx context.Context, j job.View, data []byte) error {
		mu.Lock()
		got, gotData = j, data
		mu.Unlock()
		return nil
	})

	final := waitForState(t, s, id, job.StateSuccess, 3*time.Second)

	if !final.Complete || !final.Success {
		t.Errorf("expected complete successful job, got complete=%v success=%v", final.Complete, final.Success)
	}
	if len(final.Runs) != 1 || final.Runs[0].State != job.StateSuccess {
		t.Errorf("expected one successful run, got %+v", final.Runs)
	}

	mu.Lock()
	defer mu.Unlock()
	if got.ID != id || got.Attempt != 1 {
		t.Errorf("handler saw wrong view: %+v", got)
	}
	if string(gotData) != `{"to":"a@b.c"}` {
		t.Errorf("handler saw wrong payload: %q", gotData)
	}
}

func TestWorker_RetryThenSucceed(t *testing.T) {
	s, q, _ := setupWorkerTest(t)

	id := submit(t, s, q, func(j *job.Job) {
		j.Retry = true
		j.RetryTimes = 3
		j.RetryInterval = 0
	})

	startWorker(t, q, s, func(ctx context.Context, j job.View, data []byte) error {
		if j.Attempt == 1 {
			return fmt.Errorf("oops")
		}
		return nil
	})

	final := waitForState(t, s, id, job.StateSuccess, 3*time.Second)

	if len(final.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(final.Runs))
	}
	if final.Runs[0].State != job.StateFail || final.Runs[0].ErrorMessage != "oops" {
		t.Errorf("first run should be failed with message, got %+v", final.Runs[0])
	}
	if final.Runs[1].State != job.StateSuccess {
		t.Errorf("second run should be successful, got %+v", final.Runs[1])
	}
}

func TestWorker_RetryExhaustionFails(t *testing.T) {
	s, q, _ := setupWorkerTest(t)

	id := submit(t, s, q, func(j *job.Job) {
		j.Retry = true
		j.RetryTimes = 2
		j.RetryInterval = 0
	})

	startWorker(t, q, s, func(ctx context.Context, j job.View, data []byte) error {
		return fmt.Errorf("always broken")
	})

	final := waitForState(t, s, id, job.StateFail, 3*time.Second)

	if len(final.Runs) != 3 {
		t.Fatalf("expected 3 runs (initial + 2 retries), got %d", len(final.Runs))
	}
	if !final.Complete || final.Success {
		t.Errorf("expected complete unsuccessful job, got complete=%v success=%v", final.Complete, final.Success)
	}
}

func TestWorker_GhostThenSucceed(t *testing.T) {
	s, q, _ := setupWorkerTest(t)

	id := submit(t, s, q, func(j *job.Job) {
		j.ProcessTimeout = 50 * time.Millisecond
		j.GhostRetry = true
		j.GhostTimes = 1
		j.GhostInterval = 0
	})

	startWorker(t, q, s, func(ctx context.Context, j job.View, data []byte) error {
		if j.Attempt == 1 {
			// Outlive the timeout so the timer classifies the attempt
			time.Sleep(300 * time.Millisecond)
			return fmt.Errorf("too late")
		}
		return nil
	})

	final := waitForState(t, s, id, job.StateSuccess, 5*time.Second)

	if len(final.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(final.Runs))
	}
	if final.Runs[0].State != job.StateGhost {
		t.Errorf("first run should be ghost, got %q", final.Runs[0].State)
	}
	if final.Runs[1].State != job.StateSuccess {
		t.Errorf("second run should be successful, got %q", final.Runs[1].State)
	}
}

func TestWorker_GhostExhaustionFails(t *testing.T) {
	s, q, _ := setupWorkerTest(t)

	id := submit(t, s, q, func(j *job.Job) {
		j.ProcessTimeout = 50 * time.Millisecond
		j.GhostRetry = true
		j.GhostTimes = 1
		j.GhostInterval = 0
	})

	startWorker(t, q, s, func(ctx context.Context, j job.View, data []byte) error {
		time.Sleep(300 * time.Millisecond)
		return fmt.Errorf("too late")
	})

	final := waitForState(t, s, id, job.StateFail, 5*time.Second)

	if len(final.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(final.Runs))
	}
	for i, run := range final.Runs {
		if run.State != job.StateGhost {
			t.Errorf("run %d should be ghost, got %q", i, run.State)
		}
	}
}

func TestWorker_TimeoutWithoutGhostRetryFails(t *testing.T) {
	s, q, _ := setupWorkerTest(t)

	id := submit(t, s, q, func(j *job.Job) {
		j.ProcessTimeout = 50 * time.Millisecond
		j.GhostRetry = false
	})

	startWorker(t, q, s, func(ctx context.Context, j job.View, data []byte) error {
		time.Sleep(300 * time.Millisecond)
		return fmt.Errorf("too late")
	})

	final := waitForState(t, s, id, job.StateFail, 3*time.Second)

	if len(final.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(final.Runs))
	}
	if final.Runs[0].State != job.StateGhost {
		t.Errorf("run should be ghost, got %q", final.Runs[0].State)
	}
}

func TestWorker_PanicIsErrorOutcome(t *testing.T) {
	s, q, _ := setupWorkerTest(t)

	id := submit(t, s, q, func(j *job.Job) {
		j.Retry = false
	})

	startWorker(t, q, s, func(ctx context.Context, j job.View, data []byte) error {
		panic("handler exploded")
	})

	final := waitForState(t, s, id, job.StateFail, 3*time.Second)

	if len(final.Runs) != 1 || final.Runs[0].State != job.StateFail {
		t.Fatalf("expected one failed run, got %+v", final.Runs)
	}
	if final.Runs[0].ErrorMessage == "" {
		t.Error("expected panic recorded in error message")
	}
}

func TestWorker_MissingHandlerIsErrorOutcome(t *testing.T) {
	s, q, _ := setupWorkerTest(t)

	registry := NewRegistry()
	if err := registry.Register("mail", func(context.Context, job.View, []byte) error { return nil }); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	w, err := New(registry, q, NewOutcomeProcessor(s, q))
	if err != nil {
		t.Fatalf("new worker failed: %v", err)
	}

	if err := w.invoke(context.Background(), job.New("push", nil)); err == nil {
		t.Error("expected error invoking a job with no registered handler")
	}
}

func TestWorker_ConcurrencyTarget(t *testing.T) {
	s, q, _ := setupWorkerTest(t)

	for i := 0; i < 3; i++ {
		submit(t, s, q, nil)
	}

	release := make(chan struct{})
	var mu sync.Mutex
	running := 0
	maxRunning := 0

	w := startWorker(t, q, s, func(ctx context.Context, j job.View, data []byte) error {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()

		<-release

		mu.Lock()
		running--
		mu.Unlock()
		return nil
	}, WithConcurrency(3))

	// Wait for the loop to fill its in-flight target
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.InflightCount() == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := w.InflightCount(); got != 3 {
		t.Fatalf("expected 3 in-flight jobs, got %d", got)
	}
	close(release)

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.InflightCount() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if maxRunning != 3 {
		t.Errorf("expected 3 handlers running concurrently, got %d", maxRunning)
	}
}

func TestWorker_DisposeStopsProcessing(t *testing.T) {
	s, q, _ := setupWorkerTest(t)

	w := startWorker(t, q, s, func(ctx context.Context, j job.View, data []byte) error {
		return nil
	})

	w.Dispose()

	// Jobs submitted after dispose stay queued
	id := submit(t, s, q, nil)
	time.Sleep(300 * time.Millisecond)

	j, err := s.Fetch(context.Background(), id)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if j.State != job.StateNew {
		t.Errorf("expected job untouched after dispose, got %q", j.State)
	}
}

func TestWorker_LateResultAfterTimeoutIsDropped(t *testing.T) {
	s, q, _ := setupWorkerTest(t)

	id := submit(t, s, q, func(j *job.Job) {
		j.ProcessTimeout = 50 * time.Millisecond
		j.GhostRetry = false
	})

	returned := make(chan struct{})
	startWorker(t, q, s, func(ctx context.Context, j job.View, data []byte) error {
		// Outlive the timeout, then report success anyway
		time.Sleep(250 * time.Millisecond)
		close(returned)
		return nil
	})

	final := waitForState(t, s, id, job.StateFail, 3*time.Second)

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never returned")
	}

	// Give a dropped late completion a chance to do damage, then re-check
	time.Sleep(200 * time.Millisecond)
	again, err := s.Fetch(context.Background(), id)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if again.State != job.StateFail {
		t.Errorf("late handler result must be dropped, state became %q", again.State)
	}
	if len(final.Runs) != 1 || final.Runs[0].State != job.StateGhost {
		t.Errorf("expected single ghost run, got %+v", final.Runs)
	}
}

func TestWorker_ThrottleEngagesOnRapidFailures(t *testing.T) {
	s, q, _ := setupWorkerTest(t)

	registry := NewRegistry()
	if err := registry.Register("mail", func(context.Context, job.View, []byte) error { return nil }); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	w, err := New(registry, q, NewOutcomeProcessor(s, q))
	if err != nil {
		t.Fatalf("new worker failed: %v", err)
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	t.Cleanup(w.cancel)

	// Hold the pop budget so the loop only does its bookkeeping
	w.mu.Lock()
	w.pendingPops = w.concurrency
	w.mu.Unlock()

	// Fill the ring with error-path re-entries inside the throttle window
	for i := 0; i < w.concurrency+bufferGrace; i++ {
		w.masterLoop(true)
	}

	w.mu.Lock()
	throttled := w.throttled
	count := w.loopCount
	w.mu.Unlock()

	if !throttled {
		t.Fatal("expected throttle to engage after rapid error re-entries")
	}

	// Further invocations short-circuit while throttled
	w.masterLoop(false)
	w.mu.Lock()
	after := w.loopCount
	w.mu.Unlock()
	if after != count {
		t.Errorf("expected throttled loop to record nothing, count went %d -> %d", count, after)
	}
}

func TestWorker_SlowFailuresDoNotThrottle(t *testing.T) {
	s, q, _ := setupWorkerTest(t)

	registry := NewRegistry()
	if err := registry.Register("mail", func(context.Context, job.View, []byte) error { return nil }); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	w, err := New(registry, q, NewOutcomeProcessor(s, q))
	if err != nil {
		t.Fatalf("new worker failed: %v", err)
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	t.Cleanup(w.cancel)

	w.mu.Lock()
	w.pendingPops = w.concurrency
	// Backdate the ring so the oldest entry falls outside the window
	for i := range w.loopTimes {
		w.loopTimes[i] = time.Now().Add(-time.Minute)
	}
	w.loopCount = len(w.loopTimes)
	w.mu.Unlock()

	w.masterLoop(true)

	w.mu.Lock()
	throttled := w.throttled
	w.mu.Unlock()
	if throttled {
		t.Error("expected no throttle when failures are spread out")
	}
}
