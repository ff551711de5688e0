package queue_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clipsmith/internal/queue"
	"clipsmith/internal/services"
	"clipsmith/internal/testsupport"
)

func newTestWorkers(t *testing.T, store *queue.Store, onExhausted queue.ExhaustedFunc) *queue.Workers {
	t.Helper()
	return queue.NewWorkers(store, queue.WorkersOptions{
		PollInterval: 5 * time.Millisecond,
		LeaseTimeout: time.Minute,
		OnExhausted:  onExhausted,
	})
}

func TestWorkersProcessJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	done := make(chan *queue.Job, 1)
	workers := newTestWorkers(t, store, nil)
	if err := workers.Subscribe("ingest", 2, func(ctx context.Context, job *queue.Job) error {
		done <- job
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := workers.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer workers.Stop()

	job := testsupport.MustEnqueue(t, store, "ingest", "tenant-a", "clip-1", "{}", testPolicy())

	select {
	case handled := <-done:
		if handled.ID != job.ID {
			t.Fatalf("handled wrong job: got %d want %d", handled.ID, job.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job was never delivered")
	}

	waitForState(t, store, job.ID, queue.StateCompleted)
}

func TestWorkersStampHandlerContext(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	type seen struct {
		tenant string
		clip   string
	}
	got := make(chan seen, 1)

	workers := newTestWorkers(t, store, nil)
	if err := workers.Subscribe("ingest", 1, func(ctx context.Context, job *queue.Job) error {
		tenant, _ := services.TenantIDFromContext(ctx)
		clip, _ := services.ClipIDFromContext(ctx)
		got <- seen{tenant: tenant, clip: clip}
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := workers.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer workers.Stop()

	testsupport.MustEnqueue(t, store, "ingest", "tenant-a", "clip-1", "{}", testPolicy())

	select {
	case s := <-got:
		if s.tenant != "tenant-a" || s.clip != "clip-1" {
			t.Fatalf("handler context missing identifiers: %+v", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job was never delivered")
	}
}

func TestWorkersRetryUntilSuccess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	var calls atomic.Int32
	done := make(chan struct{})
	var once sync.Once

	workers := newTestWorkers(t, store, nil)
	if err := workers.Subscribe("transcode", 1, func(ctx context.Context, job *queue.Job) error {
		if calls.Add(1) < 3 {
			return services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", "exit status 1", nil)
		}
		once.Do(func() { close(done) })
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := workers.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer workers.Stop()

	job := testsupport.MustEnqueue(t, store, "transcode", "tenant-a", "clip-1", "{}",
		queue.RetryPolicy{MaxAttempts: 5, BackoffBase: time.Millisecond})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("job never succeeded, %d calls", calls.Load())
	}

	waitForState(t, store, job.ID, queue.StateCompleted)
	if calls.Load() != 3 {
		t.Fatalf("expected 3 delivery attempts, got %d", calls.Load())
	}
}

func TestWorkersExhaustionFiresHook(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	exhausted := make(chan *queue.Job, 1)
	workers := newTestWorkers(t, store, func(ctx context.Context, job *queue.Job, cause error) {
		exhausted <- job
	})
	if err := workers.Subscribe("caption", 1, func(ctx context.Context, job *queue.Job) error {
		return services.Wrap(services.ErrExternalTool, "caption", "transcribe", "service 500", nil)
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := workers.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer workers.Stop()

	job := testsupport.MustEnqueue(t, store, "caption", "tenant-a", "clip-1", "{}",
		queue.RetryPolicy{MaxAttempts: 2, BackoffBase: time.Millisecond})

	select {
	case failed := <-exhausted:
		if failed.ID != job.ID {
			t.Fatalf("exhausted wrong job: got %d want %d", failed.ID, job.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("exhaustion hook never fired")
	}

	waitForState(t, store, job.ID, queue.StateFailed)

	// The hook fires exactly once per job.
	select {
	case extra := <-exhausted:
		t.Fatalf("exhaustion hook fired twice for job %d", extra.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWorkersFatalErrorSkipsRetries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	var calls atomic.Int32
	exhausted := make(chan *queue.Job, 1)
	workers := newTestWorkers(t, store, func(ctx context.Context, job *queue.Job, cause error) {
		exhausted <- job
	})
	if err := workers.Subscribe("ingest", 1, func(ctx context.Context, job *queue.Job) error {
		calls.Add(1)
		return services.Wrap(services.ErrMalformed, "ingest", "decode payload", "missing sourceUrl", nil)
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := workers.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer workers.Stop()

	job := testsupport.MustEnqueue(t, store, "ingest", "tenant-a", "clip-1", "{}",
		queue.RetryPolicy{MaxAttempts: 5, BackoffBase: time.Millisecond})

	select {
	case <-exhausted:
	case <-time.After(5 * time.Second):
		t.Fatal("fatal job never reported")
	}

	waitForState(t, store, job.ID, queue.StateFailed)
	if calls.Load() != 1 {
		t.Fatalf("fatal error must not be retried, got %d calls", calls.Load())
	}
}

func TestWorkersSubscribeValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	workers := newTestWorkers(t, store, nil)

	if err := workers.Subscribe("", 1, func(context.Context, *queue.Job) error { return nil }); err == nil {
		t.Fatal("expected error for empty queue name")
	}
	if err := workers.Subscribe("ingest", 1, nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
	if err := workers.Subscribe("ingest", 1, func(context.Context, *queue.Job) error { return nil }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := workers.Subscribe("ingest", 1, func(context.Context, *queue.Job) error { return nil }); err == nil {
		t.Fatal("expected error for duplicate subscription")
	}
	if err := workers.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer workers.Stop()
	if err := workers.Subscribe("render", 1, func(context.Context, *queue.Job) error { return nil }); err == nil {
		t.Fatal("expected error subscribing after start")
	}
}

func TestWorkersStopWaitsForHandlers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	workers := newTestWorkers(t, store, nil)
	if err := workers.Subscribe("render", 1, func(ctx context.Context, job *queue.Job) error {
		close(started)
		<-release
		finished.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := workers.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	testsupport.MustEnqueue(t, store, "render", "tenant-a", "clip-1", "{}", testPolicy())
	<-started

	stopDone := make(chan struct{})
	go func() {
		workers.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		t.Fatal("Stop returned while a handler was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop never returned")
	}
	if !finished.Load() {
		t.Fatal("handler did not finish before Stop returned")
	}
}

func waitForState(t testing.TB, store *queue.Store, id int64, want queue.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if job != nil && job.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %d never reached state %s", id, want)
}
