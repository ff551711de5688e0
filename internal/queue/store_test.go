package queue_test

import (
	"context"
	"testing"
	"time"

	"clipsmith/internal/queue"
	"clipsmith/internal/services"
	"clipsmith/internal/testsupport"
)

func testPolicy() queue.RetryPolicy {
	return queue.RetryPolicy{MaxAttempts: 3, BackoffBase: 5 * time.Millisecond}
}

func TestStoreEnqueueAndClaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job, err := store.Enqueue(ctx, "ingest", "tenant-a", "clip-1", `{"sourceUrl":"https://example.com/v"}`, testPolicy())
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.State != queue.StatePending {
		t.Fatalf("expected pending state, got %s", job.State)
	}
	if job.Attempts != 0 {
		t.Fatalf("expected zero attempts before claim, got %d", job.Attempts)
	}

	claimed, err := store.Claim(ctx, "ingest")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claimable job")
	}
	if claimed.ID != job.ID {
		t.Fatalf("claimed wrong job: got %d want %d", claimed.ID, job.ID)
	}
	if claimed.State != queue.StateActive {
		t.Fatalf("expected active state, got %s", claimed.State)
	}
	if claimed.Attempts != 1 {
		t.Fatalf("expected attempt counted at claim, got %d", claimed.Attempts)
	}
	if claimed.LeasedAt == nil {
		t.Fatal("expected lease timestamp on claimed job")
	}

	// Queue is empty while the job is leased.
	again, err := store.Claim(ctx, "ingest")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if again != nil {
		t.Fatalf("expected no claimable job, got %d", again.ID)
	}
}

func TestStoreClaimRespectsQueueName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "transcode", "tenant-a", "clip-1", "{}", testPolicy())

	job, err := store.Claim(ctx, "ingest")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no job on ingest queue, got %d", job.ID)
	}
}

func TestStoreClaimFIFO(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.MustEnqueue(t, store, "ingest", "tenant-a", "clip-1", "{}", testPolicy())
	testsupport.MustEnqueue(t, store, "ingest", "tenant-b", "clip-2", "{}", testPolicy())

	claimed, err := store.Claim(ctx, "ingest")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest job %d first, got %+v", first.ID, claimed)
	}
}

func TestStoreCompleteAcknowledges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "ingest", "tenant-a", "clip-1", "{}", testPolicy())
	claimed, err := store.Claim(ctx, "ingest")
	if err != nil || claimed == nil {
		t.Fatalf("Claim: %v %v", claimed, err)
	}
	if err := store.Complete(ctx, claimed.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	done, err := store.GetByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if done.State != queue.StateCompleted {
		t.Fatalf("expected completed state, got %s", done.State)
	}
	if done.LeasedAt != nil {
		t.Fatal("expected lease cleared on completion")
	}
}

func TestStoreFailReschedulesWithBackoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "ingest", "tenant-a", "clip-1", "{}", queue.RetryPolicy{MaxAttempts: 3, BackoffBase: time.Hour})
	claimed, err := store.Claim(ctx, "ingest")
	if err != nil || claimed == nil {
		t.Fatalf("Claim: %v %v", claimed, err)
	}

	before := time.Now()
	terminal, err := store.Fail(ctx, claimed, "fetch timed out")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if terminal {
		t.Fatal("first failure should not be terminal")
	}

	job, err := store.GetByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.State != queue.StatePending {
		t.Fatalf("expected pending after retryable failure, got %s", job.State)
	}
	if job.LastError != "fetch timed out" {
		t.Fatalf("expected failure cause recorded, got %q", job.LastError)
	}
	if !job.RunAt.After(before.Add(30 * time.Minute)) {
		t.Fatalf("expected run_at pushed out by backoff, got %s", job.RunAt)
	}

	// Not claimable until the backoff delay elapses.
	again, err := store.Claim(ctx, "ingest")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if again != nil {
		t.Fatalf("expected backoff to delay redelivery, got job %d", again.ID)
	}
}

func TestStoreFailBecomesTerminalWhenExhausted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "ingest", "tenant-a", "clip-1", "{}", queue.RetryPolicy{MaxAttempts: 2, BackoffBase: time.Millisecond})

	for attempt := 1; ; attempt++ {
		claimed := waitForClaim(t, store, "ingest")
		terminal, err := store.Fail(ctx, claimed, "still broken")
		if err != nil {
			t.Fatalf("Fail: %v", err)
		}
		if terminal {
			if attempt != 2 {
				t.Fatalf("expected terminal failure on attempt 2, got %d", attempt)
			}
			break
		}
		if attempt > 2 {
			t.Fatal("delivery budget not enforced")
		}
	}

	jobs, err := store.List(ctx, "", queue.StateFailed)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected one failed job, got %d", len(jobs))
	}
	if jobs[0].LastError != "still broken" {
		t.Fatalf("expected last error preserved, got %q", jobs[0].LastError)
	}
}

func TestStoreFailTerminalSkipsRetries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "ingest", "tenant-a", "clip-1", "{}", testPolicy())
	claimed := waitForClaim(t, store, "ingest")

	if err := store.FailTerminal(ctx, claimed, "malformed payload"); err != nil {
		t.Fatalf("FailTerminal: %v", err)
	}
	job, err := store.GetByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.State != queue.StateFailed {
		t.Fatalf("expected failed state, got %s", job.State)
	}
	if job.Attempts != 1 {
		t.Fatalf("expected one attempt, got %d", job.Attempts)
	}
}

func TestStoreReclaimStale(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "ingest", "tenant-a", "clip-1", "{}", testPolicy())
	claimed := waitForClaim(t, store, "ingest")

	// A cutoff in the past reclaims nothing.
	reclaimed, err := store.ReclaimStale(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("expected fresh lease untouched, reclaimed %d", reclaimed)
	}

	// A cutoff in the future expires the lease.
	reclaimed, err = store.ReclaimStale(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected one reclaimed job, got %d", reclaimed)
	}

	job, err := store.GetByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.State != queue.StatePending {
		t.Fatalf("expected reclaimed job pending, got %s", job.State)
	}
	if job.Attempts != 1 {
		t.Fatalf("reclaim must not reset the attempt count, got %d", job.Attempts)
	}
}

func TestStoreRetryFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "ingest", "tenant-a", "clip-1", "{}", testPolicy())
	claimed := waitForClaim(t, store, "ingest")
	if err := store.FailTerminal(ctx, claimed, "boom"); err != nil {
		t.Fatalf("FailTerminal: %v", err)
	}

	count, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one retried job, got %d", count)
	}

	job, err := store.GetByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.State != queue.StatePending {
		t.Fatalf("expected pending after retry, got %s", job.State)
	}
	if job.Attempts != 0 {
		t.Fatalf("expected reset attempts, got %d", job.Attempts)
	}
	if job.LastError != "" {
		t.Fatalf("expected cleared last error, got %q", job.LastError)
	}
}

func TestStoreHealthAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "ingest", "tenant-a", "clip-1", "{}", testPolicy())
	testsupport.MustEnqueue(t, store, "transcode", "tenant-a", "clip-2", "{}", testPolicy())
	claimed := waitForClaim(t, store, "ingest")
	if err := store.Complete(ctx, claimed.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 2 || health.Pending != 1 || health.Completed != 1 {
		t.Fatalf("unexpected health summary: %+v", health)
	}

	removed, err := store.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one removed job, got %d", removed)
	}

	removed, err = store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one remaining job cleared, got %d", removed)
	}
}

func TestStoreJobsByClip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "ingest", "tenant-a", "clip-1", "{}", testPolicy())
	testsupport.MustEnqueue(t, store, "transcode", "tenant-a", "clip-1", "{}", testPolicy())
	testsupport.MustEnqueue(t, store, "ingest", "tenant-a", "clip-2", "{}", testPolicy())

	jobs, err := store.JobsByClip(ctx, "clip-1")
	if err != nil {
		t.Fatalf("JobsByClip: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected two jobs for clip-1, got %d", len(jobs))
	}
	if jobs[0].Queue != "ingest" || jobs[1].Queue != "transcode" {
		t.Fatalf("expected jobs ordered oldest first, got %s then %s", jobs[0].Queue, jobs[1].Queue)
	}
}

func TestStoreEnqueueValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, "", "tenant-a", "clip-1", "{}", testPolicy()); err == nil {
		t.Fatal("expected error for empty queue name")
	}
	if _, err := store.Enqueue(ctx, "ingest", "", "clip-1", "{}", testPolicy()); err == nil {
		t.Fatal("expected error for empty tenant id")
	}
	if _, err := store.Enqueue(ctx, "ingest", "tenant-a", "clip-1", "{}", queue.RetryPolicy{}); err == nil {
		t.Fatal("expected error for zero max attempts")
	}
}

func TestStoreEnqueueUnavailableBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	store.Close()

	_, err := store.Enqueue(context.Background(), "ingest", "tenant-a", "clip-1", "{}", testPolicy())
	if err == nil {
		t.Fatal("expected error on closed store")
	}
	if !services.IsUnavailable(err) {
		t.Fatalf("expected unavailable classification, got %v", err)
	}
}

// waitForClaim polls until a job becomes runnable, failing the test after a
// bounded wait. Needed because backoff scheduling delays redelivery.
func waitForClaim(t testing.TB, store *queue.Store, queueName string) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Claim(context.Background(), queueName)
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if job != nil {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no job became claimable on %q", queueName)
	return nil
}
