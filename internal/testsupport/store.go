package testsupport

import (
	"context"
	"testing"

	"clipsmith/internal/config"
	"clipsmith/internal/inbox"
	"clipsmith/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenInbox opens an inbox.Store for tests and registers cleanup.
func MustOpenInbox(t testing.TB, cfg *config.Config) *inbox.Store {
	t.Helper()

	store, err := inbox.Open(cfg)
	if err != nil {
		t.Fatalf("inbox.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustEnqueue inserts a job for tests using the provided store.
func MustEnqueue(t testing.TB, store *queue.Store, queueName, tenantID, clipID, payload string, policy queue.RetryPolicy) *queue.Job {
	t.Helper()

	job, err := store.Enqueue(context.Background(), queueName, tenantID, clipID, payload, policy)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
