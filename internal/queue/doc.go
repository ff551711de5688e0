// Package queue provides the durable named job queue backing the clip
// pipeline. Jobs are persisted in SQLite, delivered at-least-once to worker
// pools, and retried with exponential backoff until their delivery budget is
// exhausted.
package queue
