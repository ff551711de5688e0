// Package services defines shared utilities consumed by the pipeline stage
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp tenant, clip, and stage identifiers plus
//     correlation ids for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into retryable and fatal outcomes for the queue.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
