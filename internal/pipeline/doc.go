// Package pipeline implements the clip processing engine: the fixed stage
// graph Ingest → Transcode → {Thumbnail, Caption} → HookFinder → Render, the
// admission loop that feeds it from tenant inboxes, and the orchestration that
// moves clip jobs between stage queues while recording progress in the event
// log.
package pipeline
