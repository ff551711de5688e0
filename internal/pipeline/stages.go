package pipeline

import (
	"fmt"

	"clipsmith/internal/eventlog"
	"clipsmith/internal/services"
)

// Stage names double as queue names; each stage owns the queue it consumes.
const (
	StageIngest     = "ingest"
	StageTranscode  = "transcode"
	StageThumbnail  = "thumbnail"
	StageCaption    = "caption"
	StageHookFinder = "hookfinder"
	StageRender     = "render"
)

// Stages lists every stage in graph order.
func Stages() []string {
	return []string{StageIngest, StageTranscode, StageThumbnail, StageCaption, StageHookFinder, StageRender}
}

// nextStages encodes the fixed graph: Ingest feeds Transcode, Transcode fans
// out to Thumbnail and Caption, Caption gates HookFinder (its transcript is
// HookFinder's input), HookFinder feeds Render. Thumbnail and Render are
// terminal branches.
var nextStages = map[string][]string{
	StageIngest:     {StageTranscode},
	StageTranscode:  {StageThumbnail, StageCaption},
	StageThumbnail:  nil,
	StageCaption:    {StageHookFinder},
	StageHookFinder: {StageRender},
	StageRender:     nil,
}

// NextStages returns the queues a completed stage fans out to.
func NextStages(stage string) []string {
	return nextStages[stage]
}

// KnownStage reports whether the name maps to a pipeline stage.
func KnownStage(stage string) bool {
	_, ok := nextStages[stage]
	return ok
}

// ValidateFor checks that the fields a stage consumes are present before the
// stage runs. A missing field is a fatal error; retrying cannot produce it.
func ValidateFor(stage string, job ClipJob) error {
	missing := func(field string) error {
		return services.Wrap(services.ErrMalformed, stage, "validate input",
			fmt.Sprintf("missing required field %s", field), nil)
	}
	if job.TenantID == "" {
		return missing("tenantId")
	}
	if job.ClipID == "" {
		return missing("clipId")
	}
	switch stage {
	case StageIngest:
		if job.SourceURL == "" {
			return missing("sourceUrl")
		}
	case StageTranscode:
		if job.FetchedPath == "" {
			return missing("fetchedPath")
		}
	case StageThumbnail:
		if job.TranscodedPath == "" {
			return missing("transcodedPath")
		}
	case StageCaption:
		if job.AudioPath == "" {
			return missing("audioPath")
		}
	case StageHookFinder:
		if job.Transcript == "" {
			return missing("transcript")
		}
	case StageRender:
		if job.TranscodedPath == "" {
			return missing("transcodedPath")
		}
		if job.HookEndSec <= job.HookStartSec {
			return services.Wrap(services.ErrMalformed, stage, "validate input",
				"hook window is empty or inverted", nil)
		}
	default:
		return services.Wrap(services.ErrConfiguration, stage, "validate input", "unknown stage", nil)
	}
	return nil
}

// Disposition tells the orchestrator what to do with a finished handler call.
type Disposition int

const (
	// DispositionOk advances the job to the next stage queues.
	DispositionOk Disposition = iota
	// DispositionRetry hands the job back to the queue for backoff redelivery.
	DispositionRetry
	// DispositionFatal fails the job immediately, no retry.
	DispositionFatal
)

// Result is a stage handler's verdict. Handlers never enqueue or append
// events themselves; the orchestrator does both, which keeps stage logic
// testable against plain inputs and outputs.
type Result struct {
	Disposition Disposition
	Job         ClipJob
	EventType   eventlog.EventType
	Message     string
	Err         error
}

// Ok builds a success result carrying the merged job and the event to append.
func Ok(job ClipJob, eventType eventlog.EventType, message string) Result {
	return Result{Disposition: DispositionOk, Job: job, EventType: eventType, Message: message}
}

// Retry builds a retryable failure result.
func Retry(err error) Result {
	return Result{Disposition: DispositionRetry, Err: err}
}

// Fatal builds a terminal failure result.
func Fatal(err error) Result {
	return Result{Disposition: DispositionFatal, Err: err}
}
