package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"clipsmith/internal/config"
	"clipsmith/internal/eventlog"
	"clipsmith/internal/logging"
	"clipsmith/internal/queue"
	"clipsmith/internal/services"
)

// Orchestrator owns the stage graph. Handlers produce results; the
// orchestrator appends the event and enqueues the next stage queues, in that
// order, so a tenant's log stays causally ordered per clip.
type Orchestrator struct {
	cfg      *config.Config
	store    *queue.Store
	hub      *eventlog.Hub
	workers  *queue.Workers
	handlers map[string]Handler
	logger   *slog.Logger
	policy   queue.RetryPolicy
}

// NewOrchestrator wires the stage handlers to the queue and event log.
func NewOrchestrator(cfg *config.Config, store *queue.Store, hub *eventlog.Hub, handlers map[string]Handler, logger *slog.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if store == nil {
		return nil, fmt.Errorf("queue store required")
	}
	if hub == nil {
		return nil, fmt.Errorf("event hub required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	for _, stage := range Stages() {
		if handlers[stage] == nil {
			return nil, fmt.Errorf("no handler registered for stage %q", stage)
		}
	}

	maxAttempts, backoffMS := cfg.RetryPolicyValues()
	o := &Orchestrator{
		cfg:      cfg,
		store:    store,
		hub:      hub,
		handlers: handlers,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		policy: queue.RetryPolicy{
			MaxAttempts: maxAttempts,
			BackoffBase: time.Duration(backoffMS) * time.Millisecond,
		},
	}

	o.workers = queue.NewWorkers(store, queue.WorkersOptions{
		PollInterval: time.Duration(cfg.Queue.PollIntervalMS) * time.Millisecond,
		LeaseTimeout: time.Duration(cfg.Queue.LeaseTimeout) * time.Second,
		OnExhausted:  o.onExhausted,
		Logger:       logger,
	})
	for _, stage := range Stages() {
		stage := stage
		if err := o.workers.Subscribe(stage, o.stageConcurrency(stage), func(ctx context.Context, job *queue.Job) error {
			return o.runStage(ctx, stage, job)
		}); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Policy returns the retry policy applied to pipeline jobs.
func (o *Orchestrator) Policy() queue.RetryPolicy {
	return o.policy
}

// Start launches every stage worker pool.
func (o *Orchestrator) Start(ctx context.Context) error {
	return o.workers.Start(ctx)
}

// Stop shuts the pools down, waiting for in-flight stages to finish.
func (o *Orchestrator) Stop() {
	o.workers.Stop()
}

// Admit creates the pipeline run for a submission: the clip job enters the
// ingest queue and the inbox entry it came from is already gone.
func (o *Orchestrator) Admit(ctx context.Context, job ClipJob) error {
	payload, err := job.Encode()
	if err != nil {
		return err
	}
	if _, err := o.store.Enqueue(ctx, StageIngest, job.TenantID, job.ClipID, payload, o.policy); err != nil {
		return err
	}
	o.logger.Info("clip admitted",
		logging.String(logging.FieldTenantID, job.TenantID),
		logging.String(logging.FieldClipID, job.ClipID),
		logging.String("source_url", job.SourceURL))
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, stage string, qjob *queue.Job) error {
	job, err := DecodeJob(qjob.Payload)
	if err != nil {
		return err
	}
	if err := ValidateFor(stage, job); err != nil {
		return err
	}

	ctx = services.WithStage(ctx, stage)
	log := logging.WithContext(ctx, o.logger)
	log.Info("stage started", logging.String(logging.FieldStage, stage), logging.Int(logging.FieldAttempt, qjob.Attempts))

	result := o.handlers[stage](ctx, job)
	switch result.Disposition {
	case DispositionOk:
		return o.advance(ctx, stage, result)
	case DispositionFatal:
		if result.Err == nil {
			result.Err = services.Wrap(services.ErrMalformed, stage, "handler", "fatal without cause", nil)
		}
		if !services.IsFatal(result.Err) {
			result.Err = services.Wrap(services.ErrMalformed, stage, "handler", "fatal failure", result.Err)
		}
		return result.Err
	default:
		if result.Err == nil {
			result.Err = services.Wrap(services.ErrTransient, stage, "handler", "retry without cause", nil)
		}
		return result.Err
	}
}

// advance appends the stage's event before enqueuing the next stages; a
// subscriber therefore always sees a stage's event before any event from a
// downstream stage of the same clip.
func (o *Orchestrator) advance(ctx context.Context, stage string, result Result) error {
	job := result.Job
	o.hub.Append(eventlog.Event{
		TenantID: job.TenantID,
		ClipID:   job.ClipID,
		Stage:    stage,
		Type:     result.EventType,
		Message:  result.Message,
	})

	payload, err := job.Encode()
	if err != nil {
		return services.Wrap(services.ErrMalformed, stage, "encode payload", "", err)
	}
	for _, next := range NextStages(stage) {
		if _, err := o.store.Enqueue(ctx, next, job.TenantID, job.ClipID, payload, o.policy); err != nil {
			return err
		}
	}

	if stage == StageRender {
		o.logger.Info("pipeline run complete",
			logging.String(logging.FieldTenantID, job.TenantID),
			logging.String(logging.FieldClipID, job.ClipID),
			logging.String("rendered_path", job.RenderedPath))
	}
	return nil
}

// onExhausted emits the single terminal error event for a clip whose stage
// ran out of retries. Downstream stages never run because nothing enqueues
// them.
func (o *Orchestrator) onExhausted(ctx context.Context, qjob *queue.Job, cause error) {
	tenantID := qjob.TenantID
	clipID := qjob.ClipID
	if job, err := DecodeJob(qjob.Payload); err == nil {
		tenantID = job.TenantID
		clipID = job.ClipID
	}
	o.hub.Append(eventlog.Event{
		TenantID: tenantID,
		ClipID:   clipID,
		Stage:    qjob.Queue,
		Type:     eventlog.TypeError,
		Message:  fmt.Sprintf("%s failed: %v", qjob.Queue, cause),
	})
}

func (o *Orchestrator) stageConcurrency(stage string) int {
	switch stage {
	case StageIngest:
		return o.cfg.Stages.IngestWorkers
	case StageTranscode:
		return o.cfg.Stages.TranscodeWorkers
	case StageThumbnail:
		return o.cfg.Stages.ThumbnailWorkers
	case StageCaption:
		return o.cfg.Stages.CaptionWorkers
	case StageHookFinder:
		return o.cfg.Stages.HookFinderWorkers
	case StageRender:
		return o.cfg.Stages.RenderWorkers
	default:
		return 1
	}
}
