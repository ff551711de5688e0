package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"clipsmith/internal/logging"
	"clipsmith/internal/services"
)

// Handler processes a claimed job. A nil return acknowledges; an error return
// resubmits with backoff until the delivery budget runs out, unless the error
// is fatal per services.IsFatal, in which case the job fails immediately.
type Handler func(ctx context.Context, job *Job) error

// ExhaustedFunc fires when a job reaches the terminal failed state, either by
// exhausting its delivery budget or by a fatal handler error.
type ExhaustedFunc func(ctx context.Context, job *Job, cause error)

type subscription struct {
	queueName   string
	concurrency int
	handler     Handler
}

// Workers runs pools of goroutines polling named queues.
type Workers struct {
	store        *Store
	logger       *slog.Logger
	pollInterval time.Duration
	leaseTimeout time.Duration
	onExhausted  ExhaustedFunc

	mu            sync.Mutex
	subscriptions []subscription
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	running       bool
}

// WorkersOptions configures a Workers instance.
type WorkersOptions struct {
	PollInterval time.Duration
	LeaseTimeout time.Duration
	OnExhausted  ExhaustedFunc
	Logger       *slog.Logger
}

// NewWorkers builds a worker pool manager over a store.
func NewWorkers(store *Store, opts WorkersOptions) *Workers {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.LeaseTimeout <= 0 {
		opts.LeaseTimeout = 2 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Workers{
		store:        store,
		logger:       logger.With(logging.String(logging.FieldComponent, "queue")),
		pollInterval: opts.PollInterval,
		leaseTimeout: opts.LeaseTimeout,
		onExhausted:  opts.OnExhausted,
	}
}

// Subscribe registers a handler pool for a named queue. Must be called before
// Start.
func (w *Workers) Subscribe(queueName string, concurrency int, handler Handler) error {
	if queueName == "" {
		return fmt.Errorf("queue name required")
	}
	if handler == nil {
		return fmt.Errorf("handler required for queue %q", queueName)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("cannot subscribe to %q after start", queueName)
	}
	for _, sub := range w.subscriptions {
		if sub.queueName == queueName {
			return fmt.Errorf("queue %q already has a subscriber", queueName)
		}
	}
	w.subscriptions = append(w.subscriptions, subscription{
		queueName:   queueName,
		concurrency: concurrency,
		handler:     handler,
	})
	return nil
}

// Start launches the worker pools and the stale-lease reclaimer. It returns
// immediately; use Stop to shut down.
func (w *Workers) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("workers already started")
	}
	if len(w.subscriptions) == 0 {
		return fmt.Errorf("no queue subscriptions registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	for _, sub := range w.subscriptions {
		for i := 0; i < sub.concurrency; i++ {
			w.wg.Add(1)
			go w.runWorker(runCtx, sub)
		}
		w.logger.Info("queue workers started",
			logging.String(logging.FieldQueue, sub.queueName),
			logging.Int("concurrency", sub.concurrency))
	}

	w.wg.Add(1)
	go w.runReclaimer(runCtx)

	return nil
}

// Stop cancels the pools and waits for in-flight handlers to return.
func (w *Workers) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	w.logger.Info("queue workers stopped")
}

func (w *Workers) runWorker(ctx context.Context, sub subscription) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for {
			job, err := w.store.Claim(ctx, sub.queueName)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Error("claim failed",
					logging.String(logging.FieldQueue, sub.queueName),
					logging.Error(err))
				break
			}
			if job == nil {
				break
			}
			w.dispatch(ctx, sub, job)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (w *Workers) dispatch(ctx context.Context, sub subscription, job *Job) {
	jobCtx := services.WithTenantID(ctx, job.TenantID)
	jobCtx = services.WithClipID(jobCtx, job.ClipID)

	err := sub.handler(jobCtx, job)
	if err == nil {
		if ackErr := w.store.Complete(ctx, job.ID); ackErr != nil {
			w.logger.Error("ack failed",
				logging.String(logging.FieldQueue, sub.queueName),
				logging.Int64("job_id", job.ID),
				logging.Error(ackErr))
		}
		return
	}

	if services.IsFatal(err) {
		if failErr := w.store.FailTerminal(ctx, job, err.Error()); failErr != nil {
			w.logger.Error("terminal fail update failed",
				logging.Int64("job_id", job.ID), logging.Error(failErr))
		}
		w.logger.Error("job failed permanently",
			logging.String(logging.FieldQueue, sub.queueName),
			logging.Int64("job_id", job.ID),
			logging.String(logging.FieldClipID, job.ClipID),
			logging.Int(logging.FieldAttempt, job.Attempts),
			logging.Error(err))
		w.notifyExhausted(ctx, job, err)
		return
	}

	terminal, failErr := w.store.Fail(ctx, job, err.Error())
	if failErr != nil {
		w.logger.Error("fail update failed",
			logging.Int64("job_id", job.ID), logging.Error(failErr))
		return
	}
	if terminal {
		w.logger.Error("job exhausted retries",
			logging.String(logging.FieldQueue, sub.queueName),
			logging.Int64("job_id", job.ID),
			logging.String(logging.FieldClipID, job.ClipID),
			logging.Int(logging.FieldAttempt, job.Attempts),
			logging.Error(err))
		w.notifyExhausted(ctx, job, err)
		return
	}

	w.logger.Warn("job failed, will retry",
		logging.String(logging.FieldQueue, sub.queueName),
		logging.Int64("job_id", job.ID),
		logging.String(logging.FieldClipID, job.ClipID),
		logging.Int(logging.FieldAttempt, job.Attempts),
		logging.Duration("backoff", job.Policy().Delay(job.Attempts)),
		logging.Error(err))
}

func (w *Workers) notifyExhausted(ctx context.Context, job *Job, cause error) {
	if w.onExhausted == nil {
		return
	}
	w.onExhausted(ctx, job, cause)
}

func (w *Workers) runReclaimer(ctx context.Context) {
	defer w.wg.Done()

	interval := w.leaseTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-w.leaseTimeout)
		reclaimed, err := w.store.ReclaimStale(ctx, cutoff)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("stale reclaim failed", logging.Error(err))
			continue
		}
		if reclaimed > 0 {
			w.logger.Warn("reclaimed stale jobs", logging.Int64("count", reclaimed))
		}
	}
}
