package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipsmith/internal/config"
	"clipsmith/internal/eventlog"
	"clipsmith/internal/inbox"
	"clipsmith/internal/logging"
)

// Admitter drains tenant inboxes into the pipeline, at most one submission
// per tenant per tick. Submission bursts pile up in the inbox, not in the
// pipeline.
type Admitter struct {
	inbox        *inbox.Store
	orchestrator *Orchestrator
	logger       *slog.Logger
	tick         time.Duration
	trigger      chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewAdmitter builds the admission loop.
func NewAdmitter(cfg *config.Config, inboxStore *inbox.Store, orchestrator *Orchestrator, logger *slog.Logger) *Admitter {
	tick := time.Duration(cfg.Admission.TickInterval) * time.Second
	if tick <= 0 {
		tick = 2 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Admitter{
		inbox:        inboxStore,
		orchestrator: orchestrator,
		logger:       logging.NewComponentLogger(logger, "admission"),
		tick:         tick,
		trigger:      make(chan struct{}, 1),
	}
}

// Start launches the tick loop.
func (a *Admitter) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true
	go a.run(runCtx)
}

// Stop halts the loop and waits for the current tick to finish.
func (a *Admitter) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	cancel := a.cancel
	done := a.done
	a.running = false
	a.mu.Unlock()

	cancel()
	<-done
}

// Trigger requests an immediate admission tick without waiting for the timer.
func (a *Admitter) Trigger() {
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

func (a *Admitter) run(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-a.trigger:
		}
		if _, err := a.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Error("admission tick failed", logging.Error(err))
		}
	}
}

// Tick admits at most one waiting submission per tenant, returning how many
// pipeline runs were started.
func (a *Admitter) Tick(ctx context.Context) (int, error) {
	tenants, err := a.inbox.Tenants(ctx)
	if err != nil {
		return 0, err
	}

	admitted := 0
	for _, tenant := range tenants {
		sub, err := a.inbox.PopOldest(ctx, tenant)
		if err != nil {
			return admitted, err
		}
		if sub == nil {
			continue
		}

		clipID := sub.ClipID
		if clipID == "" {
			clipID = uuid.NewString()
		}
		job := ClipJob{
			TenantID:  sub.TenantID,
			ClipID:    clipID,
			SourceURL: sub.SourceURL,
		}
		if err := a.orchestrator.Admit(ctx, job); err != nil {
			a.logger.Error("admission failed",
				logging.String(logging.FieldTenantID, sub.TenantID),
				logging.String("source_url", sub.SourceURL),
				logging.Error(err))
			// The pop already removed the submission; put it back so a
			// later tick retries it instead of losing it.
			if restoreErr := a.inbox.Restore(ctx, sub); restoreErr != nil {
				a.logger.Error("submission lost: restore after failed admission",
					logging.String(logging.FieldTenantID, sub.TenantID),
					logging.String("source_url", sub.SourceURL),
					logging.Error(restoreErr))
			}
			a.orchestrator.hub.Append(eventlog.Event{
				TenantID: sub.TenantID,
				ClipID:   clipID,
				Stage:    "admission",
				Type:     eventlog.TypeError,
				Message:  fmt.Sprintf("admission failed, will retry: %v", err),
			})
			continue
		}
		admitted++
	}
	return admitted, nil
}
