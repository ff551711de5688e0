package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"clipsmith/internal/config"
	"clipsmith/internal/eventlog"
	"clipsmith/internal/inbox"
	"clipsmith/internal/logging"
	"clipsmith/internal/pipeline"
	"clipsmith/internal/queue"
	"clipsmith/internal/staging"
)

// Daemon coordinates the pipeline services and enforces single-instance
// execution via a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	inbox    *inbox.Store
	hub      *eventlog.Hub
	orch     *pipeline.Orchestrator
	admitter *pipeline.Admitter
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                `json:"running"`
	PID          int                 `json:"pid"`
	QueueDBPath  string              `json:"queue_db_path"`
	LockFilePath string              `json:"lock_file_path"`
	Queue        queue.HealthSummary `json:"queue"`
	InboxDepth   int                 `json:"inbox_depth"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, inboxStore *inbox.Store, hub *eventlog.Hub, orch *pipeline.Orchestrator, admitter *pipeline.Admitter, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || inboxStore == nil || hub == nil || orch == nil || admitter == nil {
		return nil, errors.New("daemon requires config, stores, event hub, orchestrator, and admitter")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "clipsmithd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		inbox:    inboxStore,
		hub:      hub,
		orch:     orch,
		admitter: admitter,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the worker pools, the admission
// loop, and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another clipsmith daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.orch.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start pipeline: %w", err)
	}
	d.admitter.Start(runCtx)

	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			d.admitter.Stop()
			d.orch.Stop()
			_ = d.lock.Unlock()
			cancel()
			d.cancel = nil
			return err
		}
	}

	go d.runStagingSweeper(runCtx)

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

const (
	stagingSweepInterval = time.Hour
	stagingMaxAge        = 24 * time.Hour
)

// runStagingSweeper periodically reclaims clip workspaces left behind by
// failed or abandoned runs.
func (d *Daemon) runStagingSweeper(ctx context.Context) {
	ticker := time.NewTicker(stagingSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := staging.CleanStale(d.cfg.Paths.StagingDir, stagingMaxAge, d.logger)
			if len(result.Removed) > 0 {
				d.logger.Info("staging sweep complete", logging.Int("removed", len(result.Removed)))
			}
		}
	}
}

// Stop shuts everything down in reverse start order and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.api != nil {
		d.api.stop()
	}
	d.admitter.Stop()
	d.orch.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var firstErr error
	if d.store != nil {
		firstErr = d.store.Close()
	}
	if d.inbox != nil {
		if err := d.inbox.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// APIAddr reports the bound API address, or empty when the server is off.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if health, err := d.store.Health(ctx); err == nil {
		status.Queue = health
	}
	if depth, err := d.inbox.Depth(ctx); err == nil {
		status.InboxDepth = depth
	}
	return status
}
