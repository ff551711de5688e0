package main

import (
	"log/slog"

	"clipsmith/internal/config"
	"clipsmith/internal/daemon"
	"clipsmith/internal/eventlog"
	"clipsmith/internal/inbox"
	"clipsmith/internal/logging"
	"clipsmith/internal/media"
	"clipsmith/internal/pipeline"
	"clipsmith/internal/queue"
	"clipsmith/internal/services/hookfinder"
	"clipsmith/internal/services/transcriber"
)

// buildDaemon wires storage, the event hub, media tools, AI clients, and the
// pipeline into a runnable daemon.
func buildDaemon(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, err
	}
	inboxStore, err := inbox.Open(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	hub := eventlog.NewHub(cfg.Events.Retention)
	hub.AddSink(&logSink{logger: logging.NewComponentLogger(logger, "events")})

	ffmpeg := media.NewFFmpeg(cfg)
	handlers := pipeline.HandlerSet(pipeline.Collaborators{
		Fetcher:      media.NewYtdlp(cfg),
		Transcoder:   ffmpeg,
		Thumbnailer:  ffmpeg,
		Transcriber:  transcriber.NewClient(cfg),
		HookSelector: hookfinder.NewClient(cfg),
		Renderer:     ffmpeg,
	}, pipeline.StagePaths{
		StagingDir: cfg.Paths.StagingDir,
		OutputDir:  cfg.Paths.OutputDir,
	}, float64(cfg.Media.ThumbnailOffsetSec))

	orch, err := pipeline.NewOrchestrator(cfg, store, hub, handlers, logger)
	if err != nil {
		inboxStore.Close()
		store.Close()
		return nil, err
	}
	admitter := pipeline.NewAdmitter(cfg, inboxStore, orch, logger)

	d, err := daemon.New(cfg, store, inboxStore, hub, orch, admitter, logger)
	if err != nil {
		inboxStore.Close()
		store.Close()
		return nil, err
	}
	return d, nil
}

// logSink mirrors every pipeline event into the daemon log.
type logSink struct {
	logger *slog.Logger
}

func (s *logSink) Append(evt eventlog.Event) {
	s.logger.Info(evt.Message,
		logging.String(logging.FieldTenantID, evt.TenantID),
		logging.String(logging.FieldClipID, evt.ClipID),
		logging.String(logging.FieldStage, evt.Stage),
		logging.String(logging.FieldEventType, string(evt.Type)),
		logging.Uint64("seq", evt.Sequence),
	)
}
