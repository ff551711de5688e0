package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateHookFinder(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StagingDir == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.APIBind == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.MaxAttempts <= 0 {
		return errors.New("queue.max_attempts must be positive")
	}
	if c.Queue.BackoffBaseMS <= 0 {
		return errors.New("queue.backoff_base_ms must be positive")
	}
	if c.Queue.PollIntervalMS <= 0 {
		return errors.New("queue.poll_interval_ms must be positive")
	}
	if c.Queue.LeaseTimeout <= 0 {
		return errors.New("queue.lease_timeout must be positive (seconds)")
	}
	if c.Admission.TickInterval <= 0 {
		return errors.New("admission.tick_interval must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateStages() error {
	workers := map[string]int{
		"stages.ingest_workers":     c.Stages.IngestWorkers,
		"stages.transcode_workers":  c.Stages.TranscodeWorkers,
		"stages.thumbnail_workers":  c.Stages.ThumbnailWorkers,
		"stages.caption_workers":    c.Stages.CaptionWorkers,
		"stages.hookfinder_workers": c.Stages.HookFinderWorkers,
		"stages.render_workers":     c.Stages.RenderWorkers,
	}
	for name, value := range workers {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateEvents() error {
	if c.Events.Retention <= 0 {
		return errors.New("events.retention must be positive")
	}
	if c.Events.HeartbeatInterval <= 0 {
		return errors.New("events.heartbeat_interval must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateMedia() error {
	if c.Media.FetchTimeout <= 0 {
		return errors.New("media.fetch_timeout must be positive (seconds)")
	}
	if c.Media.TranscodeTimeout <= 0 {
		return errors.New("media.transcode_timeout must be positive (seconds)")
	}
	if c.Media.ThumbnailOffsetSec < 0 {
		return errors.New("media.thumbnail_offset_sec must not be negative")
	}
	return nil
}

func (c *Config) validateHookFinder() error {
	if c.HookFinder.DefaultWindow <= 0 {
		return errors.New("hookfinder.default_window must be positive (seconds)")
	}
	return nil
}
