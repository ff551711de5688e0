package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Queue contains retry and scheduling settings for the durable job queues.
type Queue struct {
	MaxAttempts    int `toml:"max_attempts"`
	BackoffBaseMS  int `toml:"backoff_base_ms"`
	PollIntervalMS int `toml:"poll_interval_ms"`
	LeaseTimeout   int `toml:"lease_timeout"`
}

// Admission contains settings for the inbox admission loop.
type Admission struct {
	TickInterval int `toml:"tick_interval"`
}

// Stages contains per-stage worker pool sizes.
type Stages struct {
	IngestWorkers     int `toml:"ingest_workers"`
	TranscodeWorkers  int `toml:"transcode_workers"`
	ThumbnailWorkers  int `toml:"thumbnail_workers"`
	CaptionWorkers    int `toml:"caption_workers"`
	HookFinderWorkers int `toml:"hookfinder_workers"`
	RenderWorkers     int `toml:"render_workers"`
}

// Events contains event log retention and stream keep-alive settings.
type Events struct {
	Retention         int `toml:"retention"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
}

// Media contains settings for the external media tools invoked by stages.
type Media struct {
	FFmpegBinary       string `toml:"ffmpeg_binary"`
	FFprobeBinary      string `toml:"ffprobe_binary"`
	YtdlpBinary        string `toml:"ytdlp_binary"`
	FetchTimeout       int    `toml:"fetch_timeout"`
	TranscodeTimeout   int    `toml:"transcode_timeout"`
	ThumbnailOffsetSec int    `toml:"thumbnail_offset_sec"`
}

// Transcriber contains speech-to-text service connection settings.
type Transcriber struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// HookFinder contains LLM connection settings for hook window selection.
type HookFinder struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	DefaultWindow  int    `toml:"default_window"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for clipsmith.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Queue: retry policy and worker scheduling
//   - Admission: inbox admission tick rate
//   - Stages: per-stage worker pool sizes
//   - Events: per-tenant event log retention and stream keep-alive
//   - Media: ffmpeg/yt-dlp binaries and timeouts
//   - Transcriber: speech-to-text service connection
//   - HookFinder: LLM hook selection connection and fallback window
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Queue       Queue       `toml:"queue"`
	Admission   Admission   `toml:"admission"`
	Stages      Stages      `toml:"stages"`
	Events      Events      `toml:"events"`
	Media       Media       `toml:"media"`
	Transcriber Transcriber `toml:"transcriber"`
	HookFinder  HookFinder  `toml:"hookfinder"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clipsmith/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("clipsmith.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.StagingDir, &c.Paths.OutputDir, &c.Paths.LogDir} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.Media.FFmpegBinary = strings.TrimSpace(c.Media.FFmpegBinary)
	c.Media.FFprobeBinary = strings.TrimSpace(c.Media.FFprobeBinary)
	c.Media.YtdlpBinary = strings.TrimSpace(c.Media.YtdlpBinary)
	if c.Media.FFmpegBinary == "" {
		c.Media.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Media.FFprobeBinary == "" {
		c.Media.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Media.YtdlpBinary == "" {
		c.Media.YtdlpBinary = defaultYtdlpBinary
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RetryPolicyValues returns the queue retry settings as plain values.
func (c *Config) RetryPolicyValues() (maxAttempts int, backoffBaseMS int) {
	return c.Queue.MaxAttempts, c.Queue.BackoffBaseMS
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
