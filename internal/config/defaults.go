package config

const (
	defaultStagingDir            = "~/.local/share/clipsmith/staging"
	defaultOutputDir             = "~/.local/share/clipsmith/clips"
	defaultLogDir                = "~/.local/share/clipsmith/logs"
	defaultAPIBind               = "127.0.0.1:7680"
	defaultQueueMaxAttempts      = 3
	defaultQueueBackoffBaseMS    = 500
	defaultQueuePollIntervalMS   = 250
	defaultQueueLeaseTimeout     = 120
	defaultAdmissionTickInterval = 2
	defaultEventRetention        = 200
	defaultEventHeartbeat        = 20
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultYtdlpBinary           = "yt-dlp"
	defaultFetchTimeout          = 900
	defaultTranscodeTimeout      = 1800
	defaultThumbnailOffsetSec    = 3
	defaultTranscriberBaseURL    = "https://api.openai.com/v1"
	defaultTranscriberModel      = "whisper-1"
	defaultTranscriberTimeout    = 300
	defaultHookFinderBaseURL     = "https://openrouter.ai/api/v1"
	defaultHookFinderModel       = "google/gemini-3-flash-preview"
	defaultHookFinderTimeout     = 60
	defaultHookWindowSeconds     = 30
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Queue: Queue{
			MaxAttempts:    defaultQueueMaxAttempts,
			BackoffBaseMS:  defaultQueueBackoffBaseMS,
			PollIntervalMS: defaultQueuePollIntervalMS,
			LeaseTimeout:   defaultQueueLeaseTimeout,
		},
		Admission: Admission{
			TickInterval: defaultAdmissionTickInterval,
		},
		Stages: Stages{
			IngestWorkers:     2,
			TranscodeWorkers:  2,
			ThumbnailWorkers:  2,
			CaptionWorkers:    2,
			HookFinderWorkers: 1,
			RenderWorkers:     1,
		},
		Events: Events{
			Retention:         defaultEventRetention,
			HeartbeatInterval: defaultEventHeartbeat,
		},
		Media: Media{
			FFmpegBinary:       defaultFFmpegBinary,
			FFprobeBinary:      defaultFFprobeBinary,
			YtdlpBinary:        defaultYtdlpBinary,
			FetchTimeout:       defaultFetchTimeout,
			TranscodeTimeout:   defaultTranscodeTimeout,
			ThumbnailOffsetSec: defaultThumbnailOffsetSec,
		},
		Transcriber: Transcriber{
			BaseURL:        defaultTranscriberBaseURL,
			Model:          defaultTranscriberModel,
			TimeoutSeconds: defaultTranscriberTimeout,
		},
		HookFinder: HookFinder{
			BaseURL:        defaultHookFinderBaseURL,
			Model:          defaultHookFinderModel,
			TimeoutSeconds: defaultHookFinderTimeout,
			DefaultWindow:  defaultHookWindowSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
