package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"clipsmith/internal/config"
	"clipsmith/internal/media/ffprobe"
)

// FFmpeg runs the external transcoding utility. It covers the three
// subprocess-backed stage contracts: normalize to the working format plus
// audio extraction, thumbnail capture, and hook segment rendering.
type FFmpeg struct {
	binary        string
	timeout       time.Duration
	commandRunner CommandRunner
	prober        *ffprobe.Prober
}

// NewFFmpeg builds the ffmpeg client from configuration.
func NewFFmpeg(cfg *config.Config) *FFmpeg {
	timeout := time.Duration(cfg.Media.TranscodeTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &FFmpeg{
		binary:  cfg.Media.FFmpegBinary,
		timeout: timeout,
		prober:  ffprobe.New(cfg.Media.FFprobeBinary),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (f *FFmpeg) WithCommandRunner(runner CommandRunner) {
	f.commandRunner = runner
}

// WithProber replaces the duration prober (for testing).
func (f *FFmpeg) WithProber(prober *ffprobe.Prober) {
	f.prober = prober
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	runner := f.commandRunner
	if runner == nil {
		runner = defaultRunner
	}
	return runner(ctx, f.binary, args...)
}

// Transcode normalizes a fetched file to h264/aac mp4 in destDir. The output
// name is fixed per clip directory, so a redelivered job overwrites its own
// previous partial output.
func (f *FFmpeg) Transcode(ctx context.Context, inputPath, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure dest dir: %w", err)
	}
	output := filepath.Join(destDir, "video.mp4")
	cmd := newCommand(inputPath, output,
		VideoCodec("libx264"),
		CRF(23),
		Preset("veryfast"),
		PixelFormat("yuv420p"),
		AudioCodec("aac"),
		AudioBitrate("192k"),
	)
	if err := f.run(ctx, cmd.Build()); err != nil {
		return "", err
	}
	return output, nil
}

// ExtractAudio pulls the audio track into a standalone m4a for transcription.
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure dest dir: %w", err)
	}
	output := filepath.Join(destDir, "audio.m4a")
	cmd := newCommand(videoPath, output,
		NoVideo(),
		AudioCodec("aac"),
		AudioBitrate("128k"),
	)
	if err := f.run(ctx, cmd.Build()); err != nil {
		return "", err
	}
	return output, nil
}

// Thumbnail grabs a single frame at the given offset.
func (f *FFmpeg) Thumbnail(ctx context.Context, videoPath string, atSeconds float64, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure dest dir: %w", err)
	}
	output := filepath.Join(destDir, "thumb.jpg")
	cmd := newCommand(videoPath, output,
		SeekSeconds(atSeconds),
		Frames(1),
		ImageQuality(2),
	)
	if err := f.run(ctx, cmd.Build()); err != nil {
		return "", err
	}
	return output, nil
}

// Render cuts the hook window out of the transcoded video. Input seeking with
// a re-encode keeps the cut frame-accurate at the window boundaries. When the
// source is shorter than the requested window the end is clamped to the real
// duration; a failed probe leaves the window untouched.
func (f *FFmpeg) Render(ctx context.Context, videoPath string, startSec, endSec float64, destDir string) (string, error) {
	if f.prober != nil {
		if result, err := f.prober.Inspect(ctx, videoPath); err == nil {
			if duration := result.DurationSeconds(); duration > 0 && endSec > duration {
				endSec = duration
			}
		}
	}
	if endSec <= startSec {
		return "", fmt.Errorf("render: empty window %gs-%gs", startSec, endSec)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure dest dir: %w", err)
	}
	output := filepath.Join(destDir, "clip.mp4")
	cmd := newCommand(videoPath, output,
		SeekSeconds(startSec),
		DurationSeconds(endSec-startSec),
		VideoCodec("libx264"),
		CRF(21),
		Preset("medium"),
		PixelFormat("yuv420p"),
		AudioCodec("aac"),
		AudioBitrate("192k"),
	)
	if err := f.run(ctx, cmd.Build()); err != nil {
		return "", err
	}
	return output, nil
}
