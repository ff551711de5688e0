package media

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// CommandRunner executes an external binary. Tests inject a fake to assert on
// arguments without spawning processes.
type CommandRunner func(ctx context.Context, name string, args ...string) error

func defaultRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tail(string(output)))
	}
	return nil
}

// tail keeps error messages readable when a tool dumps pages of output.
func tail(output string) string {
	output = strings.TrimSpace(output)
	lines := strings.Split(output, "\n")
	if len(lines) <= 5 {
		return output
	}
	return strings.Join(lines[len(lines)-5:], "\n")
}

// command builds an ffmpeg argument list. Options compose and are
// order-independent; Build emits arguments in the order ffmpeg expects.
type command struct {
	input     string
	output    string
	preInput  []string
	postInput []string
}

// Option modifies a command.
type Option func(*command)

func newCommand(input, output string, opts ...Option) *command {
	cmd := &command{input: input, output: output}
	for _, opt := range opts {
		opt(cmd)
	}
	return cmd
}

func (c *command) Build() []string {
	args := []string{"-hide_banner", "-y"}
	args = append(args, c.preInput...)
	args = append(args, "-i", c.input)
	args = append(args, c.postInput...)
	if ext := strings.ToLower(filepath.Ext(c.output)); ext == ".mp4" || ext == ".m4a" {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, c.output)
	return args
}

// SeekSeconds positions the input before decoding starts.
func SeekSeconds(seconds float64) Option {
	return func(cmd *command) {
		cmd.preInput = append(cmd.preInput, "-ss", formatSeconds(seconds))
	}
}

// DurationSeconds caps the output length.
func DurationSeconds(seconds float64) Option {
	return func(cmd *command) {
		cmd.postInput = append(cmd.postInput, "-t", formatSeconds(seconds))
	}
}

// VideoCodec selects the video encoder.
func VideoCodec(codec string) Option {
	return func(cmd *command) {
		cmd.postInput = append(cmd.postInput, "-c:v", codec)
	}
}

// AudioCodec selects the audio encoder.
func AudioCodec(codec string) Option {
	return func(cmd *command) {
		cmd.postInput = append(cmd.postInput, "-c:a", codec)
	}
}

// AudioBitrate sets the audio bitrate, e.g. "192k".
func AudioBitrate(bitrate string) Option {
	return func(cmd *command) {
		cmd.postInput = append(cmd.postInput, "-b:a", bitrate)
	}
}

// CRF sets constant rate factor quality.
func CRF(value int) Option {
	return func(cmd *command) {
		cmd.postInput = append(cmd.postInput, "-crf", fmt.Sprintf("%d", value))
	}
}

// Preset selects the encoder speed preset.
func Preset(name string) Option {
	return func(cmd *command) {
		cmd.postInput = append(cmd.postInput, "-preset", name)
	}
}

// PixelFormat sets the output pixel format.
func PixelFormat(format string) Option {
	return func(cmd *command) {
		cmd.postInput = append(cmd.postInput, "-pix_fmt", format)
	}
}

// NoVideo drops the video stream.
func NoVideo() Option {
	return func(cmd *command) {
		cmd.postInput = append(cmd.postInput, "-vn")
	}
}

// Frames limits the number of output video frames.
func Frames(count int) Option {
	return func(cmd *command) {
		cmd.postInput = append(cmd.postInput, "-frames:v", fmt.Sprintf("%d", count))
	}
}

// ImageQuality sets the quantizer for image outputs (lower is better).
func ImageQuality(value int) Option {
	return func(cmd *command) {
		cmd.postInput = append(cmd.postInput, "-q:v", fmt.Sprintf("%d", value))
	}
}

func formatSeconds(seconds float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", seconds), "0"), ".")
}
