package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"clipsmith/internal/config"
)

// Ytdlp downloads source URLs into a clip's staging directory.
type Ytdlp struct {
	binary        string
	timeout       time.Duration
	commandRunner CommandRunner
}

// NewYtdlp builds the downloader from configuration.
func NewYtdlp(cfg *config.Config) *Ytdlp {
	timeout := time.Duration(cfg.Media.FetchTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &Ytdlp{
		binary:  cfg.Media.YtdlpBinary,
		timeout: timeout,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (y *Ytdlp) WithCommandRunner(runner CommandRunner) {
	y.commandRunner = runner
}

// Fetch downloads the source URL into destDir and returns the local path. The
// output name is fixed, so re-fetching the same clip replaces the previous
// download.
func (y *Ytdlp) Fetch(ctx context.Context, sourceURL, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure dest dir: %w", err)
	}
	output := filepath.Join(destDir, "source.mp4")

	args := []string{
		"--no-playlist",
		"--no-progress",
		"-f", "mp4/bestvideo*+bestaudio/best",
		"--recode-video", "mp4",
		"-o", output,
		sourceURL,
	}

	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}
	runner := y.commandRunner
	if runner == nil {
		runner = defaultRunner
	}
	if err := runner(ctx, y.binary, args...); err != nil {
		return "", err
	}
	return output, nil
}
