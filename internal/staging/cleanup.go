package staging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipsmith/internal/logging"
	"clipsmith/internal/textutil"
)

// Staging layout is root/tenant/clip: every clip gets its own working
// directory so redelivered jobs overwrite their own partial output.

// ClipDir returns the working directory for a clip, with both path segments
// sanitized so hostile identifiers cannot escape the staging root.
func ClipDir(root, tenantID, clipID string) string {
	return filepath.Join(root, textutil.SanitizeToken(tenantID), textutil.SanitizeToken(clipID))
}

// RemoveClip deletes a clip's working directory and, when it was the
// tenant's last clip, the now-empty tenant directory.
func RemoveClip(root, tenantID, clipID string) error {
	if strings.TrimSpace(root) == "" {
		return nil
	}
	dir := ClipDir(root, tenantID, clipID)
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	// Best effort; fails while the tenant still has other clips staged.
	_ = os.Remove(filepath.Dir(dir))
	return nil
}

// CleanResult contains the outcome of a stale directory sweep.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes clip directories whose contents have not been touched
// for maxAge, then prunes emptied tenant directories. Failed clips leave
// their workspace behind for inspection; the sweep is what eventually
// reclaims that space.
func CleanStale(root string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	result := CleanResult{}

	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}

	tenants, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, tenant := range tenants {
		if !tenant.IsDir() {
			continue
		}
		tenantDir := filepath.Join(root, tenant.Name())
		clips, err := os.ReadDir(tenantDir)
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: tenantDir, Error: err})
			continue
		}

		for _, clip := range clips {
			if !clip.IsDir() {
				continue
			}
			clipDir := filepath.Join(tenantDir, clip.Name())
			info, err := clip.Info()
			if err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: clipDir, Error: err})
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.RemoveAll(clipDir); err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: clipDir, Error: err})
				if logger != nil {
					logger.Warn("failed to remove stale clip workspace",
						logging.String("path", clipDir),
						logging.Error(err),
					)
				}
				continue
			}
			result.Removed = append(result.Removed, clipDir)
			if logger != nil {
				logger.Info("removed stale clip workspace",
					logging.String("path", clipDir),
					logging.Duration("age", time.Since(info.ModTime())),
				)
			}
		}

		_ = os.Remove(tenantDir)
	}

	return result
}
