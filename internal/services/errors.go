package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformed marks a job whose payload is missing fields required by the
	// stage about to run. Never retried.
	ErrMalformed = errors.New("malformed job")
	// ErrExternalTool marks a failed collaborator call (subprocess or remote
	// service). Retried up to the job's retry policy.
	ErrExternalTool = errors.New("external tool error")
	// ErrConfiguration marks a missing or unusable configuration value. Never
	// retried; retrying cannot fix configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrUnavailable marks an unreachable queue or event log backend, surfaced
	// to the caller of Enqueue/Append.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrTransient marks a failure with no better classification. Retried.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later retry classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether a stage error must terminate the job immediately
// instead of being handed back to the queue for retry.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrConfiguration)
}

// IsUnavailable reports whether an error stems from an unreachable backend.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
