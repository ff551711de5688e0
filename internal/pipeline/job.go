package pipeline

import (
	"encoding/json"
	"fmt"

	"clipsmith/internal/services"
)

// ClipJob is the record threaded through the stage graph. Each stage fills in
// the fields it produces; ownership transfers at enqueue time, so only the
// stage currently holding the job ever writes to it.
type ClipJob struct {
	TenantID  string `json:"tenantId"`
	ClipID    string `json:"clipId"`
	SourceURL string `json:"sourceUrl"`

	FetchedPath    string `json:"fetchedPath,omitempty"`
	TranscodedPath string `json:"transcodedPath,omitempty"`
	AudioPath      string `json:"audioPath,omitempty"`
	ThumbnailPath  string `json:"thumbnailPath,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
	HookStartSec   float64 `json:"hookStartSec,omitempty"`
	HookEndSec     float64 `json:"hookEndSec,omitempty"`
	HookLabel      string `json:"hookLabel,omitempty"`
	RenderedPath   string `json:"renderedPath,omitempty"`
}

// Encode serializes the job for queue payload storage.
func (j ClipJob) Encode() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("encode clip job: %w", err)
	}
	return string(data), nil
}

// DecodeJob parses a queue payload back into a ClipJob. A payload that does
// not parse is malformed, not retryable.
func DecodeJob(payload string) (ClipJob, error) {
	var job ClipJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return ClipJob{}, services.Wrap(services.ErrMalformed, "", "decode payload", "invalid clip job payload", err)
	}
	return job, nil
}
