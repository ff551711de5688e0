package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"clipsmith/internal/eventlog"
	"clipsmith/internal/services"
	"clipsmith/internal/staging"
	"clipsmith/internal/textutil"
)

// HookWindow is the hook selector's answer: the segment of the clip most
// likely to hold a viewer.
type HookWindow struct {
	StartSec float64
	EndSec   float64
	Label    string
}

// Fetcher downloads a source URL into the staging area.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL, destDir string) (string, error)
}

// Transcoder normalizes a fetched file to the pipeline's working format and
// extracts its audio track.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, destDir string) (string, error)
	ExtractAudio(ctx context.Context, videoPath, destDir string) (string, error)
}

// Thumbnailer grabs a still frame from the transcoded video.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, videoPath string, atSeconds float64, destDir string) (string, error)
}

// Transcriber turns the extracted audio into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// HookSelector picks the hook window from a transcript.
type HookSelector interface {
	SelectHook(ctx context.Context, transcript string) (HookWindow, error)
}

// Renderer cuts the hook window out of the transcoded video.
type Renderer interface {
	Render(ctx context.Context, videoPath string, startSec, endSec float64, destDir string) (string, error)
}

// Collaborators bundles the external tools and services the stages call.
type Collaborators struct {
	Fetcher      Fetcher
	Transcoder   Transcoder
	Thumbnailer  Thumbnailer
	Transcriber  Transcriber
	HookSelector HookSelector
	Renderer     Renderer
}

// Handler runs one stage against a validated job. Implementations call
// exactly one collaborator and report the outcome; they never touch the queue
// or the event log.
type Handler func(ctx context.Context, job ClipJob) Result

// StagePaths tells handlers where stage outputs land. Outputs are addressed
// by clip id, so redelivered jobs overwrite their own partial output instead
// of colliding with other clips.
type StagePaths struct {
	StagingDir string
	OutputDir  string
}

func (p StagePaths) clipDir(job ClipJob) string {
	return staging.ClipDir(p.StagingDir, job.TenantID, job.ClipID)
}

// DefaultThumbnailOffsetSec is where the thumbnail frame is grabbed when the
// configured offset is unset.
const DefaultThumbnailOffsetSec = 1.0

// HandlerSet builds the canonical handler for every stage. One handler per
// stage; the graph in stages.go is the only place fan-out lives.
func HandlerSet(collab Collaborators, paths StagePaths, thumbnailOffsetSec float64) map[string]Handler {
	if thumbnailOffsetSec <= 0 {
		thumbnailOffsetSec = DefaultThumbnailOffsetSec
	}
	return map[string]Handler{
		StageIngest:     ingestHandler(collab.Fetcher, paths),
		StageTranscode:  transcodeHandler(collab.Transcoder, paths),
		StageThumbnail:  thumbnailHandler(collab.Thumbnailer, paths, thumbnailOffsetSec),
		StageCaption:    captionHandler(collab.Transcriber),
		StageHookFinder: hookFinderHandler(collab.HookSelector),
		StageRender:     renderHandler(collab.Renderer, paths),
	}
}

func ingestHandler(fetcher Fetcher, paths StagePaths) Handler {
	return func(ctx context.Context, job ClipJob) Result {
		if fetcher == nil {
			return Fatal(services.Wrap(services.ErrConfiguration, StageIngest, "fetch", "no fetcher configured", nil))
		}
		fetched, err := fetcher.Fetch(ctx, job.SourceURL, paths.clipDir(job))
		if err != nil {
			return Retry(services.Wrap(services.ErrExternalTool, StageIngest, "fetch", job.SourceURL, err))
		}
		job.FetchedPath = fetched
		return Ok(job, eventlog.TypeInfo, fmt.Sprintf("ingested %s", job.SourceURL))
	}
}

func transcodeHandler(transcoder Transcoder, paths StagePaths) Handler {
	return func(ctx context.Context, job ClipJob) Result {
		if transcoder == nil {
			return Fatal(services.Wrap(services.ErrConfiguration, StageTranscode, "transcode", "no transcoder configured", nil))
		}
		dir := paths.clipDir(job)
		video, err := transcoder.Transcode(ctx, job.FetchedPath, dir)
		if err != nil {
			return Retry(services.Wrap(services.ErrExternalTool, StageTranscode, "transcode", job.FetchedPath, err))
		}
		audio, err := transcoder.ExtractAudio(ctx, video, dir)
		if err != nil {
			return Retry(services.Wrap(services.ErrExternalTool, StageTranscode, "extract audio", video, err))
		}
		job.TranscodedPath = video
		job.AudioPath = audio
		return Ok(job, eventlog.TypeInfo, "transcode done")
	}
}

func thumbnailHandler(thumbnailer Thumbnailer, paths StagePaths, atSeconds float64) Handler {
	return func(ctx context.Context, job ClipJob) Result {
		if thumbnailer == nil {
			return Fatal(services.Wrap(services.ErrConfiguration, StageThumbnail, "thumbnail", "no thumbnailer configured", nil))
		}
		image, err := thumbnailer.Thumbnail(ctx, job.TranscodedPath, atSeconds, paths.clipDir(job))
		if err != nil {
			return Retry(services.Wrap(services.ErrExternalTool, StageThumbnail, "thumbnail", job.TranscodedPath, err))
		}
		job.ThumbnailPath = image
		return Ok(job, eventlog.TypeInfo, "thumbnail done")
	}
}

func captionHandler(transcriber Transcriber) Handler {
	return func(ctx context.Context, job ClipJob) Result {
		if transcriber == nil {
			return Fatal(services.Wrap(services.ErrConfiguration, StageCaption, "transcribe", "no transcriber configured", nil))
		}
		transcript, err := transcriber.Transcribe(ctx, job.AudioPath)
		if err != nil {
			return Retry(services.Wrap(services.ErrExternalTool, StageCaption, "transcribe", job.AudioPath, err))
		}
		if transcript == "" {
			return Retry(services.Wrap(services.ErrExternalTool, StageCaption, "transcribe", "empty transcript", nil))
		}
		job.Transcript = transcript
		return Ok(job, eventlog.TypeInfo, "caption done")
	}
}

func hookFinderHandler(selector HookSelector) Handler {
	return func(ctx context.Context, job ClipJob) Result {
		if selector == nil {
			return Fatal(services.Wrap(services.ErrConfiguration, StageHookFinder, "select hook", "no hook selector configured", nil))
		}
		window, err := selector.SelectHook(ctx, job.Transcript)
		if err != nil {
			return Retry(services.Wrap(services.ErrExternalTool, StageHookFinder, "select hook", "", err))
		}
		if window.EndSec <= window.StartSec {
			return Retry(services.Wrap(services.ErrExternalTool, StageHookFinder, "select hook", "empty hook window", nil))
		}
		job.HookStartSec = window.StartSec
		job.HookEndSec = window.EndSec
		job.HookLabel = window.Label
		return Ok(job, eventlog.TypeSuccess,
			fmt.Sprintf("hookfinder done: %s (%gs-%gs)", window.Label, window.StartSec, window.EndSec))
	}
}

func renderHandler(renderer Renderer, paths StagePaths) Handler {
	return func(ctx context.Context, job ClipJob) Result {
		if renderer == nil {
			return Fatal(services.Wrap(services.ErrConfiguration, StageRender, "render", "no renderer configured", nil))
		}
		destDir := filepath.Join(paths.OutputDir, textutil.SanitizeToken(job.TenantID), textutil.SanitizeToken(job.ClipID))
		rendered, err := renderer.Render(ctx, job.TranscodedPath, job.HookStartSec, job.HookEndSec, destDir)
		if err != nil {
			return Retry(services.Wrap(services.ErrExternalTool, StageRender, "render", job.TranscodedPath, err))
		}
		job.RenderedPath = rendered
		return Ok(job, eventlog.TypeSuccess, "renderer done")
	}
}
