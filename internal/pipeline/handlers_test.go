package pipeline

import (
	"context"
	"path/filepath"
	"testing"
)

type recordingRenderer struct {
	dirs []string
}

func (r *recordingRenderer) Render(_ context.Context, _ string, _, _ float64, destDir string) (string, error) {
	r.dirs = append(r.dirs, destDir)
	return filepath.Join(destDir, "clip.mp4"), nil
}

func TestRenderOutputAddressedByClip(t *testing.T) {
	renderer := &recordingRenderer{}
	handler := renderHandler(renderer, StagePaths{StagingDir: "/staging", OutputDir: "/output"})

	rendered := make(map[string]bool)
	for _, clipID := range []string{"clip-a", "clip-b"} {
		job := validJobFor(StageRender)
		job.ClipID = clipID
		result := handler(context.Background(), job)
		if result.Disposition != DispositionOk {
			t.Fatalf("render %s: %v", clipID, result.Err)
		}
		rendered[result.Job.RenderedPath] = true
	}

	if len(rendered) != 2 {
		t.Fatalf("two clips of one tenant must land on distinct paths, got %v", rendered)
	}
	want := filepath.Join("/output", "tenant-a", "clip-a")
	if len(renderer.dirs) != 2 || renderer.dirs[0] != want {
		t.Fatalf("render dest dirs = %v, want first %q", renderer.dirs, want)
	}
}
