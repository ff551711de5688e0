package pipeline

import (
	"testing"

	"clipsmith/internal/services"
)

func validJobFor(stage string) ClipJob {
	job := ClipJob{TenantID: "tenant-a", ClipID: "clip-1"}
	switch stage {
	case StageIngest:
		job.SourceURL = "https://example.com/v"
	case StageTranscode:
		job.FetchedPath = "/tmp/clip-1/source.mp4"
	case StageThumbnail:
		job.TranscodedPath = "/tmp/clip-1/video.mp4"
	case StageCaption:
		job.AudioPath = "/tmp/clip-1/audio.m4a"
	case StageHookFinder:
		job.Transcript = "hello world"
	case StageRender:
		job.TranscodedPath = "/tmp/clip-1/video.mp4"
		job.HookStartSec = 3
		job.HookEndSec = 12
	}
	return job
}

func TestValidateForAcceptsCompleteJobs(t *testing.T) {
	for _, stage := range Stages() {
		if err := ValidateFor(stage, validJobFor(stage)); err != nil {
			t.Fatalf("ValidateFor(%s): %v", stage, err)
		}
	}
}

func TestValidateForRejectsMissingFields(t *testing.T) {
	cases := map[string]ClipJob{
		StageIngest:     {TenantID: "t", ClipID: "c"},
		StageTranscode:  {TenantID: "t", ClipID: "c"},
		StageThumbnail:  {TenantID: "t", ClipID: "c"},
		StageCaption:    {TenantID: "t", ClipID: "c"},
		StageHookFinder: {TenantID: "t", ClipID: "c"},
		StageRender:     {TenantID: "t", ClipID: "c", TranscodedPath: "/v.mp4", HookStartSec: 10, HookEndSec: 5},
	}
	for stage, job := range cases {
		err := ValidateFor(stage, job)
		if err == nil {
			t.Fatalf("ValidateFor(%s) accepted incomplete job", stage)
		}
		if !services.IsFatal(err) {
			t.Fatalf("ValidateFor(%s) error must be fatal, got %v", stage, err)
		}
	}
}

func TestValidateForRequiresIdentity(t *testing.T) {
	if err := ValidateFor(StageIngest, ClipJob{ClipID: "c", SourceURL: "https://x"}); err == nil {
		t.Fatal("expected rejection without tenant id")
	}
	if err := ValidateFor(StageIngest, ClipJob{TenantID: "t", SourceURL: "https://x"}); err == nil {
		t.Fatal("expected rejection without clip id")
	}
}

func TestNextStagesGraph(t *testing.T) {
	expect := map[string][]string{
		StageIngest:     {StageTranscode},
		StageTranscode:  {StageThumbnail, StageCaption},
		StageThumbnail:  nil,
		StageCaption:    {StageHookFinder},
		StageHookFinder: {StageRender},
		StageRender:     nil,
	}
	for stage, want := range expect {
		got := NextStages(stage)
		if len(got) != len(want) {
			t.Fatalf("NextStages(%s): got %v want %v", stage, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("NextStages(%s): got %v want %v", stage, got, want)
			}
		}
	}
}

func TestDecodeJobRejectsGarbage(t *testing.T) {
	if _, err := DecodeJob("{not json"); err == nil {
		t.Fatal("expected decode failure")
	} else if !services.IsFatal(err) {
		t.Fatalf("decode failure must be fatal, got %v", err)
	}

	job, err := DecodeJob(`{"tenantId":"t","clipId":"c","sourceUrl":"https://x"}`)
	if err != nil {
		t.Fatalf("DecodeJob: %v", err)
	}
	if job.TenantID != "t" || job.ClipID != "c" || job.SourceURL != "https://x" {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := ClipJob{
		TenantID:       "tenant-a",
		ClipID:         "clip-1",
		SourceURL:      "https://example.com/v",
		TranscodedPath: "/tmp/v.mp4",
		AudioPath:      "/tmp/a.m4a",
		Transcript:     "hello",
		HookStartSec:   2.5,
		HookEndSec:     11,
		HookLabel:      "Strong Opening",
	}
	payload, err := in.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := DecodeJob(payload)
	if err != nil {
		t.Fatalf("DecodeJob: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch:\n in %+v\nout %+v", in, out)
	}
}
