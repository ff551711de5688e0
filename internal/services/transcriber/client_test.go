package transcriber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipsmith/internal/testsupport"
)

func writeAudioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.m4a")
	if err := os.WriteFile(path, []byte("fake audio bytes"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestTranscribeUploadsMultipart(t *testing.T) {
	var gotModel, gotAuth string
	var gotFile []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotModel = r.FormValue("model")
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			defer file.Close()
			buf := make([]byte, 64)
			n, _ := file.Read(buf)
			gotFile = buf[:n]
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  hello and welcome  "}`))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Transcriber.BaseURL = server.URL
	cfg.Transcriber.APIKey = "sk-test"
	cfg.Transcriber.Model = "whisper-1"

	client := NewClient(cfg)
	text, err := client.Transcribe(context.Background(), writeAudioFile(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello and welcome" {
		t.Fatalf("unexpected transcript %q", text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotModel != "whisper-1" {
		t.Fatalf("unexpected model %q", gotModel)
	}
	if string(gotFile) != "fake audio bytes" {
		t.Fatalf("unexpected uploaded content %q", gotFile)
	}
}

func TestTranscribeSurfacesServiceErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Transcriber.BaseURL = server.URL
	cfg.Transcriber.APIKey = "sk-test"

	client := NewClient(cfg)
	_, err := client.Transcribe(context.Background(), writeAudioFile(t))
	if err == nil {
		t.Fatal("expected error from 503 response")
	}
	if !strings.Contains(err.Error(), "http 503") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestTranscribeRejectsEmptyTranscript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":""}`))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Transcriber.BaseURL = server.URL
	cfg.Transcriber.APIKey = "sk-test"

	client := NewClient(cfg)
	if _, err := client.Transcribe(context.Background(), writeAudioFile(t)); err == nil {
		t.Fatal("expected empty transcript rejection")
	}
}

func TestTranscribeRequiresAPIKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcriber.APIKey = ""

	client := NewClient(cfg)
	if _, err := client.Transcribe(context.Background(), writeAudioFile(t)); err == nil {
		t.Fatal("expected api key requirement")
	}
}
