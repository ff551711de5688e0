package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStreamEventsEscapesQuery(t *testing.T) {
	var gotTenant, gotSince string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = r.URL.Query().Get("tenant")
		gotSince = r.URL.Query().Get("since")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"info\",\"message\":\"hello\"}\n\n")
	}))
	defer server.Close()

	client := newAPIClient(strings.TrimPrefix(server.URL, "http://"), "")
	var frames []eventFrame
	err := client.StreamEvents(context.Background(), "team a&since=9", 7, false, func(f eventFrame) {
		frames = append(frames, f)
	})
	if err != nil {
		t.Fatalf("StreamEvents: %v", err)
	}

	if gotTenant != "team a&since=9" {
		t.Fatalf("tenant must survive the query round trip, got %q", gotTenant)
	}
	if gotSince != "7" {
		t.Fatalf("expected since=7, got %q", gotSince)
	}
	if len(frames) != 1 || frames[0].Message != "hello" {
		t.Fatalf("unexpected frames: %+v", frames)
	}
}
