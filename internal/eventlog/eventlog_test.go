package eventlog

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestHubAppendAssignsSequencePerTenant(t *testing.T) {
	hub := NewHub(10)

	a1 := hub.Append(Event{TenantID: "tenant-a", Type: TypeInfo, Message: "first"})
	a2 := hub.Append(Event{TenantID: "tenant-a", Type: TypeInfo, Message: "second"})
	b1 := hub.Append(Event{TenantID: "tenant-b", Type: TypeInfo, Message: "other"})

	if a1.Sequence != 1 || a2.Sequence != 2 {
		t.Fatalf("expected tenant-a sequences 1,2 got %d,%d", a1.Sequence, a2.Sequence)
	}
	if b1.Sequence != 1 {
		t.Fatalf("expected tenant-b sequence independent of tenant-a, got %d", b1.Sequence)
	}
	if a1.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be stamped on append")
	}
}

func TestHubRetentionEvictsOldestButKeepsSequence(t *testing.T) {
	hub := NewHub(5)
	for i := 1; i <= 8; i++ {
		hub.Append(Event{TenantID: "tenant-a", Type: TypeInfo, Message: fmt.Sprintf("evt-%d", i)})
	}

	events, next := hub.Tail("tenant-a", 100)
	if len(events) != 5 {
		t.Fatalf("expected retention cap of 5, got %d", len(events))
	}
	if events[0].Sequence != 4 || events[len(events)-1].Sequence != 8 {
		t.Fatalf("expected sequences 4..8 after eviction, got %d..%d",
			events[0].Sequence, events[len(events)-1].Sequence)
	}
	if next != 8 {
		t.Fatalf("expected cursor 8, got %d", next)
	}
	if first := hub.FirstSequence("tenant-a"); first != 4 {
		t.Fatalf("expected first retained sequence 4, got %d", first)
	}
}

func TestHubFetchReplaysFromCursor(t *testing.T) {
	hub := NewHub(10)
	for i := 1; i <= 4; i++ {
		hub.Append(Event{TenantID: "tenant-a", Type: TypeInfo, Message: fmt.Sprintf("evt-%d", i)})
	}

	events, next, err := hub.Fetch(context.Background(), "tenant-a", 2, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected two events after cursor 2, got %d", len(events))
	}
	if events[0].Sequence != 3 || events[1].Sequence != 4 {
		t.Fatalf("expected sequences 3,4 got %d,%d", events[0].Sequence, events[1].Sequence)
	}
	if next != 4 {
		t.Fatalf("expected cursor 4, got %d", next)
	}

	// Cursor at the head returns nothing without blocking.
	events, _, err = hub.Fetch(context.Background(), "tenant-a", next, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events past cursor, got %d", len(events))
	}
}

func TestHubFetchLimitedCursorResumesWithoutGaps(t *testing.T) {
	hub := NewHub(10)
	for i := 1; i <= 5; i++ {
		hub.Append(Event{TenantID: "tenant-a", Type: TypeInfo, Message: fmt.Sprintf("evt-%d", i)})
	}

	events, cursor, err := hub.Fetch(context.Background(), "tenant-a", 0, 2, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected limit to cap the batch at 2, got %d", len(events))
	}
	if cursor != 2 {
		t.Fatalf("cursor must be the last delivered sequence, got %d", cursor)
	}

	events, cursor, err = hub.Fetch(context.Background(), "tenant-a", cursor, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected the remaining 3 events on resume, got %d", len(events))
	}
	if events[0].Sequence != 3 || events[2].Sequence != 5 {
		t.Fatalf("expected sequences 3..5 on resume, got %d..%d",
			events[0].Sequence, events[2].Sequence)
	}
	if cursor != 5 {
		t.Fatalf("expected cursor 5 after draining, got %d", cursor)
	}
}

func TestHubFetchWaitWakesOnAppend(t *testing.T) {
	hub := NewHub(10)

	type result struct {
		events []Event
		err    error
	}
	got := make(chan result, 1)
	go func() {
		events, _, err := hub.Fetch(context.Background(), "tenant-a", 0, 0, true)
		got <- result{events: events, err: err}
	}()

	// Give the subscriber a moment to block, then publish.
	time.Sleep(20 * time.Millisecond)
	hub.Append(Event{TenantID: "tenant-a", Type: TypeSuccess, Message: "done"})

	select {
	case r := <-got:
		if r.err != nil {
			t.Fatalf("Fetch: %v", r.err)
		}
		if len(r.events) != 1 || r.events[0].Message != "done" {
			t.Fatalf("unexpected events: %+v", r.events)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiting fetch never woke")
	}
}

func TestHubFetchWaitHonorsContext(t *testing.T) {
	hub := NewHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := hub.Fetch(ctx, "tenant-a", 0, 0, true)
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestHubAppendDoesNotBlockOnSlowSubscriber(t *testing.T) {
	hub := NewHub(3)

	// A subscriber that never fetches must not slow appends; the ring just
	// evicts.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Append(Event{TenantID: "tenant-a", Type: TypeInfo, Message: "burst"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("append blocked")
	}

	events, _ := hub.Tail("tenant-a", 100)
	if len(events) != 3 {
		t.Fatalf("expected ring capped at 3, got %d", len(events))
	}
}

type captureSink struct {
	events []Event
}

func (c *captureSink) Append(evt Event) { c.events = append(c.events, evt) }

func TestHubSinkReceivesEveryEvent(t *testing.T) {
	hub := NewHub(10)
	sink := &captureSink{}
	hub.AddSink(sink)

	hub.Append(Event{TenantID: "tenant-a", Type: TypeInfo, Message: "one"})
	hub.Append(Event{TenantID: "tenant-b", Type: TypeError, Message: "two"})

	if len(sink.events) != 2 {
		t.Fatalf("expected sink to see 2 events, got %d", len(sink.events))
	}
	if sink.events[1].Type != TypeError {
		t.Fatalf("expected error event, got %s", sink.events[1].Type)
	}
}

func TestParseEventType(t *testing.T) {
	for _, valid := range []string{"info", "success", "error", " INFO "} {
		if _, err := ParseEventType(valid); err != nil {
			t.Fatalf("ParseEventType(%q): %v", valid, err)
		}
	}
	if _, err := ParseEventType("warning"); err == nil {
		t.Fatal("expected rejection of unknown type")
	}
}
