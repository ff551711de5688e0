package eventlog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// EventType classifies a pipeline event for subscribers.
type EventType string

const (
	TypeInfo    EventType = "info"
	TypeSuccess EventType = "success"
	TypeError   EventType = "error"
)

// ParseEventType validates an event type string.
func ParseEventType(raw string) (EventType, error) {
	switch EventType(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeInfo:
		return TypeInfo, nil
	case TypeSuccess:
		return TypeSuccess, nil
	case TypeError:
		return TypeError, nil
	default:
		return "", fmt.Errorf("unknown event type %q", raw)
	}
}

// Event is one entry in a tenant's pipeline history.
type Event struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	TenantID  string    `json:"tenant_id"`
	ClipID    string    `json:"clip_id,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
}

// Sink receives every appended event (for persistence, metrics, etc.).
type Sink interface {
	Append(Event)
}

// tenantLog is a bounded ring of events with a strictly increasing sequence.
// Sequences keep counting after old events fall out of retention, so a
// subscriber cursor stays valid across eviction.
type tenantLog struct {
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
}

// Hub fans pipeline events out to live subscribers, keeping a bounded
// per-tenant history for cursor-based replay.
type Hub struct {
	mu       sync.Mutex
	capacity int
	tenants  map[string]*tenantLog
	sinks    []Sink
}

// NewHub constructs an event hub retaining up to capacity events per tenant.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 200
	}
	return &Hub{
		capacity: capacity,
		tenants:  make(map[string]*tenantLog),
	}
}

// AddSink wires an additional sink that receives every appended event.
func (h *Hub) AddSink(sink Sink) {
	if h == nil || sink == nil {
		return
	}
	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()
}

func (h *Hub) tenantLocked(tenantID string) *tenantLog {
	log, ok := h.tenants[tenantID]
	if !ok {
		log = &tenantLog{capacity: h.capacity}
		log.cond = sync.NewCond(&h.mu)
		h.tenants[tenantID] = log
	}
	return log
}

// Append records an event on the tenant's log and wakes waiting subscribers.
// It never blocks on slow consumers; the ring simply evicts the oldest entry
// when full.
func (h *Hub) Append(evt Event) Event {
	if h == nil || evt.TenantID == "" {
		return evt
	}
	if evt.Type == "" {
		evt.Type = TypeInfo
	}

	h.mu.Lock()
	log := h.tenantLocked(evt.TenantID)
	log.nextSeq++
	evt.Sequence = log.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(log.buffer) == log.capacity {
		copy(log.buffer, log.buffer[1:])
		log.buffer = log.buffer[:log.capacity-1]
	}
	log.buffer = append(log.buffer, evt)
	sinks := append([]Sink(nil), h.sinks...)
	log.cond.Broadcast()
	h.mu.Unlock()

	for _, sink := range sinks {
		sink.Append(evt)
	}
	return evt
}

// Fetch returns the tenant's events with sequence greater than since, oldest
// first. When wait is true and nothing is available, Fetch blocks until an
// event arrives or the context ends. The returned cursor is the sequence of
// the last event delivered (or the tenant's latest sequence when nothing
// newer exists); pass it back as since to resume without gaps.
func (h *Hub) Fetch(ctx context.Context, tenantID string, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	h.mu.Lock()
	log := h.tenantLocked(tenantID)
	h.mu.Unlock()

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.mu.Lock()
				log.cond.Broadcast()
				h.mu.Unlock()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		events, next := log.snapshotLocked(since, limit)
		if len(events) > 0 || !wait {
			return events, next, contextError(ctx)
		}
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
		log.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
	}
}

// Tail returns the tenant's most recent limit events without blocking, plus
// the latest sequence cursor.
func (h *Hub) Tail(tenantID string, limit int) ([]Event, uint64) {
	if h == nil {
		return nil, 0
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	log := h.tenantLocked(tenantID)
	if len(log.buffer) == 0 {
		return nil, log.nextSeq
	}
	start := len(log.buffer) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Event, len(log.buffer)-start)
	copy(out, log.buffer[start:])
	return out, log.nextSeq
}

// FirstSequence reports the smallest sequence still retained for a tenant. A
// subscriber whose cursor is older than this has missed events.
func (h *Hub) FirstSequence(tenantID string) uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	log := h.tenantLocked(tenantID)
	if len(log.buffer) == 0 {
		return log.nextSeq
	}
	return log.buffer[0].Sequence
}

// Tenants lists tenants with event history, for diagnostics.
func (h *Hub) Tenants() []string {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.tenants))
	for tenant := range h.tenants {
		out = append(out, tenant)
	}
	return out
}

func (l *tenantLog) snapshotLocked(since uint64, limit int) ([]Event, uint64) {
	if len(l.buffer) == 0 {
		return nil, l.nextSeq
	}
	startIdx := 0
	for i, evt := range l.buffer {
		if evt.Sequence > since {
			startIdx = i
			break
		}
		if i == len(l.buffer)-1 {
			return nil, l.nextSeq
		}
	}
	end := startIdx + limit
	if end > len(l.buffer) {
		end = len(l.buffer)
	}
	out := make([]Event, end-startIdx)
	copy(out, l.buffer[startIdx:end])
	// The cursor must track what was delivered, not what exists: when limit
	// cuts the batch short, resuming from the tail sequence would skip the
	// undelivered remainder.
	return out, out[len(out)-1].Sequence
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
