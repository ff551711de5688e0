package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"clipsmith/internal/config"
	"clipsmith/internal/eventlog"
	"clipsmith/internal/logging"
	"clipsmith/internal/queue"
	"clipsmith/internal/services"
)

type apiServer struct {
	bind      string
	heartbeat time.Duration
	logger    *slog.Logger
	daemon    *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}
	heartbeat := time.Duration(cfg.Events.HeartbeatInterval) * time.Second
	if heartbeat <= 0 {
		heartbeat = 20 * time.Second
	}

	srv := &apiServer{
		bind:      bind,
		heartbeat: heartbeat,
		logger:    logging.NewComponentLogger(logger, "api"),
		daemon:    d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/clips", srv.withRequest(authMiddleware(token, srv.handleClips)))
	mux.HandleFunc("/api/events", srv.withRequest(authMiddleware(token, srv.handleEvents)))
	mux.HandleFunc("/api/queue", srv.withRequest(authMiddleware(token, srv.handleQueue)))
	mux.HandleFunc("/api/queue/", srv.withRequest(authMiddleware(token, srv.handleQueueClip)))
	mux.HandleFunc("/api/status", srv.withRequest(authMiddleware(token, srv.handleStatus)))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		// No WriteTimeout: the event stream stays open until the client leaves.
		IdleTimeout: 60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if serveErr := s.server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(serveErr))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// withRequest stamps a correlation id onto the request context so log lines
// from one call can be tied together.
func (s *apiServer) withRequest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		s.logger.Debug("request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.String(logging.FieldCorrelationID, requestID))
		next(w, r.WithContext(services.WithRequestID(r.Context(), requestID)))
	}
}

type submitRequest struct {
	URL      string `json:"url"`
	TenantID string `json:"tenantId"`
}

type submitResponse struct {
	OK     bool   `json:"ok"`
	ClipID string `json:"clipId"`
}

// handleClips validates a submission and parks it in the tenant's inbox. The
// clip id is assigned here so the caller can follow the clip before the
// admission loop picks it up.
func (s *apiServer) handleClips(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.TenantID) == "" {
		s.writeError(w, http.StatusBadRequest, "tenantId is required")
		return
	}

	sub, err := s.daemon.inbox.Push(r.Context(), req.TenantID, req.URL)
	if err != nil {
		if services.IsUnavailable(err) {
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.daemon.admitter.Trigger()

	s.writeJSON(w, http.StatusAccepted, submitResponse{OK: true, ClipID: sub.ClipID})
}

// handleEvents serves a tenant's event log as a server-sent event stream.
// Without a cursor the stream is live-only; a since query parameter or
// Last-Event-ID header replays everything after that cursor before going
// live. Idle stretches are bridged with comment-line heartbeats so proxies
// keep the connection open.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant"))
	if tenantID == "" {
		s.writeError(w, http.StatusBadRequest, "tenant is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	cursor := s.resolveCursor(r, tenantID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	hub := s.daemon.hub
	for {
		fetchCtx, cancel := context.WithTimeout(r.Context(), s.heartbeat)
		events, _, err := hub.Fetch(fetchCtx, tenantID, cursor, 0, true)
		cancel()

		if r.Context().Err() != nil {
			return
		}
		for _, evt := range events {
			if writeErr := writeSSEEvent(w, evt); writeErr != nil {
				return
			}
			cursor = evt.Sequence
		}
		if len(events) > 0 {
			flusher.Flush()
			continue
		}
		if errors.Is(err, context.DeadlineExceeded) {
			if _, writeErr := fmt.Fprint(w, ": heartbeat\n\n"); writeErr != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// resolveCursor picks the starting cursor for an event stream: an explicit
// Last-Event-ID header or since parameter resumes after that sequence;
// otherwise the stream starts at the tenant's current tail.
func (s *apiServer) resolveCursor(r *http.Request, tenantID string) uint64 {
	if value := strings.TrimSpace(r.Header.Get("Last-Event-ID")); value != "" {
		if cursor, err := strconv.ParseUint(value, 10, 64); err == nil {
			return cursor
		}
	}
	if value := strings.TrimSpace(r.URL.Query().Get("since")); value != "" {
		if cursor, err := strconv.ParseUint(value, 10, 64); err == nil {
			return cursor
		}
	}
	_, latest := s.daemon.hub.Tail(tenantID, 1)
	return latest
}

type sseFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeSSEEvent(w http.ResponseWriter, evt eventlog.Event) error {
	data, err := json.Marshal(sseFrame{Type: string(evt.Type), Message: evt.Message})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", evt.Sequence, data)
	return err
}

type queueJobView struct {
	ID        int64  `json:"id"`
	Queue     string `json:"queue"`
	TenantID  string `json:"tenantId"`
	ClipID    string `json:"clipId"`
	State     string `json:"state"`
	Attempts  int    `json:"attempts"`
	MaxTries  int    `json:"maxAttempts"`
	LastError string `json:"lastError,omitempty"`
	RunAt     string `json:"runAt,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func viewOf(job *queue.Job) queueJobView {
	view := queueJobView{
		ID:        job.ID,
		Queue:     job.Queue,
		TenantID:  job.TenantID,
		ClipID:    job.ClipID,
		State:     string(job.State),
		Attempts:  job.Attempts,
		MaxTries:  job.MaxAttempts,
		LastError: job.LastError,
	}
	if !job.RunAt.IsZero() {
		view.RunAt = job.RunAt.Format(time.RFC3339)
	}
	if !job.CreatedAt.IsZero() {
		view.CreatedAt = job.CreatedAt.Format(time.RFC3339)
	}
	if !job.UpdatedAt.IsZero() {
		view.UpdatedAt = job.UpdatedAt.Format(time.RFC3339)
	}
	return view
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var states []queue.State
	for _, value := range r.URL.Query()["state"] {
		state, ok := queue.ParseState(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown state: "+value)
			return
		}
		states = append(states, state)
	}
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant"))

	jobs, err := s.daemon.store.List(r.Context(), tenantID, states...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]queueJobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, viewOf(job))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (s *apiServer) handleQueueClip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	clipID := strings.TrimPrefix(r.URL.Path, "/api/queue/")
	if clipID == "" || strings.Contains(clipID, "/") {
		s.writeError(w, http.StatusNotFound, "clip not found")
		return
	}
	jobs, err := s.daemon.store.JobsByClip(r.Context(), clipID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(jobs) == 0 {
		s.writeError(w, http.StatusNotFound, "clip not found")
		return
	}
	views := make([]queueJobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, viewOf(job))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"clipId": clipID, "jobs": views})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
