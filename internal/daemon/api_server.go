package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"tailor/internal/api"
	"tailor/internal/config"
	"tailor/internal/logging"
	"tailor/internal/pipeline"
	"tailor/internal/services"
)

const (
	maxRequestBytes   = 8 << 20
	heartbeatInterval = 15 * time.Second
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

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

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := cfg.Paths.APIToken
	mux.HandleFunc("/generate", srv.guard(token, srv.handleGenerate))
	mux.HandleFunc("/progress/", srv.guard(token, srv.handleProgress))
	mux.HandleFunc("/batch", srv.guard(token, srv.handleBatch))
	mux.HandleFunc("/runs/", srv.guard(token, srv.handleRun))
	mux.HandleFunc("/pipelines", srv.guard(token, srv.handlePipelines))
	mux.HandleFunc("/api/status", srv.guard(token, srv.handleStatus))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
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
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
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
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.GenerateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	svc := s.daemon.service

	if req.Stream {
		id, err := svc.Start(r.Context(), req.Generation())
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, api.StreamAccepted{
			RequestID:   id,
			ProgressURL: "/progress/" + id,
		})
		return
	}

	clearWriteDeadline(w)
	run, err := svc.Generate(r.Context(), req.Generation())
	if run == nil {
		s.writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if run.Status != pipeline.StatusCompleted {
		status = statusForError(run.Err)
	}
	s.writeJSON(w, status, api.FromRun(run))
}

// handleProgress streams a run's progress channel as server-sent events until
// the terminal event, the channel is torn down, or the client goes away.
// Disconnecting never affects the run.
func (s *apiServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	requestID := strings.TrimPrefix(r.URL.Path, "/progress/")
	if requestID == "" || strings.Contains(requestID, "/") {
		s.writeError(w, http.StatusNotFound, "progress channel not found")
		return
	}

	sub := s.daemon.service.Registry().Subscribe(requestID)
	defer sub.Close()

	clearWriteDeadline(w)
	controller := http.NewResponseController(w)
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = controller.Flush()

	ctx := r.Context()
	for {
		waitCtx, cancel := context.WithTimeout(ctx, heartbeatInterval)
		event, ok := sub.Next(waitCtx)
		timedOut := waitCtx.Err() != nil
		cancel()
		if !ok {
			if ctx.Err() != nil || !timedOut {
				return
			}
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			_ = controller.Flush()
			continue
		}
		if err := api.WriteEvent(w, event); err != nil {
			s.log().Debug("progress client gone", logging.String(logging.FieldRequestID, requestID), logging.Error(err))
			return
		}
		_ = controller.Flush()
		if event.Terminal() {
			return
		}
	}
}

func (s *apiServer) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.BatchRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	clearWriteDeadline(w)
	result, err := s.daemon.service.Batch(r.Context(), req.Generation())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	requestID := strings.TrimPrefix(r.URL.Path, "/runs/")
	if requestID == "" || strings.Contains(requestID, "/") {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	record, err := s.daemon.service.Record(r.Context(), requestID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromRecord(record))
}

func (s *apiServer) handlePipelines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	defs := s.daemon.service.Catalog().List()
	resp := api.PipelineListResponse{Pipelines: make([]api.PipelineSummary, 0, len(defs))}
	for _, def := range defs {
		resp.Pipelines = append(resp.Pipelines, api.FromPipeline(def))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	payload := api.FromStatus(status.Service)
	payload.Running = status.Running
	payload.PID = status.PID
	payload.StartedAt = api.FormatTime(status.StartedAt)
	payload.LockFilePath = status.LockFilePath
	payload.RunStorePath = status.RunStorePath
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{
			Error: fmt.Sprintf("invalid request body: %v", err),
			Kind:  "validation",
		})
		return false
	}
	return true
}

// statusForError maps an error kind to an HTTP status.
func statusForError(err error) int {
	switch services.Kind(err) {
	case "validation", "missing_binding", "stage_dependency":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "configuration":
		return http.StatusServiceUnavailable
	case "transport", "parse":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// clearWriteDeadline lifts the server write timeout for handlers that wait on
// provider calls.
func clearWriteDeadline(w http.ResponseWriter) {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("run produced no result")
	}
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.log().Warn("request failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_request_failed"),
			logging.String(logging.FieldErrorHint, "check provider configuration and daemon logs"),
		)
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Kind: services.Kind(err)})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
