package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"scenesmith/internal/api"
	"scenesmith/internal/config"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/logging"
	"scenesmith/internal/services"
)

// cancelWait bounds how long DELETE waits for an in-flight job to reach a
// terminal state before giving up with a conflict.
const cancelWait = 5 * time.Second

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	jobSvc *api.JobService

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, svc *api.JobService, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logger,
		daemon: d,
		jobSvc: svc,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/videos", srv.handleSubmit)
	mux.HandleFunc("/api/videos/", srv.handleVideo)
	mux.HandleFunc("/api/jobs", srv.handleJobs)
	mux.HandleFunc("/api/jobs/", srv.handleJob)
	mux.HandleFunc("/health", srv.handleHealth)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
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
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	job, err := s.jobSvc.Submit(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.log().Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("quality", string(job.Quality)))
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{JobID: job.ID, Status: string(job.Status)})
}

func (s *apiServer) handleVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/videos/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	view, err := s.jobSvc.Describe(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if view.Status != jobstore.StatusCompleted || view.VideoPath == "" {
		s.writeError(w, http.StatusConflict,
			fmt.Sprintf("job is %s, video not available", view.Status))
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, view.VideoPath)
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	resp, err := s.jobSvc.List(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		view, err := s.jobSvc.Describe(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, view)
	case sub == "" && r.Method == http.MethodDelete:
		s.deleteJob(w, r, id)
	case sub == "events" && r.Method == http.MethodGet:
		resp, err := s.jobSvc.Events(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	case sub != "" && sub != "events":
		s.writeError(w, http.StatusNotFound, "job not found")
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// deleteJob cancels an in-flight job, waits for its worker to settle, and
// removes the record along with its artifacts.
func (s *apiServer) deleteJob(w http.ResponseWriter, r *http.Request, id string) {
	job, err := s.daemon.store.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if !job.IsTerminal() {
		if err := s.daemon.manager.Cancel(r.Context(), id); err != nil {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		if !s.waitForTerminal(r.Context(), id) {
			s.writeError(w, http.StatusConflict, "cancellation in progress, retry shortly")
			return
		}
	}

	if err := s.daemon.cleaner.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.log().Info("job deleted", logging.String(logging.FieldJobID, id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) waitForTerminal(ctx context.Context, id string) bool {
	deadline := time.Now().Add(cancelWait)
	for time.Now().Before(deadline) {
		job, err := s.daemon.store.Get(ctx, id)
		if err != nil {
			// Already gone counts as settled.
			return errors.Is(err, jobstore.ErrNotFound)
		}
		if job.IsTerminal() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
	return false
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp, err := s.jobSvc.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, check := range s.daemon.manager.Health(r.Context()) {
		resp.Checks = append(resp.Checks, api.CheckState{
			Name:   check.Name,
			Ready:  check.Ready,
			Detail: check.Detail,
		})
		if !check.Ready {
			resp.Status = "degraded"
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobstore.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, services.ErrInputInvalid):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
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
