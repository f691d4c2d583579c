package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskscribe/internal/api"
	"taskscribe/internal/artifacts"
	"taskscribe/internal/config"
	"taskscribe/internal/jobs"
	"taskscribe/internal/logging"
	"taskscribe/internal/services"
	"taskscribe/internal/workflow"
)

const maxUploadBytes = 1 << 30

// Recording formats the intake accepts.
var allowedAudioExts = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".m4a":  {},
	".flac": {},
	".aac":  {},
	".ogg":  {},
	".mp4":  {},
	".webm": {},
}

type apiServer struct {
	cfg       *config.Config
	store     *jobs.Store
	artifacts *artifacts.Store
	manager   *workflow.Manager
	logger    *logging.Logger
	server    *http.Server
	listener  net.Listener
}

func newAPIServer(cfg *config.Config, store *jobs.Store, artifactStore *artifacts.Store, manager *workflow.Manager, logger *logging.Logger) *apiServer {
	s := &apiServer{
		cfg:       cfg,
		store:     store,
		artifacts: artifactStore,
		manager:   manager,
		logger:    logging.NewComponentLogger(logger, "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs", s.handleSubmit)
	mux.HandleFunc("GET /api/jobs", s.handleList)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGet)
	mux.HandleFunc("GET /api/jobs/{id}/result", s.handleResult)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	s.server = &http.Server{
		Handler:           s.withRequestID(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// withRequestID tags every request with a correlation id so handler log
// lines can be tied back to one API call.
func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.ReplaceAll(uuid.NewString(), "-", "")
		ctx := services.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start binds the configured address and serves in the background.
func (s *apiServer) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Paths.APIBind)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Paths.APIBind, err)
	}
	s.listener = listener
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server terminated", logging.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound listen address.
func (s *apiServer) Addr() string {
	if s.listener == nil {
		return s.cfg.Paths.APIBind
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *apiServer) Stop(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api shutdown", logging.Error(err))
	}
}

// handleSubmit accepts a multipart recording upload, stores the audio in
// the new job's namespace, registers the queued job, and offers it to the
// worker pool.
func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart field \"file\" required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedAudioExts[ext]; !ok {
		s.writeError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported audio extension %q", ext))
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}
	if len(content) == 0 {
		s.writeError(w, http.StatusBadRequest, "empty upload")
		return
	}

	// Stage the recording before inserting the row: a queued job must never
	// be visible to the worker pool without its audio path.
	jobID := jobs.NewJobID()
	audioPath, err := s.artifacts.SaveUpload(jobID, header.Filename, content)
	if err != nil {
		s.internalError(w, "store upload", err)
		return
	}
	job, err := s.store.NewJobWithID(r.Context(), jobID, audioPath)
	if err != nil {
		os.RemoveAll(s.artifacts.JobDir(jobID))
		s.internalError(w, "create job", err)
		return
	}
	s.manager.Enqueue(job)

	s.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.JobID),
		logging.String("filename", header.Filename),
		logging.Int("bytes", len(content)))
	s.writeJSON(w, http.StatusCreated, api.ProjectJob(job))
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []jobs.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := jobs.ParseStatus(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		statuses = append(statuses, status)
	}
	list, err := s.store.List(r.Context(), statuses...)
	if err != nil {
		s.internalError(w, "list jobs", err)
		return
	}
	projected := make([]api.JobStatus, 0, len(list))
	for _, job := range list {
		projected = append(projected, api.ProjectJob(job))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": projected})
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, api.ProjectJob(job))
}

// handleResult serves the final export for a completed job as plain text.
func (s *apiServer) handleResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.StatusCompleted {
		s.writeError(w, http.StatusNotFound,
			fmt.Sprintf("job is %s; result available once completed", job.Status))
		return
	}
	content, err := s.artifacts.ReadText(job.JobID, artifacts.ExportName)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "export artifact missing")
			return
		}
		s.internalError(w, "read export", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, content)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, err := s.store.RequestCancel(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", jobID))
			return
		}
		s.internalError(w, "request cancel", err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.ProjectJob(job))
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.Health(r.Context())
	if err != nil {
		s.internalError(w, "queue health", err)
		return
	}
	status := api.DaemonStatus{
		Running: true,
		Queue:   api.ProjectCounts(summary),
		Stages:  api.ProjectHealth(s.manager.HealthChecks(r.Context())),
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) lookupJob(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	jobID := r.PathValue("id")
	job, err := s.store.GetByJobID(r.Context(), jobID)
	if err != nil {
		s.internalError(w, "load job", err)
		return nil, false
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", jobID))
		return nil, false
	}
	return job, true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op, logging.Error(err))
	s.writeError(w, http.StatusInternalServerError, op+" failed")
}
