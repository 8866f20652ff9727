// Package control exposes the run controller over HTTP for the daemon.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/internal/storage"
	"github.com/fbpage-agent/pkg/logger"
)

// RunController is the part of the scheduler the control API drives
type RunController interface {
	RunID() string
	State() models.RunState
	Progress() models.Progress
	Log() []models.LogEntry
	TogglePause() models.RunState
	RequestCancel() bool
}

// StartFunc builds and starts a batch. While a run is active it cancels that
// run instead and reports false.
type StartFunc func(ctx context.Context) (bool, error)

// RunLister lists persisted run records
type RunLister interface {
	ListRuns(ctx context.Context, filter storage.RunFilter) ([]*models.RunRecord, error)
}

// Server serves the control API
type Server struct {
	ctrl  RunController
	start StartFunc
	runs  RunLister
	log   *logger.Logger
}

// NewServer creates a control server. start and runs may be nil.
func NewServer(ctrl RunController, start StartFunc, runs RunLister, log *logger.Logger) *Server {
	return &Server{
		ctrl:  ctrl,
		start: start,
		runs:  runs,
		log:   log.WithComponent("control"),
	}
}

// RunStatus is the body of GET /run
type RunStatus struct {
	RunID    string            `json:"run_id,omitempty"`
	State    models.RunState   `json:"state"`
	Progress models.Progress   `json:"progress"`
	Log      []models.LogEntry `json:"log"`
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /run", s.handleStatus)
	mux.HandleFunc("POST /run/start", s.handleStart)
	mux.HandleFunc("POST /run/pause", s.handlePause)
	mux.HandleFunc("POST /run/cancel", s.handleCancel)
	mux.HandleFunc("GET /runs", s.handleRuns)
	return mux
}

// ListenAndServe serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()
	s.log.Info().Str("addr", addr).Msg("Control server listening")

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RunStatus{
		RunID:    s.ctrl.RunID(),
		State:    s.ctrl.State(),
		Progress: s.ctrl.Progress(),
		Log:      s.ctrl.Log(),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.start == nil {
		writeError(w, http.StatusNotImplemented, "starting runs is not configured")
		return
	}

	// the run outlives the request
	started, err := s.start(context.WithoutCancel(r.Context()))
	if err != nil {
		s.log.Warn().Err(err).Msg("Start rejected")
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	status := http.StatusAccepted
	if !started {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]interface{}{
		"started": started,
		"state":   s.ctrl.State(),
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	state := s.ctrl.TogglePause()
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": state})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !s.ctrl.RequestCancel() {
		writeError(w, http.StatusConflict, "no active run")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"state": s.ctrl.State()})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusOK, []*models.RunRecord{})
		return
	}
	runs, err := s.runs.ListRuns(r.Context(), storage.DefaultRunFilter())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
