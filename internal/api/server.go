package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"estatesync/internal/config"
	"estatesync/internal/syncer"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes sync status and health over HTTP for operators and
// monitoring.
type Server struct {
	cfg      config.APIConfig
	state    *syncer.StateManager
	syncType string
	server   *http.Server
	auth     *Auth
	logger   *zerolog.Logger
}

func NewServer(cfg config.APIConfig, state *syncer.StateManager, syncType string, metricsEnabled bool, logger *zerolog.Logger) *Server {
	mux := http.NewServeMux()
	srv := &Server{cfg: cfg, state: state, syncType: syncType, logger: logger}
	srv.auth = NewAuth(cfg)

	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.HandleFunc("/api/v1/sync/status", srv.handleStatus)
	mux.HandleFunc("/api/v1/sync/history", srv.handleHistory)
	if metricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *Server) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the configured handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	health, err := s.state.Health(r.Context(), s.syncType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "health check failed")
		return
	}

	status := http.StatusOK
	verdict := "ok"
	if health.State.Status == "failed" || health.UnresolvedErrors > 0 {
		status = http.StatusServiceUnavailable
		verdict = "degraded"
	}

	writeJSON(w, status, map[string]any{
		"status":            verdict,
		"sync_status":       health.State.Status,
		"unresolved_errors": health.UnresolvedErrors,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	health, err := s.state.Health(r.Context(), s.syncType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load sync state")
		return
	}

	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	entries, err := s.state.History(r.Context(), s.syncType, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
