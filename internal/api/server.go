package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"terrana/internal/config"
	"terrana/internal/session"

	"github.com/rs/zerolog"
)

// HTTPServer exposes the orchestration core to the UI host over a small
// authenticated JSON API.
type HTTPServer struct {
	cfg      config.APIConfig
	engine   *session.Engine
	currency string
	server   *http.Server
	logger   *zerolog.Logger
}

// NewHTTPServer builds the facade. Prices arrive from the UI in major
// units and are converted to Money exactly once, using currency.
func NewHTTPServer(cfg config.APIConfig, engine *session.Engine, currency string, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, engine: engine, currency: currency, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("GET /api/v1/terrains/{id}/grid", srv.handleGrid)
	mux.HandleFunc("POST /api/v1/terrains/{id}/refresh", srv.handleRefresh)
	mux.HandleFunc("GET /api/v1/quota", srv.handleQuota)
	mux.HandleFunc("POST /api/v1/sessions", srv.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", srv.handleSessionState)
	mux.HandleFunc("POST /api/v1/sessions/{id}/select", srv.handleSelect)
	mux.HandleFunc("POST /api/v1/sessions/{id}/confirm", srv.handleConfirm)
	mux.HandleFunc("POST /api/v1/sessions/{id}/cash", srv.handleSubmitCash)
	mux.HandleFunc("POST /api/v1/sessions/{id}/pay", srv.handleSubmitOnline)
	mux.HandleFunc("POST /api/v1/sessions/{id}/ack", srv.handleAcknowledge)
	mux.HandleFunc("POST /api/v1/sessions/{id}/retry", srv.handleRetry)
	mux.HandleFunc("POST /api/v1/sessions/{id}/cancel", srv.handleCancel)
	mux.HandleFunc("POST /api/v1/admin/terrains/{id}/expire-sweep", srv.handleExpireSweep)

	auth := newAuth(cfg)
	limiter := newRateLimiter(&cfg)
	handler := srv.logging(auth.wrap(limiter.wrap(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
