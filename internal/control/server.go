// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package control exposes the service control facade: lifecycle
// endpoints, health and Prometheus metrics.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/archivesvc/internal/log"
)

// Service is the controllable archive runtime.
type Service interface {
	Start()
	Stop()
}

// Server is the control HTTP server.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer builds the control server on addr, operating svc.
func NewServer(addr string, svc Service) *Server {
	logger := log.WithComponent("control")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/control", func(r chi.Router) {
		r.Post("/start", func(w http.ResponseWriter, _ *http.Request) {
			logger.Info().Msg("start requested")
			svc.Start()
			writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
		})
		r.Post("/stop", func(w http.ResponseWriter, _ *http.Request) {
			logger.Info().Msg("stop requested")
			svc.Stop()
			writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
		})
		// Kept for operational compatibility; the archiver has no
		// reloadable state.
		r.Post("/reinitialize", func(w http.ResponseWriter, _ *http.Request) {
			logger.Info().Msg("reinitialize requested (no-op)")
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           otelhttp.NewHandler(r, "control"),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// ListenAndServe blocks serving the control API until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("control server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
