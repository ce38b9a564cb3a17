// Package api exposes the backtesting service over HTTP: strategy CRUD,
// synchronous backtest runs, health and Prometheus endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quantlab/stratbench/internal/config"
	"github.com/quantlab/stratbench/internal/telemetry"
	"github.com/quantlab/stratbench/pkg/logging"
)

// Server is the HTTP front of the service.
type Server struct {
	cfg     config.ServerConfig
	httpSrv *http.Server
}

// NewServer builds the router and the http.Server around it.
func NewServer(cfg config.ServerConfig, handlers *Handlers, metrics *telemetry.Metrics) *Server {
	router := NewRouter(cfg, handlers, metrics)
	return &Server{
		cfg: cfg,
		httpSrv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// NewRouter assembles the mux router with the full middleware chain.
func NewRouter(cfg config.ServerConfig, handlers *Handlers, metrics *telemetry.Metrics) *mux.Router {
	logger := logging.GetLogger("api")

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(accessLogMiddleware(logger))
	router.Use(timeoutMiddleware(cfg.RequestTimeout))
	router.Use(corsMiddleware)
	if metrics != nil {
		router.Use(instrumentMiddleware(metrics))
		router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	router.HandleFunc("/health", handlers.healthCheck).Methods(http.MethodGet)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/strategies", handlers.createStrategy).Methods(http.MethodPost)
	v1.HandleFunc("/strategies", handlers.listStrategies).Methods(http.MethodGet)
	v1.HandleFunc("/strategies/{id}", handlers.getStrategy).Methods(http.MethodGet)
	v1.HandleFunc("/strategies/{id}", handlers.updateStrategy).Methods(http.MethodPut)
	v1.HandleFunc("/strategies/{id}", handlers.deleteStrategy).Methods(http.MethodDelete)

	v1.HandleFunc("/backtests", handlers.runBacktest).Methods(http.MethodPost)
	v1.HandleFunc("/backtests", handlers.listBacktests).Methods(http.MethodGet)
	v1.HandleFunc("/backtests/{id}", handlers.getBacktest).Methods(http.MethodGet)

	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully within
// the configured timeout. The listener is claimed up front so a taken
// port fails fast instead of surfacing on the first request.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.httpSrv.Addr, err)
	}

	logger := logging.GetLogger("api")
	logger.Info().Str("addr", s.httpSrv.Addr).Msg("HTTP server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	logger.Info().Msg("Shutting down HTTP server")
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
