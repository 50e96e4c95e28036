// SPDX-License-Identifier: MIT

// Package diag serves the optional diagnostics endpoints: a liveness probe
// and the Prometheus scrape surface. The listener only exists when the
// operator asks for one.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvrtools/uvcgrab/internal/log"
)

const shutdownGrace = 5 * time.Second

// Server is the diagnostics HTTP listener.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// New builds a diagnostics server bound to addr. The listener is not opened
// until Listen or Run.
func New(addr, version string) *Server {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", handleHealth(version))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func handleHealth(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"service": "uvcgrab",
			"version": version,
		})
	}
}

// Listen opens the TCP listener so Addr reports the bound port. Run calls
// it when the caller has not.
func (s *Server) Listen() error {
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("diagnostics listen: %w", err)
	}
	s.ln = ln
	return nil
}

// Addr reports the bound address after Listen, or the configured address
// before it.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

// Run serves until ctx is cancelled, then drains in-flight requests. A nil
// return means the listener closed cleanly.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	logger := log.WithComponent("diag")
	logger.Info().
		Str("addr", s.ln.Addr().String()).
		Msg("diagnostics listening")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.srv.Serve(s.ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("diagnostics serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("diagnostics shutdown: %w", err)
	}
	<-serveErr
	return nil
}
