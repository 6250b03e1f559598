// Package api exposes the FlowSwap LP's swap lifecycle over HTTP: the
// init/status/event endpoints any peer or operator tooling drives a
// swap through, plus a loopback-only admin surface.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flowswap/lp-node/internal/engine"
	"github.com/flowswap/lp-node/pkg/logging"
)

// Server wires the engine into an HTTP router and owns the listener.
type Server struct {
	engine *engine.Engine
	log    *logging.Logger
	http   *http.Server
}

// NewServer builds a Server bound to addr, ready for Start.
func NewServer(e *engine.Engine, addr string) *Server {
	s := &Server{
		engine: e,
		log:    logging.GetDefault().Component("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/flowswap", func(r chi.Router) {
		r.Post("/init", s.handleInit(false))
		r.Post("/init-leg", s.handleInit(true))
		r.Get("/list", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Post("/{id}/btc-funded", s.handleBTCFunded)
		r.Post("/{id}/m1-locked", s.handleM1Locked)
		r.Post("/{id}/btc-claimed", s.handleBTCClaimed)
		r.Post("/{id}/usdc-funded", s.handleUSDCFunded)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(loopbackOnly)
		r.Post("/swap/{id}/force-fail", s.handleForceFail)
		r.Post("/cleanup-terminal", s.handleCleanupTerminal)
	})

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine, matching the
// listen-then-serve-async shape used elsewhere in this codebase for
// long-running network loops.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.http.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("api server error", "error", err)
		}
	}()
	s.log.Info("api server started", "addr", s.http.Addr)
	return nil
}

// Shutdown drains in-flight requests until ctx is done, then closes
// the listener. The caller controls the grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "elapsed", time.Since(start))
	})
}
