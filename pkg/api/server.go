// Package api serves stored LTX files over HTTP.
//
// Routes live under /api/v1. /api/v1/health and /metrics are always open;
// the file routes require the X-API-Key header when an API key is set.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// Router builds the HTTP handler with all routes configured.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.log, NoColor: true}))
	r.Use(middleware.Recoverer)
	if len(s.config.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"X-API-Key", "Range"},
			ExposedHeaders:   []string{"Content-Range", "X-LTX-Min-TXID", "X-LTX-Max-TXID", "X-LTX-Size"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.metrics.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))

		r.Group(func(r chi.Router) {
			if s.config.APIKey != "" {
				r.Use(apiKeyMiddleware(s.config.APIKey))
			}

			r.Get("/ltx", s.metrics.InstrumentHandler("GET", "/api/v1/ltx", s.handleListFiles))
			r.Get("/ltx/{name}", s.metrics.InstrumentHandler("GET", "/api/v1/ltx/{name}", s.handleGetFile))
			r.Get("/ltx/{name}/verify", s.metrics.InstrumentHandler("GET", "/api/v1/ltx/{name}/verify", s.handleVerifyFile))
		})
	})

	return r
}

// Addr returns the listen address from the server config.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Bind, fmt.Sprint(s.config.Port))
}

// StartServer listens on the configured address and serves until ctx is
// cancelled.
func StartServer(ctx context.Context, s *Server) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	return Serve(ctx, s, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
// ln is closed when Serve returns.
func Serve(ctx context.Context, s *Server, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithField("addr", ln.Addr().String()).Info("starting litetx http server")

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info("shutting down litetx http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}
