// Package httpapi exposes the server over HTTP: credential administration,
// file sync operations, health and metrics. Plain HTTP inside the cluster;
// TLS terminates at the gateway.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudpad/tenantvault/internal/logging"
	"github.com/cloudpad/tenantvault/internal/server/config"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP front of the tenantvault service.
type Server struct {
	httpServer *http.Server
	logger     logging.Logger
}

// New wires the router: public health and metrics endpoints, and the
// bearer-authenticated API under /api.
func New(cfg *config.Config, h *Handler, logger logging.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.EndpointAddrHTTP,
			Handler: newRouter(cfg, h),
		},
		logger: logger.With("module", "httpapi"),
	}
}

func newRouter(cfg *config.Config, h *Handler) chi.Router {
	router := chi.NewRouter()
	router.Use(metricsMiddleware())

	router.Get("/healthz", h.health)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware([]byte(cfg.JWTSecret)))

		r.Route("/storage/credentials", func(r chi.Router) {
			r.Get("/", h.credentialStatus)
			r.Post("/", h.credentialSave)
			r.Delete("/", h.credentialDelete)
			r.Post("/test", h.credentialTest)
		})

		r.Route("/files", func(r chi.Router) {
			r.Post("/", h.fileSave)
			r.Get("/{fileID}", h.fileLoad)
			r.Delete("/{fileID}", h.fileDelete)
		})
	})

	return router
}

// Run serves until SIGINT/SIGTERM or a listener error, then shuts down
// gracefully.
func (s *Server) Run() error {
	ctx := context.Background()
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info(ctx, "http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info(ctx, "shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info(ctx, "http server stopped")
	return nil
}
