// Package api serves the local HTTP query surface: collection listing,
// similarity queries and source-document fetching.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/custodia-labs/ragdoll/internal/core/ports/driving"
	"github.com/custodia-labs/ragdoll/internal/core/services"
	"github.com/custodia-labs/ragdoll/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Server routes HTTP requests to the query and admin services.
type Server struct {
	query    driving.QueryService
	admin    driving.Admin
	registry *services.Registry
}

// New creates the API server.
func New(query driving.QueryService, admin driving.Admin, registry *services.Registry) *Server {
	return &Server{query: query, admin: admin, registry: registry}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/rags", s.handleCollections)
	r.Get("/query", s.handleQueryGet)
	r.Post("/query", s.handleQueryPost)
	r.Get("/fetch/{collection}/*", s.handleFetch)

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
