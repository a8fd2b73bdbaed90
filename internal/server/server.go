package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"blobcache/internal/cachestore"
	"blobcache/internal/dedup"
	"blobcache/internal/fetcher"
	"blobcache/internal/httpapi"
	"blobcache/internal/resolver"
	"blobcache/pkg/config"
)

// Server represents the HTTP server fronting the blob cache.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	port       int
	cache      *cachestore.Store
}

// New wires the cache store, deduplicator, resolver and fetcher described
// by cfg into an http.Server ready to Start.
func New(cfg *config.ProxyConfig, logger *slog.Logger) (*Server, error) {
	cache := cachestore.New(cfg.CacheDir, cfg.MaxCacheSizeBytes, logger)

	res := resolver.New(cfg.LookupRelays, cfg.FallbackServers, cfg.AuthorLookupTimeout, logger)
	fetch := fetcher.New(cfg.RequestTimeout, cfg.MaxRedirects)
	dd := dedup.New()

	handler, err := httpapi.New(cache, dd, res, fetch, logger, cfg.AllowedUploadIPRanges)
	if err != nil {
		return nil, fmt.Errorf("constructing http handler: %w", err)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streamed blob bodies may run long; rely on request context instead
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		logger:     logger,
		port:       cfg.Port,
		cache:      cache,
	}, nil
}

// EnsureCacheReady prepares the cache directory and metadata database.
// Must be called before Start.
func (s *Server) EnsureCacheReady(ctx context.Context) error {
	return s.cache.EnsureReady(ctx)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting blob cache server", "port", s.port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and releases the cache lock.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server gracefully")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return s.cache.Close()
}

// Port returns the server port.
func (s *Server) Port() int {
	return s.port
}
