package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blobcache/internal/server"
	"blobcache/pkg/config"
)

func main() {
	cfg, err := config.LoadProxyConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to construct server", "error", err)
		os.Exit(1)
	}

	if err := srv.EnsureCacheReady(context.Background()); err != nil {
		logger.Error("failed to prepare cache directory", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"port", cfg.Port,
		"cacheDir", cfg.CacheDir,
		"maxCacheSizeBytes", cfg.MaxCacheSizeBytes,
		"fallbackServers", cfg.FallbackServers,
	)
	logger.Info("Available endpoints", "endpoints", []string{
		"GET /{sha256}[.ext] - fetch or serve a cached blob",
		"HEAD /{sha256}[.ext] - blob metadata without a body",
		"PUT /upload - upload a blob, admin IPs only",
		"DELETE /{sha256} - evict a blob, admin IPs only",
		"GET / - cache statistics page",
	})
	logger.Info("Press Ctrl+C to shutdown gracefully")

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server shutdown complete")
}
