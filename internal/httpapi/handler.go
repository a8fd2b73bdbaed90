// Package httpapi implements the HTTP boundary: route registration, the
// blob GET/HEAD/PUT/DELETE contract, CORS preflight, and the statistics
// page. It orchestrates the cache store, deduplicator, resolver and
// fetcher but owns none of their state.
package httpapi

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"blobcache/internal/cachestore"
	"blobcache/internal/dedup"
	"blobcache/internal/fetcher"
	"blobcache/internal/resolver"
)

const cacheControlImmutable = "public, max-age=31536000, immutable"

// Handler wires the cache store, deduplicator, resolver and fetcher into
// the HTTP surface described by the external interfaces table.
type Handler struct {
	cache    *cachestore.Store
	dedup    *dedup.Deduplicator
	resolver *resolver.Resolver
	fetcher  *fetcher.Fetcher
	logger   *slog.Logger

	allowedUploadRanges []*net.IPNet
}

// New constructs a Handler. allowedUploadIPs is the raw env-configured
// list of IPs/CIDRs permitted to PUT or DELETE.
func New(
	cache *cachestore.Store,
	dd *dedup.Deduplicator,
	res *resolver.Resolver,
	fetch *fetcher.Fetcher,
	logger *slog.Logger,
	allowedUploadIPs []string,
) (*Handler, error) {
	ranges, err := parseAllowedRanges(allowedUploadIPs)
	if err != nil {
		return nil, fmt.Errorf("parsing allowed upload IP ranges: %w", err)
	}
	return &Handler{
		cache:               cache,
		dedup:               dd,
		resolver:            res,
		fetcher:             fetch,
		logger:              logger,
		allowedUploadRanges: ranges,
	}, nil
}

// Routes builds the http.ServeMux implementing the external interface
// table: OPTIONS preflight on every path, blob retrieval, upload,
// delete, the statistics page, and a 405 catch-all.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("OPTIONS /{path...}", h.handleOptions)
	mux.HandleFunc("GET /{$}", h.handleStats)
	mux.HandleFunc("GET /{digest}", h.handleBlob)
	mux.HandleFunc("HEAD /{digest}", h.handleBlob)
	mux.HandleFunc("PUT /upload", h.handleUpload)
	mux.HandleFunc("DELETE /{digest}", h.handleDelete)
	mux.HandleFunc("/{path...}", h.handleUnmatched)

	return mux
}

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, PUT, DELETE")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, *")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnmatched(w http.ResponseWriter, r *http.Request) {
	WriteError(w, MethodNotAllowed("Method not allowed"))
}
