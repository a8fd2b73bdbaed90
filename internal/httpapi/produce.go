package httpapi

import (
	"errors"
	"io"
	"log/slog"

	"blobcache/internal/cachestore"
	"blobcache/internal/hashstream"
	"blobcache/internal/model"
)

var errNoCandidates = errors.New("no candidate servers available")

// newHashStream wires upstream through the hash/cache tee, writing to a
// fresh temp path under the cache directory before the atomic rename.
func newHashStream(cache *cachestore.Store, logger *slog.Logger, d model.Digest, upstream io.ReadCloser) *hashstream.Stream {
	return hashstream.New(logger, d, cache.TempPath(), cache.BlobPath(d), upstream)
}
