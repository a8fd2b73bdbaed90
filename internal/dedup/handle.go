package dedup

import (
	"io"

	"blobcache/internal/hashstream"
)

// ProduceResult is what a one-shot fetch factory returns once it has
// resolved a candidate, issued the upstream request, and wired the
// hash/cache tee — but before any bytes have necessarily been read.
type ProduceResult struct {
	Stream        *hashstream.Stream
	ContentType   string
	ContentLength int64 // -1 if unknown
}

// ProduceFunc is the one-shot fetch factory passed to GetOrCreate.
type ProduceFunc func() (*ProduceResult, error)

// FetchHandle is the shared state for one in-flight digest: a
// broadcast-capable stream with the hash/cache tee already wired, the
// upstream Content-Type/Content-Length, and the hash_valid/cache_written
// latches inherited from the underlying hashstream.Stream.
type FetchHandle struct {
	contentType   string
	contentLength int64
	broadcast     *broadcastBuffer
	stream        *hashstream.Stream
}

func newFetchHandle(result *ProduceResult) *FetchHandle {
	h := &FetchHandle{
		contentType:   result.ContentType,
		contentLength: result.ContentLength,
		broadcast:     newBroadcastBuffer(),
		stream:        result.Stream,
	}
	go h.broadcast.fill(result.Stream.R)
	return h
}

// NewReader returns a fresh, independent reader branch over the shared
// stream. Every subscriber attaching before EOF sees identical bytes in
// identical order; one subscriber stopping early never starves another.
func (h *FetchHandle) NewReader() io.Reader {
	return h.broadcast.newReader()
}

// ContentType is the upstream Content-Type, or "" if none was reported.
func (h *FetchHandle) ContentType() string { return h.contentType }

// ContentLength is the upstream Content-Length, or -1 if unknown.
func (h *FetchHandle) ContentLength() int64 { return h.contentLength }

// HashValid blocks until validation finishes and reports whether the
// streamed bytes matched the expected digest.
func (h *FetchHandle) HashValid() bool { return h.stream.HashValid() }

// CacheWritten blocks until the cache-write branch finishes and reports
// whether a file now sits in the cache directory.
func (h *FetchHandle) CacheWritten() bool { return h.stream.CacheWritten() }

// BytesWritten blocks until the fetch settles and returns the number of
// bytes streamed from upstream, for recording alongside the digest once
// the hash validates.
func (h *FetchHandle) BytesWritten() int64 { return h.stream.BytesWritten() }

// awaitDone blocks until the underlying fetch has fully settled, success
// or failure. Used only by the deduplicator to know when to remove this
// digest from the in-flight map.
func (h *FetchHandle) awaitDone() {
	h.stream.HashValid()
}
