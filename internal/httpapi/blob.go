package httpapi

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"

	"blobcache/internal/dedup"
	"blobcache/internal/model"
)

// handleBlob implements GET/HEAD /<64hex>[.ext] per §4.6.
func (h *Handler) handleBlob(w http.ResponseWriter, r *http.Request) {
	req, err := model.NewParsedRequest(r.PathValue("digest"), r.URL.Query())
	if err != nil {
		WriteError(w, BadRequest("Invalid digest"))
		return
	}

	etag := req.Digest.ETag()
	ifNoneMatch := r.Header.Get("If-None-Match")
	rangeHeader := r.Header.Get("Range")

	if rangeHeader == "" && req.Digest.MatchesETag(ifNoneMatch) {
		writeNotModified(w, etag)
		return
	}

	if err := h.cache.EnsureDir(); err != nil {
		h.logger.Warn("handleBlob: failed to ensure cache directory", "error", err)
	}

	if f, size, ok := h.cache.Lookup(req.Digest); ok {
		h.serveFromFile(w, r, f, size, req.Digest, req.Ext, rangeHeader)
		return
	}

	h.serveFromMiss(w, r, req, rangeHeader)
}

// serveFromMiss drives the dedup -> resolver -> fetcher -> hashstream
// path for a request whose digest was not found in the cache.
func (h *Handler) serveFromMiss(w http.ResponseWriter, r *http.Request, req *model.ParsedRequest, rangeHeader string) {
	handle, err := h.dedup.GetOrCreate(req.Digest, h.produceFor(req))
	if err != nil {
		WriteError(w, NotFound("Blob not found"))
		return
	}

	reader := handle.NewReader()

	go func() {
		if handle.HashValid() {
			if err := h.cache.WriteAndRecord(req.Digest, handle.BytesWritten(), nil); err != nil {
				h.logger.Warn("serveFromMiss: failed to record fetched blob metadata", "digest", req.Digest, "error", err)
			}
		} else {
			h.cache.Delete(req.Digest)
		}
	}()

	contentType := handle.ContentType()
	if contentType == "" {
		contentType = contentTypeForExt(req.Ext)
	}
	length := handle.ContentLength()

	switch {
	case r.Method == http.MethodHead:
		go io.Copy(io.Discard, reader)
		writeBlobHeaders(w, req.Digest, contentType, length)
		w.WriteHeader(http.StatusOK)

	case rangeHeader == "" || length < 0:
		writeBlobHeaders(w, req.Digest, contentType, length)
		w.WriteHeader(http.StatusOK)
		io.Copy(w, reader)

	default:
		start, end, err := parseRange(rangeHeader, length)
		if err != nil {
			WriteError(w, RangeNotSatisfiable("Range not satisfiable"))
			go io.Copy(io.Discard, reader)
			return
		}
		writeRangeHeaders(w, req.Digest, contentType, start, end, length)
		w.WriteHeader(http.StatusPartialContent)
		io.Copy(w, sliceRange(reader, start, end))
	}
}

// produceFor builds the one-shot fetch factory for req: try each
// candidate server in order, returning the first that answers, wiring
// its body through the hash/cache tee.
func (h *Handler) produceFor(req *model.ParsedRequest) dedup.ProduceFunc {
	return func() (*dedup.ProduceResult, error) {
		ctx := context.Background()
		candidates := h.resolver.Resolve(ctx, req)

		var lastErr error
		for _, candidate := range candidates {
			resp, err := h.fetcher.Fetch(ctx, candidate.URL, req.Digest, req.Ext)
			if err != nil {
				lastErr = err
				continue
			}
			stream := newHashStream(h.cache, h.logger, req.Digest, resp.Body)
			return &dedup.ProduceResult{
				Stream:        stream,
				ContentType:   resp.ContentType,
				ContentLength: resp.ContentLength,
			}, nil
		}
		if lastErr == nil {
			lastErr = errNoCandidates
		}
		return nil, lastErr
	}
}

// serveFromFile implements §4.6.1 for a cache hit: a plain os.File
// supports random access directly, so no streaming tee is needed.
func (h *Handler) serveFromFile(w http.ResponseWriter, r *http.Request, f *os.File, size int64, d model.Digest, ext, rangeHeader string) {
	defer f.Close()

	contentType := contentTypeForExt(ext)

	if r.Method == http.MethodHead {
		writeBlobHeaders(w, d, contentType, size)
		w.WriteHeader(http.StatusOK)
		return
	}

	if rangeHeader == "" {
		writeBlobHeaders(w, d, contentType, size)
		w.WriteHeader(http.StatusOK)
		io.Copy(w, f)
		return
	}

	start, end, err := parseRange(rangeHeader, size)
	if err != nil {
		WriteError(w, RangeNotSatisfiable("Range not satisfiable"))
		return
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		WriteError(w, Internal("Internal error"))
		return
	}

	writeRangeHeaders(w, d, contentType, start, end, size)
	w.WriteHeader(http.StatusPartialContent)
	io.CopyN(w, f, end-start+1)
}

func writeNotModified(w http.ResponseWriter, etag string) {
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", cacheControlImmutable)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusNotModified)
}

func writeBlobHeaders(w http.ResponseWriter, d model.Digest, contentType string, length int64) {
	w.Header().Set("Content-Type", contentType)
	if length >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("ETag", d.ETag())
	w.Header().Set("Cache-Control", cacheControlImmutable)
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

func writeRangeHeaders(w http.ResponseWriter, d model.Digest, contentType string, start, end, total int64) {
	writeBlobHeaders(w, d, contentType, end-start+1)
	w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.FormatInt(total, 10))
}
