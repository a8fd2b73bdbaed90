// Package hashstream tees an upstream byte stream into an incremental
// SHA-256 hasher and a cache file writer while still forwarding every
// byte, unchanged, to the caller. It is the single place where a pass
// over the wire simultaneously validates and persists a blob.
package hashstream

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"blobcache/internal/model"
)

// Stream is the result of wrapping an upstream reader: a readable byte
// stream plus two futures that resolve once the underlying copy finishes.
type Stream struct {
	R io.ReadCloser

	logger    *slog.Logger
	tempPath  string
	finalPath string

	done         chan struct{}
	hashValid    bool
	cacheWriten  bool
	bytesWritten int64

	mu sync.Mutex
}

// New wraps upstream U, validating its bytes against expected digest D
// while streaming them to the caller and to a cache file at finalPath
// (via tempPath, renamed into place only once the digest is confirmed).
// Returns a Stream whose R delivers every byte U produced, regardless of
// whether the digest ultimately validates.
func New(logger *slog.Logger, expected model.Digest, tempPath, finalPath string, upstream io.ReadCloser) *Stream {
	s := &Stream{
		logger:    logger,
		tempPath:  tempPath,
		finalPath: finalPath,
		done:      make(chan struct{}),
	}

	pr, pw := io.Pipe()
	s.R = pr

	go s.run(expected, upstream, pw)

	return s
}

func (s *Stream) run(expected model.Digest, upstream io.ReadCloser, pw *io.PipeWriter) {
	defer upstream.Close()

	cacheFile, err := os.Create(s.tempPath)
	if err != nil {
		s.logger.Warn("hashstream: failed to create temp cache file", "path", s.tempPath, "error", err)
		n := s.copyWithoutCache(upstream, pw)
		s.finish(false, false, n)
		return
	}

	hasher := sha256.New()
	teedToHasherAndCache := io.TeeReader(upstream, io.MultiWriter(hasher, cacheFile))

	n, copyErr := io.Copy(pw, teedToHasherAndCache)
	cacheErr := cacheFile.Close()

	if copyErr != nil {
		os.Remove(s.tempPath)
		pw.CloseWithError(fmt.Errorf("upstream stream error: %w", copyErr))
		s.finish(false, false, n)
		return
	}
	pw.Close()

	sum := hex.EncodeToString(hasher.Sum(nil))
	valid := strings.EqualFold(sum, expected.String())

	if !valid {
		os.Remove(s.tempPath)
		s.finish(false, false, n)
		return
	}

	if cacheErr != nil {
		s.logger.Warn("hashstream: failed to close cache file, discarding write", "path", s.tempPath, "error", cacheErr)
		os.Remove(s.tempPath)
		s.finish(true, false, n)
		return
	}

	if err := os.Rename(s.tempPath, s.finalPath); err != nil {
		s.logger.Warn("hashstream: failed to move cache file into place", "path", s.finalPath, "error", err)
		os.Remove(s.tempPath)
		s.finish(true, false, n)
		return
	}

	s.finish(true, true, n)
}

// copyWithoutCache is the fallback path when the temp file could not even
// be created: still stream the bytes to the client, just don't cache.
func (s *Stream) copyWithoutCache(upstream io.Reader, pw *io.PipeWriter) int64 {
	n, err := io.Copy(pw, upstream)
	if err != nil {
		pw.CloseWithError(fmt.Errorf("upstream stream error: %w", err))
		return n
	}
	pw.Close()
	return n
}

func (s *Stream) finish(hashValid, cacheWritten bool, bytesWritten int64) {
	s.mu.Lock()
	s.hashValid = hashValid
	s.cacheWriten = cacheWritten
	s.bytesWritten = bytesWritten
	s.mu.Unlock()
	close(s.done)
}

// CacheWritten blocks until the cache-write branch has finished (success
// or recoverable failure) and reports whether a file now sits at
// finalPath.
func (s *Stream) CacheWritten() bool {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheWriten
}

// HashValid blocks until validation has finished and reports whether the
// streamed bytes hashed to the expected digest. It implies CacheWritten
// has already resolved, since the hasher can only be finalized after
// every byte has flowed through it.
func (s *Stream) HashValid() bool {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hashValid
}

// BytesWritten blocks until the stream settles and returns the number of
// bytes copied from upstream, regardless of whether the hash validated.
func (s *Stream) BytesWritten() int64 {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesWritten
}
