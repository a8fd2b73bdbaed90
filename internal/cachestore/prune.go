package cachestore

import (
	"context"
	"errors"
	"os"
	"time"

	"blobcache/internal/model"
)

// PruneIfNeeded evicts least-recently-accessed blobs when a size ceiling
// is configured and currently exceeded. It is always called in its own
// goroutine from the write path; it never runs on the request hot path.
func (s *Store) PruneIfNeeded() {
	if s.maxSizeBytes <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	total, err := s.SizeTotal(ctx)
	if err != nil {
		s.logger.Warn("prune: failed to read total cache size, skipping", "error", err)
		return
	}
	if total <= s.maxSizeBytes {
		return
	}

	s.prune(ctx, total)
}

// prune evicts rows ordered by last_accessed ascending (ties broken by
// ascending digest) until at least current-target bytes have been freed,
// where target is 90% of the ceiling.
func (s *Store) prune(ctx context.Context, current int64) {
	s.pruneMu.Lock()
	defer s.pruneMu.Unlock()

	target := int64(float64(s.maxSizeBytes) * pruneWatermark)
	toFree := current - target
	if toFree <= 0 {
		return
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sha256, size FROM cache_metadata
		ORDER BY last_accessed ASC, sha256 ASC
	`)
	if err != nil {
		s.logger.Warn("prune: failed to enumerate cache entries, skipping", "error", err)
		return
	}

	type candidate struct {
		digest model.Digest
		size   int64
	}
	var victims []candidate
	var freed int64
	for rows.Next() {
		var digestHex string
		var size int64
		if err := rows.Scan(&digestHex, &size); err != nil {
			s.logger.Warn("prune: failed to scan cache row, skipping", "error", err)
			continue
		}
		d, err := model.ParseDigest(digestHex)
		if err != nil {
			continue
		}
		victims = append(victims, candidate{digest: d, size: size})
		freed += size
		if freed >= toFree {
			break
		}
	}
	rows.Close()

	evicted := 0
	var freedBytes int64
	for _, v := range victims {
		if s.evict(ctx, v.digest) {
			evicted++
			freedBytes += v.size
		}
	}

	s.logger.Info("pruned cache", "evicted", evicted, "freed_bytes", freedBytes, "target_bytes", target)
}

// evict removes a single blob file and its metadata row. The row is
// removed even when the file delete fails, so metadata never diverges
// from what is actually prunable.
func (s *Store) evict(ctx context.Context, d model.Digest) bool {
	if err := os.Remove(s.BlobPath(d)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("prune: failed to remove blob file, removing metadata row anyway", "digest", d, "error", err)
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_metadata WHERE sha256 = ?`, d.String())
	if err != nil {
		s.logger.Warn("prune: failed to remove metadata row", "digest", d, "error", err)
		return false
	}
	return true
}
