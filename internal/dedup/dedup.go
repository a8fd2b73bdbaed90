// Package dedup collapses concurrent requests for the same digest into
// a single upstream fetch, fanning its byte stream out to every
// subscriber.
package dedup

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"blobcache/internal/model"
)

// Deduplicator holds the digest-keyed map of shared in-flight fetches.
// At most one entry exists per digest at any instant.
type Deduplicator struct {
	mu       sync.Mutex
	inFlight map[model.Digest]*FetchHandle

	// sf collapses the narrow race between the miss check in GetOrCreate
	// and the insertion below it; it does not govern the handle's full
	// lifetime — inFlight does that, since singleflight.Group forgets a
	// call the moment its function returns, which happens as soon as the
	// upstream request is wired, long before the stream finishes.
	sf singleflight.Group
}

// New constructs an empty Deduplicator.
func New() *Deduplicator {
	return &Deduplicator{
		inFlight: make(map[model.Digest]*FetchHandle),
	}
}

// GetOrCreate returns the existing handle for d if a fetch is already in
// flight; otherwise it calls produce once, publishes the resulting
// handle, and removes d from the map once the fetch settles.
func (d *Deduplicator) GetOrCreate(digest model.Digest, produce ProduceFunc) (*FetchHandle, error) {
	if h, ok := d.existing(digest); ok {
		return h, nil
	}

	v, err, _ := d.sf.Do(string(digest), func() (interface{}, error) {
		if h, ok := d.existing(digest); ok {
			return h, nil
		}

		result, err := produce()
		if err != nil {
			return nil, err
		}

		handle := newFetchHandle(result)

		d.mu.Lock()
		d.inFlight[digest] = handle
		d.mu.Unlock()

		go func() {
			handle.awaitDone()
			d.mu.Lock()
			delete(d.inFlight, digest)
			d.mu.Unlock()
		}()

		return handle, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*FetchHandle), nil
}

func (d *Deduplicator) existing(digest model.Digest) (*FetchHandle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.inFlight[digest]
	return h, ok
}
