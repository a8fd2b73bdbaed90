package model

// CacheEntry mirrors one row of the cache_metadata table.
type CacheEntry struct {
	Digest       Digest
	LastAccessed int64 // ms since epoch
	Size         int64
	Uploaded     *int64 // seconds since epoch, nil if not an upload
}
