package dedup

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"blobcache/internal/hashstream"
	"blobcache/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type readCloser struct {
	io.Reader
}

func (readCloser) Close() error { return nil }

func TestGetOrCreateDedupesConcurrentCallers(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("x"), 64*1024)
	d := model.Digest("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	var produceCalls int32

	dd := New()

	produce := func() (*ProduceResult, error) {
		atomic.AddInt32(&produceCalls, 1)
		// Slow upstream: small sleep lets concurrent callers pile up
		// before the fetch has finished producing its first bytes.
		time.Sleep(20 * time.Millisecond)
		upstream := readCloser{bytes.NewReader(content)}
		stream := hashstream.New(discardLogger(), d,
			filepath.Join(dir, ".tmp-x"), filepath.Join(dir, d.String()), upstream)
		return &ProduceResult{Stream: stream, ContentLength: int64(len(content))}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := dd.GetOrCreate(d, produce)
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			got, err := io.ReadAll(h.NewReader())
			if err != nil {
				t.Errorf("reading subscriber branch: %v", err)
				return
			}
			results[i] = got
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&produceCalls); got != 1 {
		t.Errorf("expected exactly one produce call, got %d", got)
	}
	for i, r := range results {
		if !bytes.Equal(r, content) {
			t.Errorf("caller %d got mismatched bytes (len %d want %d)", i, len(r), len(content))
		}
	}
}

func TestGetOrCreateRemovesEntryAfterSettling(t *testing.T) {
	dir := t.TempDir()
	content := []byte("small payload")
	d := model.Digest("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	dd := New()
	produce := func() (*ProduceResult, error) {
		upstream := readCloser{bytes.NewReader(content)}
		stream := hashstream.New(discardLogger(), d,
			filepath.Join(dir, ".tmp-y"), filepath.Join(dir, d.String()), upstream)
		return &ProduceResult{Stream: stream, ContentLength: int64(len(content))}, nil
	}

	h, err := dd.GetOrCreate(d, produce)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	io.ReadAll(h.NewReader())
	h.HashValid() // blocks until settled

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := dd.existing(d); !ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("expected digest to be removed from the in-flight map after settling")
}
