package hashstream

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"blobcache/internal/model"
)

type closableReader struct {
	io.Reader
}

func (c closableReader) Close() error { return nil }

func digestFor(content []byte) model.Digest {
	sum := sha256.Sum256(content)
	return model.Digest(hex.EncodeToString(sum[:]))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStreamValidatesAndCaches(t *testing.T) {
	dir := t.TempDir()
	content := []byte("hello, world\n")
	d := digestFor(content)

	finalPath := filepath.Join(dir, d.String())
	tempPath := filepath.Join(dir, ".tmp-test")

	st := New(discardLogger(), d, tempPath, finalPath, closableReader{newReader(content)})

	got, err := io.ReadAll(st.R)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("expected forwarded bytes %q, got %q", content, got)
	}

	if !st.HashValid() {
		t.Fatal("expected hash to validate")
	}
	if !st.CacheWritten() {
		t.Fatal("expected cache write to succeed")
	}

	onDisk, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("reading cached file: %v", err)
	}
	if string(onDisk) != string(content) {
		t.Errorf("cached file content mismatch: got %q", onDisk)
	}
}

func TestStreamRejectsMismatchedDigest(t *testing.T) {
	dir := t.TempDir()
	content := []byte("actual content")
	wrongDigest := digestFor([]byte("different content"))

	finalPath := filepath.Join(dir, wrongDigest.String())
	tempPath := filepath.Join(dir, ".tmp-test")

	st := New(discardLogger(), wrongDigest, tempPath, finalPath, closableReader{newReader(content)})

	got, err := io.ReadAll(st.R)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if string(got) != string(content) {
		t.Error("expected all bytes to still be forwarded to the caller despite the mismatch")
	}

	if st.HashValid() {
		t.Fatal("expected hash validation to fail")
	}
	if st.CacheWritten() {
		t.Fatal("expected cache write to be reported as not written on mismatch")
	}
	if _, err := os.Stat(finalPath); !os.IsNotExist(err) {
		t.Error("expected no file left behind on mismatch")
	}
	if _, err := os.Stat(tempPath); !os.IsNotExist(err) {
		t.Error("expected temp file to be cleaned up on mismatch")
	}
}

func newReader(b []byte) io.Reader {
	return &byteReader{data: b}
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
