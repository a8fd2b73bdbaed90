package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"blobcache/internal/model"
)

func digestFor(content []byte) model.Digest {
	sum := sha256.Sum256(content)
	return model.Digest(hex.EncodeToString(sum[:]))
}

func TestFetchSuccess(t *testing.T) {
	content := []byte("payload bytes")
	d := digestFor(content)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+d.String() {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write(content)
	}))
	defer srv.Close()

	f := New(5*time.Second, 5)
	resp, err := f.Fetch(context.Background(), srv.URL, d, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer resp.Body.Close()

	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("expected body %q, got %q", content, got)
	}
}

func TestFetch404IsFailure(t *testing.T) {
	d := digestFor([]byte("anything"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(5*time.Second, 5)
	if _, err := f.Fetch(context.Background(), srv.URL, d, ""); err == nil {
		t.Fatal("expected error on 404")
	}
}

func TestFetchFollowsRedirectToMatchingDigest(t *testing.T) {
	content := []byte("redirected payload")
	d := digestFor(content)

	mux := http.NewServeMux()
	mux.HandleFunc("/old/"+d.String(), func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/"+d.String(), http.StatusFound)
	})
	mux.HandleFunc("/"+d.String(), func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := New(5*time.Second, 5)
	resp, err := f.Fetch(context.Background(), srv.URL+"/old", d, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer resp.Body.Close()

	got, _ := io.ReadAll(resp.Body)
	if string(got) != string(content) {
		t.Errorf("expected %q, got %q", content, got)
	}
}

func TestFetchRejectsRedirectNotContainingDigest(t *testing.T) {
	d := digestFor([]byte("x"))
	otherDigest := digestFor([]byte("y"))

	mux := http.NewServeMux()
	mux.HandleFunc("/"+d.String(), func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/"+otherDigest.String(), http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := New(5*time.Second, 5)
	if _, err := f.Fetch(context.Background(), srv.URL, d, ""); err == nil {
		t.Fatal("expected redirect to a non-matching target to be rejected")
	}
}
