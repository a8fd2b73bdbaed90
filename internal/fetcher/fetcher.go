// Package fetcher issues the upstream GET for a digest against a single
// candidate server, handling scheme promotion/fallback and bounded
// manual redirect following.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"blobcache/internal/model"
)

// Response is a successful upstream fetch result.
type Response struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64 // -1 if unknown
}

// Fetcher issues the upstream GET for fetch(server, D, ext?).
type Fetcher struct {
	httpClient   *http.Client
	timeout      time.Duration
	maxRedirects int
}

// New constructs a Fetcher. The underlying http.Client never follows
// redirects automatically: the Fetcher follows them manually so it can
// enforce the "target contains D" guard on every hop.
func New(timeout time.Duration, maxRedirects int) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout:      timeout,
		maxRedirects: maxRedirects,
	}
}

// Fetch performs fetch(server, D, extension?): promotes a bare host to
// https, falling back to http on a transport error, builds the request
// URL, and follows redirects manually up to maxRedirects, rejecting any
// hop whose target does not contain D as a substring.
func (f *Fetcher) Fetch(ctx context.Context, server string, d model.Digest, extension string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	candidates := candidateURLs(server, d, extension)

	var lastErr error
	for _, url := range candidates {
		resp, err := f.fetchOne(ctx, url, d)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		var netErr net.Error
		if !errors.As(err, &netErr) {
			break
		}
	}
	return nil, lastErr
}

// candidateURLs returns the base URL(s) to try: if server already carries
// a scheme, only that one; otherwise https first, http as a fallback.
func candidateURLs(server string, d model.Digest, extension string) []string {
	path := "/" + d.String() + extension

	if strings.Contains(server, "://") {
		return []string{strings.TrimSuffix(server, "/") + path}
	}

	trimmed := strings.TrimSuffix(server, "/")
	return []string{
		"https://" + trimmed + path,
		"http://" + trimmed + path,
	}
}

func (f *Fetcher) fetchOne(ctx context.Context, url string, d model.Digest) (*Response, error) {
	for hop := 0; ; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("building request for %s: %w", url, err)
		}

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", url, err)
		}

		if isRedirect(resp.StatusCode) {
			resp.Body.Close()
			if hop >= f.maxRedirects {
				return nil, fmt.Errorf("fetching %s: exceeded %d redirects", url, f.maxRedirects)
			}
			location := resp.Header.Get("Location")
			if location == "" {
				return nil, fmt.Errorf("fetching %s: redirect with no Location header", url)
			}
			target := resolveLocation(url, location)
			if !strings.Contains(target, d.String()) {
				return nil, fmt.Errorf("fetching %s: redirect target does not contain digest, rejecting", url)
			}
			url = target
			continue
		}

		switch resp.StatusCode {
		case http.StatusOK, http.StatusPartialContent:
			return &Response{
				Body:          resp.Body,
				ContentType:   resp.Header.Get("Content-Type"),
				ContentLength: resp.ContentLength,
			}, nil
		default:
			resp.Body.Close()
			return nil, fmt.Errorf("fetching %s: upstream returned status %d", url, resp.StatusCode)
		}
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// resolveLocation resolves a possibly-relative Location header against
// the request URL it was returned for.
func resolveLocation(base, location string) string {
	if strings.Contains(location, "://") {
		return location
	}
	// Relative redirect: keep the scheme+host of base, replace the path.
	if idx := strings.Index(base, "://"); idx >= 0 {
		hostEnd := strings.IndexByte(base[idx+3:], '/')
		if hostEnd < 0 {
			return base + location
		}
		return base[:idx+3+hostEnd] + location
	}
	return location
}
