package model

import (
	"fmt"
	"net/url"
	"strings"
)

// ParsedRequest is produced once per blob HTTP request by parsing
// /<64hex>[.ext]?as=...&sx=....
type ParsedRequest struct {
	Digest    Digest
	Ext       string // includes leading dot, e.g. ".txt"; empty if none
	Authors   []string
	Hints     []string
}

// ParseBlobPath splits a request path of the form /<64hex>[.ext] into its
// digest and extension. The leading slash is optional.
func ParseBlobPath(path string) (Digest, string, error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return "", "", fmt.Errorf("empty blob path")
	}

	hexPart := path
	ext := ""
	if idx := strings.IndexByte(path, '.'); idx >= 0 {
		hexPart = path[:idx]
		ext = path[idx:]
	}

	d, err := ParseDigest(hexPart)
	if err != nil {
		return "", "", err
	}
	return d, ext, nil
}

// NewParsedRequest builds a ParsedRequest from a path and query values.
func NewParsedRequest(path string, query url.Values) (*ParsedRequest, error) {
	d, ext, err := ParseBlobPath(path)
	if err != nil {
		return nil, err
	}
	return &ParsedRequest{
		Digest:  d,
		Ext:     ext,
		Authors: query["as"],
		Hints:   query["sx"],
	}, nil
}

// CandidateServer is an upstream URL with an explicit scheme, ready to be
// used as a fetch target.
type CandidateServer struct {
	URL string
}

// PromoteScheme prepends https:// to a bare hostname. Hints and fallback
// URLs that already carry a scheme are returned unchanged.
func PromoteScheme(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}

// NormalizedOrigin returns scheme://host for deduplication purposes. Two
// candidate URLs with the same origin are treated as the same server.
func NormalizedOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
