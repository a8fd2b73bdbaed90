// Package resolver merges request hints, author pubkey lookups and
// fallback configuration into an ordered, deduplicated candidate server
// list for a single blob request.
package resolver

import (
	"context"
	"log/slog"
	"time"

	"blobcache/internal/model"
)

// Resolver implements resolve(parsed_request).
type Resolver struct {
	authorDirectory *AuthorDirectory
	fallbackServers []string
	lookupRelays    []string
	logger          *slog.Logger
}

// New constructs a Resolver. lookupRelays may be empty, in which case
// author pubkeys in the request are never looked up.
func New(lookupRelays, fallbackServers []string, authorLookupTimeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		authorDirectory: NewAuthorDirectory(lookupRelays, authorLookupTimeout, logger),
		fallbackServers: fallbackServers,
		lookupRelays:    lookupRelays,
		logger:          logger,
	}
}

// Resolve returns the ordered, deduplicated candidate server list for req:
// (a) sx hints promoted to https if schemeless, (b) author pubkey
// lookups (only if relays are configured), (c) fallback servers.
func (r *Resolver) Resolve(ctx context.Context, req *model.ParsedRequest) []model.CandidateServer {
	var ordered []string

	for _, hint := range req.Hints {
		ordered = append(ordered, model.PromoteScheme(hint))
	}

	if len(r.lookupRelays) > 0 {
		for _, pubkey := range req.Authors {
			urls, err := r.authorDirectory.ResolveAuthorServers(ctx, pubkey)
			if err != nil {
				r.logger.Warn("resolver: author server lookup failed", "pubkey", pubkey, "error", err)
				continue
			}
			ordered = append(ordered, urls...)
		}
	}

	ordered = append(ordered, r.fallbackServers...)

	deduped := dedupeByOrigin(ordered)
	candidates := make([]model.CandidateServer, len(deduped))
	for i, u := range deduped {
		candidates[i] = model.CandidateServer{URL: u}
	}
	return candidates
}

func dedupeByOrigin(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		origin := model.NormalizedOrigin(u)
		if seen[origin] {
			continue
		}
		seen[origin] = true
		out = append(out, u)
	}
	return out
}
