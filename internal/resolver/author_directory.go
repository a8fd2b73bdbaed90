package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AuthorDirectory resolves the best-effort resolveAuthorServers(pubkey)
// collaborator: one HTTP GET per configured relay, first well-formed
// response per relay wins, no retries, relay failures are tolerated.
type AuthorDirectory struct {
	relays     []string
	httpClient *http.Client
	logger     *slog.Logger
}

// authorServerList is the small document a relay is expected to answer
// with: a flat list of server URLs that host blobs for a given pubkey.
type authorServerList struct {
	Servers []string `json:"servers"`
}

// NewAuthorDirectory constructs an AuthorDirectory. relays may be empty.
func NewAuthorDirectory(relays []string, timeout time.Duration, logger *slog.Logger) *AuthorDirectory {
	return &AuthorDirectory{
		relays:     relays,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ResolveAuthorServers queries every configured relay for pubkey's server
// list and returns the union of URLs found. A relay that errors, times
// out, or returns a malformed document is skipped and logged, never
// failing the overall call.
func (a *AuthorDirectory) ResolveAuthorServers(ctx context.Context, pubkey string) ([]string, error) {
	if len(a.relays) == 0 {
		return nil, nil
	}

	var result []string
	for _, relay := range a.relays {
		urls, err := a.queryRelay(ctx, relay, pubkey)
		if err != nil {
			a.logger.Warn("author directory: relay query failed", "relay", relay, "pubkey", pubkey, "error", err)
			continue
		}
		result = append(result, urls...)
	}
	return result, nil
}

func (a *AuthorDirectory) queryRelay(ctx context.Context, relay, pubkey string) ([]string, error) {
	endpoint := strings.TrimSuffix(relay, "/") + "/servers/" + url.PathEscape(pubkey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay returned status %d", resp.StatusCode)
	}

	var list authorServerList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding server list: %w", err)
	}

	return list.Servers, nil
}
