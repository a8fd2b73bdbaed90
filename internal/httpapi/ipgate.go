package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// parseAllowedRanges turns a list of bare IPs or CIDR ranges into
// matchable networks. A bare IP is treated as a /32 (or /128 for IPv6).
func parseAllowedRanges(raw []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(raw))
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
			}
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP %q", entry)
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets, nil
}

// allowedSource reports whether r's remote address falls within one of
// the configured upload/delete IP ranges.
func (h *Handler) allowedSource(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range h.allowedUploadRanges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
