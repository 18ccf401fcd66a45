package security

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Allowlist is a set of permitted client networks. An empty list allows everyone.
type Allowlist []netip.Prefix

// ParseAllowlist reads a comma-separated list of CIDRs or bare addresses.
func ParseAllowlist(raw string) (Allowlist, error) {
	var out Allowlist
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if !strings.Contains(item, "/") {
			addr, err := netip.ParseAddr(item)
			if err != nil {
				return nil, fmt.Errorf("invalid allowlist entry %q: %w", item, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(item)
		if err != nil {
			return nil, fmt.Errorf("invalid allowlist entry %q: %w", item, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

// Allows reports whether the host part of addr (host or host:port) is permitted.
func (a Allowlist) Allows(addr string) bool {
	if len(a) == 0 {
		return true
	}
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	for _, p := range a {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

func IPAllowlist(allow Allowlist) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allow.Allows(r.RemoteAddr) {
				WriteJSONError(w, r, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
