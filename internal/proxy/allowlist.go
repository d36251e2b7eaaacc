package proxy

import "strings"

// Allowlist restricts relayed URLs to a static set of document hosts.
// A host is allowed when it equals an entry or is a subdomain of one.
type Allowlist struct {
	hosts []string
}

// NewAllowlist normalizes the entries into an Allowlist.
func NewAllowlist(hosts []string) *Allowlist {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		h = strings.TrimPrefix(h, ".")
		if h != "" {
			out = append(out, h)
		}
	}
	return &Allowlist{hosts: out}
}

// Allows reports whether host may be fetched through the relay.
func (a *Allowlist) Allows(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	for _, h := range a.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
