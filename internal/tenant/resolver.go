package tenant

import (
	"net"
	"path"
	"strings"
)

// Context is the per-request tenant identity. It is derived from the
// hostname and path and never persisted.
type Context struct {
	Journal  string
	Language string
	Hostname string
	// Recognized is false when the hostname named a journal that is
	// not in the registry and the fallback was substituted.
	Recognized bool
}

// Resolver derives a Context from a hostname and URL path. It performs
// no I/O and never fails: unknown journals resolve to the fallback.
type Resolver struct {
	registry         *Registry
	productionDomain string
	languages        map[string]struct{}
	defaultLanguage  string
}

// NewResolver constructs a Resolver. productionDomain is the apex
// domain whose subdomains are journal codes (e.g. "episciences.org").
func NewResolver(registry *Registry, productionDomain string, languages []string, defaultLanguage string) *Resolver {
	set := make(map[string]struct{}, len(languages))
	for _, l := range languages {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" {
			set[l] = struct{}{}
		}
	}
	return &Resolver{
		registry:         registry,
		productionDomain: strings.ToLower(strings.TrimSpace(productionDomain)),
		languages:        set,
		defaultLanguage:  defaultLanguage,
	}
}

// Resolve maps a raw hostname and path to a tenant context.
func (r *Resolver) Resolve(hostname, urlPath string) Context {
	host := normalizeHost(hostname)
	candidate := r.journalCandidate(host)

	ctx := Context{Hostname: host, Recognized: true}
	switch {
	case candidate == "":
		ctx.Journal = r.registry.Fallback()
	case r.registry.Known(candidate):
		ctx.Journal = candidate
	default:
		ctx.Journal = r.registry.Fallback()
		ctx.Recognized = false
	}

	if lang, ok := r.language(urlPath); ok {
		ctx.Language = lang
	} else {
		ctx.Language = r.defaultLanguage
	}
	return ctx
}

// RewritePath maps an external path to the internal canonical form
// "/sites/{journal}{path}". A leading language segment is preserved
// exactly as received and never inserted when absent, so the default
// language stays addressable both with and without its prefix.
func (r *Resolver) RewritePath(ctx Context, urlPath string) string {
	if urlPath == "" || urlPath == "/" {
		return "/sites/" + ctx.Journal
	}
	if !strings.HasPrefix(urlPath, "/") {
		urlPath = "/" + urlPath
	}
	return "/sites/" + ctx.Journal + urlPath
}

// journalCandidate extracts the would-be journal code from the host,
// or "" when the host carries no usable subdomain (bare loopback,
// IP addresses, single-label hosts, numeric labels).
func (r *Resolver) journalCandidate(host string) string {
	if host == "" || host == "localhost" || net.ParseIP(host) != nil {
		return ""
	}
	if host == r.productionDomain {
		return ""
	}
	if r.productionDomain != "" && strings.HasSuffix(host, "."+r.productionDomain) {
		prefix := strings.TrimSuffix(host, "."+r.productionDomain)
		if label, _, found := strings.Cut(prefix, "."); found {
			return label
		}
		return prefix
	}
	label, _, found := strings.Cut(host, ".")
	if !found || label == "" || isNumericLabel(label) {
		return ""
	}
	return label
}

// language extracts a leading accepted-language path segment.
func (r *Resolver) language(urlPath string) (string, bool) {
	trimmed := strings.TrimPrefix(urlPath, "/")
	segment, _, _ := strings.Cut(trimmed, "/")
	segment = strings.ToLower(segment)
	if _, ok := r.languages[segment]; ok {
		return segment, true
	}
	return "", false
}

// IsAsset reports whether the path names a static asset, which is
// never tenant-resolved.
func IsAsset(urlPath string) bool {
	switch strings.ToLower(path.Ext(urlPath)) {
	case ".js", ".mjs", ".css", ".map", ".json", ".ico", ".png", ".jpg", ".jpeg",
		".gif", ".svg", ".webp", ".avif", ".woff", ".woff2", ".ttf", ".otf",
		".eot", ".txt", ".xml", ".webmanifest":
		return true
	}
	return false
}

func normalizeHost(hostname string) string {
	host := strings.ToLower(strings.TrimSpace(hostname))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

func isNumericLabel(label string) bool {
	if label == "" {
		return false
	}
	for _, r := range label {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
