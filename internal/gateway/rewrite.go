package gateway

import (
	"net/http"
	"strings"

	"log/slog"

	"github.com/CCSDForge/episciences-front-next-sub002/internal/tenant"
)

// Headers set on rewritten requests so the renderer can skip its own
// tenant lookup.
const (
	HeaderJournal  = "X-Journal-Code"
	HeaderLanguage = "X-Journal-Language"
)

// Rewriter intercepts every non-asset, non-API request, resolves the
// tenant, and rewrites the path to the internal canonical form before
// handing off to the renderer. The externally visible URL never
// changes, and resolution never fails a request unless strict mode is
// enabled.
type Rewriter struct {
	resolver *tenant.Resolver
	strict   bool
	logger   *slog.Logger
	next     http.Handler
}

// NewRewriter wraps next with tenant resolution.
func NewRewriter(resolver *tenant.Resolver, strict bool, logger *slog.Logger, next http.Handler) *Rewriter {
	return &Rewriter{resolver: resolver, strict: strict, logger: logger, next: next}
}

func (rw *Rewriter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path
	if strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/sites/") || tenant.IsAsset(path) {
		rw.next.ServeHTTP(w, req)
		return
	}

	ctx := rw.resolver.Resolve(req.Host, path)
	if rw.strict && !ctx.Recognized {
		rw.logger.Warn("unknown journal rejected", "host", req.Host, "path", path)
		http.NotFound(w, req)
		return
	}

	rewritten := rw.resolver.RewritePath(ctx, path)
	clone := req.Clone(req.Context())
	clone.URL.Path = rewritten
	clone.Header.Set(HeaderJournal, ctx.Journal)
	clone.Header.Set(HeaderLanguage, ctx.Language)

	rw.logger.Info("request resolved",
		"journal", ctx.Journal, "language", ctx.Language,
		"host", ctx.Hostname, "path", path, "rewritten", rewritten)
	rw.next.ServeHTTP(w, clone)
}
