package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"log/slog"
)

var filenameSanitizer = regexp.MustCompile(`[^\w\s.-]`)

// PDFRelay streams externally hosted documents through the gateway so
// rendered pages never expose third-party hosts directly. Domain
// restricted and rate limited per client IP.
type PDFRelay struct {
	allow   *Allowlist
	limiter RateLimiter
	limit   int
	window  time.Duration
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// NewPDFRelay constructs the relay. limit/window default to 30 per
// minute, timeout to 15 seconds.
func NewPDFRelay(allow *Allowlist, limiter RateLimiter, limit int, window, timeout time.Duration, logger *slog.Logger) *PDFRelay {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PDFRelay{
		allow:   allow,
		limiter: limiter,
		limit:   limit,
		window:  window,
		timeout: timeout,
		client:  &http.Client{},
		logger:  logger,
	}
}

// ServeHTTP handles GET /api/pdf-proxy?url=&disposition=&filename=.
func (p *PDFRelay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ip := ClientIP(req)
	if p.limiter != nil {
		decision := p.limiter.Allow("pdf:"+ip, p.limit, p.window)
		if !decision.Allowed {
			p.logger.Warn("pdf relay rate limited", "ip", ip, "count", decision.Count)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	rawURL := strings.TrimSpace(req.URL.Query().Get("url"))
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "url parameter is required")
		return
	}
	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		writeError(w, http.StatusBadRequest, "invalid url parameter")
		return
	}
	if !p.allow.Allows(target.Hostname()) {
		p.logger.Warn("pdf relay domain rejected", "host", target.Hostname(), "ip", ip)
		writeError(w, http.StatusForbidden, "domain not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), p.timeout)
	defer cancel()

	upstream, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url parameter")
		return
	}
	resp, err := p.client.Do(upstream)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "upstream timeout")
			return
		}
		p.logger.Error("pdf relay upstream failure", "host", target.Hostname(), "error", err)
		writeError(w, http.StatusInternalServerError, "upstream fetch failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeError(w, resp.StatusCode, "upstream returned an error")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", contentDisposition(
		req.URL.Query().Get("disposition"),
		req.URL.Query().Get("filename"),
	))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Warn("pdf relay stream interrupted", "host", target.Hostname(), "error", err)
	}
}

// contentDisposition builds a disposition header with a sanitized
// filename: everything outside [\w\s.-] is stripped.
func contentDisposition(disposition, filename string) string {
	if disposition != "attachment" {
		disposition = "inline"
	}
	name := SanitizeFilename(filename)
	if name == "" {
		name = "document.pdf"
	}
	return disposition + `; filename="` + name + `"`
}

// SanitizeFilename strips path-traversal and header-injection
// characters from a caller-provided filename.
func SanitizeFilename(name string) string {
	return strings.TrimSpace(filenameSanitizer.ReplaceAllString(name, ""))
}
