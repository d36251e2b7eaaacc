package proxy

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"log/slog"
)

// JournalParam is the primary query parameter naming the tenant on
// relayed API calls, with JournalParamAlt and JournalHeader as
// fallbacks in that order.
const (
	JournalParam    = "rvcode"
	JournalParamAlt = "journal"
	JournalHeader   = "x-journal-code"
)

// APIRelay forwards path-suffixed requests to the content API with the
// tenant resolved from the request, so browser code never needs the
// backend origin or the journal wiring.
type APIRelay struct {
	baseURL        string
	defaultJournal string
	client         *http.Client
	logger         *slog.Logger
}

// NewAPIRelay constructs the relay over the content API root.
func NewAPIRelay(baseURL, defaultJournal string, logger *slog.Logger) *APIRelay {
	return &APIRelay{
		baseURL:        strings.TrimRight(baseURL, "/"),
		defaultJournal: defaultJournal,
		client:         &http.Client{Timeout: 30 * time.Second},
		logger:         logger,
	}
}

// ServeHTTP handles GET|POST /api/proxy/{path...}. The suffix after
// the mount point is appended to the backend root.
func (p *APIRelay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet && req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	suffix := strings.TrimPrefix(req.URL.Path, "/api/proxy")
	suffix = strings.TrimPrefix(suffix, "/")

	journal := p.resolveJournal(req)
	target, err := url.Parse(p.baseURL + "/" + suffix)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proxy path")
		return
	}

	query := url.Values{}
	for key, values := range req.URL.Query() {
		if key == JournalParam || key == JournalParamAlt {
			continue
		}
		for _, v := range values {
			query.Add(key, v)
		}
	}
	query.Set(JournalParam, journal)
	target.RawQuery = query.Encode()

	upstream, err := http.NewRequestWithContext(req.Context(), req.Method, target.String(), req.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proxy request")
		return
	}
	if accept := req.Header.Get("Accept"); accept != "" {
		upstream.Header.Set("Accept", accept)
	}
	if contentType := req.Header.Get("Content-Type"); contentType != "" {
		upstream.Header.Set("Content-Type", contentType)
	}

	resp, err := p.client.Do(upstream)
	if err != nil {
		p.logger.Error("api relay upstream failure", "journal", journal, "path", suffix, "error", err)
		writeError(w, http.StatusBadGateway, "backend unreachable")
		return
	}
	defer resp.Body.Close()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Warn("api relay stream interrupted", "journal", journal, "error", err)
	}
}

// resolveJournal picks the tenant from query, alternate query, or
// header, in that priority order, defaulting when none is given.
func (p *APIRelay) resolveJournal(req *http.Request) string {
	if code := strings.TrimSpace(req.URL.Query().Get(JournalParam)); code != "" {
		return code
	}
	if code := strings.TrimSpace(req.URL.Query().Get(JournalParamAlt)); code != "" {
		return code
	}
	if code := strings.TrimSpace(req.Header.Get(JournalHeader)); code != "" {
		return code
	}
	return p.defaultJournal
}
