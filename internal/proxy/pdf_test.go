package proxy

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestRelay(upstream *httptest.Server, timeout time.Duration) *PDFRelay {
	host := "127.0.0.1"
	if upstream != nil {
		u, _ := url.Parse(upstream.URL)
		host = u.Hostname()
	}
	return NewPDFRelay(NewAllowlist([]string{host}), nil, 30, time.Minute, timeout, testLogger())
}

func relayGet(relay *PDFRelay, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/pdf-proxy?"+query, nil)
	req.RemoteAddr = "203.0.113.9:4321"
	rec := httptest.NewRecorder()
	relay.ServeHTTP(rec, req)
	return rec
}

func TestPDFRelayStreamsDocument(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("%PDF-1.7 fake"))
	}))
	defer upstream.Close()

	relay := newTestRelay(upstream, 5*time.Second)
	rec := relayGet(relay, "url="+url.QueryEscape(upstream.URL+"/doc.pdf"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("content type forced to application/pdf, got %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `inline; filename="document.pdf"` {
		t.Fatalf("unexpected disposition: %q", got)
	}
	if rec.Body.String() != "%PDF-1.7 fake" {
		t.Fatalf("body not streamed through")
	}
}

func TestPDFRelaySanitizesFilename(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF"))
	}))
	defer upstream.Close()

	relay := newTestRelay(upstream, 5*time.Second)
	rec := relayGet(relay,
		"url="+url.QueryEscape(upstream.URL)+
			"&disposition=attachment&filename="+url.QueryEscape(`../../etc/passwd"`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.HasPrefix(disposition, "attachment; ") {
		t.Fatalf("unexpected disposition: %q", disposition)
	}
	if strings.Contains(disposition, "/") || strings.Count(disposition, `"`) != 2 {
		t.Fatalf("filename not sanitized: %q", disposition)
	}
}

func TestPDFRelayRejectsUnlistedHost(t *testing.T) {
	relay := NewPDFRelay(NewAllowlist([]string{"arxiv.org"}), nil, 30, time.Minute, time.Second, testLogger())

	rec := relayGet(relay, "url="+url.QueryEscape("https://evil.com/doc.pdf"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestPDFRelayValidatesURL(t *testing.T) {
	relay := newTestRelay(nil, time.Second)

	if rec := relayGet(relay, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing url: expected 400, got %d", rec.Code)
	}
	if rec := relayGet(relay, "url="+url.QueryEscape("ftp://arxiv.org/doc.pdf")); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad scheme: expected 400, got %d", rec.Code)
	}
}

func TestPDFRelayUpstreamTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer upstream.Close()

	relay := newTestRelay(upstream, 50*time.Millisecond)
	rec := relayGet(relay, "url="+url.QueryEscape(upstream.URL))
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
}

func TestPDFRelayForwardsUpstreamErrorStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	relay := newTestRelay(upstream, time.Second)
	rec := relayGet(relay, "url="+url.QueryEscape(upstream.URL+"/missing.pdf"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected upstream 404 forwarded, got %d", rec.Code)
	}
}

func TestPDFRelayRateLimits(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF"))
	}))
	defer upstream.Close()

	limiter := NewMemoryRateLimiter()
	defer limiter.Close()
	u, _ := url.Parse(upstream.URL)
	relay := NewPDFRelay(NewAllowlist([]string{u.Hostname()}), limiter, 2, time.Minute, time.Second, testLogger())

	query := "url=" + url.QueryEscape(upstream.URL)
	for i := 0; i < 2; i++ {
		if rec := relayGet(relay, query); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
	if rec := relayGet(relay, query); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestPDFRelaySeparatesForwardedClients(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF"))
	}))
	defer upstream.Close()

	limiter := NewMemoryRateLimiter()
	defer limiter.Close()
	u, _ := url.Parse(upstream.URL)
	relay := NewPDFRelay(NewAllowlist([]string{u.Hostname()}), limiter, 1, time.Minute, time.Second, testLogger())

	// Both callers arrive through the same fronting proxy address.
	get := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/pdf-proxy?url="+url.QueryEscape(upstream.URL), nil)
		req.RemoteAddr = "10.0.0.1:80"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		relay.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := get("203.0.113.9"); code != http.StatusOK {
		t.Fatalf("first client: expected 200, got %d", code)
	}
	if code := get("198.51.100.7"); code != http.StatusOK {
		t.Fatalf("second client must have its own window, got %d", code)
	}
	if code := get("203.0.113.9"); code != http.StatusTooManyRequests {
		t.Fatalf("first client over its limit: expected 429, got %d", code)
	}
}

func TestPDFRelayMethodNotAllowed(t *testing.T) {
	relay := newTestRelay(nil, time.Second)
	req := httptest.NewRequest(http.MethodPost, "/api/pdf-proxy", nil)
	rec := httptest.NewRecorder()
	relay.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"paper.pdf", "paper.pdf"},
		{"../../etc/passwd", "....etcpasswd"},
		{`x";evil=1`, "xevil1"},
		{"my paper (v2).pdf", "my paper v2.pdf"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Fatalf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
