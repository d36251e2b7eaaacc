package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

type capturedRequest struct {
	Path   string
	Query  url.Values
	Accept string
}

func newCapturingBackend(t *testing.T) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		captured.Query = r.URL.Query()
		captured.Accept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/ld+json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestAPIRelayJournalPrecedence(t *testing.T) {
	backend, captured := newCapturingBackend(t)
	relay := NewAPIRelay(backend.URL, "portal", testLogger())

	cases := []struct {
		name   string
		query  string
		header string
		want   string
	}{
		{"primary param wins", "rvcode=epijinfo&journal=jtcam", "dmtcs", "epijinfo"},
		{"alternate param", "journal=jtcam", "dmtcs", "jtcam"},
		{"header fallback", "", "dmtcs", "dmtcs"},
		{"default journal", "", "", "portal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/proxy/browse/latest?"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set(JournalHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			relay.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if got := captured.Query.Get(JournalParam); got != tc.want {
				t.Fatalf("backend received rvcode=%q, want %q", got, tc.want)
			}
			if captured.Query.Get(JournalParamAlt) != "" {
				t.Fatalf("alternate journal param must be stripped")
			}
		})
	}
}

func TestAPIRelayForwardsPathAndQuery(t *testing.T) {
	backend, captured := newCapturingBackend(t)
	relay := NewAPIRelay(backend.URL, "portal", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/proxy/papers?page=2&pagination=true", nil)
	req.Header.Set("Accept", "application/ld+json")
	rec := httptest.NewRecorder()
	relay.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured.Path != "/papers" {
		t.Fatalf("backend path = %q", captured.Path)
	}
	if captured.Query.Get("page") != "2" || captured.Query.Get("pagination") != "true" {
		t.Fatalf("client query not forwarded: %v", captured.Query)
	}
	if captured.Accept != "application/ld+json" {
		t.Fatalf("accept header not forwarded: %q", captured.Accept)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/ld+json" {
		t.Fatalf("backend content type not forwarded: %q", got)
	}
}

func TestAPIRelayUnreachableBackend(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	backend.Close()
	relay := NewAPIRelay(backend.URL, "portal", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/proxy/papers", nil)
	rec := httptest.NewRecorder()
	relay.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestAPIRelayForwardsBackendStatus(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer backend.Close()
	relay := NewAPIRelay(backend.URL, "portal", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/proxy/papers/999", nil)
	rec := httptest.NewRecorder()
	relay.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected backend 404 forwarded, got %d", rec.Code)
	}
}

func TestAPIRelayMethodNotAllowed(t *testing.T) {
	relay := NewAPIRelay("http://backend.invalid", "portal", testLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/proxy/papers/1", nil)
	rec := httptest.NewRecorder()
	relay.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
