package gateway

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CCSDForge/episciences-front-next-sub002/internal/proxy"
	"github.com/CCSDForge/episciences-front-next-sub002/internal/revalidate"
	"github.com/CCSDForge/episciences-front-next-sub002/internal/tenant"
)

// Router is the edge entry point: it mounts the control-plane API
// routes and sends everything else through tenant rewriting into the
// renderer.
type Router struct {
	mux    *http.ServeMux
	logger *slog.Logger

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
}

// NewRouter assembles the gateway routes.
func NewRouter(
	logger *slog.Logger,
	resolver *tenant.Resolver,
	strict bool,
	rendererURL *url.URL,
	revalidateHandler *revalidate.Handler,
	pdfRelay *proxy.PDFRelay,
	apiRelay *proxy.APIRelay,
) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
	r.initMetrics()

	renderer := httputil.NewSingleHostReverseProxy(rendererURL)
	renderer.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
		logger.Error("renderer unreachable", "path", req.URL.Path, "error", err)
		http.Error(w, "upstream renderer unavailable", http.StatusBadGateway)
	}
	rewriter := NewRewriter(resolver, strict, logger, renderer)

	r.mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	r.mux.HandleFunc("/healthz", r.handleHealthz)
	r.mux.Handle("/api/revalidate", r.instrument("/api/revalidate", revalidateHandler))
	r.mux.Handle("/api/pdf-proxy", r.instrument("/api/pdf-proxy", pdfRelay))
	r.mux.Handle("/api/proxy/", r.instrument("/api/proxy", apiRelay))
	r.mux.Handle("/", r.instrument("renderer", rewriter))
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
