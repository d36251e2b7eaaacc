package revalidate

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/CCSDForge/episciences-front-next-sub002/internal/proxy"
)

// TokenHeader carries the bearer-style revalidation secret.
const TokenHeader = "x-episciences-token"

// Handler authorizes and dispatches cache invalidation requests
// against the deployed artifact store.
type Handler struct {
	chain       Chain
	invalidator Invalidator
	logger      *slog.Logger
}

// NewHandler constructs the revalidation endpoint.
func NewHandler(chain Chain, invalidator Invalidator, logger *slog.Logger) *Handler {
	return &Handler{chain: chain, invalidator: invalidator, logger: logger}
}

type payload struct {
	Tag     string `json:"tag"`
	Path    string `json:"path"`
	Journal string `json:"journalId"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		h.handleCapabilities(w)
	case http.MethodPost:
		h.handleRevalidate(w, req)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCapabilities describes the endpoint. No authorization: the
// response is static and leaks no state.
func (h *Handler) handleCapabilities(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoint":    "/api/revalidate",
		"methods":     []string{"POST"},
		"body":        map[string]string{"tag": "cache tag to invalidate", "path": "page path to invalidate", "journalId": "optional journal scope"},
		"tokenHeader": TokenHeader,
	})
}

func (h *Handler) handleRevalidate(w http.ResponseWriter, req *http.Request) {
	var body payload
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	authReq := Request{
		Journal:  strings.TrimSpace(body.Journal),
		Token:    strings.TrimSpace(req.Header.Get(TokenHeader)),
		ClientIP: proxy.ClientIP(req),
	}
	decision := h.chain.Authorize(authReq)
	if !decision.Authorized {
		h.logger.Warn("revalidation rejected",
			"status", decision.Status, "ip", authReq.ClientIP, "journal", authReq.Journal)
		writeError(w, decision.Status, http.StatusText(decision.Status))
		return
	}

	response := map[string]any{
		"revalidated": true,
		"now":         time.Now().UTC().Format(time.RFC3339),
		"journalId":   decision.Scope,
	}
	switch {
	case strings.TrimSpace(body.Tag) != "":
		tag := strings.TrimSpace(body.Tag)
		if _, err := h.invalidator.InvalidateTag(req.Context(), tag); err != nil {
			h.logger.Error("tag invalidation failed", "tag", tag, "error", err)
			writeError(w, http.StatusInternalServerError, "invalidation failed")
			return
		}
		response["tag"] = tag
		h.logger.Info("cache tag invalidated", "tag", tag, "scope", decision.Scope)
	case strings.TrimSpace(body.Path) != "":
		path := strings.TrimSpace(body.Path)
		if _, err := h.invalidator.InvalidatePath(req.Context(), path); err != nil {
			h.logger.Error("path invalidation failed", "path", path, "error", err)
			writeError(w, http.StatusInternalServerError, "invalidation failed")
			return
		}
		h.logger.Info("cache path invalidated", "path", path, "scope", decision.Scope)
	default:
		writeError(w, http.StatusBadRequest, "either tag or path is required")
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
