package jobserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CCSDForge/episciences-front-next-sub002/internal/rebuild"
	"github.com/CCSDForge/episciences-front-next-sub002/internal/store"
	"github.com/CCSDForge/episciences-front-next-sub002/internal/ws"
)

// Submitter hands jobs to the worker pool and waits for completion.
type Submitter interface {
	Submit(ctx context.Context, d rebuild.Descriptor, emit rebuild.Emitter) (rebuild.Result, error)
}

// JobHistory is the optional persistence of job outcomes.
type JobHistory interface {
	CreateJob(ctx context.Context, job store.JobRecord) error
	FinishJob(ctx context.Context, id, phase string, exitCode int, outputPath, errMsg string, finishedAt time.Time) error
	GetJob(ctx context.Context, id string) (*store.JobRecord, error)
}

// Router wires the rebuild job server's HTTP endpoints.
type Router struct {
	mux            *http.ServeMux
	logger         *slog.Logger
	queue          Submitter
	jobLog         *JobLog
	hub            *ws.Hub
	history        JobHistory
	deploy         *DeployRunner
	defaultJournal string
	authToken      string
	upgrader       websocket.Upgrader

	metricsOnce        sync.Once
	metricsInitialized bool
	buildsTotal        *prometheus.CounterVec
	buildDuration      *prometheus.HistogramVec
}

// NewRouter assembles routes with dependencies. history may be nil
// when no database is configured; deploy may be nil when no deploy
// command is configured.
func NewRouter(logger *slog.Logger, queue Submitter, jobLog *JobLog, hub *ws.Hub, history JobHistory, deploy *DeployRunner, defaultJournal, authToken string) *Router {
	r := &Router{
		mux:            http.NewServeMux(),
		logger:         logger,
		queue:          queue,
		jobLog:         jobLog,
		hub:            hub,
		history:        history,
		deploy:         deploy,
		defaultJournal: defaultJournal,
		authToken:      strings.TrimSpace(authToken),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	r.initMetrics()
	r.routes()
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) routes() {
	r.mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	r.mux.HandleFunc("/health", r.handleHealth)
	r.mux.HandleFunc("/rebuild-article", r.requireToken(r.handleRebuildArticle))
	r.mux.HandleFunc("/rebuild", r.requireToken(r.handleRebuild))
	r.mux.HandleFunc("/jobs/", r.requireToken(r.handleGetJob))
	r.mux.HandleFunc("/ws/logs", r.handleLogsWS)
}

// requireToken enforces the shared-secret header when configured.
func (r *Router) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.authToken != "" {
			provided := strings.TrimSpace(req.Header.Get("x-rebuild-token"))
			if subtle.ConstantTimeCompare([]byte(provided), []byte(r.authToken)) != 1 {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
		}
		next(w, req)
	}
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRebuildArticle is the editorial webhook target: rebuild one
// article for the default (or named) journal and answer synchronously.
func (r *Router) handleRebuildArticle(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload struct {
		ArticleID string `json:"articleId"`
		JournalID string `json:"journalId"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.ArticleID) == "" {
		writeError(w, http.StatusBadRequest, "articleId is required")
		return
	}
	journal := strings.TrimSpace(payload.JournalID)
	if journal == "" {
		journal = r.defaultJournal
	}
	r.runJob(w, req, rebuild.Descriptor{
		Journal: journal,
		Kind:    rebuild.KindArticle,
		ID:      strings.TrimSpace(payload.ArticleID),
	})
}

// handleRebuild is the generic form accepting every resource kind.
func (r *Router) handleRebuild(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload struct {
		JournalID string `json:"journalId"`
		Type      string `json:"type"`
		ID        string `json:"id"`
		Page      string `json:"page"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	kind, err := rebuild.ParseKind(payload.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	journal := strings.TrimSpace(payload.JournalID)
	if journal == "" {
		journal = r.defaultJournal
	}
	desc := rebuild.Descriptor{
		Journal:  journal,
		Kind:     kind,
		ID:       strings.TrimSpace(payload.ID),
		PageName: strings.TrimSpace(payload.Page),
	}
	if err := desc.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	r.runJob(w, req, desc)
}

// runJob drives one rebuild through the queue and reports the outcome.
func (r *Router) runJob(w http.ResponseWriter, req *http.Request, desc rebuild.Descriptor) {
	emitters := []rebuild.Emitter{r.hubEmitter(), r.historyEmitter(req.Context(), desc)}
	if r.jobLog != nil {
		emitters = append(emitters, r.jobLog.Emitter())
	}

	started := time.Now()
	result, err := r.queue.Submit(req.Context(), desc, rebuild.MultiEmitter(emitters...))
	if err != nil {
		r.logger.Error("rebuild submission failed", "resource", desc.Label(), "error", err)
		writeError(w, http.StatusServiceUnavailable, "rebuild queue unavailable")
		return
	}
	duration := time.Since(started)

	if result.Err != nil {
		r.recordBuild(desc.Journal, string(desc.Kind), "failed", duration)
		r.logger.Error("rebuild failed", "job_id", result.JobID, "resource", desc.Label(), "error", result.Err)
		writeError(w, http.StatusInternalServerError, "build failed: "+result.Err.Error())
		return
	}

	if r.deploy != nil {
		if err := r.deploy.Run(req.Context(), result.OutputPath); err != nil {
			r.recordBuild(desc.Journal, string(desc.Kind), "deploy_failed", duration)
			writeError(w, http.StatusInternalServerError, "deploy failed: "+err.Error())
			return
		}
	}

	r.recordBuild(desc.Journal, string(desc.Kind), "succeeded", duration)
	r.logger.Info("rebuild completed", "job_id", result.JobID, "resource", desc.Label(), "duration", duration)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "build completed for " + desc.Label(),
		"jobId":      result.JobID,
		"outputPath": result.OutputPath,
		"logs":       strings.Join(result.Output, "\n"),
	})
}

// hubEmitter relays executor events to websocket subscribers. A
// terminal event is the last thing a job's stream carries, so the
// subscribers are closed once it has been delivered.
func (r *Router) hubEmitter() rebuild.Emitter {
	if r.hub == nil {
		return rebuild.EmitterFunc(func(rebuild.Event) {})
	}
	return rebuild.EmitterFunc(func(e rebuild.Event) {
		payload, err := json.Marshal(e)
		if err != nil {
			return
		}
		r.hub.Broadcast(e.JobID, payload)
		switch e.Type {
		case rebuild.TypeBuildSuccess, rebuild.TypeBuildFailed, rebuild.TypeProcessError:
			r.hub.Finish(e.JobID)
		}
	})
}

// historyEmitter persists job creation and terminal outcomes. The
// descriptor supplies what the events themselves do not carry: the
// resource the job rebuilds.
func (r *Router) historyEmitter(ctx context.Context, desc rebuild.Descriptor) rebuild.Emitter {
	if r.history == nil {
		return rebuild.EmitterFunc(func(rebuild.Event) {})
	}
	ctx = context.WithoutCancel(ctx)
	var created sync.Map
	return rebuild.EmitterFunc(func(e rebuild.Event) {
		switch e.Type {
		case rebuild.TypePhase:
			if _, seen := created.LoadOrStore(e.JobID, true); seen {
				return
			}
			err := r.history.CreateJob(ctx, store.JobRecord{
				ID:         e.JobID,
				Journal:    e.Journal,
				Kind:       string(desc.Kind),
				ResourceID: desc.ID,
				PageName:   desc.PageName,
				Phase:      string(e.Phase),
				StartedAt:  e.Timestamp,
			})
			if err != nil {
				r.logger.Warn("job history insert failed", "job_id", e.JobID, "error", err)
			}
		case rebuild.TypeBuildSuccess, rebuild.TypeBuildFailed, rebuild.TypeProcessError:
			exitCode := 0
			if e.ExitCode != nil {
				exitCode = *e.ExitCode
			}
			errMsg := ""
			if e.Type != rebuild.TypeBuildSuccess {
				errMsg = e.Message
			}
			err := r.history.FinishJob(ctx, e.JobID, string(e.Phase), exitCode, e.OutputPath, errMsg, e.Timestamp)
			if err != nil {
				r.logger.Warn("job history update failed", "job_id", e.JobID, "error", err)
			}
		}
	})
}

// handleGetJob serves a persisted job record.
func (r *Router) handleGetJob(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if r.history == nil {
		writeError(w, http.StatusNotFound, "job history not configured")
		return
	}
	id := strings.TrimPrefix(req.URL.Path, "/jobs/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}
	job, err := r.history.GetJob(req.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "job lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleLogsWS streams a job's structured events.
func (r *Router) handleLogsWS(w http.ResponseWriter, req *http.Request) {
	jobID := strings.TrimSpace(req.URL.Query().Get("job_id"))
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusNotFound, "log streaming not configured")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(jobID, client)
	defer r.hub.Unregister(jobID, client)

	// Hold the connection open until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
