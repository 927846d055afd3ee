// Package api exposes agent sessions over HTTP. Each agent id owns one
// session; optional backends (Postgres snapshots, the Redis trace bus, the
// Neo4j mirror) degrade to 503 when not configured.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/internal/agent"
	"github.com/nidhogg/engram/internal/execution"
	"github.com/nidhogg/engram/internal/memory"
	"github.com/nidhogg/engram/internal/mirror"
	"github.com/nidhogg/engram/internal/provider"
	"github.com/nidhogg/engram/internal/snapshot"
	"github.com/nidhogg/engram/internal/tracebus"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	providers *provider.Router
	store     *snapshot.Store
	bus       *tracebus.Bus
	mirror    *mirror.Mirror
	snapDir   string
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*agent.Session
}

// NewHandler creates a new API handler. store, bus and mirror may be nil;
// snapDir enables file snapshots when no store is configured.
func NewHandler(
	providers *provider.Router,
	store *snapshot.Store,
	bus *tracebus.Bus,
	mir *mirror.Mirror,
	snapDir string,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		providers: providers,
		store:     store,
		bus:       bus,
		mirror:    mir,
		snapDir:   snapDir,
		logger:    logger,
		sessions:  make(map[string]*agent.Session),
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/agents", h.listAgents)
		r.Post("/agents", h.createAgent)
		r.Get("/agents/{id}", h.agentStats)

		r.Post("/agents/{id}/chat", h.chat)
		r.Post("/agents/{id}/think", h.think)
		r.Post("/agents/{id}/ingest", h.ingestEvent)
		r.Post("/agents/{id}/decay", h.decay)

		r.Post("/agents/{id}/lint", h.lint)
		r.Post("/agents/{id}/fossilize", h.fossilize)
		r.Get("/agents/{id}/history", h.history)
		r.Get("/agents/{id}/traces", h.traces)

		r.Post("/agents/{id}/snapshot", h.saveSnapshot)
		r.Post("/agents/{id}/restore", h.restoreSnapshot)
		r.Post("/agents/{id}/mirror", h.mirrorGraph)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "engine": "engram"})
}

func (h *Handler) session(id string) (*agent.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *Handler) sessionOr404(w http.ResponseWriter, r *http.Request) (string, *agent.Session, bool) {
	id := chi.URLParam(r, "id")
	s, ok := h.session(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return id, nil, false
	}
	return id, s, true
}

type createAgentRequest struct {
	AgentID string `json:"agent_id"`
}

func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.AgentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "agent_id is required"})
		return
	}

	h.mu.Lock()
	if _, ok := h.sessions[req.AgentID]; ok {
		h.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"agent_id": req.AgentID, "status": "exists"})
		return
	}
	h.sessions[req.AgentID] = agent.NewSession(h.providers, h.logger)
	h.mu.Unlock()

	h.logger.Info("agent created", zap.String("agent_id", req.AgentID))
	writeJSON(w, http.StatusCreated, map[string]string{"agent_id": req.AgentID, "status": "created"})
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	out := make(map[string]memory.MemoryStats, len(h.sessions))
	for id, s := range h.sessions {
		out[id] = s.Stats()
	}
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) agentStats(w http.ResponseWriter, r *http.Request) {
	id, s, ok := h.sessionOr404(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id": id,
		"stats":    s.Stats(),
	})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	id, s, ok := h.sessionOr404(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	before := len(s.Traces())
	response := s.Process(r.Context(), req.Message)

	if traces := s.Traces(); len(traces) > before {
		outcome := memory.OutcomeUncertain
		if history := s.History(); len(history) > 0 {
			if last := history[len(history)-1]; last.Result != nil {
				outcome = last.Result.Outcome.OutcomeType
			}
		}
		h.sinkTrace(r, id, traces[len(traces)-1], outcome)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"agent_id": id,
		"response": response,
	})
}

type thinkRequest struct {
	Goal         string  `json:"goal"`
	Domain       string  `json:"domain"`
	TimePressure float64 `json:"time_pressure"`
}

func (h *Handler) think(w http.ResponseWriter, r *http.Request) {
	id, s, ok := h.sessionOr404(w, r)
	if !ok {
		return
	}
	var req thinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Goal == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "goal is required"})
		return
	}
	if req.Domain == "" {
		req.Domain = "general"
	}

	result := s.Think(req.Goal, req.Domain, req.TimePressure)
	if traces := s.Traces(); len(traces) > 0 {
		h.sinkTrace(r, id, traces[len(traces)-1], result.Outcome.OutcomeType)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	id, s, ok := h.sessionOr404(w, r)
	if !ok {
		return
	}
	var event memory.SemanticEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(event.Atoms) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event has no atoms"})
		return
	}
	if event.Salience == 0 {
		event.Salience = 1.0
	}

	n := s.Ingest(&event)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id":  id,
		"fragments": n,
	})
}

type decayRequest struct {
	Elapsed float64 `json:"elapsed"`
}

func (h *Handler) decay(w http.ResponseWriter, r *http.Request) {
	id, s, ok := h.sessionOr404(w, r)
	if !ok {
		return
	}
	var req decayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Elapsed <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "elapsed must be positive"})
		return
	}

	s.Decay(req.Elapsed)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id": id,
		"stats":    s.Stats(),
	})
}

func (h *Handler) lint(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.sessionOr404(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Lint())
}

func (h *Handler) fossilize(w http.ResponseWriter, r *http.Request) {
	id, s, ok := h.sessionOr404(w, r)
	if !ok {
		return
	}
	report := s.Lint()
	modules := s.Fossilize(report)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id": id,
		"modules":  modules,
		"count":    len(modules),
	})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.sessionOr404(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.History())
}

func (h *Handler) traces(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.sessionOr404(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Traces())
}

func (h *Handler) saveSnapshot(w http.ResponseWriter, r *http.Request) {
	id, s, ok := h.sessionOr404(w, r)
	if !ok {
		return
	}
	switch {
	case h.store != nil:
		if err := h.store.SaveSnapshot(r.Context(), id, s.Graph()); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	case h.snapDir != "":
		if err := snapshot.SaveFile(h.snapshotPath(id), s.Graph(), h.logger); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshot storage not configured"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id": id,
		"status":   "saved",
		"stats":    s.Stats(),
	})
}

func (h *Handler) restoreSnapshot(w http.ResponseWriter, r *http.Request) {
	id, s, ok := h.sessionOr404(w, r)
	if !ok {
		return
	}

	var (
		g   *memory.Graph
		err error
	)
	switch {
	case h.store != nil:
		g, err = h.store.LoadLatest(r.Context(), id)
	case h.snapDir != "":
		g, err = snapshot.LoadFile(h.snapshotPath(id), h.logger)
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshot storage not configured"})
		return
	}
	if errors.Is(err, snapshot.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot for agent"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.WithGraph(g)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id": id,
		"status":   "restored",
		"stats":    s.Stats(),
	})
}

func (h *Handler) mirrorGraph(w http.ResponseWriter, r *http.Request) {
	id, s, ok := h.sessionOr404(w, r)
	if !ok {
		return
	}
	if h.mirror == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "mirror not configured"})
		return
	}

	g := s.Graph()
	if err := h.mirror.Export(r.Context(), id, g); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if err := h.mirror.ExportModules(r.Context(), id, g); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id": id,
		"status":   "mirrored",
		"stats":    s.Stats(),
	})
}

// DecayAll runs one decay sweep over every live session. Called by the
// server's background ticker.
func (h *Handler) DecayAll(elapsed float64) {
	h.mu.Lock()
	sessions := make([]*agent.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Decay(elapsed)
	}
}

func (h *Handler) snapshotPath(agentID string) string {
	return filepath.Join(h.snapDir, agentID+".json")
}

// sinkTrace forwards one executed trace to the configured backends. Failures
// are logged, never surfaced to the request.
func (h *Handler) sinkTrace(r *http.Request, agentID string, trace *execution.Trace, outcome memory.OutcomeType) {
	ctx := r.Context()
	if h.store != nil {
		if err := h.store.AppendTrace(ctx, agentID, trace); err != nil {
			h.logger.Warn("trace persistence failed", zap.String("agent_id", agentID), zap.Error(err))
		}
	}
	if h.bus != nil {
		err := h.bus.Publish(ctx, &tracebus.TraceEvent{
			AgentID: agentID,
			Trace:   trace,
			Outcome: outcome,
		})
		if err != nil {
			h.logger.Warn("trace publish failed", zap.String("agent_id", agentID), zap.Error(err))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
