// Package httpapi exposes the research service over HTTP: blocking and
// SSE research endpoints, session retrieval, live event streams with
// replay, health probes, and Prometheus metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/diogenes-labs/diogenes/internal/health"
	"github.com/diogenes-labs/diogenes/internal/modes"
	"github.com/diogenes-labs/diogenes/internal/orchestrator"
	"github.com/diogenes-labs/diogenes/internal/session"
	"github.com/diogenes-labs/diogenes/internal/streaming"
)

// Server wires the orchestrator and its collaborators to HTTP routes.
// sessions may be nil; the session endpoints then answer 503.
type Server struct {
	orch     *orchestrator.Orchestrator
	sessions *session.Manager
	health   *health.Manager
	streams  *streaming.Manager
	logger   *zap.Logger
}

// NewServer builds the HTTP layer.
func NewServer(orch *orchestrator.Orchestrator, sessions *session.Manager, healthMgr *health.Manager, streams *streaming.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if streams == nil {
		streams = streaming.NewManager(0, logger)
	}
	return &Server{
		orch:     orch,
		sessions: sessions,
		health:   healthMgr,
		streams:  streams,
		logger:   logger,
	}
}

// Routes returns the service mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /research", s.handleResearch)
	mux.HandleFunc("POST /research/stream", s.handleResearchStream)
	mux.HandleFunc("GET /research/{id}", s.handleGetResearch)
	mux.HandleFunc("GET /modes", s.handleModes)
	mux.HandleFunc("GET /stream/sse", s.handleSSE)
	mux.HandleFunc("GET /stream/ws", s.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// researchRequest is the body of POST /research and /research/stream.
type researchRequest struct {
	Query     string `json:"query"`
	Mode      string `json:"mode,omitempty"`
	Context   string `json:"context,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (r researchRequest) options() orchestrator.Options {
	return orchestrator.Options{
		Mode:      modes.Parse(r.Mode),
		Context:   r.Context,
		UserID:    r.UserID,
		SessionID: r.SessionID,
	}
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result := s.orch.Research(r.Context(), req.Query, req.options())
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetResearch(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "session store not configured")
		return
	}
	id := r.PathValue("id")
	sess, err := s.sessions.Get(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrSessionExpired):
		writeError(w, http.StatusGone, "session expired")
	case err != nil:
		s.logger.Error("session lookup failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session lookup failed")
	default:
		writeJSON(w, http.StatusOK, sess)
	}
}

// modeInfo is one entry of GET /modes.
type modeInfo struct {
	Mode        string `json:"mode"`
	Description string `json:"description"`
}

func (s *Server) handleModes(w http.ResponseWriter, _ *http.Request) {
	out := make([]modeInfo, 0, len(modes.All()))
	for _, m := range modes.All() {
		out = append(out, modeInfo{Mode: string(m), Description: modes.Describe(m)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	report := s.health.Check(r.Context())
	code := http.StatusOK
	if !report.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
