// Package httpapi exposes the question-answering pipeline over HTTP: the
// player-facing QA endpoints, the ingestion trigger, and the admin surface
// for cache control.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/rulewise/rulewise/internal/cache"
	"github.com/rulewise/rulewise/internal/config"
	"github.com/rulewise/rulewise/internal/engine"
	"github.com/rulewise/rulewise/internal/errs"
	"github.com/rulewise/rulewise/internal/indexer"
	"github.com/rulewise/rulewise/internal/ratelimit"
)

// Pinger reports health of the durable state store.
type Pinger interface {
	Health(ctx context.Context) error
}

// Server holds the handler dependencies.
type Server struct {
	engine   *engine.Engine
	pipeline *indexer.Pipeline
	cache    *cache.Cache
	state    Pinger
	keys     map[string]config.Role
	logger   *slog.Logger
}

// NewServer creates the HTTP surface. keys maps API keys to roles; callers
// presenting no key (or an unknown one) are treated as anonymous and bucketed
// by IP.
func NewServer(eng *engine.Engine, pipeline *indexer.Pipeline, responseCache *cache.Cache, state Pinger, keys map[string]config.Role, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:   eng,
		pipeline: pipeline,
		cache:    responseCache,
		state:    state,
		keys:     keys,
		logger:   logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /agents/qa", s.handleAsk)
	mux.HandleFunc("POST /agents/qa/stream", s.handleAskStream)
	mux.HandleFunc("POST /ingest/pdf/{id}/index", s.requireAdmin(s.handleIndexDocument))
	mux.HandleFunc("POST /admin/games/{gameId}/invalidate", s.requireAdmin(s.handleInvalidate))
	mux.HandleFunc("GET /admin/cache/stats", s.requireAdmin(s.handleCacheStats))
	return mux
}

// caller resolves the admission identity for a request. Known API keys map to
// their configured role; everyone else shares the anonymous tier per source
// address.
func (s *Server) caller(r *http.Request) (engine.Caller, config.Role) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		if role, ok := s.keys[key]; ok {
			return engine.Caller{Key: "user:" + key, Tier: config.TierForRole(role)}, role
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return engine.Caller{Key: "ip:" + host, Tier: config.TierForRole(config.RoleAnonymous)}, config.RoleAnonymous
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, role := s.caller(r)
		if role != config.RoleAdmin {
			s.writeError(w, errs.Forbidden("admin API key required"))
			return
		}
		next(w, r)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Writing response failed", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, errs.StatusOf(err), errorBody{
		Error: errs.MessageOf(err),
		Code:  errs.CodeOf(err),
	})
}

// writeRateHeaders reports the bucket state on every admission-checked
// response, allowed or not.
func writeRateHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	if d.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(int(d.Limit)))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(d.TokensRemaining)))
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds))
	}
}
