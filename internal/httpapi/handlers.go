package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rulewise/rulewise/internal/cache"
	"github.com/rulewise/rulewise/internal/errs"
	"github.com/rulewise/rulewise/internal/synthesizer"
)

type askRequest struct {
	GameID string `json:"gameId"`
	Query  string `json:"query"`
}

type askMetadata struct {
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason"`
}

type askResponse struct {
	Answer           string                 `json:"answer"`
	Sources          []synthesizer.Citation `json:"sources"`
	PromptTokens     int                    `json:"promptTokens"`
	CompletionTokens int                    `json:"completionTokens"`
	TotalTokens      int                    `json:"totalTokens"`
	Confidence       float64                `json:"confidence"`
	Metadata         askMetadata            `json:"metadata"`
}

func newAskResponse(a *synthesizer.Answer) askResponse {
	sources := a.Citations
	if sources == nil {
		sources = []synthesizer.Citation{}
	}
	return askResponse{
		Answer:           a.Text,
		Sources:          sources,
		PromptTokens:     a.PromptTokens,
		CompletionTokens: a.CompletionTokens,
		TotalTokens:      a.PromptTokens + a.CompletionTokens,
		Confidence:       a.Confidence,
		Metadata:         askMetadata{Model: a.Model, FinishReason: a.FinishReason},
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Validation("request body must be JSON with gameId and query"))
		return
	}

	caller, _ := s.caller(r)
	answer, decision, err := s.engine.Ask(r.Context(), caller, req.GameID, req.Query)
	writeRateHeaders(w, decision)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newAskResponse(answer))
}

func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Validation("request body must be JSON with gameId and query"))
		return
	}

	caller, _ := s.caller(r)
	events, decision, err := s.engine.AskStream(r.Context(), caller, req.GameID, req.Query)
	writeRateHeaders(w, decision)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.streamEvents(w, r, events)
}

func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")
	result, err := s.pipeline.IndexDocument(r.Context(), documentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type invalidateResponse struct {
	GameID  string `json:"gameId"`
	Deleted int64  `json:"deleted"`
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("gameId")
	deleted, err := s.cache.Invalidate(r.Context(), gameID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, invalidateResponse{GameID: gameID, Deleted: deleted})
}

type cacheStatsResponse struct {
	GameID string        `json:"gameId"`
	Stats  []cache.Stats `json:"stats"`
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	if gameID == "" {
		s.writeError(w, errs.Validation("gameId query parameter is required"))
		return
	}

	stats, err := s.cache.StatsByGame(r.Context(), gameID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if stats == nil {
		stats = []cache.Stats{}
	}
	s.writeJSON(w, http.StatusOK, cacheStatsResponse{GameID: gameID, Stats: stats})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.state != nil {
		if err := s.state.Health(r.Context()); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
