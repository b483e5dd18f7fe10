package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"datanav/internal/core/domain"
	"datanav/internal/core/usecase"
)

type answerRequest struct {
	Text    string         `json:"text"`
	Mode    string         `json:"mode,omitempty"`
	Filters domain.Filters `json:"filters,omitempty"`
}

type simulateRequest struct {
	Scenario      string         `json:"scenario"`
	HorizonMonths int            `json:"horizon_months"`
	Filters       domain.Filters `json:"filters,omitempty"`
}

type suggestionsResponse struct {
	Suggestions []domain.Suggestion `json:"suggestions"`
}

type statsResponse struct {
	Documents statsDocuments `json:"documents"`
}

type statsDocuments struct {
	Vector        int64 `json:"vector"`
	Keyword       int64 `json:"keyword"`
	GraphEntities int64 `json:"graph_entities"`
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json", false)
		return
	}

	started := time.Now()
	record, err := rt.answers.Answer(r.Context(), domain.Query{
		ID:           requestIDFromContext(r.Context()),
		Text:         req.Text,
		ExplicitMode: domain.Mode(req.Mode),
		Filters:      req.Filters,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordAnswerServed(rt.opts.ServiceName, string(record.ModeUsed), record.Provider, record.CacheHit, time.Since(started))
		rt.metrics.RecordAnswerQuality(rt.opts.ServiceName, len(record.Citations), len(record.UnsupportedSpans), record.PartialRetrieval)
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) simulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json", false)
		return
	}

	started := time.Now()
	result, err := rt.simulations.Simulate(r.Context(), domain.SimulationRequest{
		Scenario:      req.Scenario,
		HorizonMonths: req.HorizonMonths,
		Filters:       req.Filters,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordSimulation(rt.opts.ServiceName, req.HorizonMonths, time.Since(started))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) suggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	var mode domain.Mode
	if raw := r.URL.Query().Get("mode"); raw != "" {
		parsed, ok := domain.ParseMode(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_query", fmt.Sprintf("unknown mode %q", raw), false)
			return
		}
		mode = parsed
	}

	writeJSON(w, http.StatusOK, suggestionsResponse{Suggestions: usecase.Suggestions(mode)})
}

func (rt *Router) saveFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var fb domain.Feedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json", false)
		return
	}

	if err := rt.feedback.SaveFeedback(r.Context(), fb); err != nil {
		writeDomainError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordFeedback(rt.opts.ServiceName, fb.Rating)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) storeStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	stats, err := rt.stats.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{Documents: statsDocuments{
		Vector:        stats.VectorDocuments,
		Keyword:       stats.KeywordDocuments,
		GraphEntities: stats.GraphEntities,
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
