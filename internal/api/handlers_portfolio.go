package api

import (
	"net/http"
	"strconv"

	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/models"
)

const defaultHistoryLimit = 100

// handleGetPortfolio handles GET /api/portfolios/{source}/{sourceId}.
// The portfolio is returned with its recorded purchases.
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	source, sourceID := sourceVars(r)

	portfolio, err := s.deps.Portfolios.Get(r.Context(), source, sourceID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	purchases, err := s.deps.Purchases.ListBySource(r.Context(), source, sourceID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	portfolio.Purchases = purchases

	respondJSON(w, http.StatusOK, portfolio)
}

// handleGetHistory handles GET /api/portfolios/{source}/{sourceId}/history
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		respondServiceError(w, r, apperrors.NewServiceUnavailableError("evaluation history"))
		return
	}
	source, sourceID := sourceVars(r)

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			respondServiceError(w, r, apperrors.NewInvalidParameterError("limit", "must be an integer between 1 and 1000"))
			return
		}
		limit = parsed
	}

	history, err := s.deps.History.List(r.Context(), source, sourceID, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if history == nil {
		history = []models.EvaluationSnapshot{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"source":      source,
		"sourceId":    sourceID,
		"evaluations": history,
	})
}
