package api

import (
	"net/http"

	"github.com/gorilla/mux"
	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/service"
	"github.com/portfolio-evaluator/internal/types"
)

// runResponse is the outcome of a pipeline run. Error describes why a run
// ended in any outcome other than evaluated.
type runResponse struct {
	*service.RunResult
	Error *types.ServiceError `json:"error,omitempty"`
}

// handleRunPipeline handles POST /api/pipeline/run. Every completed run
// answers 200 with its outcome; only a post that cannot be fetched is an
// error response.
func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	var req postURLRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}

	result, err := s.deps.Pipeline.Run(r.Context(), req.URL)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	response := runResponse{RunResult: result}
	if result.Err != nil {
		response.Error = apperrors.Categorize(result.Err).ToServiceError()
	}
	respondJSON(w, http.StatusOK, response)
}

// handleFetchPost handles POST /api/pipeline/fetch
func (s *Server) handleFetchPost(w http.ResponseWriter, r *http.Request) {
	var req postURLRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}

	post, err := s.deps.Pipeline.FetchAndRecord(r.Context(), req.URL)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, post)
}

// handleInterpret handles POST /api/pipeline/{source}/{sourceId}/interpret
func (s *Server) handleInterpret(w http.ResponseWriter, r *http.Request) {
	source, sourceID := sourceVars(r)

	result, err := s.deps.Pipeline.Interpret(r.Context(), source, sourceID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleRecordPurchases handles POST /api/pipeline/{source}/{sourceId}/purchases.
// The body is an interpretation, usually the one returned by the interpret endpoint.
func (s *Server) handleRecordPurchases(w http.ResponseWriter, r *http.Request) {
	source, sourceID := sourceVars(r)

	var req interpretationRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}

	post, err := s.deps.Posts.Get(r.Context(), source, sourceID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	portfolio, err := s.deps.Pipeline.RecordPurchases(r.Context(), post, req.toInterpretation())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, portfolio)
}

// handleEvaluate handles POST /api/pipeline/{source}/{sourceId}/evaluate
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	source, sourceID := sourceVars(r)

	portfolio, err := s.deps.Pipeline.Evaluate(r.Context(), source, sourceID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolio)
}

func sourceVars(r *http.Request) (string, string) {
	vars := mux.Vars(r)
	return vars["source"], vars["sourceId"]
}
