package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/models"
)

// handleListAssets handles GET /api/assets
func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.deps.Assets.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if assets == nil {
		assets = []*models.Asset{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"assets": assets,
		"count":  len(assets),
	})
}

// handleListPrices handles GET /api/assets/{abbreviation}/prices?name=&year=&week=&limit=
func (s *Server) handleListPrices(w http.ResponseWriter, r *http.Request) {
	abbreviation := mux.Vars(r)["abbreviation"]

	query, err := parsePriceQuery(r.URL.Query())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if !validateRequest(w, query) {
		return
	}
	if query.Week != 0 && query.Year == 0 {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("week", "requires year"))
		return
	}

	key := models.KeyOf(query.Name, abbreviation)
	points, err := s.deps.Prices.ListForAsset(r.Context(), key, query.Year, query.Limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if query.Week != 0 {
		filtered := points[:0]
		for _, p := range points {
			if p.ISOWeek == query.Week {
				filtered = append(filtered, p)
			}
		}
		points = filtered
	}
	if points == nil {
		points = []*models.PricePoint{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"asset":  key,
		"prices": points,
	})
}

func parsePriceQuery(values url.Values) (*priceQuery, error) {
	q := &priceQuery{Name: values.Get("name")}
	for param, dest := range map[string]*int{"year": &q.Year, "week": &q.Week, "limit": &q.Limit} {
		raw := values.Get(param)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, apperrors.NewInvalidParameterError(param, "must be an integer")
		}
		*dest = n
	}
	return q, nil
}

// handleSweep handles POST /api/prices/sweep
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Sweeper.RefreshCurrentWeek(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// handleBackfill handles POST /api/prices/backfill with an optional {"weeks": n} body
func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if !decodeRequest(w, r, &req, true) {
		return
	}
	weeks := req.Weeks
	if weeks == 0 {
		weeks = s.config.BackfillWeeks
	}

	report, err := s.deps.Sweeper.Backfill(r.Context(), weeks)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}
