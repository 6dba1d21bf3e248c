package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

// OpportunityView defines the engine read access that the opportunity handler
// requires.
type OpportunityView interface {
	ActiveOpportunities() []domain.Opportunity
}

// OpportunityHandler serves the active-opportunity endpoints.
type OpportunityHandler struct {
	engine OpportunityView
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler with the given view and
// logger.
func NewOpportunityHandler(engine OpportunityView, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{
		engine: engine,
		logger: logger,
	}
}

// listOpportunitiesResponse wraps the list opportunities response.
type listOpportunitiesResponse struct {
	Opportunities []domain.Opportunity `json:"opportunities"`
}

// ListActive returns the active opportunities, most profitable first. By
// default the whole active set is returned; limit truncates it.
// GET /api/v1/opportunities?limit=20
func (h *OpportunityHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	opps := h.engine.ActiveOpportunities()

	if limit := parseLimit(r, 0, 500); limit > 0 && len(opps) > limit {
		opps = opps[:limit]
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}

	writeJSON(w, http.StatusOK, listOpportunitiesResponse{Opportunities: opps})
}
