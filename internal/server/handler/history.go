package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

// HistoryView defines the engine read access that the history handler
// requires. The in-memory ring is authoritative for this endpoint; the
// durable store behind it serves offline analysis only.
type HistoryView interface {
	History(limit int) []domain.HistoryEntry
}

// HistoryHandler serves the closed-opportunity history endpoint.
type HistoryHandler struct {
	engine HistoryView
	logger *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler with the given view and logger.
func NewHistoryHandler(engine HistoryView, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		engine: engine,
		logger: logger,
	}
}

// listHistoryResponse wraps the list history response.
type listHistoryResponse struct {
	History []domain.HistoryEntry `json:"history"`
}

// ListRecent returns closed opportunities, newest first.
// GET /api/v1/history?limit=50
func (h *HistoryHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)

	entries := h.engine.History(limit)
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, listHistoryResponse{History: entries})
}
