package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

// StatsView defines the engine read access that the stats handler requires.
type StatsView interface {
	Stats() domain.EngineStats
}

// StatsHandler serves the engine statistics endpoint.
type StatsHandler struct {
	engine StatsView
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler with the given view and logger.
func NewStatsHandler(engine StatsView, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		engine: engine,
		logger: logger,
	}
}

// GetStats reports engine counters, throughput, and per-source breakdowns.
// GET /api/v1/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats())
}
