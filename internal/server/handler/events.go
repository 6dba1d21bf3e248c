package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

// EventView defines the engine read access that the event handler requires.
type EventView interface {
	Events() []domain.EventSummary
	Event(key domain.EventKey) (domain.EventSummary, error)
}

// EventHandler serves the event-group endpoints.
type EventHandler struct {
	engine EventView
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler with the given view and logger.
func NewEventHandler(engine EventView, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		engine: engine,
		logger: logger,
	}
}

// listEventsResponse wraps the list events response.
type listEventsResponse struct {
	Events []domain.EventSummary `json:"events"`
}

// ListEvents returns every live event group with its best prices, most
// recently updated first.
// GET /api/v1/events?limit=100
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events := h.engine.Events()

	if limit := parseLimit(r, 0, 1000); limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	if events == nil {
		events = []domain.EventSummary{}
	}

	writeJSON(w, http.StatusOK, listEventsResponse{Events: events})
}

// GetEvent returns one event group's detail view, including its live quotes.
// GET /api/v1/events/{key}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing event key")
		return
	}

	sum, err := h.engine.Event(domain.EventKey(key))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get event failed",
			slog.String("event_key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, sum)
}
