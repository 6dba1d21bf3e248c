package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

// maxSnapshotBody caps the size of an imported snapshot file.
const maxSnapshotBody = 32 << 20 // 32 MiB

// SnapshotEngine defines the engine access that the snapshot handler
// requires: a read-side export plus the two intake paths an import uses.
type SnapshotEngine interface {
	Snapshot() domain.Snapshot
	Submit(ctx context.Context, q domain.PriceQuote) error
	ImportHistory(entries []domain.HistoryEntry) int
}

// SnapshotHandler serves snapshot export and import.
type SnapshotHandler struct {
	engine SnapshotEngine
	logger *slog.Logger
}

// NewSnapshotHandler creates a SnapshotHandler with the given engine and
// logger.
func NewSnapshotHandler(engine SnapshotEngine, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		engine: engine,
		logger: logger,
	}
}

// importResponse summarizes a snapshot import.
type importResponse struct {
	QuotesAccepted  int `json:"quotesAccepted"`
	QuotesRejected  int `json:"quotesRejected"`
	HistoryImported int `json:"historyImported"`
}

// Export returns a round-trippable export of engine state: every live quote
// plus the retained history.
// GET /api/v1/snapshot
func (h *SnapshotHandler) Export(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

// Import replays a previously exported snapshot. History entries are
// reinstated directly; quotes go through the normal validated intake, so
// stale or malformed ones are counted as rejected rather than resurrected.
// POST /api/v1/snapshot
func (h *SnapshotHandler) Import(w http.ResponseWriter, r *http.Request) {
	var snap domain.Snapshot
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSnapshotBody)).Decode(&snap); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "snapshot too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid snapshot body: "+err.Error())
		return
	}

	imported := h.engine.ImportHistory(snap.History)

	var accepted, rejected int
	for _, q := range snap.Quotes {
		if err := h.engine.Submit(r.Context(), q); err != nil {
			if errors.Is(err, domain.ErrShutdown) {
				writeError(w, http.StatusServiceUnavailable, "engine shutting down")
				return
			}
			rejected++
			continue
		}
		accepted++
	}

	h.logger.InfoContext(r.Context(), "handler: snapshot imported",
		slog.Int("quotes_accepted", accepted),
		slog.Int("quotes_rejected", rejected),
		slog.Int("history_imported", imported),
	)

	writeJSON(w, http.StatusOK, importResponse{
		QuotesAccepted:  accepted,
		QuotesRejected:  rejected,
		HistoryImported: imported,
	})
}
