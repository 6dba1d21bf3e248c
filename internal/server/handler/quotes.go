package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

// maxIngestBody caps the size of one ingest request. A full batch from a
// feed poller fits comfortably; anything larger is a misbehaving client.
const maxIngestBody = 1 << 20 // 1 MiB

// QuoteSubmitter defines the engine intake that the quote handler requires.
type QuoteSubmitter interface {
	Submit(ctx context.Context, q domain.PriceQuote) error
}

// QuoteHandler serves the quote ingest endpoint.
type QuoteHandler struct {
	engine QuoteSubmitter
	logger *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler with the given intake and logger.
func NewQuoteHandler(engine QuoteSubmitter, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{
		engine: engine,
		logger: logger,
	}
}

// rejectedQuote reports one rejected element of an ingest batch.
type rejectedQuote struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ingestResponse summarizes an ingest batch: how many quotes were queued and
// which elements were rejected.
type ingestResponse struct {
	Accepted int             `json:"accepted"`
	Rejected []rejectedQuote `json:"rejected,omitempty"`
}

// SubmitQuotes ingests a single quote object or an array of quotes. Accepted
// quotes are queued for asynchronous processing and 202 is returned; when any
// element fails validation the response is 400 with a per-index breakdown,
// and the valid elements are still queued.
// POST /api/v1/quotes
func (h *QuoteHandler) SubmitQuotes(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}

	quotes, err := decodeQuotes(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(quotes) == 0 {
		writeError(w, http.StatusBadRequest, "empty quote batch")
		return
	}

	var resp ingestResponse
	for i, q := range quotes {
		if err := h.engine.Submit(r.Context(), q); err != nil {
			if errors.Is(err, domain.ErrShutdown) {
				writeError(w, http.StatusServiceUnavailable, "engine shutting down")
				return
			}
			if errors.Is(err, domain.ErrInvalidQuote) {
				resp.Rejected = append(resp.Rejected, rejectedQuote{Index: i, Reason: err.Error()})
				continue
			}
			h.logger.ErrorContext(r.Context(), "handler: submit quote failed",
				slog.String("source", q.Source),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to queue quote")
			return
		}
		resp.Accepted++
	}

	status := http.StatusAccepted
	if len(resp.Rejected) > 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

// decodeQuotes parses the request body as either a single quote object or an
// array of quotes.
func decodeQuotes(body []byte) ([]domain.PriceQuote, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var quotes []domain.PriceQuote
		if err := json.Unmarshal(trimmed, &quotes); err != nil {
			return nil, err
		}
		return quotes, nil
	}

	var q domain.PriceQuote
	if err := json.Unmarshal(trimmed, &q); err != nil {
		return nil, err
	}
	return []domain.PriceQuote{q}, nil
}
