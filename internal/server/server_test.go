package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/domain"
	"github.com/alanyoungcy/surebetbot/internal/server/handler"
)

type stubEngine struct {
	active []domain.Opportunity
}

func (s *stubEngine) Submit(_ context.Context, q domain.PriceQuote) error {
	if err := q.Validate(time.Now().UTC()); err != nil {
		return fmt.Errorf("engine: submit: %w", err)
	}
	return nil
}

func (s *stubEngine) ActiveOpportunities() []domain.Opportunity  { return s.active }
func (s *stubEngine) History(int) []domain.HistoryEntry          { return nil }
func (s *stubEngine) Stats() domain.EngineStats                  { return domain.EngineStats{} }
func (s *stubEngine) Events() []domain.EventSummary              { return nil }
func (s *stubEngine) Event(domain.EventKey) (domain.EventSummary, error) {
	return domain.EventSummary{}, domain.ErrNotFound
}
func (s *stubEngine) Snapshot() domain.Snapshot                  { return domain.Snapshot{} }
func (s *stubEngine) ImportHistory([]domain.HistoryEntry) int    { return 0 }

func testServer(apiKey string) *Server {
	logger := slog.New(slog.DiscardHandler)
	eng := &stubEngine{active: []domain.Opportunity{{ID: "opp-1", ProfitPercent: 4.2}}}

	handlers := Handlers{
		Health:        handler.NewHealthHandler(logger),
		Quotes:        handler.NewQuoteHandler(eng, logger),
		Opportunities: handler.NewOpportunityHandler(eng, logger),
		History:       handler.NewHistoryHandler(eng, logger),
		Stats:         handler.NewStatsHandler(eng, logger),
		Events:        handler.NewEventHandler(eng, logger),
		Snapshot:      handler.NewSnapshotHandler(eng, logger),
	}

	cfg := Config{
		Addr:   ":0",
		APIKey: apiKey,
	}
	return NewServer(cfg, handlers, nil, nil, nil, logger)
}

func TestHealthzBypassesAuth(t *testing.T) {
	srv := testServer("top-secret")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 without any key", rec.Code)
	}
}

func TestReadAPIRequiresKey(t *testing.T) {
	srv := testServer("top-secret")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/opportunities", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/opportunities", nil)
	req.Header.Set("X-API-Key", "top-secret")
	rec = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", rec.Code)
	}

	var resp struct {
		Opportunities []domain.Opportunity `json:"opportunities"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Opportunities) != 1 || resp.Opportunities[0].ID != "opp-1" {
		t.Errorf("opportunities = %+v", resp.Opportunities)
	}
}

func TestIngestRouteSkipsAPIKeyAuth(t *testing.T) {
	srv := testServer("top-secret")

	body := `{"source":"alpha","sourceEventId":"ev-1","outcomeA":"Arsenal","outcomeB":"Chelsea","priceA":2.1,"priceB":2.2}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	// Feeds sign requests instead of carrying the read-API key; with signing
	// disabled the route is open.
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202, body %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	srv := testServer("")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
