package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Accepted decimal-odds window. Odds at or below 1.0 can never pay out;
// anything above MaxPrice is treated as a feed glitch rather than a market.
const (
	MinPrice = 1.0
	MaxPrice = 10000.0
)

// PriceQuote is one normalized two- or three-outcome odds quote from one
// source at one moment. Quotes are immutable once created; an update from a
// source arrives as a fresh quote that replaces the prior one.
type PriceQuote struct {
	Source        string    `json:"source"`                // originating feed identifier
	SourceEventID string    `json:"sourceEventId"`         // unique within the source, replace key
	OutcomeA      string    `json:"outcomeA"`              // raw label as the source spells it
	OutcomeB      string    `json:"outcomeB"`
	PriceA        float64   `json:"priceA"`                // decimal odds, > 1.0
	PriceB        float64   `json:"priceB"`
	PriceDraw     float64   `json:"priceDraw,omitempty"`   // 0 when the market has no draw outcome
	Title         string    `json:"title,omitempty"`       // descriptive metadata, never used for matching
	Category      string    `json:"category,omitempty"`
	Subcategory   string    `json:"subcategory,omitempty"`
	StartsAt      time.Time `json:"startsAt,omitempty"`    // scheduled event start, zero when unknown
	ObservedAt    time.Time `json:"observedAt"`
}

// HasDraw reports whether the quote prices a draw outcome.
func (q PriceQuote) HasDraw() bool { return q.PriceDraw != 0 }

// Validate checks the quote against the ingest invariants. It returns a
// *ValidationError describing the first violation, or nil. A quote that
// fails validation is rejected and logged, never processed.
func (q PriceQuote) Validate(now time.Time) error {
	if strings.TrimSpace(q.Source) == "" {
		return &ValidationError{Field: "source", Reason: "empty"}
	}
	if strings.TrimSpace(q.SourceEventID) == "" {
		return &ValidationError{Field: "sourceEventId", Reason: "empty"}
	}

	a := strings.TrimSpace(q.OutcomeA)
	b := strings.TrimSpace(q.OutcomeB)
	if a == "" {
		return &ValidationError{Field: "outcomeA", Reason: "empty label"}
	}
	if b == "" {
		return &ValidationError{Field: "outcomeB", Reason: "empty label"}
	}
	if strings.EqualFold(a, b) {
		return &ValidationError{Field: "outcomeB", Reason: "outcome labels are identical"}
	}
	if placeholderLabel(a) || placeholderLabel(b) {
		return &ValidationError{Field: "outcomeA", Reason: "placeholder outcome label"}
	}

	if err := checkPrice("priceA", q.PriceA); err != nil {
		return err
	}
	if err := checkPrice("priceB", q.PriceB); err != nil {
		return err
	}
	if q.PriceDraw != 0 {
		if err := checkPrice("priceDraw", q.PriceDraw); err != nil {
			return err
		}
	}

	if !q.StartsAt.IsZero() && q.StartsAt.Before(now) {
		return &ValidationError{Field: "startsAt", Reason: "event already started"}
	}
	return nil
}

func checkPrice(field string, p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return &ValidationError{Field: field, Reason: "price is not finite"}
	}
	if p <= MinPrice {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("price %.4f must exceed %.1f", p, MinPrice)}
	}
	if p > MaxPrice {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("price %.4f above sanity bound %.0f", p, MaxPrice)}
	}
	return nil
}

// placeholderLabel catches binary yes/no markets that slip into team feeds.
// They carry no name information the resolver could match on.
func placeholderLabel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "no", "y", "n":
		return true
	}
	return false
}
