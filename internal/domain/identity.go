package domain

import "time"

// EventKey is the canonical identity of one real-world event. Two quotes
// sharing an EventKey are quotes on the same event regardless of how their
// sources spelled the outcome labels.
type EventKey string

// PricePoint is one source's price for a single outcome.
type PricePoint struct {
	Source string  `json:"source"`
	Price  float64 `json:"price"`
}

// BestPrices is the per-outcome best (highest) price across the sources of
// one event group, each tagged with its owning source. It is a derived view:
// everything in it can be recomputed from the group's live quotes.
type BestPrices struct {
	Key       EventKey    `json:"eventKey"`
	SideA     string      `json:"sideA"`
	SideB     string      `json:"sideB"`
	A         PricePoint  `json:"a"`
	B         PricePoint  `json:"b"`
	Draw      *PricePoint `json:"draw,omitempty"` // nil when no source quotes a draw
	UpdatedAt time.Time   `json:"updatedAt"`
}

// HasDraw reports whether any source in the group quotes a draw outcome.
func (b BestPrices) HasDraw() bool { return b.Draw != nil }

// EventSummary is a read snapshot of one event group for the API layer.
type EventSummary struct {
	Key       EventKey     `json:"eventKey"`
	SideA     string       `json:"sideA"`
	SideB     string       `json:"sideB"`
	Sources   []string     `json:"sources"` // sorted
	HasDraw   bool         `json:"hasDraw"`
	Best      *BestPrices  `json:"best,omitempty"`
	Quotes    []PriceQuote `json:"quotes,omitempty"` // populated on detail lookups only
	UpdatedAt time.Time    `json:"updatedAt"`
}
