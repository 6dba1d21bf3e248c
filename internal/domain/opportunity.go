package domain

import "time"

// Outcome identifies one leg of a market.
type Outcome string

const (
	OutcomeA    Outcome = "A"
	OutcomeB    Outcome = "B"
	OutcomeDraw Outcome = "draw"
)

// OpportunityLeg is one outcome's winning (source, price) pair together with
// the stake fraction allocated to it.
type OpportunityLeg struct {
	Outcome Outcome `json:"outcome"`
	Label   string  `json:"label"` // canonical label, "draw" for the draw leg
	Source  string  `json:"source"`
	Price   float64 `json:"price"`
	Stake   float64 `json:"stake"` // fraction of a unit bankroll
}

// Opportunity is a detected risk-free price combination across sources.
// Legs reference the best prices at detection time; stakes are normalized so
// the payout is identical whichever outcome occurs.
type Opportunity struct {
	ID            string           `json:"id"`
	EventKey      EventKey         `json:"eventKey"`
	SideA         string           `json:"sideA"`
	SideB         string           `json:"sideB"`
	Legs          []OpportunityLeg `json:"legs"`
	SumInverse    float64          `json:"sumInverse"`
	ProfitPercent float64          `json:"profitPercent"`
	Payout        float64          `json:"payout"` // guaranteed return per unit staked, 1/SumInverse
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	ExpiresAt     time.Time        `json:"expiresAt"`
}

// Expired reports whether the opportunity is past its expiry.
func (o Opportunity) Expired(now time.Time) bool { return now.After(o.ExpiresAt) }

// SameLegs reports whether two opportunities bind the identical set of
// (outcome, source, price) triples. A recomputation with the same legs
// refreshes the existing opportunity; any difference supersedes it.
func (o Opportunity) SameLegs(other Opportunity) bool {
	if len(o.Legs) != len(other.Legs) {
		return false
	}
	for i, leg := range o.Legs {
		ol := other.Legs[i]
		if leg.Outcome != ol.Outcome || leg.Source != ol.Source || leg.Price != ol.Price {
			return false
		}
	}
	return true
}

// CloseReason records why an opportunity left the active set.
type CloseReason string

const (
	CloseReasonExpired     CloseReason = "expired"     // ExpiresAt elapsed
	CloseReasonSuperseded  CloseReason = "superseded"  // replaced by a recomputation with different legs
	CloseReasonInvalidated CloseReason = "invalidated" // lost a source, a leg, or the profit threshold
)

// HistoryEntry is a frozen copy of an opportunity at the moment it left the
// active set. Entries are never mutated after insertion.
type HistoryEntry struct {
	Opportunity
	ClosedAt time.Time   `json:"closedAt"`
	Reason   CloseReason `json:"reason"`
}
