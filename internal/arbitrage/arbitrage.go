// Package arbitrage computes sum-of-inverse-price books over an event's best
// prices: which outcome legs to back at which source, and the stake split
// that pays out identically whichever outcome occurs.
package arbitrage

import (
	"github.com/alanyoungcy/surebetbot/internal/domain"
)

// DrawLabel names the draw leg on three-outcome books.
const DrawLabel = "draw"

// Candidate is one computed book over an event's best prices.
type Candidate struct {
	Legs          []domain.OpportunityLeg
	SumInverse    float64
	ProfitPercent float64
	Payout        float64
}

// Evaluate builds every legitimate book over the given best prices (the
// two-outcome A/B book, plus the three-outcome book when a draw is quoted)
// and returns the most profitable one that clears minProfit percent. A book
// needs legs from at least two distinct sources; a single feed's own prices
// are never an opportunity. ok is false when no book qualifies.
func Evaluate(best domain.BestPrices, minProfit float64) (Candidate, bool) {
	var out Candidate
	ok := false
	for _, c := range candidates(best) {
		if c.SumInverse >= 1 || c.ProfitPercent < minProfit {
			continue
		}
		if distinctSources(c.Legs) < 2 {
			continue
		}
		if !ok || c.ProfitPercent > out.ProfitPercent {
			out = c
			ok = true
		}
	}
	return out, ok
}

func candidates(best domain.BestPrices) []Candidate {
	out := []Candidate{build(
		domain.OpportunityLeg{Outcome: domain.OutcomeA, Label: best.SideA, Source: best.A.Source, Price: best.A.Price},
		domain.OpportunityLeg{Outcome: domain.OutcomeB, Label: best.SideB, Source: best.B.Source, Price: best.B.Price},
	)}
	if best.HasDraw() {
		out = append(out, build(
			domain.OpportunityLeg{Outcome: domain.OutcomeA, Label: best.SideA, Source: best.A.Source, Price: best.A.Price},
			domain.OpportunityLeg{Outcome: domain.OutcomeB, Label: best.SideB, Source: best.B.Source, Price: best.B.Price},
			domain.OpportunityLeg{Outcome: domain.OutcomeDraw, Label: DrawLabel, Source: best.Draw.Source, Price: best.Draw.Price},
		))
	}
	return out
}

// build fills in the book numbers for a fixed set of legs. For a unit
// bankroll, stake_i = (1/price_i)/sumInverse equalizes the payout at
// 1/sumInverse across outcomes; the stakes sum to 1 by construction.
func build(legs ...domain.OpportunityLeg) Candidate {
	sum := 0.0
	for _, leg := range legs {
		sum += 1 / leg.Price
	}
	for i := range legs {
		legs[i].Stake = (1 / legs[i].Price) / sum
	}
	return Candidate{
		Legs:          legs,
		SumInverse:    sum,
		ProfitPercent: (1 - sum) * 100,
		Payout:        1 / sum,
	}
}

func distinctSources(legs []domain.OpportunityLeg) int {
	seen := make(map[string]struct{}, len(legs))
	for _, leg := range legs {
		seen[leg.Source] = struct{}{}
	}
	return len(seen)
}
