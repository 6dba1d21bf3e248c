package arbitrage

import (
	"math"
	"testing"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

const tolerance = 1e-9

func bestAB(priceA, priceB float64, srcA, srcB string) domain.BestPrices {
	return domain.BestPrices{
		Key:   "ev-1",
		SideA: "alpha",
		SideB: "beta",
		A:     domain.PricePoint{Source: srcA, Price: priceA},
		B:     domain.PricePoint{Source: srcB, Price: priceB},
	}
}

func TestEvaluate_TwoLegBook(t *testing.T) {
	// Source X quotes (2.10, 1.95), source Y quotes (1.90, 2.20); the best
	// combination is A at 2.10 (X) with B at 2.20 (Y).
	best := bestAB(2.10, 2.20, "sourceX", "sourceY")

	c, ok := Evaluate(best, 0.5)
	if !ok {
		t.Fatal("expected a qualifying book")
	}

	wantSum := 1/2.10 + 1/2.20
	if math.Abs(c.SumInverse-wantSum) > tolerance {
		t.Fatalf("SumInverse = %.6f, want %.6f", c.SumInverse, wantSum)
	}
	if math.Abs(c.ProfitPercent-6.926407) > 1e-4 {
		t.Fatalf("ProfitPercent = %.6f, want ~6.9264", c.ProfitPercent)
	}
	if len(c.Legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(c.Legs))
	}
	if math.Abs(c.Legs[0].Stake-0.511628) > 1e-4 || math.Abs(c.Legs[1].Stake-0.488372) > 1e-4 {
		t.Fatalf("stakes = %.4f/%.4f, want ~0.5116/0.4884", c.Legs[0].Stake, c.Legs[1].Stake)
	}
}

func TestEvaluate_StakesSumToOneAndPayoutEqualizes(t *testing.T) {
	tests := []struct {
		name string
		best domain.BestPrices
	}{
		{"two legs", bestAB(2.10, 2.20, "x", "y")},
		{"three legs", withDraw(bestAB(3.20, 3.90, "x", "y"), 3.50, "z")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := Evaluate(tt.best, 0)
			if !ok {
				t.Fatal("expected a qualifying book")
			}
			sum := 0.0
			for _, leg := range c.Legs {
				sum += leg.Stake
				// Every leg must return the same payout per unit staked.
				if math.Abs(leg.Stake*leg.Price-c.Payout) > tolerance {
					t.Fatalf("leg %s pays %.9f, book payout %.9f", leg.Outcome, leg.Stake*leg.Price, c.Payout)
				}
			}
			if math.Abs(sum-1) > tolerance {
				t.Fatalf("stakes sum to %.12f, want 1", sum)
			}
			if c.SumInverse >= 1 {
				t.Fatalf("SumInverse = %.6f, want < 1", c.SumInverse)
			}
		})
	}
}

func withDraw(b domain.BestPrices, price float64, src string) domain.BestPrices {
	b.Draw = &domain.PricePoint{Source: src, Price: price}
	return b
}

func TestEvaluate_BelowThresholdRejected(t *testing.T) {
	// Sum inverse ~0.9975, profit ~0.25% below a 0.5% threshold.
	best := bestAB(2.0, 2.01, "x", "y")

	if _, ok := Evaluate(best, 0.5); ok {
		t.Fatal("book below the profit threshold must not qualify")
	}
	if c, ok := Evaluate(best, 0.1); !ok || c.ProfitPercent < 0.1 {
		t.Fatalf("book should qualify at a 0.1%% threshold, got ok=%v profit=%.4f", ok, c.ProfitPercent)
	}
}

func TestEvaluate_SingleSourceRejected(t *testing.T) {
	// Both best legs owned by one feed: never an opportunity, however good
	// the numbers look.
	best := bestAB(2.50, 2.50, "onlysource", "onlysource")

	if _, ok := Evaluate(best, 0); ok {
		t.Fatal("single-source book must not qualify")
	}
}

func TestEvaluate_ThreeLegBookRescuesSingleSourceAB(t *testing.T) {
	// A and B best prices share a source, so the two-leg book is out; the
	// draw leg from a second source makes the three-leg book legitimate.
	best := withDraw(bestAB(3.90, 4.10, "x", "x"), 3.90, "y")

	c, ok := Evaluate(best, 0.5)
	if !ok {
		t.Fatal("expected the three-leg book to qualify")
	}
	if len(c.Legs) != 3 {
		t.Fatalf("got %d legs, want 3", len(c.Legs))
	}
	if c.Legs[2].Outcome != domain.OutcomeDraw || c.Legs[2].Source != "y" {
		t.Fatalf("draw leg = %+v, want source y", c.Legs[2])
	}
}

func TestEvaluate_TwoLegBeatsThreeLegOnSameBests(t *testing.T) {
	// Adding a draw leg always raises the inverse sum, so with distinct
	// sources on A/B the two-leg book wins.
	best := withDraw(bestAB(2.80, 2.60, "x", "y"), 3.00, "z")

	c, ok := Evaluate(best, 0)
	if !ok {
		t.Fatal("expected a qualifying book")
	}
	if len(c.Legs) != 2 {
		t.Fatalf("got %d legs, want the two-leg book", len(c.Legs))
	}
}

func TestEvaluate_NoDrawNoThreeLegBook(t *testing.T) {
	best := bestAB(2.10, 2.20, "x", "y")

	c, ok := Evaluate(best, 0)
	if !ok {
		t.Fatal("expected a qualifying book")
	}
	for _, leg := range c.Legs {
		if leg.Outcome == domain.OutcomeDraw {
			t.Fatal("two-outcome market grew a draw leg")
		}
	}
}
