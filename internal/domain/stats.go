package domain

import "time"

// SourceStats is the per-source ingest breakdown.
type SourceStats struct {
	Quotes      int64     `json:"quotes"`
	Rejected    int64     `json:"rejected"`
	LastQuoteAt time.Time `json:"lastQuoteAt"`
}

// EngineStats is a point-in-time summary of engine state and throughput.
type EngineStats struct {
	StartedAt           time.Time              `json:"startedAt"`
	UptimeSeconds       int64                  `json:"uptimeSeconds"`
	TotalQuotes         int64                  `json:"totalQuotes"`
	RejectedQuotes      int64                  `json:"rejectedQuotes"`
	GroupCount          int                    `json:"groupCount"`
	KnownTeams          int                    `json:"knownTeams"`
	FuzzyMatches        int64                  `json:"fuzzyMatches"`
	ActiveOpportunities int                    `json:"activeOpportunities"`
	OpportunitiesFound  int64                  `json:"opportunitiesFound"` // cumulative creations
	HistorySize         int                    `json:"historySize"`
	QuotesPerMinute     float64                `json:"quotesPerMinute"` // over the recent-receipt window
	PerSource           map[string]SourceStats `json:"perSource"`
}
