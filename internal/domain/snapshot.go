package domain

import "time"

// Snapshot is a round-trippable export of engine state: the live quote of
// every (group, source) pair plus the history ring in insertion order.
// Restoring a snapshot replays the quotes through the normal validated
// ingest path and reinstates the history verbatim.
type Snapshot struct {
	SavedAt time.Time      `json:"savedAt"`
	Quotes  []PriceQuote   `json:"quotes"`
	History []HistoryEntry `json:"history"`
}
