package domain

import "time"

// EngineEventType classifies engine lifecycle events for fan-out.
type EngineEventType string

const (
	EventOpportunityCreated     EngineEventType = "opportunity.created"
	EventOpportunityRefreshed   EngineEventType = "opportunity.refreshed"
	EventOpportunitySuperseded  EngineEventType = "opportunity.superseded"
	EventOpportunityExpired     EngineEventType = "opportunity.expired"
	EventOpportunityInvalidated EngineEventType = "opportunity.invalidated"
	EventPricesUpdated          EngineEventType = "prices.updated"
	EventPricesRemoved          EngineEventType = "prices.removed"
)

// EngineEvent is emitted by the engine after a state transition and consumed
// by the dispatcher. Created/refreshed events carry the active opportunity,
// close events carry the frozen history entry, prices.updated carries the
// recomputed best-price view, and prices.removed carries only the key of the
// group that vanished.
type EngineEvent struct {
	Type        EngineEventType `json:"type"`
	Key         EventKey        `json:"eventKey"`
	At          time.Time       `json:"at"`
	Opportunity *Opportunity    `json:"opportunity,omitempty"`
	History     *HistoryEntry   `json:"history,omitempty"`
	Best        *BestPrices     `json:"best,omitempty"`
}
