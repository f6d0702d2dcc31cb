package types

import "time"

// Entities named in change events.
const (
	EntityClass    = "class"
	EntityQuestion = "question"
	EntityReleased = "released"
	EntityAnswer   = "answer"
	EntityTicket   = "exitTicket"
	EntityAnalysis = "analysis"
	EntitySummary  = "exitSummary"
)

// Change event actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// ChangeEvent announces one committed store mutation to change-feed
// subscribers. It carries only identity, not entity payloads: observers
// re-fetch through the read endpoints, so a dropped event degrades to the
// ordinary polling staleness bound instead of a lost update.
type ChangeEvent struct {
	Entity  string    `json:"entity"`
	Action  string    `json:"action"`
	ID      string    `json:"id"`
	ClassID string    `json:"classId"`
	At      time.Time `json:"at"`
}
