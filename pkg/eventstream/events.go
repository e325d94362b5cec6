// Package eventstream carries context-manager lifecycle events to interested
// consumers (UIs, metrics, debugging tools) over watermill publishers. Events
// are emitted after a session state change commits, never from under the
// session lock, and delivery is best-effort.
package eventstream

import "time"

// DefaultTopic is the stream/topic compaction events are published on.
const DefaultTopic = "context.compaction"

type EventType string

const (
	EventSummaryCreated EventType = "summary_created"
	EventTurnsEvicted   EventType = "turns_evicted"
	EventBudgetExceeded EventType = "budget_exceeded"
	EventSessionCleared EventType = "session_cleared"
)

// Event is the JSON envelope for one state change. Only the fields relevant
// to the event type are set.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`

	// summary_created
	SummaryID   int64   `json:"summary_id,omitempty"`
	Covers      []int64 `json:"covers,omitempty"`
	TokensSaved int     `json:"tokens_saved,omitempty"`

	// turns_evicted
	EvictedIDs []int64 `json:"evicted_ids,omitempty"`

	// budget_exceeded
	TokenBudget int `json:"token_budget,omitempty"`
	TotalTokens int `json:"total_tokens,omitempty"`
}
