// Package archive persists turns that compaction removed from the live
// context, so evicted or summarized history stays inspectable after the
// fact. Archiving is best-effort: callers log failures and move on.
package archive

import (
	"context"

	"github.com/go-go-golems/cricket/pkg/turns"
)

// RetireReason records why a turn left the live context.
type RetireReason string

const (
	// ReasonEvicted marks turns dropped outright, without a summary.
	ReasonEvicted RetireReason = "evicted"
	// ReasonSummarized marks turns replaced by a summary turn.
	ReasonSummarized RetireReason = "summarized"
)

func (r RetireReason) Valid() bool {
	switch r {
	case ReasonEvicted, ReasonSummarized:
		return true
	default:
		return false
	}
}

// RetiredTurn is one archived turn together with its retirement context.
// SummaryID is the id of the summary that replaced it, zero for evictions.
type RetiredTurn struct {
	SessionID   string       `json:"session_id" yaml:"session_id"`
	Reason      RetireReason `json:"reason" yaml:"reason"`
	SummaryID   int64        `json:"summary_id,omitempty" yaml:"summary_id,omitempty"`
	RetiredAtMs int64        `json:"retired_at_ms" yaml:"retired_at_ms"`
	Turn        turns.Turn   `json:"turn" yaml:"turn"`
}

// Query filters List results. Zero-valued fields are ignored.
type Query struct {
	SessionID string
	Reason    RetireReason
	SinceMs   int64
	Limit     int
}

type Store interface {
	RecordRetired(ctx context.Context, rt RetiredTurn) error
	List(ctx context.Context, q Query) ([]RetiredTurn, error)
	Close() error
}
