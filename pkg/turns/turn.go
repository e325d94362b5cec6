package turns

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleSummary   Role = "summary"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleSummary:
		return true
	}
	return false
}

// Turn is one exchange unit in a conversation. Ids are unique within a
// session, strictly increasing and never reused, even after the turn is
// evicted or replaced; Covers may therefore reference retired ids
// unambiguously.
type Turn struct {
	ID            int64     `json:"id" yaml:"id"`
	Role          Role      `json:"role" yaml:"role"`
	Content       string    `json:"content" yaml:"content"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	TokenCount    int       `json:"token_count" yaml:"token_count"`
	HasCode       bool      `json:"has_code" yaml:"has_code"`
	HasAttachment bool      `json:"has_attachment" yaml:"has_attachment"`
	// ImportanceScore is recomputed on demand from position; it is carried on
	// snapshots handed to readers, never trusted as stored state.
	ImportanceScore float64 `json:"importance_score" yaml:"importance_score"`
	IsSummary       bool    `json:"is_summary" yaml:"is_summary"`
	// Covers lists the ids of the turns this summary replaced, in their
	// original order. Empty unless IsSummary.
	Covers []int64 `json:"covers,omitempty" yaml:"covers,omitempty"`
}

// Clone returns a copy that shares no mutable state with t.
func (t Turn) Clone() Turn {
	if len(t.Covers) > 0 {
		covers := make([]int64, len(t.Covers))
		copy(covers, t.Covers)
		t.Covers = covers
	}
	return t
}

// CoverWeight is the number of retired turns a summary stands in for, and 1
// for a plain turn. Used to cap how much history a single summary may absorb.
func (t Turn) CoverWeight() int {
	if t.IsSummary && len(t.Covers) > 1 {
		return len(t.Covers)
	}
	return 1
}
