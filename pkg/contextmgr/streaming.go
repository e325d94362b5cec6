package contextmgr

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/cricket/pkg/turns"
)

// Draft accumulates streamed deltas for a turn that has not been committed
// yet. It lives outside the turn log: not scored, not a compaction victim,
// invisible to stats. Only FinalizeDraft moves its content into the session,
// through the full AddTurn path.
type Draft struct {
	mu   sync.Mutex
	role turns.Role
	buf  strings.Builder
}

func (d *Draft) Role() turns.Role {
	if d == nil {
		return ""
	}
	return d.role
}

// Append adds a streamed delta. Safe for concurrent use.
func (d *Draft) Append(delta string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.buf.WriteString(delta)
	d.mu.Unlock()
}

// Content returns the accumulated text so far.
func (d *Draft) Content() string {
	if d == nil {
		return ""
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.String()
}

// BeginDraft registers a new draft for a streaming response. The draft stays
// valid until finalized, abandoned, or the session is cleared.
func (s *Session) BeginDraft(role turns.Role) (*Draft, error) {
	if s == nil {
		return nil, errors.New("context manager: nil session")
	}
	if !role.Valid() {
		return nil, errors.Errorf("context manager: unknown role %q", role)
	}
	d := &Draft{role: role}

	s.stateMu.Lock()
	s.drafts[d] = struct{}{}
	s.lastActivity = s.now()
	s.stateMu.Unlock()
	return d, nil
}

// FinalizeDraft commits the draft's accumulated content as a regular turn,
// running the full AddTurn path including compaction. A draft invalidated by
// Clear or a previous finalize is rejected.
func (s *Session) FinalizeDraft(ctx context.Context, d *Draft, hasAttachment bool) (turns.Turn, error) {
	if s == nil {
		return turns.Turn{}, errors.New("context manager: nil session")
	}
	if d == nil {
		return turns.Turn{}, errors.New("context manager: nil draft")
	}

	s.stateMu.Lock()
	if _, ok := s.drafts[d]; !ok {
		s.stateMu.Unlock()
		return turns.Turn{}, errors.New("context manager: unknown draft, already finalized or abandoned")
	}
	delete(s.drafts, d)
	s.stateMu.Unlock()

	return s.AddTurn(ctx, d.role, d.Content(), hasAttachment)
}

// AbandonDraft drops the draft without committing anything.
func (s *Session) AbandonDraft(d *Draft) {
	if s == nil || d == nil {
		return
	}
	s.stateMu.Lock()
	delete(s.drafts, d)
	s.stateMu.Unlock()
}
