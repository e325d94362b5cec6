// Package contextmgr keeps a chat session's history within a finite token
// budget. Turns are appended through a Session, scored for retention, and
// compacted when the budget is exceeded: low-scoring runs of old turns are
// replaced by summaries, with outright eviction as the fallback. The newest
// turns are always protected.
//
// A Session is safe for any number of concurrent callers. State mutations are
// atomic under an internal lock; the only suspension point is the summarizer
// call, which holds no lock and revalidates its victims before committing.
package contextmgr

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cricket/pkg/archive"
	"github.com/go-go-golems/cricket/pkg/eventstream"
	"github.com/go-go-golems/cricket/pkg/scoring"
	"github.com/go-go-golems/cricket/pkg/summarize"
	"github.com/go-go-golems/cricket/pkg/tokens"
	"github.com/go-go-golems/cricket/pkg/turns"
)

// Session is the single mutation entry point for one conversation's context.
//
// Lock order is always compactMu before stateMu. compactMu serializes
// compaction invocations and is held across summarizer waits; stateMu guards
// the turn log, counters, and drafts, and is never held while waiting on a
// collaborator. Clear and the read methods take stateMu only, so they never
// block behind a slow summarizer.
type Session struct {
	id     string
	cfg    Config
	scorer *scoring.Scorer

	counter    tokens.Counter
	summarizer summarize.Summarizer
	archive    archive.Store
	events     eventstream.Sink
	now        func() time.Time
	logger     zerolog.Logger

	compactMu sync.Mutex

	stateMu      sync.RWMutex
	log          *turns.Log
	epoch        uint64
	drafts       map[*Draft]struct{}
	lastActivity time.Time

	summariesCreated int
	tokensSaved      int
	turnsEvicted     int
}

// NewSession builds a session for the given id, generating one when id is
// empty. The token counter defaults to tiktoken with the word-estimate
// fallback; without WithSummarizer the session compacts by eviction only.
func NewSession(id string, cfg Config, opts ...SessionOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	scorer, err := scoring.NewScorer(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	s := &Session{
		id:      id,
		cfg:     cfg,
		scorer:  scorer,
		counter: tokens.NewDefaultCounter(),
		events:  eventstream.NopSink{},
		now:     time.Now,
		log:     turns.NewLog(),
		drafts:  map[*Draft]struct{}{},
	}
	s.logger = log.With().Str("component", "contextmgr").Str("session_id", s.id).Logger()
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.lastActivity = s.now()
	return s, nil
}

func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// AddTurn appends a turn with the next monotonic id, computing its token
// count and code flag from the content, then synchronously compacts until
// the budget is restored or only protected turns remain. The inserted turn
// is returned even when compaction fails with BudgetExceededError.
func (s *Session) AddTurn(ctx context.Context, role turns.Role, content string, hasAttachment bool) (turns.Turn, error) {
	if s == nil {
		return turns.Turn{}, errors.New("context manager: nil session")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !role.Valid() {
		return turns.Turn{}, errors.Errorf("context manager: unknown role %q", role)
	}

	tokenCount := s.counter.Count(content)

	s.stateMu.Lock()
	t := turns.Turn{
		ID:            s.log.MaxID() + 1,
		Role:          role,
		Content:       content,
		CreatedAt:     s.now(),
		TokenCount:    tokenCount,
		HasCode:       turns.ContainsCode(content),
		HasAttachment: hasAttachment,
	}
	if err := s.log.Append(t); err != nil {
		s.stateMu.Unlock()
		return turns.Turn{}, errors.Wrap(err, "context manager: append turn")
	}
	s.lastActivity = s.now()
	total := s.log.TotalTokens()
	s.stateMu.Unlock()

	s.logger.Debug().
		Int64("turn_id", t.ID).
		Str("role", string(role)).
		Int("token_count", tokenCount).
		Int("total_tokens", total).
		Msg("turn added")

	if total <= s.cfg.TokenBudget {
		return t, nil
	}
	return t, s.compact(ctx)
}

// ContextForModel returns a chronological snapshot with importance scores
// stamped on, summaries included as regular turns. maxTurns > 0 keeps only
// the newest maxTurns turns; zero or negative means all. Never mutates.
func (s *Session) ContextForModel(maxTurns int) []turns.Turn {
	if s == nil {
		return nil
	}
	s.stateMu.RLock()
	snapshot := s.log.All()
	s.stateMu.RUnlock()

	scores := s.scorer.ScoreAll(snapshot)
	for i := range snapshot {
		snapshot[i].ImportanceScore = scores[i]
	}
	if maxTurns > 0 && len(snapshot) > maxTurns {
		snapshot = snapshot[len(snapshot)-maxTurns:]
	}
	return snapshot
}

// Clear resets the session to empty: all turns, counters, and outstanding
// drafts are discarded. An in-flight summarization becomes stale and its
// splice is discarded on revalidation. Ids are never reused across a clear.
func (s *Session) Clear() {
	if s == nil {
		return
	}
	s.stateMu.Lock()
	s.log.Reset()
	s.summariesCreated = 0
	s.tokensSaved = 0
	s.turnsEvicted = 0
	s.epoch++
	s.drafts = map[*Draft]struct{}{}
	s.lastActivity = s.now()
	s.stateMu.Unlock()

	s.logger.Info().Msg("session cleared")
	s.publish(context.Background(), eventstream.Event{
		Type:      eventstream.EventSessionCleared,
		SessionID: s.id,
		At:        s.now(),
	})
}

// Stats aggregates over one consistent snapshot.
func (s *Session) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	s.stateMu.RLock()
	snapshot := s.log.All()
	created := s.summariesCreated
	saved := s.tokensSaved
	evicted := s.turnsEvicted
	s.stateMu.RUnlock()

	return computeStats(snapshot, s.scorer, created, saved, evicted)
}

// LastActivity is the time of the most recent mutation, used by the
// manager's idle eviction.
func (s *Session) LastActivity() time.Time {
	if s == nil {
		return time.Time{}
	}
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.lastActivity
}

// CompactionInFlight reports whether a compaction invocation currently holds
// the compaction lock.
func (s *Session) CompactionInFlight() bool {
	if s == nil {
		return false
	}
	if s.compactMu.TryLock() {
		s.compactMu.Unlock()
		return false
	}
	return true
}

func (s *Session) publish(ctx context.Context, ev eventstream.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("event publish failed")
	}
}

func (s *Session) archiveRetired(ctx context.Context, reason archive.RetireReason, summaryID int64, t turns.Turn) {
	if s.archive == nil {
		return
	}
	rt := archive.RetiredTurn{
		SessionID:   s.id,
		Reason:      reason,
		SummaryID:   summaryID,
		RetiredAtMs: s.now().UnixMilli(),
		Turn:        t,
	}
	if err := s.archive.RecordRetired(ctx, rt); err != nil {
		s.logger.Warn().Err(err).Int64("turn_id", t.ID).Str("reason", string(reason)).Msg("archive record failed")
	}
}
