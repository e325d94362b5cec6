package contextmgr

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/cricket/pkg/archive"
	"github.com/go-go-golems/cricket/pkg/eventstream"
	"github.com/go-go-golems/cricket/pkg/summarize"
	"github.com/go-go-golems/cricket/pkg/tokens"
)

// SessionOption configures optional collaborators for a Session.
type SessionOption func(*Session) error

// WithSummarizer enables the summarization path. A session without one falls
// back to eviction whenever compaction is needed.
func WithSummarizer(sm summarize.Summarizer) SessionOption {
	return func(s *Session) error {
		if sm == nil {
			return errors.New("context manager: summarizer is nil")
		}
		s.summarizer = sm
		return nil
	}
}

func WithCounter(c tokens.Counter) SessionOption {
	return func(s *Session) error {
		if c == nil {
			return errors.New("context manager: counter is nil")
		}
		s.counter = c
		return nil
	}
}

// WithArchive records every turn that leaves the log. Best-effort: archive
// failures are logged, never fail the session operation.
func WithArchive(store archive.Store) SessionOption {
	return func(s *Session) error {
		if store == nil {
			return errors.New("context manager: archive store is nil")
		}
		s.archive = store
		return nil
	}
}

func WithEvents(sink eventstream.Sink) SessionOption {
	return func(s *Session) error {
		if sink == nil {
			return errors.New("context manager: event sink is nil")
		}
		s.events = sink
		return nil
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) error {
		if now == nil {
			return errors.New("context manager: clock is nil")
		}
		s.now = now
		return nil
	}
}

func WithLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) error {
		s.logger = logger
		return nil
	}
}
