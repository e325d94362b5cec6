package archive

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// InMemoryStore is a size-limited, in-memory Store implementation. It
// mirrors the ordering semantics of the SQLite store so callers can swap
// one for the other without behavior changes.
type InMemoryStore struct {
	mu      sync.Mutex
	maxRows int
	rows    []RetiredTurn
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore(maxRows int) *InMemoryStore {
	if maxRows <= 0 {
		maxRows = 10000
	}
	return &InMemoryStore{maxRows: maxRows}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) RecordRetired(_ context.Context, rt RetiredTurn) error {
	if s == nil {
		return errors.New("in-memory archive: nil store")
	}
	if strings.TrimSpace(rt.SessionID) == "" {
		return errors.New("in-memory archive: sessionID is empty")
	}
	if !rt.Reason.Valid() {
		return errors.Errorf("in-memory archive: invalid reason %q", rt.Reason)
	}
	if rt.RetiredAtMs <= 0 {
		rt.RetiredAtMs = time.Now().UnixMilli()
	}
	rt.Turn = rt.Turn.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rt)
	if len(s.rows) > s.maxRows {
		drop := len(s.rows) - s.maxRows
		s.rows = append(s.rows[:0:0], s.rows[drop:]...)
	}
	return nil
}

func (s *InMemoryStore) List(_ context.Context, q Query) ([]RetiredTurn, error) {
	if s == nil {
		return nil, errors.New("in-memory archive: nil store")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID := strings.TrimSpace(q.SessionID)
	items := make([]RetiredTurn, 0, len(s.rows))
	for _, rt := range s.rows {
		if sessionID != "" && rt.SessionID != sessionID {
			continue
		}
		if q.Reason != "" && rt.Reason != q.Reason {
			continue
		}
		if q.SinceMs > 0 && rt.RetiredAtMs < q.SinceMs {
			continue
		}
		rt.Turn = rt.Turn.Clone()
		items = append(items, rt)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].RetiredAtMs == items[j].RetiredAtMs {
			return items[i].Turn.ID > items[j].Turn.ID
		}
		return items[i].RetiredAtMs > items[j].RetiredAtMs
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
