package turns

import (
	"fmt"

	"github.com/pkg/errors"
)

// InvalidRangeError reports a splice or range query against a span that is
// out of bounds, non-contiguous, or no longer present. It signals a defect or
// a lost race inside compaction, never a caller-visible condition.
type InvalidRangeError struct {
	First  int
	Last   int
	Len    int
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("turn log: invalid range [%d..%d] over %d turns: %s", e.First, e.Last, e.Len, e.Reason)
}

// Log holds one session's turns in chronological order with exact token
// accounting. It maintains prefix token sums so range queries cost O(1) after
// each mutation. Read methods never mutate internal state, so the owning
// session may serve them under a shared lock; Log itself is not safe for
// concurrent use.
type Log struct {
	turns []Turn
	// prefix[i] holds the token sum of turns[:i]; len(prefix) == len(turns)+1.
	prefix []int
	maxID  int64
}

func NewLog() *Log {
	return &Log{prefix: []int{0}}
}

func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	return len(l.turns)
}

// TotalTokens is the exact sum of TokenCount over the current turns.
func (l *Log) TotalTokens() int {
	if l == nil {
		return 0
	}
	return l.prefix[len(l.turns)]
}

// MaxID is the highest id ever inserted, retained across evictions so fresh
// ids stay strictly increasing.
func (l *Log) MaxID() int64 {
	if l == nil {
		return 0
	}
	return l.maxID
}

func (l *Log) Get(i int) (Turn, bool) {
	if l == nil || i < 0 || i >= len(l.turns) {
		return Turn{}, false
	}
	return l.turns[i].Clone(), true
}

// Append inserts t at the end. The id must exceed every id ever inserted.
func (l *Log) Append(t Turn) error {
	if l == nil {
		return errors.New("turn log: nil log")
	}
	if t.ID <= l.maxID {
		return errors.Errorf("turn log: id %d not greater than max id %d", t.ID, l.maxID)
	}
	if t.TokenCount < 0 {
		return errors.Errorf("turn log: negative token count %d for id %d", t.TokenCount, t.ID)
	}
	if !t.Role.Valid() {
		return errors.Errorf("turn log: unknown role %q for id %d", t.Role, t.ID)
	}
	l.turns = append(l.turns, t)
	l.prefix = append(l.prefix, l.prefix[len(l.prefix)-1]+t.TokenCount)
	l.maxID = t.ID
	return nil
}

// SpliceReplace atomically removes the contiguous span [first..last] and
// inserts summary at position first, preserving the order of untouched turns.
// The removed turns are returned for archiving and savings accounting.
func (l *Log) SpliceReplace(first, last int, summary Turn) ([]Turn, error) {
	if l == nil {
		return nil, errors.New("turn log: nil log")
	}
	if err := l.checkSpan(first, last); err != nil {
		return nil, err
	}
	if summary.ID <= l.maxID {
		return nil, errors.Errorf("turn log: summary id %d not greater than max id %d", summary.ID, l.maxID)
	}
	if summary.TokenCount < 0 {
		return nil, errors.Errorf("turn log: negative token count %d for summary id %d", summary.TokenCount, summary.ID)
	}

	removed := make([]Turn, last-first+1)
	copy(removed, l.turns[first:last+1])

	l.turns[first] = summary
	l.turns = append(l.turns[:first+1], l.turns[last+1:]...)
	l.maxID = summary.ID
	l.rebuildPrefixFrom(first)
	return removed, nil
}

// EvictAt removes the single turn at index i.
func (l *Log) EvictAt(i int) (Turn, error) {
	if l == nil {
		return Turn{}, errors.New("turn log: nil log")
	}
	if err := l.checkSpan(i, i); err != nil {
		return Turn{}, err
	}
	evicted := l.turns[i]
	l.turns = append(l.turns[:i], l.turns[i+1:]...)
	l.rebuildPrefixFrom(i)
	return evicted, nil
}

// TokenSum returns the token sum of the span [first..last].
func (l *Log) TokenSum(first, last int) (int, error) {
	if l == nil {
		return 0, errors.New("turn log: nil log")
	}
	if err := l.checkSpan(first, last); err != nil {
		return 0, err
	}
	return l.prefix[last+1] - l.prefix[first], nil
}

// Slice returns a copy of the span [first..last].
func (l *Log) Slice(first, last int) ([]Turn, error) {
	if l == nil {
		return nil, errors.New("turn log: nil log")
	}
	if err := l.checkSpan(first, last); err != nil {
		return nil, err
	}
	out := make([]Turn, 0, last-first+1)
	for _, t := range l.turns[first : last+1] {
		out = append(out, t.Clone())
	}
	return out, nil
}

// All returns a consistent snapshot of the current turns in chronological
// order. The copy shares no mutable state with the log.
func (l *Log) All() []Turn {
	if l == nil || len(l.turns) == 0 {
		return nil
	}
	out := make([]Turn, 0, len(l.turns))
	for _, t := range l.turns {
		out = append(out, t.Clone())
	}
	return out
}

// IDs returns the current ids in chronological order.
func (l *Log) IDs() []int64 {
	if l == nil {
		return nil
	}
	ids := make([]int64, len(l.turns))
	for i, t := range l.turns {
		ids[i] = t.ID
	}
	return ids
}

// SpanOfIDs locates ids as a contiguous in-order span and returns its index
// bounds. It fails with InvalidRangeError when any id is gone or the span is
// no longer contiguous, which is how a stale victim selection is detected
// after the summarizer call returns.
func (l *Log) SpanOfIDs(ids []int64) (int, int, error) {
	if l == nil {
		return 0, 0, errors.New("turn log: nil log")
	}
	if len(ids) == 0 {
		return 0, 0, &InvalidRangeError{First: -1, Last: -1, Len: len(l.turns), Reason: "empty id set"}
	}
	first := -1
	for i, t := range l.turns {
		if t.ID == ids[0] {
			first = i
			break
		}
	}
	if first < 0 {
		return 0, 0, &InvalidRangeError{First: -1, Last: -1, Len: len(l.turns), Reason: fmt.Sprintf("id %d not present", ids[0])}
	}
	last := first + len(ids) - 1
	if last >= len(l.turns) {
		return 0, 0, &InvalidRangeError{First: first, Last: last, Len: len(l.turns), Reason: "span exceeds log"}
	}
	for k, id := range ids {
		if l.turns[first+k].ID != id {
			return 0, 0, &InvalidRangeError{First: first, Last: last, Len: len(l.turns), Reason: fmt.Sprintf("id %d displaced", id)}
		}
	}
	return first, last, nil
}

// Reset drops every turn while keeping the id high-water mark, so ids are
// never reused within the session even across a clear.
func (l *Log) Reset() {
	if l == nil {
		return
	}
	l.turns = nil
	l.prefix = []int{0}
}

func (l *Log) checkSpan(first, last int) error {
	if first < 0 || last < first || last >= len(l.turns) {
		return &InvalidRangeError{First: first, Last: last, Len: len(l.turns), Reason: "out of bounds"}
	}
	return nil
}

func (l *Log) rebuildPrefixFrom(i int) {
	l.prefix = l.prefix[:i+1]
	for k := i; k < len(l.turns); k++ {
		l.prefix = append(l.prefix, l.prefix[len(l.prefix)-1]+l.turns[k].TokenCount)
	}
}
