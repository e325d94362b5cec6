package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/cricket/pkg/turns"
)

func retiredTurn(session string, id int64, reason RetireReason, retiredAtMs int64) RetiredTurn {
	return RetiredTurn{
		SessionID:   session,
		Reason:      reason,
		RetiredAtMs: retiredAtMs,
		Turn: turns.Turn{
			ID:         id,
			Role:       turns.RoleUser,
			Content:    "some earlier exchange",
			CreatedAt:  time.UnixMilli(retiredAtMs).UTC(),
			TokenCount: 10,
		},
	}
}

func TestInMemoryStore_RecordAndListNewestFirst(t *testing.T) {
	s := NewInMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, s.RecordRetired(ctx, retiredTurn("s1", 1, ReasonEvicted, 100)))
	require.NoError(t, s.RecordRetired(ctx, retiredTurn("s1", 2, ReasonSummarized, 300)))
	require.NoError(t, s.RecordRetired(ctx, retiredTurn("s1", 3, ReasonSummarized, 200)))

	items, err := s.List(ctx, Query{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, int64(2), items[0].Turn.ID)
	assert.Equal(t, int64(3), items[1].Turn.ID)
	assert.Equal(t, int64(1), items[2].Turn.ID)
}

func TestInMemoryStore_ListFilters(t *testing.T) {
	s := NewInMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, s.RecordRetired(ctx, retiredTurn("s1", 1, ReasonEvicted, 100)))
	require.NoError(t, s.RecordRetired(ctx, retiredTurn("s1", 2, ReasonSummarized, 200)))
	require.NoError(t, s.RecordRetired(ctx, retiredTurn("s2", 3, ReasonEvicted, 300)))

	byReason, err := s.List(ctx, Query{Reason: ReasonEvicted})
	require.NoError(t, err)
	require.Len(t, byReason, 2)
	assert.Equal(t, "s2", byReason[0].SessionID)

	bySince, err := s.List(ctx, Query{SessionID: "s1", SinceMs: 150})
	require.NoError(t, err)
	require.Len(t, bySince, 1)
	assert.Equal(t, int64(2), bySince[0].Turn.ID)

	limited, err := s.List(ctx, Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, int64(3), limited[0].Turn.ID)
}

func TestInMemoryStore_RejectsBadRecords(t *testing.T) {
	s := NewInMemoryStore(0)
	ctx := context.Background()

	err := s.RecordRetired(ctx, retiredTurn("", 1, ReasonEvicted, 100))
	require.Error(t, err)

	err = s.RecordRetired(ctx, retiredTurn("s1", 1, RetireReason("lost"), 100))
	require.Error(t, err)
}

func TestInMemoryStore_TrimsOldestBeyondCap(t *testing.T) {
	s := NewInMemoryStore(2)
	ctx := context.Background()

	require.NoError(t, s.RecordRetired(ctx, retiredTurn("s1", 1, ReasonEvicted, 100)))
	require.NoError(t, s.RecordRetired(ctx, retiredTurn("s1", 2, ReasonEvicted, 200)))
	require.NoError(t, s.RecordRetired(ctx, retiredTurn("s1", 3, ReasonEvicted, 300)))

	items, err := s.List(ctx, Query{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(3), items[0].Turn.ID)
	assert.Equal(t, int64(2), items[1].Turn.ID)
}

func TestInMemoryStore_ListReturnsIsolatedCopies(t *testing.T) {
	s := NewInMemoryStore(0)
	ctx := context.Background()

	rt := retiredTurn("s1", 5, ReasonSummarized, 100)
	rt.Turn.IsSummary = true
	rt.Turn.Covers = []int64{1, 2, 3}
	require.NoError(t, s.RecordRetired(ctx, rt))

	first, err := s.List(ctx, Query{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, first, 1)
	first[0].Turn.Covers[0] = 99
	first[0].Turn.Content = "mutated"

	second, err := s.List(ctx, Query{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, []int64{1, 2, 3}, second[0].Turn.Covers)
	assert.Equal(t, "some earlier exchange", second[0].Turn.Content)
}
