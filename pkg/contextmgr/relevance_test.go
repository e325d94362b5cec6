package contextmgr

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/cricket/pkg/turns"
)

func relevanceSession(t *testing.T, contents ...string) *Session {
	t.Helper()
	s, err := NewSession("s1", DefaultConfig(), WithCounter(stubCounter{def: 5}))
	require.NoError(t, err)
	for _, content := range contents {
		_, err := s.AddTurn(context.Background(), turns.RoleUser, content, false)
		require.NoError(t, err)
	}
	return s
}

func TestRelevantTurns_RanksByOverlapChronologically(t *testing.T) {
	s := relevanceSession(t,
		"the database connection keeps timing out",
		"try increasing the pool size",
		"database pool size matters for connection reuse",
		"weather is nice today",
	)

	// top two by overlap are turns 3 and 1, returned oldest first
	got := s.RelevantTurns("database connection pool", 2)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)

	// zero-overlap turns never appear, whatever k allows
	all := s.RelevantTurns("database connection pool", 10)
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, int64(2), all[1].ID)
	assert.Equal(t, int64(3), all[2].ID)
}

func TestRelevantTurns_TieGoesToNewerTurn(t *testing.T) {
	s := relevanceSession(t,
		"postgres index bloat",
		"postgres index bloat",
	)

	got := s.RelevantTurns("postgres index", 1)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestRelevantTurns_DegenerateQueries(t *testing.T) {
	s := relevanceSession(t, "the database connection keeps timing out")

	assert.Nil(t, s.RelevantTurns("the and of", 5))
	assert.Nil(t, s.RelevantTurns("", 5))
	assert.Nil(t, s.RelevantTurns("database", 0))
	assert.Empty(t, relevanceSession(t).RelevantTurns("database", 5))
}

func TestKeyPoints_CollectsIndicatorSentencesAndShortCode(t *testing.T) {
	longFence := "```\n" + strings.Repeat("x", 210) + "\n```"
	s := relevanceSession(t,
		"Note that the pool must be closed on shutdown. The weather is nice.",
		"the main fix is to cap the pool at ten connections",
		"use this helper: `pool.Close()`",
		longFence,
	)

	got := s.KeyPoints(0)
	assert.Equal(t, []string{
		"Note that the pool must be closed on shutdown",
		"the main fix is to cap the pool at ten connections",
		"Code: `pool.Close()`",
	}, got)
}

func TestKeyPoints_RespectsLimit(t *testing.T) {
	s := relevanceSession(t,
		"Remember to vacuum the tables regularly. The key insight is correct indexing. Note that autovacuum still needs tuning.",
	)

	got := s.KeyPoints(2)
	assert.Equal(t, []string{
		"Remember to vacuum the tables regularly",
		"The key insight is correct indexing",
	}, got)
}

func TestKeyPoints_EmptySession(t *testing.T) {
	s := relevanceSession(t)
	assert.Empty(t, s.KeyPoints(5))
}
