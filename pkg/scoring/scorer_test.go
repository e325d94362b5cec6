package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/cricket/pkg/turns"
)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(DefaultConfig())
	require.NoError(t, err)
	return s
}

func TestNewScorer_Validation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecencyDecay = 1.0
	_, err := NewScorer(cfg)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.RecencyDecay = 0
	_, err = NewScorer(cfg)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.LongTurnTokens = 0
	_, err = NewScorer(cfg)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.Weights.Recency = -0.1
	_, err = NewScorer(cfg)
	require.Error(t, err)
}

func TestScoreRecencyMonotonicity(t *testing.T) {
	s := newTestScorer(t)
	turn := turns.Turn{Role: turns.RoleUser, TokenCount: 120}

	prev := s.Score(turn, 0)
	for d := 1; d < 40; d++ {
		cur := s.Score(turn, d)
		require.Less(t, cur, prev, "distance %d must score strictly below distance %d", d, d-1)
		prev = cur
	}
}

func TestScoreFeatureContributions(t *testing.T) {
	s := newTestScorer(t)
	base := turns.Turn{Role: turns.RoleAssistant, TokenCount: 100}

	withCode := base
	withCode.HasCode = true
	assert.Greater(t, s.Score(withCode, 5), s.Score(base, 5))

	withAttach := base
	withAttach.HasAttachment = true
	assert.Greater(t, s.Score(withAttach, 5), s.Score(base, 5))

	long := base
	long.TokenCount = 5000
	assert.Less(t, s.Score(long, 5), s.Score(base, 5))
}

func TestScoreRoleOrdering(t *testing.T) {
	s := newTestScorer(t)
	at := func(role turns.Role) float64 {
		return s.Score(turns.Turn{Role: role, TokenCount: 100}, 5)
	}
	assert.Greater(t, at(turns.RoleSystem), at(turns.RoleUser))
	assert.Greater(t, at(turns.RoleUser), at(turns.RoleSummary))
	assert.Greater(t, at(turns.RoleSummary), at(turns.RoleAssistant))
}

func TestScoreIgnoresIsSummaryFlag(t *testing.T) {
	s := newTestScorer(t)
	plain := turns.Turn{Role: turns.RoleSummary, TokenCount: 80}
	flagged := plain
	flagged.IsSummary = true
	flagged.Covers = []int64{1, 2, 3}

	assert.Equal(t, s.Score(plain, 7), s.Score(flagged, 7))
}

func TestScoreClampedToUnitRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Recency: 2, Code: 2, Attachment: 2, Role: 2, Length: -5}
	s, err := NewScorer(cfg)
	require.NoError(t, err)

	hot := turns.Turn{Role: turns.RoleSystem, HasCode: true, HasAttachment: true, TokenCount: 10}
	assert.Equal(t, 1.0, s.Score(hot, 0))

	cold := turns.Turn{Role: turns.RoleAssistant, TokenCount: 100000}
	assert.Equal(t, 0.0, s.Score(cold, 50))
}

func TestScoreAllPositions(t *testing.T) {
	s := newTestScorer(t)
	ts := []turns.Turn{
		{Role: turns.RoleUser, TokenCount: 100},
		{Role: turns.RoleUser, TokenCount: 100},
		{Role: turns.RoleUser, TokenCount: 100},
	}
	scores := s.ScoreAll(ts)
	require.Len(t, scores, 3)
	assert.Less(t, scores[0], scores[1])
	assert.Less(t, scores[1], scores[2])
	assert.Equal(t, s.Score(ts[2], 0), scores[2])

	assert.Nil(t, s.ScoreAll(nil))
}

func TestScoreDeterministic(t *testing.T) {
	s := newTestScorer(t)
	turn := turns.Turn{Role: turns.RoleUser, HasCode: true, TokenCount: 345}
	first := s.Score(turn, 9)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, s.Score(turn, 9))
	}
}
