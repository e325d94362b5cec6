package contextmgr

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/cricket/pkg/archive"
	"github.com/go-go-golems/cricket/pkg/eventstream"
	"github.com/go-go-golems/cricket/pkg/scoring"
	"github.com/go-go-golems/cricket/pkg/turns"
)

type stubCounter struct {
	counts map[string]int
	def    int
}

func (c stubCounter) Count(text string) int {
	if n, ok := c.counts[text]; ok {
		return n
	}
	if c.def > 0 {
		return c.def
	}
	return len(strings.Fields(text))
}

type stubSummarizer struct {
	mu      sync.Mutex
	output  string
	err     error
	calls   [][]string
	started chan struct{}
	release chan struct{}
}

func (s *stubSummarizer) Summarize(ctx context.Context, texts []string) (string, error) {
	s.mu.Lock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	s.calls = append(s.calls, cp)
	started := s.started
	release := s.release
	out := s.output
	err := s.err
	s.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

func (s *stubSummarizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubSummarizer) call(i int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

type recordingSink struct {
	mu  sync.Mutex
	evs []eventstream.Event
}

func (r *recordingSink) Publish(_ context.Context, ev eventstream.Event) error {
	r.mu.Lock()
	r.evs = append(r.evs, ev)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) byType(t eventstream.EventType) []eventstream.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []eventstream.Event{}
	for _, ev := range r.evs {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// tightBudgetConfig: budget 1000, two protected turns, and recency-only
// scoring (decay 0.5) so every turn more than one position from the newest
// scores 0.25 or less, under the 0.3 threshold.
func tightBudgetConfig() Config {
	cfg := DefaultConfig()
	cfg.TokenBudget = 1000
	cfg.ProtectedWindow = 2
	cfg.SummarizationThreshold = 0.3
	cfg.Scoring = scoring.Config{
		Weights:        scoring.Weights{Recency: 1},
		RecencyDecay:   0.5,
		LongTurnTokens: 1000,
	}
	return cfg
}

func seedTurns(t *testing.T, s *Session, n, tokensEach int) {
	t.Helper()
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	for i := 1; i <= n; i++ {
		err := s.log.Append(turns.Turn{
			ID:         int64(i),
			Role:       turns.RoleUser,
			Content:    fmt.Sprintf("m%d", i),
			CreatedAt:  time.Now(),
			TokenCount: tokensEach,
		})
		require.NoError(t, err)
	}
}

func TestNewSession_GeneratesIDWhenEmpty(t *testing.T) {
	s, err := NewSession("", DefaultConfig(), WithCounter(stubCounter{def: 1}))
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())

	s2, err := NewSession("mine", DefaultConfig(), WithCounter(stubCounter{def: 1}))
	require.NoError(t, err)
	assert.Equal(t, "mine", s2.ID())
}

func TestNewSession_RejectsBadConfigAndNilCollaborators(t *testing.T) {
	bad := DefaultConfig()
	bad.TokenBudget = 0
	_, err := NewSession("s1", bad)
	require.Error(t, err)

	_, err = NewSession("s1", DefaultConfig(), WithSummarizer(nil))
	require.Error(t, err)
	_, err = NewSession("s1", DefaultConfig(), WithCounter(nil))
	require.Error(t, err)
	_, err = NewSession("s1", DefaultConfig(), WithArchive(nil))
	require.Error(t, err)
	_, err = NewSession("s1", DefaultConfig(), WithEvents(nil))
	require.Error(t, err)
	_, err = NewSession("s1", DefaultConfig(), WithClock(nil))
	require.Error(t, err)
}

func TestAddTurn_AssignsMonotonicIDsAndCountsTokens(t *testing.T) {
	s, err := NewSession("s1", DefaultConfig(), WithCounter(stubCounter{}))
	require.NoError(t, err)
	ctx := context.Background()

	first, err := s.AddTurn(ctx, turns.RoleUser, "how do I sort a slice", false)
	require.NoError(t, err)
	second, err := s.AddTurn(ctx, turns.RoleAssistant, "use sort.Slice like this: `sort.Slice(xs, less)`", false)
	require.NoError(t, err)
	third, err := s.AddTurn(ctx, turns.RoleUser, "thanks, attaching my file", true)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, int64(3), third.ID)
	assert.False(t, first.HasCode)
	assert.True(t, second.HasCode)
	assert.True(t, third.HasAttachment)
	assert.Equal(t, 6, first.TokenCount)

	st := s.Stats()
	assert.Equal(t, 3, st.TotalTurns)
	assert.Equal(t, first.TokenCount+second.TokenCount+third.TokenCount, st.TotalTokens)
	assert.Equal(t, 1, st.TurnsWithCode)
	assert.Equal(t, 1, st.TurnsWithAttachments)
}

func TestAddTurn_RejectsUnknownRole(t *testing.T) {
	s, err := NewSession("s1", DefaultConfig(), WithCounter(stubCounter{def: 1}))
	require.NoError(t, err)

	_, err = s.AddTurn(context.Background(), turns.Role("moderator"), "hello", false)
	require.Error(t, err)
	assert.Equal(t, 0, s.Stats().TotalTurns)
}

func TestContextForModel_TailAndScoreStamping(t *testing.T) {
	s, err := NewSession("s1", DefaultConfig(), WithCounter(stubCounter{def: 10}))
	require.NoError(t, err)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.AddTurn(ctx, turns.RoleUser, fmt.Sprintf("message %d", i), false)
		require.NoError(t, err)
	}

	all := s.ContextForModel(0)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
		// same-feature turns: newer must score strictly higher
		assert.Greater(t, all[i].ImportanceScore, all[i-1].ImportanceScore)
	}

	tail := s.ContextForModel(2)
	require.Len(t, tail, 2)
	assert.Equal(t, int64(4), tail[0].ID)
	assert.Equal(t, int64(5), tail[1].ID)
}

func TestContextForModel_SnapshotIsolation(t *testing.T) {
	s, err := NewSession("s1", DefaultConfig(), WithCounter(stubCounter{def: 10}))
	require.NoError(t, err)
	_, err = s.AddTurn(context.Background(), turns.RoleUser, "original content", false)
	require.NoError(t, err)

	snap := s.ContextForModel(0)
	snap[0].Content = "mutated"

	again := s.ContextForModel(0)
	assert.Equal(t, "original content", again[0].Content)
}

func TestStats_IdempotentWithoutMutation(t *testing.T) {
	s, err := NewSession("s1", DefaultConfig(), WithCounter(stubCounter{def: 10}))
	require.NoError(t, err)
	ctx := context.Background()
	_, err = s.AddTurn(ctx, turns.RoleUser, "first", false)
	require.NoError(t, err)
	_, err = s.AddTurn(ctx, turns.RoleAssistant, "second", false)
	require.NoError(t, err)

	a := s.Stats()
	b := s.Stats()
	assert.Equal(t, a, b)
}

func TestStats_AverageImportanceRounding(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scoring = scoring.Config{
		Weights:        scoring.Weights{Recency: 1},
		RecencyDecay:   0.5,
		LongTurnTokens: 1000,
	}
	s, err := NewSession("s1", cfg, WithCounter(stubCounter{def: 10}))
	require.NoError(t, err)
	ctx := context.Background()
	// scores 0.25, 0.5, 1.0 -> mean 0.5833... -> 0.58
	for i := 0; i < 3; i++ {
		_, err := s.AddTurn(ctx, turns.RoleUser, fmt.Sprintf("m%d", i), false)
		require.NoError(t, err)
	}

	assert.InDelta(t, 0.58, s.Stats().AverageImportance, 1e-9)
}

func TestCompact_SummarizesLongestEligibleRun(t *testing.T) {
	sum := &stubSummarizer{output: "condensed history of the early exchange"}
	store := archive.NewInMemoryStore(0)
	sink := &recordingSink{}
	s, err := NewSession("s1", tightBudgetConfig(),
		WithCounter(stubCounter{def: 150}),
		WithSummarizer(sum),
		WithArchive(store),
		WithEvents(sink),
	)
	require.NoError(t, err)
	seedTurns(t, s, 10, 150)

	require.NoError(t, s.compact(context.Background()))

	snapshot := s.ContextForModel(0)
	require.Len(t, snapshot, 3)
	require.True(t, snapshot[0].IsSummary)
	assert.Equal(t, turns.RoleSummary, snapshot[0].Role)
	assert.Equal(t, int64(11), snapshot[0].ID)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8}, snapshot[0].Covers)
	assert.Equal(t, int64(9), snapshot[1].ID)
	assert.Equal(t, int64(10), snapshot[2].ID)

	st := s.Stats()
	assert.Equal(t, 1, st.SummariesCreated)
	assert.Equal(t, 0, st.TurnsEvicted)
	assert.LessOrEqual(t, st.TotalTokens, 1000)
	assert.Equal(t, 8*150-150, st.TokensSavedBySummaries)

	require.Equal(t, 1, sum.callCount())
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8"}, sum.call(0))

	archived, err := store.List(context.Background(), archive.Query{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, archived, 8)
	for _, rt := range archived {
		assert.Equal(t, archive.ReasonSummarized, rt.Reason)
		assert.Equal(t, int64(11), rt.SummaryID)
	}

	created := sink.byType(eventstream.EventSummaryCreated)
	require.Len(t, created, 1)
	assert.Equal(t, int64(11), created[0].SummaryID)
	assert.Equal(t, 8*150-150, created[0].TokensSaved)
	assert.Equal(t, "s1", created[0].SessionID)
}

func TestCompact_FallsBackToEvictionWhenSummarizerFails(t *testing.T) {
	sum := &stubSummarizer{err: errors.New("model unavailable")}
	store := archive.NewInMemoryStore(0)
	sink := &recordingSink{}
	s, err := NewSession("s1", tightBudgetConfig(),
		WithCounter(stubCounter{def: 150}),
		WithSummarizer(sum),
		WithArchive(store),
		WithEvents(sink),
	)
	require.NoError(t, err)
	seedTurns(t, s, 10, 150)

	require.NoError(t, s.compact(context.Background()))

	st := s.Stats()
	assert.Equal(t, 0, st.SummariesCreated)
	assert.Equal(t, 0, st.TokensSavedBySummaries)
	assert.Equal(t, 4, st.TurnsEvicted)
	assert.Equal(t, 900, st.TotalTokens)
	assert.Equal(t, 1, sum.callCount())

	snapshot := s.ContextForModel(0)
	require.Len(t, snapshot, 6)
	assert.Equal(t, int64(5), snapshot[0].ID)

	archived, err := store.List(context.Background(), archive.Query{SessionID: "s1", Reason: archive.ReasonEvicted})
	require.NoError(t, err)
	assert.Len(t, archived, 4)
	assert.Len(t, sink.byType(eventstream.EventTurnsEvicted), 4)
}

func TestCompact_BudgetExceededLeavesProtectedIntact(t *testing.T) {
	sum := &stubSummarizer{err: errors.New("model unavailable")}
	sink := &recordingSink{}
	cfg := tightBudgetConfig()
	cfg.TokenBudget = 200
	s, err := NewSession("s1", cfg,
		WithCounter(stubCounter{def: 150}),
		WithSummarizer(sum),
		WithEvents(sink),
	)
	require.NoError(t, err)
	seedTurns(t, s, 4, 150)

	err = s.compact(context.Background())
	var bee *BudgetExceededError
	require.ErrorAs(t, err, &bee)
	assert.Equal(t, 200, bee.Budget)
	assert.Equal(t, 300, bee.TotalTokens)

	snapshot := s.ContextForModel(0)
	require.Len(t, snapshot, 2)
	assert.Equal(t, int64(3), snapshot[0].ID)
	assert.Equal(t, int64(4), snapshot[1].ID)
	assert.Equal(t, 2, s.Stats().TurnsEvicted)

	exceeded := sink.byType(eventstream.EventBudgetExceeded)
	require.Len(t, exceeded, 1)
	assert.Equal(t, 200, exceeded[0].TokenBudget)
	assert.Equal(t, 300, exceeded[0].TotalTokens)
}

func TestAddTurn_OversizedProtectedTurnSurfacesBudgetError(t *testing.T) {
	cfg := tightBudgetConfig()
	s, err := NewSession("s1", cfg, WithCounter(stubCounter{def: 1200}))
	require.NoError(t, err)

	turn, err := s.AddTurn(context.Background(), turns.RoleUser, "one gigantic paste", false)
	var bee *BudgetExceededError
	require.ErrorAs(t, err, &bee)
	assert.Equal(t, int64(1), turn.ID)

	st := s.Stats()
	assert.Equal(t, 1, st.TotalTurns)
	assert.Equal(t, 1200, st.TotalTokens)
	assert.Equal(t, 0, st.TurnsEvicted)
	assert.Equal(t, 0, st.SummariesCreated)
}

func TestClear_DiscardsInFlightSummarySplice(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	sum := &stubSummarizer{output: "late summary", started: started, release: release}
	s, err := NewSession("s1", tightBudgetConfig(),
		WithCounter(stubCounter{def: 150}),
		WithSummarizer(sum),
	)
	require.NoError(t, err)
	seedTurns(t, s, 10, 150)

	done := make(chan error, 1)
	go func() { done <- s.compact(context.Background()) }()

	<-started
	s.Clear()
	close(release)

	require.NoError(t, <-done)
	st := s.Stats()
	assert.Equal(t, 0, st.TotalTurns)
	assert.Equal(t, 0, st.SummariesCreated)
	assert.Empty(t, s.ContextForModel(0))
}

func TestClear_ResetsCountersAndNeverReusesIDs(t *testing.T) {
	sink := &recordingSink{}
	s, err := NewSession("s1", DefaultConfig(), WithCounter(stubCounter{def: 10}), WithEvents(sink))
	require.NoError(t, err)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.AddTurn(ctx, turns.RoleUser, "hello there", false)
		require.NoError(t, err)
	}

	s.Clear()
	st := s.Stats()
	assert.Equal(t, 0, st.TotalTurns)
	assert.Equal(t, 0, st.TotalTokens)
	require.Len(t, sink.byType(eventstream.EventSessionCleared), 1)

	turn, err := s.AddTurn(ctx, turns.RoleUser, "fresh start", false)
	require.NoError(t, err)
	assert.Equal(t, int64(4), turn.ID)
}

func TestSession_ConcurrentAddAndRead(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TokenBudget = 1_000_000
	s, err := NewSession("s1", cfg, WithCounter(stubCounter{def: 5}))
	require.NoError(t, err)
	ctx := context.Background()

	const writers = 4
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := s.AddTurn(ctx, turns.RoleUser, fmt.Sprintf("w%d m%d", w, i), false)
				assert.NoError(t, err)
			}
		}(w)
	}
	stop := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 2; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = s.ContextForModel(0)
					_ = s.Stats()
				}
			}
		}()
	}
	wg.Wait()
	close(stop)
	readers.Wait()

	snapshot := s.ContextForModel(0)
	require.Len(t, snapshot, writers*perWriter)
	for i := 1; i < len(snapshot); i++ {
		assert.Less(t, snapshot[i-1].ID, snapshot[i].ID)
	}
	assert.Equal(t, writers*perWriter, s.Stats().TotalTurns)
}
