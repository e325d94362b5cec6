package contextmgr

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-go-golems/cricket/pkg/archive"
	"github.com/go-go-golems/cricket/pkg/eventstream"
	"github.com/go-go-golems/cricket/pkg/turns"
)

// compactionPlan is one step selected against a consistent view of the log:
// either a run to summarize (run non-empty, length >= 2) or a single turn to
// evict (evictIdx >= 0). The epoch and ids pin the view so the commit can
// detect concurrent clears and mutations after the summarizer wait.
type compactionPlan struct {
	epoch    uint64
	run      []turns.Turn
	runIDs   []int64
	evictIdx int
}

// compact drives the session back under the token budget. It holds compactMu
// for the whole invocation, so at most one compaction runs per session; the
// state lock is taken per step for selection and commit, never across the
// summarizer call.
//
// Per step: protect the newest ProtectedWindow turns, pick the longest
// below-threshold run among the eligible rest (oldest wins ties, cover
// weight capped), and summarize it; runs shorter than two turns mean the
// single oldest eligible turn is evicted outright. Summarizer failure or an
// exhausted attempt budget switches the rest of the invocation to eviction.
// The loop ends when the budget is met or only protected turns remain, the
// latter surfacing BudgetExceededError.
func (s *Session) compact(ctx context.Context) error {
	s.compactMu.Lock()
	defer s.compactMu.Unlock()

	attempts := 0
	summarizeOK := s.summarizer != nil

	for {
		s.stateMu.Lock()
		total := s.log.TotalTokens()
		if total <= s.cfg.TokenBudget {
			s.stateMu.Unlock()
			return nil
		}

		allowSummaries := summarizeOK && attempts < s.cfg.MaxSummarizeAttempts
		plan, ok := s.selectVictimsLocked(allowSummaries)
		if !ok {
			s.stateMu.Unlock()
			s.logger.Warn().
				Int("total_tokens", total).
				Int("token_budget", s.cfg.TokenBudget).
				Msg("over budget with only protected turns left")
			s.publish(ctx, eventstream.Event{
				Type:        eventstream.EventBudgetExceeded,
				SessionID:   s.id,
				At:          s.now(),
				TokenBudget: s.cfg.TokenBudget,
				TotalTokens: total,
			})
			return &BudgetExceededError{Budget: s.cfg.TokenBudget, TotalTokens: total}
		}

		if plan.evictIdx >= 0 {
			evicted, err := s.log.EvictAt(plan.evictIdx)
			if err != nil {
				s.stateMu.Unlock()
				return errors.Wrap(err, "context manager: evict turn")
			}
			s.turnsEvicted++
			totalAfter := s.log.TotalTokens()
			s.stateMu.Unlock()

			s.logger.Warn().
				Int64("turn_id", evicted.ID).
				Int("token_count", evicted.TokenCount).
				Int("total_tokens", totalAfter).
				Msg("turn evicted")
			s.archiveRetired(ctx, archive.ReasonEvicted, 0, evicted)
			s.publish(ctx, eventstream.Event{
				Type:       eventstream.EventTurnsEvicted,
				SessionID:  s.id,
				At:         s.now(),
				EvictedIDs: []int64{evicted.ID},
			})
			continue
		}

		texts := make([]string, len(plan.run))
		for i, t := range plan.run {
			texts[i] = t.Content
		}
		s.stateMu.Unlock()

		attempts++
		sctx, cancel := context.WithTimeout(ctx, s.cfg.SummarizeTimeout.Std())
		text, err := s.summarizer.Summarize(sctx, texts)
		cancel()
		if err != nil {
			summarizeOK = false
			serr := &SummarizationError{Cause: err}
			s.logger.Warn().
				Err(serr).
				Int("attempt", attempts).
				Int("run_len", len(plan.run)).
				Msg("summarization failed, switching to eviction")
			continue
		}
		tokenCount := s.counter.Count(text)

		s.stateMu.Lock()
		if s.epoch != plan.epoch {
			s.stateMu.Unlock()
			s.logger.Info().Msg("summary discarded, session cleared during summarization")
			continue
		}
		first, last, err := s.log.SpanOfIDs(plan.runIDs)
		if err != nil {
			s.stateMu.Unlock()
			var ire *turns.InvalidRangeError
			if errors.As(err, &ire) {
				s.logger.Info().Str("reason", ire.Reason).Msg("summary discarded, victims changed during summarization")
				continue
			}
			return errors.Wrap(err, "context manager: revalidate summary span")
		}
		summary := turns.Turn{
			ID:         s.log.MaxID() + 1,
			Role:       turns.RoleSummary,
			Content:    text,
			CreatedAt:  s.now(),
			TokenCount: tokenCount,
			HasCode:    turns.ContainsCode(text),
			IsSummary:  true,
			Covers:     plan.runIDs,
		}
		removed, err := s.log.SpliceReplace(first, last, summary)
		if err != nil {
			s.stateMu.Unlock()
			var ire *turns.InvalidRangeError
			if errors.As(err, &ire) {
				s.logger.Info().Str("reason", ire.Reason).Msg("summary splice discarded")
				continue
			}
			return errors.Wrap(err, "context manager: splice summary")
		}
		removedTokens := 0
		for _, t := range removed {
			removedTokens += t.TokenCount
		}
		saved := removedTokens - tokenCount
		if saved < 0 {
			saved = 0
		}
		s.summariesCreated++
		s.tokensSaved += saved
		totalAfter := s.log.TotalTokens()
		s.stateMu.Unlock()

		s.logger.Debug().
			Int64("summary_id", summary.ID).
			Int("covered", len(removed)).
			Int("summary_tokens", tokenCount).
			Int("tokens_saved", saved).
			Int("total_tokens", totalAfter).
			Msg("summary spliced in")
		for _, t := range removed {
			s.archiveRetired(ctx, archive.ReasonSummarized, summary.ID, t)
		}
		s.publish(ctx, eventstream.Event{
			Type:        eventstream.EventSummaryCreated,
			SessionID:   s.id,
			At:          s.now(),
			SummaryID:   summary.ID,
			Covers:      summary.Covers,
			TokensSaved: saved,
		})
	}
}

// selectVictimsLocked picks the next compaction step against the current
// log. Caller holds stateMu. Returns false when every turn is protected.
//
// With summaries allowed, the eligible prefix is scanned oldest-first for
// the longest contiguous run of below-threshold turns; a run breaks at a
// turn meeting the threshold and at a turn whose cover weight would push the
// run past MaxSummaryCoversLength (such a turn may start a fresh run). Ties
// go to the oldest run. Anything short of a two-turn run degrades to
// evicting the oldest eligible turn regardless of its score.
func (s *Session) selectVictimsLocked(allowSummaries bool) (compactionPlan, bool) {
	snapshot := s.log.All()
	eligibleEnd := len(snapshot) - s.cfg.ProtectedWindow
	if eligibleEnd <= 0 {
		return compactionPlan{}, false
	}

	plan := compactionPlan{epoch: s.epoch, evictIdx: -1}
	if allowSummaries {
		scores := s.scorer.ScoreAll(snapshot)
		bestFirst, bestLen := -1, 0
		runFirst, runWeight := -1, 0
		for i := 0; i < eligibleEnd; i++ {
			if scores[i] >= s.cfg.SummarizationThreshold {
				runFirst, runWeight = -1, 0
				continue
			}
			w := snapshot[i].CoverWeight()
			if w > s.cfg.MaxSummaryCoversLength {
				runFirst, runWeight = -1, 0
				continue
			}
			switch {
			case runFirst < 0:
				runFirst, runWeight = i, w
			case runWeight+w > s.cfg.MaxSummaryCoversLength:
				runFirst, runWeight = i, w
			default:
				runWeight += w
			}
			if length := i - runFirst + 1; length > bestLen {
				bestFirst, bestLen = runFirst, length
			}
		}
		if bestLen >= 2 {
			plan.run = snapshot[bestFirst : bestFirst+bestLen]
			ids := make([]int64, len(plan.run))
			for i, t := range plan.run {
				ids[i] = t.ID
			}
			plan.runIDs = ids
			return plan, true
		}
	}

	plan.evictIdx = 0
	return plan, true
}
