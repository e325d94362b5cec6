package contextmgr

import (
	"math"

	"github.com/go-go-golems/cricket/pkg/scoring"
	"github.com/go-go-golems/cricket/pkg/turns"
)

// Stats is a point-in-time aggregate over one consistent snapshot plus the
// session's cumulative counters. Two Stats calls with no intervening mutation
// are identical.
type Stats struct {
	TotalTurns             int     `json:"total_turns" yaml:"total_turns"`
	TotalTokens            int     `json:"total_tokens" yaml:"total_tokens"`
	AverageImportance      float64 `json:"average_importance" yaml:"average_importance"`
	TurnsWithCode          int     `json:"turns_with_code" yaml:"turns_with_code"`
	TurnsWithAttachments   int     `json:"turns_with_attachments" yaml:"turns_with_attachments"`
	SummariesCreated       int     `json:"summaries_created" yaml:"summaries_created"`
	TokensSavedBySummaries int     `json:"tokens_saved_by_summaries" yaml:"tokens_saved_by_summaries"`
	TurnsEvicted           int     `json:"turns_evicted" yaml:"turns_evicted"`
}

func computeStats(snapshot []turns.Turn, scorer *scoring.Scorer, summariesCreated, tokensSaved, turnsEvicted int) Stats {
	st := Stats{
		TotalTurns:             len(snapshot),
		SummariesCreated:       summariesCreated,
		TokensSavedBySummaries: tokensSaved,
		TurnsEvicted:           turnsEvicted,
	}
	scores := scorer.ScoreAll(snapshot)
	var scoreSum float64
	for i, t := range snapshot {
		st.TotalTokens += t.TokenCount
		if t.HasCode {
			st.TurnsWithCode++
		}
		if t.HasAttachment {
			st.TurnsWithAttachments++
		}
		scoreSum += scores[i]
	}
	if len(snapshot) > 0 {
		st.AverageImportance = math.Round(scoreSum/float64(len(snapshot))*100) / 100
	}
	return st
}
