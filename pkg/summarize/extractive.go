package summarize

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

// Extractive is a deterministic, local Summarizer. It scores sentences by
// length and by engineering-topic keywords, keeps the best few in their
// original order, and never fails on non-empty input. Useful as a default
// when no model-backed summarizer is configured, and in tests.
type Extractive struct {
	// MaxSentences caps the summary; 0 means 5.
	MaxSentences int
}

var _ Summarizer = Extractive{}

var extractiveKeywords = []string{
	"implement", "create", "solution", "problem", "error", "fix",
	"code", "function", "class", "method", "api", "database",
}

const minSentenceLen = 20

func (e Extractive) Summarize(_ context.Context, orderedTexts []string) (string, error) {
	combined := strings.TrimSpace(strings.Join(orderedTexts, " "))
	if combined == "" {
		return "", nil
	}
	maxSentences := e.MaxSentences
	if maxSentences <= 0 {
		maxSentences = 5
	}

	type candidate struct {
		idx   int
		text  string
		score float64
	}
	var candidates []candidate
	for i, sentence := range strings.Split(combined, ".") {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) < minSentenceLen {
			continue
		}
		score := math.Min(float64(len(sentence))/100, 1.0)
		lower := strings.ToLower(sentence)
		for _, kw := range extractiveKeywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		candidates = append(candidates, candidate{idx: i, text: sentence, score: score})
	}

	if len(candidates) == 0 {
		// Nothing sentence-shaped; fall back to a hard truncation.
		if len(combined) > 240 {
			cut := 240
			for cut > 0 && !utf8.RuneStart(combined[cut]) {
				cut--
			}
			combined = strings.TrimSpace(combined[:cut])
		}
		return combined, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > maxSentences {
		candidates = candidates[:maxSentences]
	}
	// Restore chronological order so the summary reads as a narrative.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].idx < candidates[j].idx
	})

	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		parts = append(parts, c.text)
	}
	return strings.Join(parts, ". ") + ".", nil
}
