package contextmgr

import (
	"regexp"
	"sort"
	"strings"

	"github.com/go-go-golems/cricket/pkg/turns"
)

var wordRe = regexp.MustCompile(`\b\w+\b`)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "may": {},
	"might": {}, "can": {}, "this": {}, "that": {}, "these": {}, "those": {},
}

var keyPointIndicators = []string{
	"important", "note", "remember", "key", "main",
	"solution", "answer", "result", "conclusion",
}

// maxKeyPointCodeLen keeps only short code snippets as key points; long
// blocks belong in the turns themselves.
const maxKeyPointCodeLen = 200

// RelevantTurns returns up to k turns whose content overlaps the query,
// ranked by Jaccard similarity of keyword sets and returned in chronological
// order. Turns with zero overlap are never included. Pure read.
func (s *Session) RelevantTurns(query string, k int) []turns.Turn {
	if s == nil || k <= 0 {
		return nil
	}
	queryWords := extractKeywords(query)
	if len(queryWords) == 0 {
		return nil
	}

	s.stateMu.RLock()
	snapshot := s.log.All()
	s.stateMu.RUnlock()

	type scored struct {
		turn       turns.Turn
		similarity float64
	}
	candidates := make([]scored, 0, len(snapshot))
	for _, t := range snapshot {
		sim := jaccard(queryWords, extractKeywords(t.Content))
		if sim > 0 {
			candidates = append(candidates, scored{turn: t, similarity: sim})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].similarity == candidates[j].similarity {
			return candidates[i].turn.ID > candidates[j].turn.ID
		}
		return candidates[i].similarity > candidates[j].similarity
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].turn.ID < candidates[j].turn.ID
	})

	out := make([]turns.Turn, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.turn)
	}
	return out
}

// KeyPoints scans the current turns for sentences carrying key-point
// indicator words, plus short code snippets, capped at limit (default 10).
// Pure read over one consistent snapshot.
func (s *Session) KeyPoints(limit int) []string {
	if s == nil {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	s.stateMu.RLock()
	snapshot := s.log.All()
	s.stateMu.RUnlock()

	points := make([]string, 0, limit)
	for _, t := range snapshot {
		for _, sentence := range strings.Split(t.Content, ".") {
			sentence = strings.TrimSpace(sentence)
			if len(sentence) <= 20 {
				continue
			}
			lower := strings.ToLower(sentence)
			for _, indicator := range keyPointIndicators {
				if strings.Contains(lower, indicator) {
					points = append(points, sentence)
					break
				}
			}
		}
		if t.HasCode {
			for _, block := range turns.ExtractCodeBlocks(t.Content) {
				if len(block) < maxKeyPointCodeLen {
					points = append(points, "Code: "+block)
				}
			}
		}
		if len(points) >= limit {
			break
		}
	}
	if len(points) > limit {
		points = points[:limit]
	}
	return points
}

// extractKeywords lowercases, tokenizes, and drops stop words and words of
// one or two characters.
func extractKeywords(text string) map[string]struct{} {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
