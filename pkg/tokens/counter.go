package tokens

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Counter reports the token cost of a piece of text. Implementations must be
// deterministic and monotonic in text length; exact fidelity with any
// particular model tokenizer is not required.
type Counter interface {
	Count(text string) int
}

// Estimator approximates token counts as words * 1.33 without any model
// vocabulary. It is the fallback when the tiktoken encoding cannot be
// initialized, and the cheap deterministic choice for tests.
type Estimator struct{}

var _ Counter = Estimator{}

func (Estimator) Count(text string) int {
	words := len(strings.Fields(text))
	return int(float64(words) * 1.33)
}

// NewDefaultCounter returns a cl100k_base tiktoken counter, or the word
// estimator when the encoding is unavailable.
func NewDefaultCounter() Counter {
	c, err := NewTiktokenCounter(DefaultEncoding)
	if err != nil {
		log.Warn().Err(err).Str("component", "tokens").Msg("tiktoken unavailable, falling back to word estimate")
		return Estimator{}
	}
	return c
}
