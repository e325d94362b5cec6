// Package scoring computes retention scores for conversation turns. Scores
// are deterministic weighted sums over normalized features; the compactor
// treats low-scoring turns as summarization victims and high-scoring turns as
// worth keeping verbatim.
package scoring

import (
	"math"

	"github.com/pkg/errors"

	"github.com/go-go-golems/cricket/pkg/turns"
)

// Weights are the per-feature coefficients of the score. Length defaults
// negative: very long turns cost more budget per unit of retained
// information, so they are slightly discounted.
type Weights struct {
	Recency    float64 `yaml:"w_recency"`
	Code       float64 `yaml:"w_code"`
	Attachment float64 `yaml:"w_attach"`
	Role       float64 `yaml:"w_role"`
	Length     float64 `yaml:"w_length"`
}

// RoleWeights give instruction-bearing turns a higher retention floor than
// routine acknowledgements.
type RoleWeights struct {
	System    float64 `yaml:"system"`
	User      float64 `yaml:"user"`
	Assistant float64 `yaml:"assistant"`
	Summary   float64 `yaml:"summary"`
}

type Config struct {
	Weights Weights `yaml:",inline"`
	// RecencyDecay is the per-position decay of the recency feature,
	// strictly between 0 and 1.
	RecencyDecay float64 `yaml:"recency_decay"`
	// LongTurnTokens is the token count at which the length penalty
	// saturates.
	LongTurnTokens int         `yaml:"long_turn_tokens"`
	RoleWeights    RoleWeights `yaml:"role_weights"`
}

// DefaultConfig keeps the positive weights summing to 1.0 so unclamped
// scores stay within the unit range.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Recency:    0.4,
			Code:       0.2,
			Attachment: 0.15,
			Role:       0.25,
			Length:     -0.1,
		},
		RecencyDecay:   0.95,
		LongTurnTokens: 1000,
		RoleWeights: RoleWeights{
			System:    1.0,
			User:      0.7,
			Assistant: 0.4,
			Summary:   0.5,
		},
	}
}

// Scorer is a pure function object: no side effects, no clock, no stored
// turn state. It never consults IsSummary, so summaries are scored like any
// other turn and can themselves be re-summarized or evicted later.
type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) (*Scorer, error) {
	if cfg.RecencyDecay <= 0 || cfg.RecencyDecay >= 1 {
		return nil, errors.Errorf("scorer: recency decay %v outside (0, 1)", cfg.RecencyDecay)
	}
	if cfg.LongTurnTokens <= 0 {
		return nil, errors.Errorf("scorer: long turn tokens %d must be positive", cfg.LongTurnTokens)
	}
	if cfg.Weights.Recency < 0 {
		return nil, errors.Errorf("scorer: negative recency weight %v breaks recency monotonicity", cfg.Weights.Recency)
	}
	return &Scorer{cfg: cfg}, nil
}

// Score computes the retention score of t at the given distance from the
// newest turn (0 = newest). Clamped to [0, 1]; strictly increasing in
// recency for equal-feature turns whenever the recency weight is positive.
func (s *Scorer) Score(t turns.Turn, distanceFromNewest int) float64 {
	if s == nil {
		return 0
	}
	if distanceFromNewest < 0 {
		distanceFromNewest = 0
	}
	score := s.cfg.Weights.Recency * math.Pow(s.cfg.RecencyDecay, float64(distanceFromNewest))
	if t.HasCode {
		score += s.cfg.Weights.Code
	}
	if t.HasAttachment {
		score += s.cfg.Weights.Attachment
	}
	score += s.cfg.Weights.Role * s.roleWeight(t.Role)
	score += s.cfg.Weights.Length * s.lengthPenalty(t.TokenCount)
	return clamp01(score)
}

// ScoreAll scores a chronological snapshot, inferring each turn's distance
// from the newest from its position.
func (s *Scorer) ScoreAll(ts []turns.Turn) []float64 {
	if s == nil || len(ts) == 0 {
		return nil
	}
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = s.Score(t, len(ts)-1-i)
	}
	return out
}

func (s *Scorer) roleWeight(r turns.Role) float64 {
	switch r {
	case turns.RoleSystem:
		return s.cfg.RoleWeights.System
	case turns.RoleUser:
		return s.cfg.RoleWeights.User
	case turns.RoleSummary:
		return s.cfg.RoleWeights.Summary
	default:
		return s.cfg.RoleWeights.Assistant
	}
}

func (s *Scorer) lengthPenalty(tokenCount int) float64 {
	if tokenCount <= 0 {
		return 0
	}
	return math.Min(1, float64(tokenCount)/float64(s.cfg.LongTurnTokens))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
