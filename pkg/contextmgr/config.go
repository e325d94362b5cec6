package contextmgr

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/cricket/pkg/scoring"
)

// Duration wraps time.Duration so YAML configs can use the usual "30s" /
// "1m30s" string form.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(value.Value))
	if err != nil {
		return errors.Wrapf(err, "context manager: parse duration %q", value.Value)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the budget and compaction policy for one session.
type Config struct {
	// TokenBudget is the hard ceiling on the session's total token count.
	TokenBudget int `yaml:"token_budget"`
	// ProtectedWindow is how many of the newest turns are never compaction
	// victims, regardless of score.
	ProtectedWindow int `yaml:"protected_window"`
	// SummarizationThreshold is the score below which a turn is considered
	// summarizable.
	SummarizationThreshold float64 `yaml:"summarization_threshold"`
	// MaxSummaryCoversLength caps how many retired turns a single summary may
	// stand in for, counting an absorbed summary at its own cover weight.
	MaxSummaryCoversLength int `yaml:"max_summary_covers_length"`
	// SummarizeTimeout bounds each individual summarizer call.
	SummarizeTimeout Duration `yaml:"summarize_timeout"`
	// MaxSummarizeAttempts caps summarizer calls per compaction invocation;
	// once exhausted the eviction fallback applies.
	MaxSummarizeAttempts int `yaml:"max_summarize_attempts"`

	Scoring scoring.Config `yaml:"scoring"`
}

func DefaultConfig() Config {
	return Config{
		TokenBudget:            8000,
		ProtectedWindow:        6,
		SummarizationThreshold: 0.45,
		MaxSummaryCoversLength: 16,
		SummarizeTimeout:       Duration(30 * time.Second),
		MaxSummarizeAttempts:   3,
		Scoring:                scoring.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if c.TokenBudget <= 0 {
		return errors.Errorf("context manager: token budget %d must be positive", c.TokenBudget)
	}
	if c.ProtectedWindow < 0 {
		return errors.Errorf("context manager: protected window %d must not be negative", c.ProtectedWindow)
	}
	if c.SummarizationThreshold < 0 || c.SummarizationThreshold > 1 {
		return errors.Errorf("context manager: summarization threshold %v outside [0, 1]", c.SummarizationThreshold)
	}
	if c.MaxSummaryCoversLength < 2 {
		return errors.Errorf("context manager: max summary covers length %d leaves no room for a run", c.MaxSummaryCoversLength)
	}
	if c.SummarizeTimeout <= 0 {
		return errors.Errorf("context manager: summarize timeout %v must be positive", c.SummarizeTimeout.Std())
	}
	if c.MaxSummarizeAttempts < 1 {
		return errors.Errorf("context manager: max summarize attempts %d must be at least 1", c.MaxSummarizeAttempts)
	}
	return nil
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "context manager: read config")
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "context manager: parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
