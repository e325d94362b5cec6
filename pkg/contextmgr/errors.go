package contextmgr

import "fmt"

// SummarizationError wraps a summarizer failure or timeout. Compaction
// handles it internally by switching to the eviction fallback; it is never
// surfaced to callers on its own.
type SummarizationError struct {
	Cause error
}

func (e *SummarizationError) Error() string {
	if e == nil || e.Cause == nil {
		return "context manager: summarization failed"
	}
	return fmt.Sprintf("context manager: summarization failed: %v", e.Cause)
}

func (e *SummarizationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// BudgetExceededError reports that compaction could not bring the session
// under the token budget without touching protected turns. Surfaced from
// AddTurn and FinalizeDraft; the protected turns are always kept intact.
type BudgetExceededError struct {
	Budget      int
	TotalTokens int
}

func (e *BudgetExceededError) Error() string {
	if e == nil {
		return "context manager: token budget exceeded"
	}
	return fmt.Sprintf("context manager: total tokens %d exceed budget %d with only protected turns left", e.TotalTokens, e.Budget)
}
