// Package summarize provides the summarization capability the context
// manager's compactor depends on. The compactor only ever sees the
// single-method Summarizer interface; which provider sits behind it is
// configuration.
package summarize

import "context"

// Summarizer condenses an ordered run of turn contents into one text. Calls
// may be slow remote operations and may fail or time out; implementations
// must honor ctx cancellation.
type Summarizer interface {
	Summarize(ctx context.Context, orderedTexts []string) (string, error)
}
