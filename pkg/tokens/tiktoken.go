package tokens

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/weaviate/tiktoken-go"
)

// DefaultEncoding matches the encoding used by current OpenAI chat models.
const DefaultEncoding = "cl100k_base"

// TiktokenCounter counts tokens with a real BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

var _ Counter = &TiktokenCounter{}

func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	encoding = strings.TrimSpace(encoding)
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, errors.Wrapf(err, "token counter: initializing encoding %s", encoding)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	if c == nil || c.enc == nil || text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}
