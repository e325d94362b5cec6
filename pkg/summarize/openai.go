package summarize

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

const summarySystemPrompt = `You condense chat history. Rewrite the following conversation turns as one compact summary paragraph. Preserve decisions made, constraints stated, code identifiers, file names and open questions. Do not add commentary or headers.`

type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	// BaseURL overrides the API endpoint (proxies, tests). Empty means the
	// public endpoint.
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// OpenAISummarizer condenses runs with a chat-completion call.
type OpenAISummarizer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

var _ Summarizer = &OpenAISummarizer{}

func NewOpenAISummarizer(cfg OpenAIConfig) (*OpenAISummarizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai summarizer: api key is empty")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}
	return &OpenAISummarizer{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, orderedTexts []string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("openai summarizer: not initialized")
	}
	if len(orderedTexts) == 0 {
		return "", errors.New("openai summarizer: nothing to summarize")
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: strings.Join(orderedTexts, "\n\n")},
		},
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", errors.Wrap(err, "openai summarizer: chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai summarizer: response has no choices")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", errors.New("openai summarizer: empty summary text")
	}
	return out, nil
}
