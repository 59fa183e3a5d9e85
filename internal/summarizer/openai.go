package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

const defaultOpenAIModel = "gpt-4o-mini"

// openAISummarizer calls Chat Completions through the official SDK, which
// retries 408, 409, 429 and 5xx responses itself.
type openAISummarizer struct {
	model       string
	completions *openai.ChatCompletionService
}

func newOpenAISummarizer(cfg Config) (Summarizer, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai API key required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOpenAIModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.timeout()}),
		option.WithMaxRetries(cfg.maxRetries()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)
	return instrument(ProviderOpenAI, &openAISummarizer{
		model:       model,
		completions: &client.Chat.Completions,
	}, 0, nil), nil
}

func (o *openAISummarizer) Summarize(ctx context.Context, entries []*memory.Entry, mode Mode) (string, error) {
	completion, err := o.completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(o.model),
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage(BuildPrompt(entries, mode))},
		Temperature:         openai.Float(defaultTemperature),
		MaxCompletionTokens: openai.Int(defaultMaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errEmptyResponse
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

func (o *openAISummarizer) Available() bool { return true }
