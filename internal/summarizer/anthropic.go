package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

// anthropicSummarizer calls the Messages API through the official SDK,
// which handles its own retries.
type anthropicSummarizer struct {
	model string
	msgs  *anthropic.MessageService
}

func newAnthropicSummarizer(cfg Config) (Summarizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.timeout()}),
		option.WithMaxRetries(cfg.maxRetries()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := anthropic.NewClient(opts...)
	return instrument(ProviderAnthropic, &anthropicSummarizer{
		model: model,
		msgs:  &client.Messages,
	}, 0, nil), nil
}

func (a *anthropicSummarizer) Summarize(ctx context.Context, entries []*memory.Entry, mode Mode) (string, error) {
	msg, err := a.msgs.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   defaultMaxTokens,
		Temperature: param.NewOpt(defaultTemperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(entries, mode))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errEmptyResponse
	}
	return out, nil
}

func (a *anthropicSummarizer) Available() bool { return true }

var _ Summarizer = (*anthropicSummarizer)(nil)
