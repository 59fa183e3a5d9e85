package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

// localSummarizer talks to a self-hosted OpenAI-compatible server through
// langchaingo.
type localSummarizer struct {
	llm llms.Model
}

func newLocalSummarizer(cfg Config) (Summarizer, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("local provider requires a base URL")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("local provider requires a model")
	}
	// langchaingo requires a token; local servers ignore it.
	token := cfg.APIKey
	if token == "" {
		token = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
		openai.WithModel(cfg.Model),
		openai.WithToken(token),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.timeout()}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI-compatible client: %w", err)
	}
	return instrument(ProviderLocal, &localSummarizer{llm: llm}, cfg.maxRetries(), isLocalRetryable), nil
}

func (l *localSummarizer) Summarize(ctx context.Context, entries []*memory.Entry, mode Mode) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, l.llm, BuildPrompt(entries, mode),
		llms.WithTemperature(defaultTemperature),
		llms.WithMaxTokens(defaultMaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errEmptyResponse
	}
	return out, nil
}

func (l *localSummarizer) Available() bool { return true }

// isLocalRetryable treats everything but cancellation and client errors as
// transient. langchaingo surfaces status codes only in the message text.
func isLocalRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	for _, code := range []string{"400", "401", "403", "404", "422"} {
		if strings.Contains(msg, "status code: "+code) {
			return false
		}
	}
	return true
}
