package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

const defaultGoogleModel = "gemini-1.5-flash"

// googleSummarizer calls Gemini generateContent through the genai SDK.
type googleSummarizer struct {
	model  string
	models *genai.Models
}

func newGoogleSummarizer(cfg Config) (Summarizer, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("google API key required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGoogleModel
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.timeout()},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	// With an API key the client is built locally; no request is made.
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return instrument(ProviderGoogle, &googleSummarizer{
		model:  model,
		models: client.Models,
	}, cfg.maxRetries(), isGoogleRetryable), nil
}

func (g *googleSummarizer) Summarize(ctx context.Context, entries []*memory.Entry, mode Mode) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(BuildPrompt(entries, mode)), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](defaultTemperature),
		MaxOutputTokens: defaultMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", errEmptyResponse
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (g *googleSummarizer) Available() bool { return true }

// isGoogleRetryable retries rate limits, server errors and transport
// failures. Other API errors are final.
func isGoogleRetryable(err error) bool {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return true
	}
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
