package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		available bool
	}{
		{name: "empty provider", cfg: Config{}, available: false},
		{name: "disabled", cfg: Config{Provider: "disabled"}, available: false},
		{name: "openai", cfg: Config{Provider: "openai", APIKey: "sk-test"}, available: true},
		{name: "google upper case", cfg: Config{Provider: "Google", APIKey: "g-test"}, available: true},
		{name: "anthropic", cfg: Config{Provider: "anthropic", APIKey: "sk-ant-test"}, available: true},
		{name: "openai missing key", cfg: Config{Provider: "openai"}, wantErr: true},
		{name: "google missing key", cfg: Config{Provider: "google"}, wantErr: true},
		{name: "anthropic missing key", cfg: Config{Provider: "anthropic"}, wantErr: true},
		{name: "local", cfg: Config{Provider: "local", Model: "llama", BaseURL: "http://localhost:8080/v1"}, available: true},
		{name: "local missing base url", cfg: Config{Provider: "local", Model: "llama"}, wantErr: true},
		{name: "local missing model", cfg: Config{Provider: "local", BaseURL: "http://localhost:8080/v1"}, wantErr: true},
		{name: "unknown", cfg: Config{Provider: "markov"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.available, s.Available())
		})
	}
}

func TestNew_UnknownProviderSentinel(t *testing.T) {
	_, err := New(Config{Provider: "markov"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNoOp(t *testing.T) {
	got, err := NoOp{}.Summarize(context.Background(), testEntries("x"), ModeStandard)
	require.NoError(t, err)
	assert.Empty(t, got)
}

const chatCompletionJSON = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-test",
	"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "  Raid repelled at dawn \n"}}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func TestOpenAISummarizer(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body["model"])
		assert.InDelta(t, 0.7, body["temperature"], 1e-9)
		assert.EqualValues(t, 200, body["max_completion_tokens"])
		if msgs, ok := body["messages"].([]any); assert.True(t, ok) && assert.Len(t, msgs, 1) {
			msg, _ := msgs[0].(map[string]any)
			assert.Equal(t, "user", msg["role"])
			assert.Contains(t, msg["content"], "1. raid at dawn")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionJSON))
	}))
	defer server.Close()

	s, err := New(Config{Provider: "openai", APIKey: "sk-test", Model: "gpt-test", BaseURL: server.URL + "/v1/"})
	require.NoError(t, err)

	got, err := s.Summarize(context.Background(), testEntries("raid at dawn"), ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, "Raid repelled at dawn", got)
	assert.Equal(t, int32(1), hits.Load())
}

func TestProviders_Retries(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		status   int
		body     string
		wantHits int32
	}{
		{name: "openai unauthorized is not retried", provider: "openai", status: http.StatusUnauthorized, body: `{"error":{"message":"bad key"}}`, wantHits: 1},
		{name: "openai server error is retried", provider: "openai", status: http.StatusBadGateway, body: `{"error":{"message":"upstream"}}`, wantHits: 2},
		{name: "openai rate limit is retried", provider: "openai", status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down"}}`, wantHits: 2},
		{name: "google bad request is not retried", provider: "google", status: http.StatusBadRequest, body: `{"error":{"code":400,"message":"bad model","status":"INVALID_ARGUMENT"}}`, wantHits: 1},
		{name: "google server error is retried", provider: "google", status: http.StatusServiceUnavailable, body: `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`, wantHits: 2},
		{name: "local bad request is not retried", provider: "local", status: http.StatusBadRequest, body: `{"error":{"message":"unknown model"}}`, wantHits: 1},
		{name: "local server error is retried", provider: "local", status: http.StatusInternalServerError, body: `{"error":{"message":"oom"}}`, wantHits: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			s, err := New(Config{Provider: tt.provider, APIKey: "key", Model: "m", BaseURL: server.URL + "/v1", MaxRetries: 1})
			require.NoError(t, err)

			_, err = s.Summarize(context.Background(), testEntries("x"), ModeStandard)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.provider+" summarizer")
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}

func TestOpenAISummarizer_EmptyChoices(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c","object":"chat.completion","model":"m","choices":[]}`))
	}))
	defer server.Close()

	s, err := New(Config{Provider: "openai", APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), testEntries("x"), ModeStandard)
	assert.ErrorIs(t, err, errEmptyResponse)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGoogleSummarizer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.URL.Query().Get("key"), "key must not leak into the URL")

		var body struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
			GenerationConfig struct {
				Temperature     float64 `json:"temperature"`
				MaxOutputTokens int     `json:"maxOutputTokens"`
			} `json:"generationConfig"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 200, body.GenerationConfig.MaxOutputTokens)
		assert.InDelta(t, 0.7, body.GenerationConfig.Temperature, 1e-6)
		if assert.Len(t, body.Contents, 1) && assert.Len(t, body.Contents[0].Parts, 1) {
			assert.Contains(t, body.Contents[0].Parts[0].Text, "60 characters")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Lost the east wing; "},{"text":"rebuilt by spring"}]}}]}`))
	}))
	defer server.Close()

	s, err := New(Config{Provider: "google", APIKey: "g-key", Model: "gemini-test", BaseURL: server.URL})
	require.NoError(t, err)

	got, err := s.Summarize(context.Background(), testEntries("fire", "rebuild"), ModeDeepArchive)
	require.NoError(t, err)
	assert.Equal(t, "Lost the east wing; rebuilt by spring", got)
}

func TestLocalSummarizer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer placeholder", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama-test", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionJSON))
	}))
	defer server.Close()

	s, err := New(Config{Provider: "local", Model: "llama-test", BaseURL: server.URL + "/v1/"})
	require.NoError(t, err)

	got, err := s.Summarize(context.Background(), testEntries("raid at dawn"), ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, "Raid repelled at dawn", got)
}

func TestAnthropicSummarizer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body["model"])
		assert.EqualValues(t, 200, body["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "Quiet week of farming"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	s, err := New(Config{
		Provider:   "anthropic",
		APIKey:     "sk-ant-test",
		Model:      "claude-test",
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	})
	require.NoError(t, err)

	got, err := s.Summarize(context.Background(), testEntries("planted corn"), ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, "Quiet week of farming", got)
}
