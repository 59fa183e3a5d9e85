// Package summarizer turns groups of memory entries into short summaries.
//
// Two paths exist. The rule summary is deterministic and always available.
// The Scheduler runs a language-model Summarizer in the background, keyed by
// a content fingerprint. A drain submits its groups and takes whatever is
// already completed for the same fingerprint; it never blocks on the
// network. Completed results nobody takes are dropped by Cleanup.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

// Mode selects the summarization register.
type Mode string

const (
	// ModeStandard condenses Situational entries into one EventLog entry.
	ModeStandard Mode = "standard"

	// ModeDeepArchive condenses EventLog overflow into one Archive entry.
	ModeDeepArchive Mode = "deep_archive"
)

// Provider names accepted by New.
const (
	ProviderDisabled  = "disabled"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderAnthropic = "anthropic"

	// ProviderLocal is any OpenAI-compatible server (vLLM, LM Studio,
	// llama.cpp). It requires a base URL and no API key.
	ProviderLocal = "local"
)

// ErrUnknownProvider is returned by New for an unrecognized provider name.
var ErrUnknownProvider = errors.New("unknown summarizer provider")

var errEmptyResponse = errors.New("empty response from API")

// Summarizer produces a summary for a group of entries.
type Summarizer interface {
	// Summarize returns plain summary text. An empty string means no result.
	Summarize(ctx context.Context, entries []*memory.Entry, mode Mode) (string, error)

	// Available reports whether this summarizer can produce results at all.
	Available() bool
}

// Config selects and configures a provider.
type Config struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string `json:"-"`
	Timeout    time.Duration
	MaxRetries int
}

// Generation parameters shared by every provider.
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 200
	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 2
	defaultBaseBackoff = 500 * time.Millisecond
)

// Rate limiter defaults: 60 requests per minute.
const (
	defaultRateLimit = 1.0
	defaultBurst     = 4
)

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

func (c Config) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return defaultMaxRetries
}

// New creates the configured summarizer. An empty or "disabled" provider
// yields a NoOp summarizer.
func New(cfg Config) (Summarizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderDisabled:
		return NoOp{}, nil
	case ProviderOpenAI:
		return newOpenAISummarizer(cfg)
	case ProviderGoogle:
		return newGoogleSummarizer(cfg)
	case ProviderAnthropic:
		return newAnthropicSummarizer(cfg)
	case ProviderLocal:
		return newLocalSummarizer(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// NoOp never produces results. Stores fall back to the rule summary.
type NoOp struct{}

// Summarize returns no result.
func (NoOp) Summarize(context.Context, []*memory.Entry, Mode) (string, error) {
	return "", nil
}

// Available returns false.
func (NoOp) Available() bool { return false }

var _ Summarizer = NoOp{}
