// Package disambig asks a remote language model whether two patient names
// denote the same person.
package disambig

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

var (
	// ErrNoProvider is returned when a provider is requested but none is configured.
	ErrNoProvider = eris.New("disambig: no provider configured")
	// ErrBadResponse marks a reply that did not contain a usable verdict.
	ErrBadResponse = eris.New("disambig: unusable response")
)

// Verdict is a collaborator's answer for one name pair.
type Verdict struct {
	IsMatch     bool    `json:"is_match"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// Provider compares two names. Implementations have no side effects.
type Provider interface {
	Name() string
	Match(ctx context.Context, a, b string) (*Verdict, error)
}

// Config selects and configures a provider.
type Config struct {
	// Provider is "anthropic" (or "claude"), "openai", or empty for none.
	Provider string
	Model    string
	APIKey   string
	// BaseURL overrides the API endpoint (OpenAI-compatible servers, tests).
	BaseURL string
	Timeout time.Duration
}

// NewProvider builds the configured provider. It returns nil, nil when no
// provider is configured.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, nil
	case "anthropic", "claude":
		if cfg.APIKey == "" {
			return nil, eris.New("disambig: anthropic API key is required")
		}
		return NewAnthropicProvider(cfg), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, eris.New("disambig: openai API key is required")
		}
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, eris.Errorf("disambig: unsupported provider %q", cfg.Provider)
	}
}

const systemPrompt = "You are a medical records expert. You decide whether two patient names " +
	"written on lab reports refer to the same person. Respond with JSON only."

const maxResponseTokens = 256

// buildPrompt renders the per-pair question.
func buildPrompt(a, b string) string {
	return fmt.Sprintf(`Determine if these two patient names refer to the SAME person:

Name 1: %q
Name 2: %q

Consider:
- Name order variations (John Smith vs Smith, John)
- Middle initials or names
- Titles (Dr., Mr., Mrs.)
- Spelling variations
- Case differences

Respond in this EXACT JSON format:
{"is_match": true/false, "confidence": 0.0-1.0, "explanation": "brief reason"}`, a, b)
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// ParseVerdict extracts the first JSON object from a model response.
func ParseVerdict(text string) (*Verdict, error) {
	raw := jsonObject.FindString(text)
	if raw == "" {
		return nil, eris.Wrap(ErrBadResponse, "no JSON object")
	}
	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, eris.Wrapf(ErrBadResponse, "decode verdict: %v", err)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return nil, eris.Wrapf(ErrBadResponse, "confidence %v out of range", v.Confidence)
	}
	return &v, nil
}
