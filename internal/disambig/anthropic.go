package disambig

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/labvault/pkg/anthropic"
)

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

// AnthropicProvider matches names with a Claude model.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates a provider backed by the Anthropic API.
func NewAnthropicProvider(cfg Config) *AnthropicProvider {
	var opts []option.RequestOption
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return NewAnthropicProviderWithClient(anthropic.NewClient(cfg.APIKey, opts...), cfg.Model)
}

// NewAnthropicProviderWithClient wraps an existing client.
func NewAnthropicProviderWithClient(client anthropic.Client, model string) *AnthropicProvider {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicProvider{client: client, model: model}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Match asks the model whether a and b are the same person.
func (p *AnthropicProvider) Match(ctx context.Context, a, b string) (*Verdict, error) {
	temp := 0.0
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   maxResponseTokens,
		System:      systemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: buildPrompt(a, b)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "disambig: anthropic match")
	}
	resp.Usage.LogCost(p.model, "disambig")
	return ParseVerdict(resp.Text())
}
