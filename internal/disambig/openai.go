package disambig

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider matches names with an OpenAI-compatible chat model.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider for the OpenAI chat completions API.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(clientConfig), model: model}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string { return "openai" }

// Match asks the model whether a and b are the same person.
func (p *OpenAIProvider) Match(ctx context.Context, a, b string) (*Verdict, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(a, b)},
		},
		MaxTokens:   maxResponseTokens,
		Temperature: 0,
	})
	if err != nil {
		return nil, eris.Wrap(err, "disambig: openai match")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.Wrap(ErrBadResponse, "openai returned no choices")
	}
	return ParseVerdict(resp.Choices[0].Message.Content)
}
