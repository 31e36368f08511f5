package disambig

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/labvault/pkg/anthropic"
)

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{})
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewProvider(Config{Provider: "Claude", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	p, err = NewProvider(Config{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = NewProvider(Config{Provider: "openai"})
	assert.Error(t, err)

	_, err = NewProvider(Config{Provider: "anthropic"})
	assert.Error(t, err)

	_, err = NewProvider(Config{Provider: "ollama", APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestParseVerdict(t *testing.T) {
	v, err := ParseVerdict("Sure.\n```json\n{\"is_match\": true, \"confidence\": 0.92, \"explanation\": \"reordered\"}\n```")
	require.NoError(t, err)
	assert.True(t, v.IsMatch)
	assert.InDelta(t, 0.92, v.Confidence, 1e-9)
	assert.Equal(t, "reordered", v.Explanation)

	v, err = ParseVerdict(`{"is_match": false, "confidence": 0.1}`)
	require.NoError(t, err)
	assert.False(t, v.IsMatch)
}

func TestParseVerdict_Invalid(t *testing.T) {
	for _, text := range []string{
		"",
		"no json here",
		`{"is_match": "maybe"`,
		`{"is_match": true, "confidence": 1.7}`,
		`{"is_match": true, "confidence": -0.2}`,
	} {
		_, err := ParseVerdict(text)
		assert.ErrorIs(t, err, ErrBadResponse, text)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt("John Smith", "Smith, John")
	assert.Contains(t, p, `Name 1: "John Smith"`)
	assert.Contains(t, p, `Name 2: "Smith, John"`)
	assert.Contains(t, p, `"is_match"`)
}

func TestAnthropicProvider_Match(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == defaultAnthropicModel &&
			req.System == systemPrompt &&
			len(req.Messages) == 1 &&
			req.Temperature != nil && *req.Temperature == 0
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: `{"is_match": true, "confidence": 0.97, "explanation": "same"}`}},
		Usage:   anthropic.TokenUsage{InputTokens: 120, OutputTokens: 20},
	}, nil)

	p := NewAnthropicProviderWithClient(client, "")
	v, err := p.Match(context.Background(), "John Smith", "Smith, John")
	require.NoError(t, err)
	assert.True(t, v.IsMatch)
	assert.InDelta(t, 0.97, v.Confidence, 1e-9)
	client.AssertExpectations(t)
}

func TestAnthropicProvider_Error(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("status 529 overloaded"))

	p := NewAnthropicProviderWithClient(client, "claude-sonnet-4-5-20250929")
	_, err := p.Match(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disambig: anthropic match")
}

func TestAnthropicProvider_BadResponse(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "I cannot tell."}},
	}, nil)

	_, err := NewAnthropicProviderWithClient(client, "").Match(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrBadResponse)
}

func openAIServer(t *testing.T, content string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, openai.GPT4oMini, req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
		}

		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: openai.GPT4oMini,
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: "assistant", Content: content},
			}},
		})
	}))
}

func TestOpenAIProvider_Match(t *testing.T) {
	srv := openAIServer(t, `{"is_match": false, "confidence": 0.2, "explanation": "different surnames"}`)
	defer srv.Close()

	p := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: srv.URL, Timeout: time.Second})
	v, err := p.Match(context.Background(), "John Smith", "Jane Doe")
	require.NoError(t, err)
	assert.False(t, v.IsMatch)
	assert.Equal(t, "different surnames", v.Explanation)
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{ID: "chatcmpl-2"})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := p.Match(context.Background(), "a", "b")
	require.ErrorIs(t, err, ErrBadResponse)
	assert.Contains(t, err.Error(), "no choices")
}

func TestOpenAIProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := p.Match(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disambig: openai match")
}
