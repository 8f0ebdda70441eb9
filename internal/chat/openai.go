package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// OpenAIConfig selects an OpenAI-compatible chat completion endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAICompleter completes conversations through any OpenAI-compatible API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter returns a completer for cfg. Empty BaseURL and Model
// fall back to the Gemini defaults.
func NewOpenAICompleter(cfg OpenAIConfig) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("NewOpenAICompleter: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL

	return &OpenAICompleter{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
	}, nil
}

// Complete sends the system prompt followed by history.
func (o *OpenAICompleter) Complete(ctx context.Context, history []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: buildMessages(history),
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if isQuotaError(err) {
			return "", fmt.Errorf("OpenAICompleter.Complete: %w: %w", ErrQuota, err)
		}
		return "", fmt.Errorf("OpenAICompleter.Complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func buildMessages(history []Message) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: primer},
	)
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	return msgs
}

func isQuotaError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
