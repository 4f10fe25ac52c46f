package provider

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenRouter streams chat completions from OpenRouter's OpenAI-compatible
// API. The model routed to is chosen per request by the caller.
type OpenRouter struct {
	client *openai.Client
	apiKey string
}

func NewOpenRouter(apiKey, baseURL string) *OpenRouter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenRouter{
		client: openai.NewClientWithConfig(cfg),
		apiKey: apiKey,
	}
}

func (o *OpenRouter) StreamCompletion(ctx context.Context, req Request) (Stream, error) {
	if o.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
		Stream:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open completion stream: %w", err)
	}

	return &openRouterStream{stream: stream}, nil
}

type openRouterStream struct {
	stream *openai.ChatCompletionStream
}

// Recv returns the next non-empty content delta, or io.EOF when the
// generation is complete.
func (s *openRouterStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (s *openRouterStream) Close() error {
	return s.stream.Close()
}
