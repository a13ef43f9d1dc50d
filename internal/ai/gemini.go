package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Gemini talks to Gemini through its OpenAI-compatible endpoint.
type Gemini struct {
	client *openai.Client
	model  string
}

func NewGemini(apiKey, baseURL, model string, timeout time.Duration) *Gemini {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Gemini{client: openai.NewClientWithConfig(cfg), model: model}
}

func (g *Gemini) Name() string { return ProviderGemini }

func (g *Gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}
	creq := openai.ChatCompletionRequest{Model: model, MaxTokens: req.MaxTokens}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
	}
	for _, m := range req.Messages {
		creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := g.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, statusError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("gemini: no choices returned")
	}
	return &Response{Content: resp.Choices[0].Message.Content, Model: orDefault(resp.Model, model), Provider: ProviderGemini}, nil
}

// statusError converts go-openai HTTP failures to *HTTPStatusError so the orchestrator can
// recognize 429s. Transport errors pass through.
func statusError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &HTTPStatusError{Provider: ProviderGemini, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &HTTPStatusError{Provider: ProviderGemini, StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return fmt.Errorf("gemini: %w", err)
}
