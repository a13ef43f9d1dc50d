// Package ai routes LLM requests to the local Ollama server, Gemini or the Supabase edge
// function, with a response cache, 429 retries and a single provider fallback.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bizlens/backend/internal/platform/apierror"
)

// Provider names accepted in Request.Provider and AI_DEFAULT_PROVIDER.
const (
	ProviderLocal  = "local"
	ProviderGemini = "gemini"
	ProviderEdge   = "edge"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrEmptyPrompt    = apierror.Invalid("prompt or messages is required")
	ErrBadTemperature = apierror.Invalid("temperature must be between 0 and 2")
	ErrBadMaxTokens   = apierror.Invalid("max_tokens must not be negative")
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request. Empty Provider means the default one;
// empty Model means the provider's configured model.
type Request struct {
	Provider    string
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
	// Generate asks for a plain single-prompt completion. The local provider answers it from
	// /api/generate without trying /api/chat; the others ignore it.
	Generate bool
}

// Validate checks the fields every provider relies on.
func (r Request) Validate() error {
	if !hasContent(r.Messages) {
		return ErrEmptyPrompt
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return ErrBadTemperature
	}
	if r.MaxTokens < 0 {
		return ErrBadMaxTokens
	}
	return nil
}

func hasContent(msgs []Message) bool {
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) != "" {
			return true
		}
	}
	return false
}

// Prompt builds a single-turn user request.
func Prompt(text string) []Message {
	return []Message{{Role: RoleUser, Content: text}}
}

// Response is a completion. Provider is the provider that produced it, which differs from
// the requested one when Fallback is set.
type Response struct {
	Content  string
	Model    string
	Provider string
	Cached   bool
	Fallback bool
}

// Provider is one LLM backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// HTTPStatusError is a non-2xx answer from a provider.
type HTTPStatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, body)
}

// IsRateLimited reports whether err carries an HTTP 429 from a provider.
func IsRateLimited(err error) bool {
	var se *HTTPStatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests
}
