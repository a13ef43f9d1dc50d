package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const tagsTimeout = 10 * time.Second

// Ollama is the "local" provider.
type Ollama struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

func NewOllama(baseURL, model string, timeout time.Duration) *Ollama {
	return &Ollama{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Model:      model,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (o *Ollama) Name() string { return ProviderLocal }

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// ModelTag is one locally installed model.
type ModelTag struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

// Complete calls /api/chat and retries once through /api/generate when chat answers non-2xx.
// A Generate request goes straight to /api/generate.
func (o *Ollama) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = o.Model
	}
	opts := ollamaOptions(req)
	if req.Generate {
		return o.generate(ctx, model, req.Messages, opts)
	}

	var chat ollamaChatResponse
	err := o.post(ctx, "/api/chat", ollamaChatRequest{Model: model, Messages: req.Messages, Options: opts}, &chat)
	if err == nil {
		return &Response{Content: chat.Message.Content, Model: orDefault(chat.Model, model), Provider: ProviderLocal}, nil
	}
	var se *HTTPStatusError
	if !errors.As(err, &se) {
		return nil, err
	}
	return o.generate(ctx, model, req.Messages, opts)
}

func (o *Ollama) generate(ctx context.Context, model string, msgs []Message, opts map[string]any) (*Response, error) {
	system, prompt := flatten(msgs)
	var gen ollamaGenerateResponse
	if err := o.post(ctx, "/api/generate", ollamaGenerateRequest{Model: model, Prompt: prompt, System: system, Options: opts}, &gen); err != nil {
		return nil, err
	}
	return &Response{Content: gen.Response, Model: orDefault(gen.Model, model), Provider: ProviderLocal}, nil
}

// Models lists the models installed on the Ollama server.
func (o *Ollama) Models(ctx context.Context) ([]ModelTag, error) {
	ctx, cancel := context.WithTimeout(ctx, tagsTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama tags: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{Provider: ProviderLocal, StatusCode: resp.StatusCode, Body: string(body)}
	}
	var out struct {
		Models []ModelTag `json:"models"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("ollama tags: decode: %w", err)
	}
	if out.Models == nil {
		out.Models = []ModelTag{}
	}
	return out.Models, nil
}

// Ping reports whether the Ollama server answers.
func (o *Ollama) Ping(ctx context.Context) error {
	_, err := o.Models(ctx)
	return err
}

func (o *Ollama) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("ollama %s: read: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPStatusError{Provider: ProviderLocal, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("ollama %s: decode: %w", path, err)
	}
	return nil
}

func ollamaOptions(req Request) map[string]any {
	opts := map[string]any{}
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// flatten splits messages into a generate-style system prompt and a transcript prompt.
// A single user message is sent as-is.
func flatten(msgs []Message) (system, prompt string) {
	var sys []string
	var turns []Message
	for _, m := range msgs {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	system = strings.Join(sys, "\n\n")
	if len(turns) == 1 && turns[0].Role == RoleUser {
		return system, turns[0].Content
	}
	var b strings.Builder
	for _, m := range turns {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("assistant:")
	return system, b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
