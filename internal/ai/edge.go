package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Edge calls the Supabase edge function that proxies the hosted model.
type Edge struct {
	URL        string
	Key        string
	HTTPClient *http.Client
}

func NewEdge(url, key string, timeout time.Duration) *Edge {
	return &Edge{URL: url, Key: key, HTTPClient: &http.Client{Timeout: timeout}}
}

func (e *Edge) Name() string { return ProviderEdge }

type edgeRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type edgeResponse struct {
	Response string `json:"response"`
	Content  string `json:"content"`
	Model    string `json:"model"`
	Error    string `json:"error"`
}

func (e *Edge) Complete(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(edgeRequest{Messages: req.Messages, Model: req.Model, Temperature: req.Temperature, MaxTokens: req.MaxTokens})
	if err != nil {
		return nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	if e.Key != "" {
		hreq.Header.Set("Authorization", "Bearer "+e.Key)
		hreq.Header.Set("apikey", e.Key)
	}
	resp, err := e.HTTPClient.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("edge: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("edge: read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{Provider: ProviderEdge, StatusCode: resp.StatusCode, Body: string(body)}
	}
	var out edgeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("edge: decode: %w", err)
	}
	if out.Error != "" {
		return nil, errors.New("edge: " + out.Error)
	}
	return &Response{Content: orDefault(out.Response, out.Content), Model: orDefault(out.Model, req.Model), Provider: ProviderEdge}, nil
}
