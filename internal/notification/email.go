// Package notification delivers in-app notifications, transactional email and signed webhooks.
package notification

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

const defaultTimeout = 15 * time.Second

// ErrEmailNotConfigured is returned by Send when no email API URL is set.
var ErrEmailNotConfigured = errors.New("email: API URL not configured")

// EmailClient sends email through an HTTP email API that accepts a JSON message and a bearer key.
type EmailClient struct {
	APIKey     string
	BaseURL    string
	From       string
	HTTPClient *http.Client
}

// NewEmailClient returns a client posting to baseURL with the given API key and sender address.
func NewEmailClient(baseURL, apiKey, from string) *EmailClient {
	if from == "" {
		from = "BizLens <noreply@bizlens.app>"
	}
	return &EmailClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		From:       from,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type emailMessage struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// Send emails body to one or more comma-separated recipients. Does not log the message body.
func (c *EmailClient) Send(ctx context.Context, to, subject, body string) error {
	if c == nil || c.BaseURL == "" {
		return ErrEmailNotConfigured
	}
	var recipients []string
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if len(recipients) == 0 {
		return fmt.Errorf("email: no recipients")
	}
	raw, err := json.Marshal(emailMessage{From: c.From, To: recipients, Subject: subject, Text: body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("email: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
