package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"

	"bizlens/backend/internal/platform/netguard"
)

const (
	// SignatureHeader carries "sha256=<hex HMAC of the body>" when a secret is configured.
	SignatureHeader = "X-BizLens-Signature"

	// defaultWebhookRetries follow the first attempt.
	defaultWebhookRetries = 3
	defaultWebhookDelay   = 500 * time.Millisecond
)

// WebhookClient POSTs JSON payloads, retrying transport errors and 5xx responses.
type WebhookClient struct {
	HTTPClient *http.Client
	// Attempts counts every try, the first one included.
	Attempts uint
	Delay    time.Duration
	// AllowPrivate lets the dialer reach loopback, private and link-local addresses.
	AllowPrivate bool
}

// NewWebhookClient returns a client whose dialer refuses internal addresses unless
// AllowPrivate is set. Proxies are not used, so the check sees the real destination.
func NewWebhookClient() *WebhookClient {
	c := &WebhookClient{
		Attempts: defaultWebhookRetries + 1,
		Delay:    defaultWebhookDelay,
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: c.control}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	c.HTTPClient = &http.Client{Timeout: defaultTimeout, Transport: transport}
	return c
}

func (c *WebhookClient) control(network, address string, raw syscall.RawConn) error {
	if c.AllowPrivate {
		return nil
	}
	return netguard.Control(network, address, raw)
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver posts payload to url. 4xx responses are not retried.
func (c *WebhookClient) Deliver(ctx context.Context, url, secret string, payload []byte) error {
	return retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "bizlens-webhook/1")
		if secret != "" {
			req.Header.Set(SignatureHeader, Sign(secret, payload))
		}
		resp, err := c.HTTPClient.Do(req)
		if errors.Is(err, netguard.ErrBlocked) {
			return retry.Unrecoverable(err)
		}
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("webhook: status=%d", resp.StatusCode)
		case resp.StatusCode >= 300:
			return retry.Unrecoverable(fmt.Errorf("webhook: status=%d", resp.StatusCode))
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(c.Attempts),
		retry.Delay(c.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
