// Package powerbi pushes dataset rows to Power BI push datasets using an
// Azure AD client-credentials token.
package powerbi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultBaseURL = "https://api.powerbi.com"
	Scope          = "https://analysis.windows.net/powerbi/api/.default"

	// MaxRowsPerRequest is the Power BI limit for one rows POST.
	MaxRowsPerRequest = 10000

	defaultTimeout = 30 * time.Second
)

// Client posts rows to the Power BI REST API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client whose HTTP transport obtains and refreshes tokens for the
// app registration identified by tenantID/clientID/clientSecret.
func NewClient(ctx context.Context, tenantID, clientID, clientSecret string) *Client {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     "https://login.microsoftonline.com/" + url.PathEscape(tenantID) + "/oauth2/v2.0/token",
		Scopes:       []string{Scope},
	}
	base := &http.Client{Timeout: defaultTimeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	hc := cfg.Client(ctx)
	hc.Timeout = defaultTimeout
	return &Client{BaseURL: DefaultBaseURL, HTTPClient: hc}
}

// PushRows appends rows to a push dataset table, in chunks of at most MaxRowsPerRequest.
// It stops at the first failed chunk; earlier chunks stay written.
func (c *Client) PushRows(ctx context.Context, groupID, datasetID, table string, rows []map[string]any) error {
	if groupID == "" || datasetID == "" || table == "" {
		return fmt.Errorf("powerbi: group, dataset and table are required")
	}
	endpoint := fmt.Sprintf("%s/v1.0/myorg/groups/%s/datasets/%s/tables/%s/rows",
		strings.TrimSuffix(c.BaseURL, "/"), url.PathEscape(groupID), url.PathEscape(datasetID), url.PathEscape(table))
	for start := 0; start < len(rows); start += MaxRowsPerRequest {
		end := min(start+MaxRowsPerRequest, len(rows))
		if err := c.post(ctx, endpoint, rows[start:end]); err != nil {
			return fmt.Errorf("powerbi: rows %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, rows []map[string]any) error {
	raw, err := json.Marshal(map[string]any{"rows": rows})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
