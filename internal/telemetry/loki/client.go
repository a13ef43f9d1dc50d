// Package loki pushes telemetry events to the Grafana Loki push API.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// jobLabel is attached to every stream pushed by this service.
const jobLabel = "bizlens"

var errNoBaseURL = errors.New("loki: base URL is empty")

// PushRequest is the v1 push body.
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is one label set with its [timestamp_ns, line] values.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// Entry is one log line with its labels. Empty label values are dropped on push.
type Entry struct {
	Time   time.Time
	Line   string
	Labels map[string]string
}

// EventEntry builds an entry from a telemetry event as serialized on Kafka. company_id,
// event_type and source become labels and created_at the timestamp. A value that is not an
// event is kept as the line with the current time and no extra labels.
func EventEntry(raw []byte) Entry {
	e := Entry{Time: time.Now().UTC(), Line: string(raw), Labels: map[string]string{}}
	var ev struct {
		CompanyID string `json:"company_id"`
		EventType string `json:"event_type"`
		Source    string `json:"source"`
		CreatedAt string `json:"created_at"`
	}
	if json.Unmarshal(raw, &ev) != nil {
		return e
	}
	e.Labels["company_id"] = ev.CompanyID
	e.Labels["event_type"] = ev.EventType
	e.Labels["source"] = ev.Source
	if t, err := time.Parse(time.RFC3339Nano, ev.CreatedAt); err == nil {
		e.Time = t
	}
	return e
}

// Client pushes log lines to one Loki instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Loki client for baseURL (e.g. http://loki:3100). httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// PushEventJSON pushes one Kafka telemetry message.
func (c *Client) PushEventJSON(ctx context.Context, raw []byte) error {
	return c.Push(ctx, EventEntry(raw))
}

// PushEvent pushes a single line.
func (c *Client) PushEvent(ctx context.Context, ts time.Time, line string, labels map[string]string) error {
	return c.Push(ctx, Entry{Time: ts, Line: line, Labels: labels})
}

// Push sends entries in one request, one stream per distinct label set.
func (c *Client) Push(ctx context.Context, entries ...Entry) error {
	if c == nil || c.baseURL == "" {
		return errNoBaseURL
	}
	if len(entries) == 0 {
		return nil
	}
	payload, err := json.Marshal(PushRequest{Streams: streams(entries)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}

// streams groups entries by label set, keeping first-seen stream order.
func streams(entries []Entry) []Stream {
	var out []Stream
	index := map[string]int{}
	for _, e := range entries {
		labels := streamLabels(e.Labels)
		key := labelKey(labels)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Stream{Stream: labels})
		}
		out[i].Values = append(out[i].Values, []string{strconv.FormatInt(e.Time.UnixNano(), 10), e.Line})
	}
	return out
}

func streamLabels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+1)
	out["job"] = jobLabel
	for k, v := range in {
		if v = sanitize(strings.TrimSpace(v)); v != "" {
			out[k] = v
		}
	}
	return out
}

// sanitize replaces every rune outside [a-zA-Z0-9_:-] with '_'.
func sanitize(v string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == ':':
			return r
		}
		return '_'
	}, v)
}

func labelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(0)
	}
	return b.String()
}
