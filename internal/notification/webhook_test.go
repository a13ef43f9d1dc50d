package notification

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bizlens/backend/internal/platform/netguard"
)

// fastWebhookClient targets httptest servers, which listen on loopback.
func fastWebhookClient() *WebhookClient {
	c := NewWebhookClient()
	c.Delay = time.Millisecond
	c.AllowPrivate = true
	return c
}

func TestDeliver_SignsBody(t *testing.T) {
	payload := []byte(`{"event":"automation_rule_triggered"}`)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != string(payload) {
			t.Errorf("body = %s", body)
		}
		if got, want := r.Header.Get(SignatureHeader), Sign("s3cret", payload); got != want {
			t.Errorf("signature = %q, want %q", got, want)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := fastWebhookClient().Deliver(context.Background(), server.URL, "s3cret", payload); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SignatureHeader) != "" {
			t.Error("signature header should be absent without a secret")
		}
	}))
	defer server.Close()
	if err := fastWebhookClient().Deliver(context.Background(), server.URL, "", []byte(`{}`)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
}

func TestDeliver_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := fastWebhookClient().Deliver(context.Background(), server.URL, "", []byte(`{}`)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if hits.Load() != 4 {
		t.Errorf("hits = %d, want 4 (three retries after the first attempt)", hits.Load())
	}
}

func TestDeliver_GivesUp(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		wantHits int32
	}{
		{"5xx exhausts three retries", http.StatusServiceUnavailable, 4},
		{"4xx is not retried", http.StatusNotFound, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			if err := fastWebhookClient().Deliver(context.Background(), server.URL, "", []byte(`{}`)); err == nil {
				t.Fatal("expected error")
			}
			if hits.Load() != tc.wantHits {
				t.Errorf("hits = %d, want %d", hits.Load(), tc.wantHits)
			}
		})
	}
}

func TestDeliver_RefusesInternalAddresses(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	c := NewWebhookClient()
	c.Delay = time.Millisecond
	err := c.Deliver(context.Background(), server.URL, "", []byte(`{}`))
	if !errors.Is(err, netguard.ErrBlocked) {
		t.Fatalf("Deliver to %s: err = %v, want ErrBlocked", server.URL, err)
	}
	if hits.Load() != 0 {
		t.Errorf("hits = %d, want 0", hits.Load())
	}
}
