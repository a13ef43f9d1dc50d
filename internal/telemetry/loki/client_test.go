package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lokiServer(t *testing.T, status int, got *PushRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/push", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.WriteHeader(status)
	}))
}

func TestPushEventJSON_LabelsAndTimestamp(t *testing.T) {
	var got PushRequest
	srv := lokiServer(t, http.StatusNoContent, &got)
	defer srv.Close()

	raw := []byte(`{"company_id":"acme corp","event_type":"http_request","source":"http_middleware","created_at":"2025-01-02T03:04:05Z"}`)
	require.NoError(t, NewClient(srv.URL+"/", srv.Client()).PushEventJSON(context.Background(), raw))

	require.Len(t, got.Streams, 1)
	s := got.Streams[0]
	assert.Equal(t, "bizlens", s.Stream["job"])
	assert.Equal(t, "acme_corp", s.Stream["company_id"])
	assert.Equal(t, "http_request", s.Stream["event_type"])
	require.Len(t, s.Values, 1)
	want := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC).UnixNano()
	assert.Equal(t, strconv.FormatInt(want, 10), s.Values[0][0])
	assert.Equal(t, string(raw), s.Values[0][1])
}

func TestPushEventJSON_UnparsableLine(t *testing.T) {
	var got PushRequest
	srv := lokiServer(t, http.StatusNoContent, &got)
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, srv.Client()).PushEventJSON(context.Background(), []byte("not json")))
	require.Len(t, got.Streams, 1)
	assert.Equal(t, map[string]string{"job": "bizlens"}, got.Streams[0].Stream)
	assert.Equal(t, "not json", got.Streams[0].Values[0][1])
}

func TestPushEvent_Errors(t *testing.T) {
	assert.Error(t, NewClient("", nil).PushEvent(context.Background(), time.Now(), "x", nil))

	srv := lokiServer(t, http.StatusBadRequest, nil)
	defer srv.Close()
	err := NewClient(srv.URL, srv.Client()).PushEvent(context.Background(), time.Now(), "x", nil)
	assert.ErrorContains(t, err, "400")
}

func TestPush_GroupsByLabels(t *testing.T) {
	var got PushRequest
	srv := lokiServer(t, http.StatusNoContent, &got)
	defer srv.Close()

	ts := time.Unix(1700000000, 0)
	err := NewClient(srv.URL, srv.Client()).Push(context.Background(),
		Entry{Time: ts, Line: "a", Labels: map[string]string{"company_id": "c1"}},
		Entry{Time: ts, Line: "b", Labels: map[string]string{"company_id": "c2"}},
		Entry{Time: ts, Line: "c", Labels: map[string]string{"company_id": "c1", "source": ""}},
	)
	require.NoError(t, err)
	require.Len(t, got.Streams, 2)
	assert.Equal(t, "c1", got.Streams[0].Stream["company_id"])
	assert.Len(t, got.Streams[0].Values, 2)
	assert.Len(t, got.Streams[1].Values, 1)
}

func TestPush_NoEntries(t *testing.T) {
	assert.NoError(t, NewClient("http://loki:3100", nil).Push(context.Background()))
}
