package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizlens/backend/internal/ai"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/security"
	"bizlens/backend/internal/server/middleware"
)

type fakeCompleter struct {
	last ai.Request
	err  error
}

func (f *fakeCompleter) Complete(_ context.Context, req ai.Request) (*ai.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &ai.Response{Content: "pong", Model: "llama3.1", Provider: ai.ProviderLocal}, nil
}

type fakeLister struct {
	models []ai.ModelTag
	err    error
}

func (f fakeLister) Models(context.Context) ([]ai.ModelTag, error) { return f.models, f.err }

type fakeAsker struct {
	companyID, userID string
	q                 ai.Question
}

func (f *fakeAsker) Ask(_ context.Context, companyID, userID string, q ai.Question) (*ai.Response, error) {
	f.companyID, f.userID, f.q = companyID, userID, q
	return &ai.Response{Content: "revenue grew 4%", Provider: ai.ProviderGemini, Fallback: true}, nil
}

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(middleware.WithIdentity(c.Request.Context(), &security.Identity{UserID: "u1", Email: "u1@example.com"}))
		c.Next()
	})
	r.POST("/llm/predict", h.Predict)
	r.POST("/llm/chat", h.Chat)
	r.GET("/llm/models", h.Models)
	r.POST("/companies/:id/chat", h.CompanyChat)
	return r
}

func do(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestPredict(t *testing.T) {
	c := &fakeCompleter{}
	r := newRouter(NewHandler(c, nil, nil))

	rec, body := do(r, http.MethodPost, "/llm/predict", `{"prompt":"ping","model":"llama3.1","temperature":0.3,"max_tokens":50}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", body["response"])
	assert.Equal(t, true, body["done"])
	require.Len(t, c.last.Messages, 1)
	assert.Equal(t, "ping", c.last.Messages[0].Content)
	assert.Equal(t, 50, c.last.MaxTokens)
	assert.True(t, c.last.Generate, "predict is a plain generate")
	require.NotNil(t, c.last.Temperature)
	assert.Equal(t, 0.3, *c.last.Temperature)

	rec, body = do(r, http.MethodPost, "/llm/predict", `{"prompt":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "prompt or messages is required", body["error"])
}

func TestChat_Messages(t *testing.T) {
	c := &fakeCompleter{}
	r := newRouter(NewHandler(c, nil, nil))

	rec, body := do(r, http.MethodPost, "/llm/chat", `{"provider":"gemini","messages":[{"role":"system","content":"be brief"},{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "assistant", body["role"])
	assert.Equal(t, "gemini", c.last.Provider)
	assert.Len(t, c.last.Messages, 2)
}

func TestChat_UpstreamErrors(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want int
	}{
		{"upstream", apierror.Upstream("local: status 500"), http.StatusBadGateway},
		{"timeout", apierror.Timeout("upstream timeout"), http.StatusGatewayTimeout},
		{"bad provider", apierror.Invalid(`provider "edge" is not configured`), http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(NewHandler(&fakeCompleter{err: tc.err}, nil, nil))
			rec, _ := do(r, http.MethodPost, "/llm/chat", `{"prompt":"hi"}`)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	r := newRouter(NewHandler(&fakeCompleter{}, nil, nil))
	rec, _ := do(r, http.MethodPost, "/llm/chat", `{bad json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModels(t *testing.T) {
	rec, body := do(newRouter(NewHandler(nil, fakeLister{models: []ai.ModelTag{{Name: "llama3.1"}}}, nil)), http.MethodGet, "/llm/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, body = do(newRouter(NewHandler(nil, fakeLister{err: errors.New("dial tcp: connection refused")}, nil)), http.MethodGet, "/llm/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["models"])
	assert.Contains(t, body["error"], "connection refused")

	rec, body = do(newRouter(NewHandler(nil, nil, nil)), http.MethodGet, "/llm/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "local provider is not configured", body["error"])
}

func TestCompanyChat(t *testing.T) {
	asker := &fakeAsker{}
	r := newRouter(NewHandler(nil, nil, asker))

	rec, body := do(r, http.MethodPost, "/companies/c1/chat", `{"question":"how are sales?","dataset_id":"d1","provider":"local"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "revenue grew 4%", body["answer"])
	assert.Equal(t, true, body["fallback"])
	assert.Equal(t, "c1", asker.companyID)
	assert.Equal(t, "u1", asker.userID)
	assert.Equal(t, "d1", asker.q.DatasetID)
	assert.Equal(t, "local", asker.q.Provider)
}
