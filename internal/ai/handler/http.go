package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"bizlens/backend/internal/ai"
	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/server/middleware"
)

var errInvalidBody = apierror.Invalid("invalid request body")

// ModelLister lists local models; *ai.Ollama implements it.
type ModelLister interface {
	Models(ctx context.Context) ([]ai.ModelTag, error)
}

// Asker answers chat-with-data questions; *ai.DataChat implements it.
type Asker interface {
	Ask(ctx context.Context, companyID, userID string, q ai.Question) (*ai.Response, error)
}

// Handler serves /llm routes and company chat.
type Handler struct {
	ai     ai.Completer
	models ModelLister
	chat   Asker
}

// NewHandler builds the handler. models may be nil when no local provider is configured.
func NewHandler(completer ai.Completer, models ModelLister, chat Asker) *Handler {
	return &Handler{ai: completer, models: models, chat: chat}
}

type promptRequest struct {
	Prompt      string       `json:"prompt"`
	Messages    []ai.Message `json:"messages"`
	Provider    string       `json:"provider"`
	Model       string       `json:"model"`
	Temperature *float64     `json:"temperature"`
	MaxTokens   int          `json:"max_tokens"`
}

func (r promptRequest) toRequest() ai.Request {
	msgs := r.Messages
	if len(msgs) == 0 && r.Prompt != "" {
		msgs = ai.Prompt(r.Prompt)
	}
	return ai.Request{Provider: r.Provider, Model: r.Model, Messages: msgs, Temperature: r.Temperature, MaxTokens: r.MaxTokens}
}

type chatRequest struct {
	Question  string `json:"question"`
	DatasetID string `json:"dataset_id"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

// Predict handles POST /llm/predict, a single-prompt completion.
func (h *Handler) Predict(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, errInvalidBody)
		return
	}
	req.Messages = nil
	areq := req.toRequest()
	areq.Generate = true
	resp, err := h.ai.Complete(c.Request.Context(), areq)
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"response": resp.Content,
		"model":    resp.Model,
		"provider": resp.Provider,
		"done":     true,
		"cached":   resp.Cached,
		"fallback": resp.Fallback,
	})
}

// Chat handles POST /llm/chat with either a prompt or a message list.
func (h *Handler) Chat(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, errInvalidBody)
		return
	}
	resp, err := h.ai.Complete(c.Request.Context(), req.toRequest())
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"response": resp.Content,
		"role":     ai.RoleAssistant,
		"model":    resp.Model,
		"provider": resp.Provider,
		"cached":   resp.Cached,
		"fallback": resp.Fallback,
	})
}

// Models handles GET /llm/models. An unreachable local server is reported in the body, not as an error status.
func (h *Handler) Models(c *gin.Context) {
	if h.models == nil {
		c.JSON(http.StatusOK, gin.H{"models": []ai.ModelTag{}, "error": "local provider is not configured"})
		return
	}
	models, err := h.models.Models(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"models": []ai.ModelTag{}, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models, "count": len(models)})
}

// CompanyChat handles POST /companies/:id/chat.
func (h *Handler) CompanyChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, errInvalidBody)
		return
	}
	ctx := c.Request.Context()
	userID, _ := middleware.GetUserID(ctx)
	resp, err := h.chat.Ask(ctx, c.Param("id"), userID, ai.Question{
		Question:  req.Question,
		DatasetID: req.DatasetID,
		Provider:  req.Provider,
		Model:     req.Model,
	})
	if err != nil {
		apierror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"answer":   resp.Content,
		"model":    resp.Model,
		"provider": resp.Provider,
		"cached":   resp.Cached,
		"fallback": resp.Fallback,
	})
}
