package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/plugins/telegram"
	"github.com/agentrun/agentrun/internal/scenario/service"
)

// CallbackAnswerer acknowledges callback queries so the client stops showing
// a progress spinner. Implemented by the telegram client.
type CallbackAnswerer interface {
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error
}

// WebhookHandler routes Telegram updates to paused executions. Updates that
// are not callback queries, or that match no waiting record, are acknowledged
// and dropped: Telegram retries on non-200 responses.
type WebhookHandler struct {
	svc      *service.Service
	answerer CallbackAnswerer
	logger   *logger.Logger
}

// NewWebhookHandler creates the Telegram webhook handler. answerer may be nil
// in tests.
func NewWebhookHandler(svc *service.Service, answerer CallbackAnswerer, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		svc:      svc,
		answerer: answerer,
		logger:   log.WithFields(zap.String("component", "telegram-webhook")),
	}
}

// Handle processes one webhook update.
func (h *WebhookHandler) Handle(c *gin.Context) {
	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid update"})
		return
	}

	callback := update.CallbackQuery
	if callback == nil || callback.Message == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	ctx := c.Request.Context()
	if h.answerer != nil {
		if err := h.answerer.AnswerCallbackQuery(ctx, callback.ID); err != nil {
			h.logger.Warn("failed to answer callback query", zap.Error(err))
		}
	}

	waiting, result := h.svc.ResumeByMessage(ctx,
		callback.Message.Chat.ID, callback.Message.MessageID, callback.Data)
	if result == nil {
		h.logger.Debug("callback matched no waiting execution",
			zap.Int64("chat_id", callback.Message.Chat.ID),
			zap.Int64("message_id", callback.Message.MessageID))
		c.JSON(http.StatusOK, gin.H{"ok": true, "matched": false})
		return
	}

	h.logger.Info("resumed execution from callback",
		zap.String("instance_id", waiting.InstanceID),
		zap.String("status", result.Status))
	c.JSON(http.StatusOK, gin.H{"ok": true, "matched": true, "result": result})
}
