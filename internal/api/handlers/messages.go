package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/tracking"
	"github.com/troikatech/engage-api/pkg/activity"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/logger"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/utils"
	"github.com/troikatech/engage-api/pkg/whatsapp"
)

type SendTextRequest struct {
	To   string `json:"to" binding:"required,e164"`
	Body string `json:"body" binding:"required,max=4096"`
}

type SendTemplateRequest struct {
	To         string               `json:"to" binding:"required,e164"`
	Template   string               `json:"template_name" binding:"required"`
	Language   string               `json:"language"`
	Components []whatsapp.Component `json:"components"`
}

func (h *Handler) SendText(c *gin.Context) {
	if !requireService(c, h.whatsapp != nil, "WhatsApp") {
		return
	}
	var req SendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}

	h.sendWhatsApp(c, req.To, "text", func(ctx context.Context, to string) (*whatsapp.SendResponse, error) {
		return h.whatsapp.SendText(ctx, to, middleware.SanitizeString(req.Body))
	})
}

func (h *Handler) SendTemplate(c *gin.Context) {
	if !requireService(c, h.whatsapp != nil, "WhatsApp") {
		return
	}
	var req SendTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	if req.Language == "" {
		req.Language = "en"
	}

	h.sendWhatsApp(c, req.To, "template:"+req.Template, func(ctx context.Context, to string) (*whatsapp.SendResponse, error) {
		return h.whatsapp.SendTemplate(ctx, to, req.Template, req.Language, req.Components)
	})
}

func (h *Handler) sendWhatsApp(c *gin.Context, to, kind string, send func(context.Context, string) (*whatsapp.SendResponse, error)) {
	start := time.Now()
	resp, err := send(c.Request.Context(), utils.WhatsAppNumber(to))
	elapsed := time.Since(start)

	h.trackOutbound(c, tracking.CategoryAPI, "", "whatsapp/messages", http.MethodPost, err == nil, elapsed)
	if err != nil {
		h.logger.Warn("WhatsApp send failed", logger.MaskPhone("to", to), zap.String("kind", kind), zap.Error(err))
		h.upstreamFailed(c, "whatsapp", err)
		return
	}

	h.record(c, activity.ActionSend, "whatsapp_message", resp.MessageID(), kind+" to "+utils.MaskPhoneNumber(to))
	c.JSON(http.StatusOK, gin.H{"message_id": resp.MessageID()})
}

// trackOutbound emits a tracking event for a provider call.
func (h *Handler) trackOutbound(c *gin.Context, category tracking.Category, userID, endpoint, method string, success bool, elapsed time.Duration) {
	if h.tracking == nil {
		return
	}
	id := middleware.MustIdentity(c)
	if userID == "" {
		userID = id.ID
	}
	run := tracking.Context{AdminID: id.OwnerAdminID(), UserID: userID}
	if _, err := h.tracking.TrackAPICall(c.Request.Context(), run, tracking.APICall{
		Category:        category,
		Endpoint:        endpoint,
		Method:          method,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Success:         success,
	}); err != nil {
		h.logger.Debug("Failed to track outbound call", zap.Error(err))
	}
}
