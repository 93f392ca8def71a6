package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/models"
	"github.com/troikatech/engage-api/pkg/logger"
	"github.com/troikatech/engage-api/pkg/mongo"
	"github.com/troikatech/engage-api/pkg/utils"
	"github.com/troikatech/engage-api/pkg/webhook"
	"github.com/troikatech/engage-api/pkg/whatsapp"
)

const recordingPersistTimeout = 2 * time.Minute

type ExotelWebhookPayload struct {
	CallSid      string `form:"CallSid"`
	From         string `form:"From"`
	To           string `form:"To"`
	Direction    string `form:"Direction"`
	Status       string `form:"Status"`
	StartTime    string `form:"StartTime"`
	EndTime      string `form:"EndTime"`
	Duration     string `form:"ConversationDuration"`
	RecordingUrl string `form:"RecordingUrl"`
	CustomField  string `form:"CustomField"`
}

// webhookAck is the body every webhook answers with. Providers retry on
// anything but 200, so processing errors are logged instead.
func webhookAck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// VerifyWhatsAppWebhook answers Meta's subscription handshake.
func (h *Handler) VerifyWhatsAppWebhook(c *gin.Context) {
	challenge, ok := webhook.VerifyChallenge(
		h.cfg.WhatsAppVerifyToken,
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if !ok {
		c.String(http.StatusForbidden, "verification failed")
		return
	}
	c.String(http.StatusOK, challenge)
}

func (h *Handler) WhatsAppWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Warn("Failed to read WhatsApp webhook body", zap.Error(err))
		webhookAck(c)
		return
	}
	if err := webhook.VerifyMetaSignature(h.cfg.WhatsAppAppSecret, body, c.GetHeader("X-Hub-Signature-256")); err != nil {
		h.logger.Warn("Dropped WhatsApp webhook with bad signature", zap.Error(err))
		webhookAck(c)
		return
	}

	var payload whatsapp.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("Malformed WhatsApp webhook", zap.Error(err))
		webhookAck(c)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			switch change.Field {
			case "messages":
				h.handleInboundMessages(c, change.Value)
			case "message_template_status_update":
				h.handleTemplateStatus(c, change.Value)
			}
		}
	}
	webhookAck(c)
}

// adminForPhoneNumber finds the tenant that owns a WhatsApp phone number id.
func (h *Handler) adminForPhoneNumber(ctx context.Context, phoneNumberID string) (*models.Admin, error) {
	var admin models.Admin
	err := h.mongoClient.NewQuery(mongo.CollAdmins).
		Eq("whatsapp_phone_number_id", phoneNumberID).
		Omit("password").
		FindOneInto(ctx, &admin)
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

func (h *Handler) handleInboundMessages(c *gin.Context, v whatsapp.ChangeValue) {
	if len(v.Messages) == 0 {
		return
	}
	ctx, cancel := h.dbCtx(c)
	defer cancel()

	admin, err := h.adminForPhoneNumber(ctx, v.Metadata.PhoneNumberID)
	if err != nil {
		h.logger.Warn("No admin for WhatsApp number",
			zap.String("phone_number_id", v.Metadata.PhoneNumberID),
			zap.Error(err),
		)
		return
	}

	names := make(map[string]string, len(v.Contacts))
	for _, ct := range v.Contacts {
		names[ct.WaID] = ct.Profile.Name
	}

	for _, m := range v.Messages {
		if !h.deduper.FirstSeen(ctx, m.ID) {
			continue
		}
		from := utils.FromWhatsAppID(m.From)
		sender := names[m.From]
		if sender == "" {
			sender = from
		}
		h.notify(c, models.Notification{
			AdminID:       admin.ID,
			RecipientID:   admin.ID,
			RecipientRole: "admin",
			Type:          models.NotificationMessage,
			Title:         "New WhatsApp message from " + sender,
			Message:       m.Body(),
			Data: map[string]interface{}{
				"message_id": m.ID,
				"from":       from,
				"type":       m.Type,
			},
		})
		h.logger.Info("Inbound WhatsApp message",
			zap.String("message_id", m.ID),
			logger.MaskPhone("from", from),
		)
	}
}

func (h *Handler) handleTemplateStatus(c *gin.Context, v whatsapp.ChangeValue) {
	if v.MessageTemplateName == "" || v.Event == "" {
		return
	}
	dedupeKey := fmt.Sprintf("tpl:%d:%s", v.MessageTemplateID, v.Event)
	ctx, cancel := h.dbCtx(c)
	defer cancel()

	if !h.deduper.FirstSeen(ctx, dedupeKey) {
		return
	}

	q := h.mongoClient.NewQuery(mongo.CollWhatsappTemplates).Eq("name", v.MessageTemplateName)
	if v.MessageTemplateLanguage != "" {
		q.Eq("language", v.MessageTemplateLanguage)
	}
	var tpl models.WhatsappTemplate
	if err := q.FindOneInto(ctx, &tpl); err != nil {
		h.logger.Warn("Status update for unknown template",
			zap.String("template", v.MessageTemplateName),
			zap.Error(err),
		)
		return
	}

	status := strings.ToUpper(v.Event)
	set := map[string]interface{}{"status": status, "updated_at": nowUTC()}
	if v.Reason != "" && v.Reason != "NONE" {
		set["rejected_reason"] = v.Reason
	}
	if _, err := h.mongoClient.NewQuery(mongo.CollWhatsappTemplates).Eq("_id", tpl.ID).UpdateOne(ctx, set); err != nil {
		h.logger.Error("Failed to update template status", zap.String("template", tpl.Name), zap.Error(err))
		return
	}

	h.notify(c, models.Notification{
		AdminID:       tpl.AdminID,
		RecipientID:   tpl.AdminID,
		RecipientRole: "admin",
		Type:          models.NotificationTemplate,
		Title:         "Template " + tpl.Name + " " + strings.ToLower(status),
		Message:       v.Reason,
		Data:          map[string]interface{}{"template_id": tpl.ID.Hex(), "status": status},
	})
}

// ExotelWebhook applies a call status callback to the stored call.
func (h *Handler) ExotelWebhook(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		h.logger.Warn("Malformed Exotel webhook", zap.Error(err))
		webhookAck(c)
		return
	}
	if err := webhook.VerifyExotelSignature(h.cfg.ExotelWebhookSecret, c.Request.PostForm, c.GetHeader("X-Exotel-Signature")); err != nil {
		h.logger.Warn("Dropped Exotel webhook with bad signature", zap.Error(err))
		webhookAck(c)
		return
	}

	var payload ExotelWebhookPayload
	if err := c.ShouldBind(&payload); err != nil || payload.CallSid == "" {
		h.logger.Warn("Exotel webhook without CallSid")
		webhookAck(c)
		return
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	if !h.deduper.FirstSeen(ctx, payload.CallSid+":"+payload.Status) {
		webhookAck(c)
		return
	}

	updates := callUpdates(payload.Status, payload.Duration, payload.RecordingUrl, payload.StartTime, payload.EndTime)
	res, err := h.mongoClient.NewQuery(mongo.CollCalls).Eq("call_sid", payload.CallSid).UpdateOne(ctx, updates)
	if err != nil {
		h.logger.Error("Failed to update call from webhook", zap.String("call_sid", payload.CallSid), zap.Error(err))
		webhookAck(c)
		return
	}
	if res.MatchedCount == 0 {
		h.logger.Warn("Webhook for unknown call", zap.String("call_sid", payload.CallSid))
		webhookAck(c)
		return
	}

	var call models.Call
	if err := h.mongoClient.NewQuery(mongo.CollCalls).Eq("call_sid", payload.CallSid).FindOneInto(ctx, &call); err != nil {
		webhookAck(c)
		return
	}

	if call.IsTerminal() {
		if call.RecordingURL != "" && h.storage != nil {
			go h.persistRecording(call.CallSID, call.RecordingURL)
		}
		h.notify(c, models.Notification{
			AdminID:       call.AdminID,
			RecipientID:   call.AdminID,
			RecipientRole: "admin",
			Type:          models.NotificationCall,
			Title:         "Call " + call.Status,
			Message:       fmt.Sprintf("Call to %s %s after %s", utils.MaskPhoneNumber(call.To), call.Status, call.FormattedDuration()),
			Data:          map[string]interface{}{"call_id": call.ID.Hex(), "call_sid": call.CallSID, "status": call.Status},
		})
	}
	webhookAck(c)
}

func (h *Handler) persistRecording(callSID, recordingURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), recordingPersistTimeout)
	defer cancel()
	if err := h.storage.Persist(ctx, callSID, recordingURL); err != nil {
		h.logger.Error("Failed to persist recording", zap.String("call_sid", callSID), zap.Error(err))
	}
}
