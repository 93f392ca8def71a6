package handlers

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/models"
	"github.com/troikatech/engage-api/pkg/activity"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/mongo"
	"github.com/troikatech/engage-api/pkg/utils"
	"github.com/troikatech/engage-api/pkg/whatsapp"
)

var templateNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,512}$`)

type CreateTemplateRequest struct {
	Name       string                       `json:"name" binding:"required"`
	Language   string                       `json:"language" binding:"required"`
	Category   string                       `json:"category" binding:"required,oneof=MARKETING UTILITY AUTHENTICATION"`
	Components []whatsapp.TemplateComponent `json:"components" binding:"required,min=1"`
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	if !requireService(c, h.whatsapp != nil, "WhatsApp") {
		return
	}
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	if !templateNamePattern.MatchString(req.Name) {
		errors.BadRequest(c, "name must contain only lowercase letters, digits and underscores")
		return
	}
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp, err := h.whatsapp.CreateTemplate(c.Request.Context(), whatsapp.Template{
		Name:       req.Name,
		Language:   req.Language,
		Category:   req.Category,
		Components: req.Components,
	})
	if err != nil {
		h.upstreamFailed(c, "whatsapp", err)
		return
	}

	tpl := models.WhatsappTemplate{
		AdminID:        adminID,
		MetaTemplateID: resp.ID,
		Name:           req.Name,
		Language:       req.Language,
		Category:       req.Category,
		Status:         resp.Status,
		Components:     req.Components,
	}
	if tpl.Status == "" {
		tpl.Status = models.TemplateStatusPending
	}
	tpl.Touch()

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	if _, err := h.mongoClient.NewQuery(mongo.CollWhatsappTemplates).Insert(ctx, tpl); err != nil {
		h.fail(c, err)
		return
	}
	h.record(c, activity.ActionCreate, "whatsapp_template", tpl.ID.Hex(), tpl.Name)
	c.JSON(http.StatusCreated, tpl)
}

func (h *Handler) ListTemplates(c *gin.Context) {
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	pagination := utils.ParsePagination(c)

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	templates := []models.WhatsappTemplate{}
	total, err := h.mongoClient.NewQuery(mongo.CollWhatsappTemplates).
		Eq("admin_id", adminID).
		EqIf("status", c.Query("status")).
		EqIf("category", c.Query("category")).
		Contains("name", c.Query("search")).
		Sort("created_at", false).
		FindPage(ctx, pagination.Skip(), int64(pagination.Limit), &templates)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewPage(templates, pagination, total))
}

func (h *Handler) GetTemplate(c *gin.Context) {
	var tpl models.WhatsappTemplate
	if !h.findByID(c, mongo.CollWhatsappTemplates, c.Param("id"), &tpl) || !h.checkOwner(c, tpl.AdminID) {
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// DeleteTemplate removes the template from Meta first, then locally.
func (h *Handler) DeleteTemplate(c *gin.Context) {
	if !requireService(c, h.whatsapp != nil, "WhatsApp") {
		return
	}
	var tpl models.WhatsappTemplate
	if !h.findByID(c, mongo.CollWhatsappTemplates, c.Param("id"), &tpl) || !h.checkOwner(c, tpl.AdminID) {
		return
	}

	if err := h.whatsapp.DeleteTemplate(c.Request.Context(), tpl.Name); err != nil {
		h.upstreamFailed(c, "whatsapp", err)
		return
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	if _, err := h.mongoClient.NewQuery(mongo.CollWhatsappTemplates).Eq("_id", tpl.ID).DeleteOne(ctx); err != nil {
		h.fail(c, err)
		return
	}
	h.record(c, activity.ActionDelete, "whatsapp_template", tpl.ID.Hex(), tpl.Name)
	c.JSON(http.StatusOK, gin.H{"message": "template deleted successfully"})
}

// SyncTemplates pulls review statuses from Meta on demand.
func (h *Handler) SyncTemplates(c *gin.Context) {
	if !requireService(c, h.whatsapp != nil, "WhatsApp") {
		return
	}
	updated, err := h.SyncTemplateStatuses(c.Request.Context())
	if err != nil {
		h.upstreamFailed(c, "whatsapp", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func templateKey(name, language string) string {
	return name + "|" + language
}

// SyncTemplateStatuses copies Meta's review status onto every stored
// template whose status changed. Also run on a schedule.
func (h *Handler) SyncTemplateStatuses(ctx context.Context) (int, error) {
	remote, err := h.whatsapp.ListTemplates(ctx)
	if err != nil {
		return 0, err
	}
	byKey := make(map[string]whatsapp.Template, len(remote))
	for _, t := range remote {
		byKey[templateKey(t.Name, t.Language)] = t
	}

	var local []models.WhatsappTemplate
	if err := h.mongoClient.NewQuery(mongo.CollWhatsappTemplates).
		Select("_id", "name", "language", "status", "meta_template_id").
		FindInto(ctx, &local); err != nil {
		return 0, fmt.Errorf("load templates: %w", err)
	}

	updated := 0
	for _, tpl := range local {
		r, ok := byKey[templateKey(tpl.Name, tpl.Language)]
		if !ok || r.Status == "" || r.Status == tpl.Status {
			continue
		}
		set := map[string]interface{}{"status": r.Status, "updated_at": nowUTC()}
		if tpl.MetaTemplateID == "" && r.ID != "" {
			set["meta_template_id"] = r.ID
		}
		if _, err := h.mongoClient.NewQuery(mongo.CollWhatsappTemplates).Eq("_id", tpl.ID).UpdateOne(ctx, set); err != nil {
			h.logger.Warn("Failed to update template status", zap.String("template", tpl.Name), zap.Error(err))
			continue
		}
		updated++
	}
	return updated, nil
}
