package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/models"
	"github.com/troikatech/engage-api/pkg/activity"
	"github.com/troikatech/engage-api/pkg/auth"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/mongo"
	"github.com/troikatech/engage-api/pkg/utils"
)

type CreateAdminRequest struct {
	Name                  string `json:"name" binding:"required"`
	Email                 string `json:"email" binding:"required,email"`
	Phone                 string `json:"phone" binding:"omitempty,e164"`
	Password              string `json:"password" binding:"required,min=8"`
	CompanyName           string `json:"company_name"`
	WhatsAppPhoneNumberID string `json:"whatsapp_phone_number_id"`
}

type UpdateAdminRequest struct {
	Name                  string `json:"name"`
	Phone                 string `json:"phone" binding:"omitempty,e164"`
	CompanyName           string `json:"company_name"`
	WhatsAppPhoneNumberID string `json:"whatsapp_phone_number_id"`
}

func (h *Handler) CreateAdmin(c *gin.Context) {
	var req CreateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}
	creator, _ := primitive.ObjectIDFromHex(middleware.MustIdentity(c).ID)

	admin := models.Admin{
		Name:                  middleware.SanitizeString(req.Name),
		Email:                 strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:                 req.Phone,
		Password:              hash,
		CompanyName:           middleware.SanitizeString(req.CompanyName),
		IsActive:              true,
		WhatsAppPhoneNumberID: req.WhatsAppPhoneNumberID,
		CreatedBy:             creator,
	}
	admin.Touch()

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	if _, err := h.mongoClient.NewQuery(mongo.CollAdmins).Insert(ctx, admin); err != nil {
		h.fail(c, err)
		return
	}

	h.record(c, activity.ActionCreate, "admin", admin.ID.Hex(), admin.Email)
	c.JSON(http.StatusCreated, admin)
}

func (h *Handler) ListAdmins(c *gin.Context) {
	pagination := utils.ParsePagination(c)

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	q := h.mongoClient.NewQuery(mongo.CollAdmins).
		Contains("name", c.Query("search"))
	if active := c.Query("is_active"); active != "" {
		q.Eq("is_active", active == "true")
	}

	admins := []models.Admin{}
	total, err := q.Omit("password").
		Sort("created_at", false).
		FindPage(ctx, pagination.Skip(), int64(pagination.Limit), &admins)
	if err != nil {
		h.logger.Error("Failed to fetch admins", zap.Error(err))
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewPage(admins, pagination, total))
}

func (h *Handler) GetAdmin(c *gin.Context) {
	var admin models.Admin
	if !h.findByID(c, mongo.CollAdmins, c.Param("id"), &admin) {
		return
	}
	c.JSON(http.StatusOK, admin)
}

func (h *Handler) UpdateAdmin(c *gin.Context) {
	var req UpdateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = middleware.SanitizeString(req.Name)
	}
	if req.Phone != "" {
		updates["phone"] = req.Phone
	}
	if req.CompanyName != "" {
		updates["company_name"] = middleware.SanitizeString(req.CompanyName)
	}
	if req.WhatsAppPhoneNumberID != "" {
		updates["whatsapp_phone_number_id"] = req.WhatsAppPhoneNumberID
	}
	h.updateByID(c, mongo.CollAdmins, "admin", updates)
}

// SetAdminActive returns the activate or deactivate handler. Deactivation
// also revokes the admin's session.
func (h *Handler) SetAdminActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !h.updateByID(c, mongo.CollAdmins, "admin", map[string]interface{}{"is_active": active}) {
			return
		}
		if !active {
			h.revokeSessions(c, auth.RoleAdmin, id)
		}
	}
}

// updateByID applies $set updates to one document and writes the response.
// Ownership must already have been checked by the caller when it matters.
func (h *Handler) updateByID(c *gin.Context, collection, resourceType string, updates map[string]interface{}) bool {
	if len(updates) == 0 {
		errors.BadRequest(c, "no fields to update")
		return false
	}
	oid, err := mongo.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		errors.BadRequest(c, "invalid id")
		return false
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	updates["updated_at"] = nowUTC()
	res, err := h.mongoClient.NewQuery(collection).Eq("_id", oid).UpdateOne(ctx, updates)
	if err != nil {
		h.logger.Error("Failed to update "+resourceType, zap.Error(err))
		h.fail(c, err)
		return false
	}
	if res.MatchedCount == 0 {
		errors.NotFound(c, resourceType+" not found")
		return false
	}

	action := activity.ActionUpdate
	if v, ok := updates["is_active"].(bool); ok && len(updates) == 2 {
		action = activity.ActionDeactivate
		if v {
			action = activity.ActionActivate
		}
	}
	h.record(c, action, resourceType, oid.Hex(), "")

	c.JSON(http.StatusOK, gin.H{"message": resourceType + " updated successfully"})
	return true
}
