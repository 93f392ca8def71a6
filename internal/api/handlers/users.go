package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/models"
	"github.com/troikatech/engage-api/pkg/activity"
	"github.com/troikatech/engage-api/pkg/auth"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/mongo"
	"github.com/troikatech/engage-api/pkg/utils"
)

type UpdateUserRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone" binding:"omitempty,e164"`
	IsActive *bool  `json:"is_active"`
}

func (h *Handler) ListUsers(c *gin.Context) {
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	pagination := utils.ParsePagination(c)

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	users := []models.User{}
	total, err := h.mongoClient.NewQuery(mongo.CollUsers).
		Eq("admin_id", adminID).
		IsNull("deleted_at").
		Contains("name", c.Query("search")).
		EqIf("kyc_status", c.Query("kyc_status")).
		Omit("password").
		Sort("created_at", false).
		FindPage(ctx, pagination.Skip(), int64(pagination.Limit), &users)
	if err != nil {
		h.logger.Error("Failed to fetch users", zap.Error(err))
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewPage(users, pagination, total))
}

// liveUser loads the :id user for the caller's tenant; soft-deleted users
// answer 404.
func (h *Handler) liveUser(c *gin.Context) (models.User, bool) {
	var user models.User
	if !h.findByID(c, mongo.CollUsers, c.Param("id"), &user) || !h.checkOwner(c, user.AdminID) {
		return user, false
	}
	if user.IsDeleted() {
		errors.NotFound(c, "user not found")
		return user, false
	}
	return user, true
}

func (h *Handler) GetUser(c *gin.Context) {
	if user, ok := h.liveUser(c); ok {
		c.JSON(http.StatusOK, user)
	}
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}

	user, ok := h.liveUser(c)
	if !ok {
		return
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = middleware.SanitizeString(req.Name)
	}
	if req.Phone != "" {
		updates["phone"] = req.Phone
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if !h.updateByID(c, mongo.CollUsers, "user", updates) {
		return
	}
	if req.IsActive != nil && !*req.IsActive {
		h.revokeSessions(c, auth.RoleUser, user.ID.Hex())
	}
}

// DeleteUser soft-deletes; the document stays for order and tracking history.
func (h *Handler) DeleteUser(c *gin.Context) {
	user, ok := h.liveUser(c)
	if !ok {
		return
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	now := nowUTC()
	if _, err := h.mongoClient.NewQuery(mongo.CollUsers).Eq("_id", user.ID).
		UpdateOne(ctx, map[string]interface{}{"deleted_at": now, "is_active": false, "updated_at": now}); err != nil {
		h.fail(c, err)
		return
	}
	h.revokeSessions(c, auth.RoleUser, user.ID.Hex())

	h.record(c, activity.ActionDelete, "user", user.ID.Hex(), user.Email)
	c.JSON(http.StatusOK, gin.H{"message": "user deleted successfully"})
}
