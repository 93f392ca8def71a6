package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/models"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/mongo"
	"github.com/troikatech/engage-api/pkg/utils"
)

// recipient scopes notification queries to the caller.
func (h *Handler) recipient(c *gin.Context) (*mongo.QueryBuilder, bool) {
	id := middleware.MustIdentity(c)
	oid, err := primitive.ObjectIDFromHex(id.ID)
	if err != nil {
		errors.Forbidden(c, "invalid identity")
		return nil, false
	}
	return h.mongoClient.NewQuery(mongo.CollNotifications).
		Eq("recipient_id", oid).
		Eq("recipient_role", id.Role), true
}

func (h *Handler) ListNotifications(c *gin.Context) {
	pagination := utils.ParsePagination(c)

	q, ok := h.recipient(c)
	if !ok {
		return
	}
	switch c.Query("is_read") {
	case "true":
		q.Eq("is_read", true)
	case "false":
		q.Eq("is_read", false)
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	notifications := []models.Notification{}
	total, err := q.EqIf("type", c.Query("type")).
		Sort("created_at", false).
		FindPage(ctx, pagination.Skip(), int64(pagination.Limit), &notifications)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewPage(notifications, pagination, total))
}

func (h *Handler) UnreadNotificationCount(c *gin.Context) {
	q, ok := h.recipient(c)
	if !ok {
		return
	}
	ctx, cancel := h.dbCtx(c)
	defer cancel()

	n, err := q.Eq("is_read", false).Count(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	oid, err := mongo.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		errors.BadRequest(c, "invalid id")
		return
	}
	q, ok := h.recipient(c)
	if !ok {
		return
	}
	ctx, cancel := h.dbCtx(c)
	defer cancel()

	now := nowUTC()
	res, err := q.Eq("_id", oid).UpdateOne(ctx, map[string]interface{}{"is_read": true, "read_at": now, "updated_at": now})
	if err != nil {
		h.fail(c, err)
		return
	}
	if res.MatchedCount == 0 {
		errors.NotFound(c, "notification not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "notification marked as read"})
}

func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	q, ok := h.recipient(c)
	if !ok {
		return
	}
	ctx, cancel := h.dbCtx(c)
	defer cancel()

	now := nowUTC()
	res, err := q.Eq("is_read", false).Update(ctx, map[string]interface{}{"is_read": true, "read_at": now, "updated_at": now})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": res.ModifiedCount})
}

// notify stores a notification for one recipient; failures are logged only.
func (h *Handler) notify(c *gin.Context, n models.Notification) {
	n.Touch()
	ctx, cancel := h.dbCtx(c)
	defer cancel()
	if _, err := h.mongoClient.NewQuery(mongo.CollNotifications).Insert(ctx, n); err != nil {
		h.logger.Warn("Failed to store notification", zap.String("type", n.Type), zap.Error(err))
	}
}
