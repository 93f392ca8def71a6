package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/engage-api/pkg/activity"
	"github.com/troikatech/engage-api/pkg/auth"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/utils"
)

// parseDateRange reads from_date/to_date as RFC3339 or plain dates.
func parseDateRange(c *gin.Context) (from, to *time.Time, ok bool) {
	parse := func(key string, endOfDay bool) (*time.Time, bool) {
		raw := c.Query(key)
		if raw == "" {
			return nil, true
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return &t, true
		}
		t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return nil, false
		}
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, true
	}

	if from, ok = parse("from_date", false); !ok {
		errors.BadRequest(c, "from_date must be RFC3339 or YYYY-MM-DD")
		return nil, nil, false
	}
	if to, ok = parse("to_date", true); !ok {
		errors.BadRequest(c, "to_date must be RFC3339 or YYYY-MM-DD")
		return nil, nil, false
	}
	return from, to, true
}

// ListActivityLogs returns the caller's tenant activity. Superadmins may pass admin_id.
func (h *Handler) ListActivityLogs(c *gin.Context) {
	if !requireService(c, h.activity != nil, "activity log") {
		return
	}
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	id := middleware.MustIdentity(c)
	filter := activity.Filter{
		AdminID:      id.OwnerAdminID(),
		ActorID:      c.Query("actor_id"),
		Action:       c.Query("action"),
		ResourceType: c.Query("resource_type"),
		From:         from,
		To:           to,
	}
	if id.Role == auth.RoleSuperAdmin {
		filter.AdminID = c.Query("admin_id")
	}

	pagination := utils.ParsePagination(c)

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	entries, total, err := h.activity.List(ctx, filter, pagination.Skip(), int64(pagination.Limit))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewPage(entries, pagination, total))
}
