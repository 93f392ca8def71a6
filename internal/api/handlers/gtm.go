package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"google.golang.org/api/tagmanager/v2"

	"github.com/troikatech/engage-api/pkg/activity"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/gtm"
)

type CreateGTMTagRequest struct {
	Name       string   `json:"name" binding:"required"`
	HTML       string   `json:"html" binding:"required"`
	TriggerIDs []string `json:"trigger_ids" binding:"required,min=1"`
	Notes      string   `json:"notes"`
}

type CreateGTMTriggerRequest struct {
	Name      string `json:"name" binding:"required"`
	EventName string `json:"event_name" binding:"required"`
}

type PublishGTMRequest struct {
	Name  string `json:"name" binding:"required"`
	Notes string `json:"notes"`
}

type SyncGTMTagRequest struct {
	Category string `json:"category" binding:"required,oneof=workflow kyc api user_interaction"`
	Type     string `json:"event_type" binding:"required"`
	Entity   string `json:"entity"`
	UserID   string `json:"user_id"`
}

// The path helpers fall back to the configured ids for missing query params.
func (h *Handler) gtmAccount(c *gin.Context) string {
	return h.gtm.AccountPath(c.Query("account_id"))
}

func (h *Handler) gtmContainer(c *gin.Context) string {
	return h.gtm.ContainerPath(c.Query("account_id"), c.Query("container_id"))
}

func (h *Handler) gtmWorkspace(c *gin.Context) string {
	return h.gtm.WorkspacePath(c.Query("account_id"), c.Query("container_id"), c.Query("workspace_id"))
}

// gtmList adapts a list call into a handler.
func gtmList[T any](h *Handler, list func(c *gin.Context) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireService(c, h.gtm != nil, "Google Tag Manager") {
			return
		}
		items, err := list(c)
		if err != nil {
			h.upstreamFailed(c, "gtm", err)
			return
		}
		if items == nil {
			items = []T{}
		}
		c.JSON(http.StatusOK, gin.H{"data": items, "count": len(items)})
	}
}

func (h *Handler) ListGTMAccounts() gin.HandlerFunc {
	return gtmList(h, func(c *gin.Context) ([]*tagmanager.Account, error) {
		return h.gtm.ListAccounts(c.Request.Context())
	})
}

func (h *Handler) ListGTMContainers() gin.HandlerFunc {
	return gtmList(h, func(c *gin.Context) ([]*tagmanager.Container, error) {
		return h.gtm.ListContainers(c.Request.Context(), h.gtmAccount(c))
	})
}

func (h *Handler) ListGTMWorkspaces() gin.HandlerFunc {
	return gtmList(h, func(c *gin.Context) ([]*tagmanager.Workspace, error) {
		return h.gtm.ListWorkspaces(c.Request.Context(), h.gtmContainer(c))
	})
}

func (h *Handler) ListGTMEnvironments() gin.HandlerFunc {
	return gtmList(h, func(c *gin.Context) ([]*tagmanager.Environment, error) {
		return h.gtm.ListEnvironments(c.Request.Context(), h.gtmContainer(c))
	})
}

func (h *Handler) ListGTMTags() gin.HandlerFunc {
	return gtmList(h, func(c *gin.Context) ([]*tagmanager.Tag, error) {
		tags, err := h.gtm.ListTags(c.Request.Context(), h.gtmWorkspace(c))
		if err != nil || c.Query("unified") != "true" {
			return tags, err
		}
		unified := tags[:0]
		for _, t := range tags {
			if strings.HasPrefix(t.Name, "UNIFIED_") {
				unified = append(unified, t)
			}
		}
		return unified, nil
	})
}

func (h *Handler) ListGTMTriggers() gin.HandlerFunc {
	return gtmList(h, func(c *gin.Context) ([]*tagmanager.Trigger, error) {
		return h.gtm.ListTriggers(c.Request.Context(), h.gtmWorkspace(c))
	})
}

func (h *Handler) ListGTMVariables() gin.HandlerFunc {
	return gtmList(h, func(c *gin.Context) ([]*tagmanager.Variable, error) {
		return h.gtm.ListVariables(c.Request.Context(), h.gtmWorkspace(c))
	})
}

func (h *Handler) ListGTMFolders() gin.HandlerFunc {
	return gtmList(h, func(c *gin.Context) ([]*tagmanager.Folder, error) {
		return h.gtm.ListFolders(c.Request.Context(), h.gtmWorkspace(c))
	})
}

func (h *Handler) CreateGTMTag(c *gin.Context) {
	if !requireService(c, h.gtm != nil, "Google Tag Manager") {
		return
	}
	var req CreateGTMTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}

	tag, err := h.gtm.CreateTag(c.Request.Context(), h.gtmWorkspace(c), &tagmanager.Tag{
		Name:            req.Name,
		Type:            "html",
		FiringTriggerId: req.TriggerIDs,
		Notes:           req.Notes,
		Parameter: []*tagmanager.Parameter{
			{Type: "template", Key: "html", Value: req.HTML},
		},
	})
	if err != nil {
		h.upstreamFailed(c, "gtm", err)
		return
	}
	h.record(c, activity.ActionCreate, "gtm_tag", tag.TagId, tag.Name)
	c.JSON(http.StatusCreated, tag)
}

func (h *Handler) CreateGTMTrigger(c *gin.Context) {
	if !requireService(c, h.gtm != nil, "Google Tag Manager") {
		return
	}
	var req CreateGTMTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}

	trigger, err := h.gtm.CreateTrigger(c.Request.Context(), h.gtmWorkspace(c), &tagmanager.Trigger{
		Name: req.Name,
		Type: "customEvent",
		CustomEventFilter: []*tagmanager.Condition{{
			Type: "equals",
			Parameter: []*tagmanager.Parameter{
				{Type: "template", Key: "arg0", Value: "{{_event}}"},
				{Type: "template", Key: "arg1", Value: req.EventName},
			},
		}},
	})
	if err != nil {
		h.upstreamFailed(c, "gtm", err)
		return
	}
	h.record(c, activity.ActionCreate, "gtm_trigger", trigger.TriggerId, trigger.Name)
	c.JSON(http.StatusCreated, trigger)
}

// PublishGTM snapshots the workspace into a version and publishes it.
func (h *Handler) PublishGTM(c *gin.Context) {
	if !requireService(c, h.gtm != nil, "Google Tag Manager") {
		return
	}
	var req PublishGTMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}

	version, err := h.gtm.Publish(c.Request.Context(), h.gtmWorkspace(c), req.Name, req.Notes)
	if err != nil {
		h.upstreamFailed(c, "gtm", err)
		return
	}
	h.record(c, activity.ActionPublish, "gtm_version", version.ContainerVersionId, req.Name)
	c.JSON(http.StatusOK, version)
}

// SyncGTMTag runs the unified tag find-or-create for one event shape.
func (h *Handler) SyncGTMTag(c *gin.Context) {
	if !requireService(c, h.gtm != nil, "Google Tag Manager") {
		return
	}
	var req SyncGTMTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}

	res, err := h.gtm.SyncUnifiedTag(c.Request.Context(), gtm.TagEvent{
		Category: req.Category,
		Type:     req.Type,
		Entity:   req.Entity,
		UserID:   req.UserID,
	})
	if err != nil {
		h.upstreamFailed(c, "gtm", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteGTMTag(c *gin.Context) {
	if !requireService(c, h.gtm != nil, "Google Tag Manager") {
		return
	}
	tagID := c.Param("tag_id")
	if tagID == "" || strings.ContainsRune(tagID, '/') {
		errors.BadRequest(c, "invalid tag_id")
		return
	}

	if err := h.gtm.DeleteTag(c.Request.Context(), h.gtmWorkspace(c)+"/tags/"+tagID); err != nil {
		h.upstreamFailed(c, "gtm", err)
		return
	}
	h.record(c, activity.ActionDelete, "gtm_tag", tagID, "")
	c.Status(http.StatusNoContent)
}
