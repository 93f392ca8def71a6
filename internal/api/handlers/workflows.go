package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/engage-api/internal/models"
	"github.com/troikatech/engage-api/pkg/activity"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/mongo"
	"github.com/troikatech/engage-api/pkg/utils"
)

type WorkflowRequest struct {
	Name        string                `json:"name" binding:"required"`
	Description string                `json:"description"`
	Trigger     string                `json:"trigger" binding:"required"`
	Nodes       []models.WorkflowNode `json:"nodes" binding:"required,min=1,dive"`
	IsActive    *bool                 `json:"is_active"`
}

func (req WorkflowRequest) workflow() (models.Workflow, error) {
	wf := models.Workflow{
		Name:        middleware.SanitizeString(req.Name),
		Description: middleware.SanitizeString(req.Description),
		Trigger:     req.Trigger,
		Nodes:       req.Nodes,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if err := wf.ValidateGraph(); err != nil {
		return wf, errors.NewValidationError("nodes", err.Error())
	}
	return wf, nil
}

func (h *Handler) CreateWorkflow(c *gin.Context) {
	var req WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	wf, err := req.workflow()
	if err != nil {
		h.fail(c, err)
		return
	}
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	wf.AdminID = adminID
	wf.Touch()

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	if _, err := h.mongoClient.NewQuery(mongo.CollWorkflows).Insert(ctx, wf); err != nil {
		h.fail(c, err)
		return
	}
	h.record(c, activity.ActionCreate, "workflow", wf.ID.Hex(), wf.Name)
	c.JSON(http.StatusCreated, wf)
}

func (h *Handler) ListWorkflows(c *gin.Context) {
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	pagination := utils.ParsePagination(c)

	q := h.mongoClient.NewQuery(mongo.CollWorkflows).
		Eq("admin_id", adminID).
		EqIf("trigger", c.Query("trigger")).
		Contains("name", c.Query("search"))
	if active := c.Query("is_active"); active != "" {
		q.Eq("is_active", active == "true")
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	workflows := []models.Workflow{}
	total, err := q.Sort("created_at", false).FindPage(ctx, pagination.Skip(), int64(pagination.Limit), &workflows)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewPage(workflows, pagination, total))
}

func (h *Handler) GetWorkflow(c *gin.Context) {
	var wf models.Workflow
	if !h.findByID(c, mongo.CollWorkflows, c.Param("id"), &wf) || !h.checkOwner(c, wf.AdminID) {
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (h *Handler) UpdateWorkflow(c *gin.Context) {
	var req WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	wf, err := req.workflow()
	if err != nil {
		h.fail(c, err)
		return
	}

	var existing models.Workflow
	if !h.findByID(c, mongo.CollWorkflows, c.Param("id"), &existing) || !h.checkOwner(c, existing.AdminID) {
		return
	}

	h.updateByID(c, mongo.CollWorkflows, "workflow", map[string]interface{}{
		"name":        wf.Name,
		"description": wf.Description,
		"trigger":     wf.Trigger,
		"nodes":       wf.Nodes,
		"is_active":   wf.IsActive,
	})
}

func (h *Handler) DeleteWorkflow(c *gin.Context) {
	var wf models.Workflow
	if !h.findByID(c, mongo.CollWorkflows, c.Param("id"), &wf) || !h.checkOwner(c, wf.AdminID) {
		return
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	if _, err := h.mongoClient.NewQuery(mongo.CollWorkflows).Eq("_id", wf.ID).DeleteOne(ctx); err != nil {
		h.fail(c, err)
		return
	}
	h.record(c, activity.ActionDelete, "workflow", wf.ID.Hex(), wf.Name)
	c.JSON(http.StatusOK, gin.H{"message": "workflow deleted successfully"})
}
