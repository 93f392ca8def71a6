package handlers

import (
	"net/http"
	"strings"

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

type CreateAgentRequest struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Phone      string `json:"phone" binding:"omitempty,e164"`
	Password   string `json:"password" binding:"required,min=8"`
	Department string `json:"department"`
}

type UpdateAgentRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone" binding:"omitempty,e164"`
	Department string `json:"department"`
	IsActive   *bool  `json:"is_active"`
	Password   string `json:"password" binding:"omitempty,min=8"`
}

func (h *Handler) CreateAgent(c *gin.Context) {
	var req CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}

	agent := models.Agent{
		AdminID:    adminID,
		Name:       middleware.SanitizeString(req.Name),
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:      req.Phone,
		Password:   hash,
		Department: middleware.SanitizeString(req.Department),
		IsActive:   true,
	}
	agent.Touch()

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	if _, err := h.mongoClient.NewQuery(mongo.CollAgents).Insert(ctx, agent); err != nil {
		h.fail(c, err)
		return
	}

	h.record(c, activity.ActionCreate, "agent", agent.ID.Hex(), agent.Email)
	c.JSON(http.StatusCreated, agent)
}

func (h *Handler) ListAgents(c *gin.Context) {
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	pagination := utils.ParsePagination(c)

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	agents := []models.Agent{}
	total, err := h.mongoClient.NewQuery(mongo.CollAgents).
		Eq("admin_id", adminID).
		Contains("name", c.Query("search")).
		EqIf("department", c.Query("department")).
		Omit("password").
		Sort("created_at", false).
		FindPage(ctx, pagination.Skip(), int64(pagination.Limit), &agents)
	if err != nil {
		h.logger.Error("Failed to fetch agents", zap.Error(err))
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewPage(agents, pagination, total))
}

func (h *Handler) GetAgent(c *gin.Context) {
	var agent models.Agent
	if !h.findByID(c, mongo.CollAgents, c.Param("id"), &agent) || !h.checkOwner(c, agent.AdminID) {
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (h *Handler) UpdateAgent(c *gin.Context) {
	var req UpdateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}

	var agent models.Agent
	if !h.findByID(c, mongo.CollAgents, c.Param("id"), &agent) || !h.checkOwner(c, agent.AdminID) {
		return
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = middleware.SanitizeString(req.Name)
	}
	if req.Phone != "" {
		updates["phone"] = req.Phone
	}
	if req.Department != "" {
		updates["department"] = middleware.SanitizeString(req.Department)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			errors.InternalError(c, err, h.logger)
			return
		}
		updates["password"] = hash
	}

	if !h.updateByID(c, mongo.CollAgents, "agent", updates) {
		return
	}
	if req.Password != "" || (req.IsActive != nil && !*req.IsActive) {
		h.revokeSessions(c, auth.RoleAgent, agent.ID.Hex())
	}
}

func (h *Handler) DeleteAgent(c *gin.Context) {
	var agent models.Agent
	if !h.findByID(c, mongo.CollAgents, c.Param("id"), &agent) || !h.checkOwner(c, agent.AdminID) {
		return
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	if _, err := h.mongoClient.NewQuery(mongo.CollAgents).Eq("_id", agent.ID).DeleteOne(ctx); err != nil {
		h.fail(c, err)
		return
	}
	h.revokeSessions(c, auth.RoleAgent, agent.ID.Hex())

	h.record(c, activity.ActionDelete, "agent", agent.ID.Hex(), agent.Email)
	c.JSON(http.StatusOK, gin.H{"message": "agent deleted successfully"})
}
