package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/engage-api/internal/tracking"
	"github.com/troikatech/engage-api/pkg/auth"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/utils"
)

// TrackEventRequest is the generic event body. Which fields are read depends
// on event_category.
type TrackEventRequest struct {
	EventType            string                 `json:"event_type"`
	EventCategory        string                 `json:"event_category"`
	WorkflowID           string                 `json:"workflow_id"`
	SessionID            string                 `json:"session_id"`
	UserID               string                 `json:"user_id"`
	NodeID               string                 `json:"node_id"`
	NodeType             string                 `json:"node_type"`
	KycStep              string                 `json:"kyc_step"`
	VerificationType     string                 `json:"verification_type"`
	InputVariable        string                 `json:"input_variable"`
	InputValue           interface{}            `json:"input_value"`
	Endpoint             string                 `json:"endpoint"`
	Method               string                 `json:"method"`
	StatusCode           int                    `json:"status_code"`
	ExecutionTimeMs      *int64                 `json:"execution_time_ms"`
	Success              *bool                  `json:"success"`
	CompletionPercentage *int                   `json:"completion_percentage" binding:"omitempty,min=0,max=100"`
	Metadata             map[string]interface{} `json:"metadata"`
}

type RunContext struct {
	WorkflowID string                 `json:"workflow_id"`
	SessionID  string                 `json:"session_id"`
	UserID     string                 `json:"user_id"`
	Metadata   map[string]interface{} `json:"metadata"`
}

type NodeExecutionRequest struct {
	RunContext
	NodeID          string `json:"node_id" binding:"required"`
	NodeType        string `json:"node_type" binding:"required"`
	ExecutionTimeMs int64  `json:"execution_time_ms" binding:"gte=0"`
	Success         bool   `json:"success"`
}

type UserInputRequest struct {
	RunContext
	NodeID        string      `json:"node_id"`
	NodeType      string      `json:"node_type"`
	InputVariable string      `json:"input_variable" binding:"required"`
	InputValue    interface{} `json:"input_value"`
}

type ConditionRequest struct {
	RunContext
	NodeID    string `json:"node_id" binding:"required"`
	Condition string `json:"condition" binding:"required"`
	Result    bool   `json:"result"`
}

type APICallRequest struct {
	RunContext
	Category        string `json:"category" binding:"omitempty,oneof=api kyc"`
	NodeID          string `json:"node_id"`
	Endpoint        string `json:"endpoint" binding:"required"`
	Method          string `json:"method"`
	StatusCode      int    `json:"status_code"`
	ExecutionTimeMs int64  `json:"execution_time_ms" binding:"gte=0"`
	Success         bool   `json:"success"`
}

type CompletionRequest struct {
	RunContext
	CompletedNodes  int   `json:"completed_nodes" binding:"gte=0"`
	TotalNodes      int   `json:"total_nodes" binding:"gte=0"`
	ExecutionTimeMs int64 `json:"execution_time_ms" binding:"gte=0"`
	Success         bool  `json:"success"`
}

type KycStepRequest struct {
	UserID   string                 `json:"user_id"`
	Step     string                 `json:"step" binding:"required"`
	Success  bool                   `json:"success"`
	Metadata map[string]interface{} `json:"metadata"`
}

type KycStatusRequest struct {
	UserID   string                 `json:"user_id"`
	Status   string                 `json:"status" binding:"required,oneof=pending verified failed"`
	Metadata map[string]interface{} `json:"metadata"`
}

// payloadFor picks the payload variant for the request's category. KYC
// events that name an endpoint are provider calls.
func payloadFor(req TrackEventRequest) tracking.Payload {
	switch tracking.Category(req.EventCategory) {
	case tracking.CategoryWorkflow:
		return tracking.WorkflowPayload{
			NodeID:               req.NodeID,
			NodeType:             req.NodeType,
			ExecutionTimeMs:      req.ExecutionTimeMs,
			Success:              req.Success,
			CompletionPercentage: req.CompletionPercentage,
		}
	case tracking.CategoryKYC:
		if req.Endpoint != "" {
			return tracking.ApiPayload{
				Class:           tracking.CategoryKYC,
				NodeID:          req.NodeID,
				Endpoint:        req.Endpoint,
				Method:          req.Method,
				StatusCode:      req.StatusCode,
				ExecutionTimeMs: req.ExecutionTimeMs,
				Success:         req.Success,
			}
		}
		return tracking.KycPayload{
			KycStep:          req.KycStep,
			VerificationType: req.VerificationType,
			ExecutionTimeMs:  req.ExecutionTimeMs,
			Success:          req.Success,
		}
	case tracking.CategoryAPI:
		return tracking.ApiPayload{
			Class:           tracking.CategoryAPI,
			NodeID:          req.NodeID,
			Endpoint:        req.Endpoint,
			Method:          req.Method,
			StatusCode:      req.StatusCode,
			ExecutionTimeMs: req.ExecutionTimeMs,
			Success:         req.Success,
		}
	case tracking.CategoryUserInteraction:
		return tracking.InteractionPayload{
			NodeID:        req.NodeID,
			NodeType:      req.NodeType,
			InputVariable: req.InputVariable,
			InputValue:    req.InputValue,
			Success:       req.Success,
		}
	}
	return nil
}

// trackingUser is the subject of an event. End users always track themselves.
func trackingUser(id auth.Identity, requested string) string {
	if id.Role == auth.RoleUser {
		return id.ID
	}
	return requested
}

func (h *Handler) runContext(c *gin.Context, rc RunContext) tracking.Context {
	id := middleware.MustIdentity(c)
	return tracking.Context{
		AdminID:    id.OwnerAdminID(),
		WorkflowID: rc.WorkflowID,
		SessionID:  rc.SessionID,
		UserID:     trackingUser(id, rc.UserID),
	}
}

// tracked renders the outcome of a tracking call.
func (h *Handler) tracked(c *gin.Context, ev *tracking.Event, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "event": ev})
}

func (h *Handler) trackingReady(c *gin.Context) bool {
	return requireService(c, h.tracking != nil, "tracking")
}

// TrackEvent is the generic entry point. Validation of type and category
// happens in the tracking service so every caller gets the same errors.
func (h *Handler) TrackEvent(c *gin.Context) {
	if !h.trackingReady(c) {
		return
	}
	var req TrackEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	id := middleware.MustIdentity(c)
	ev, err := h.tracking.Track(c.Request.Context(), tracking.Input{
		EventType:  req.EventType,
		Category:   tracking.Category(req.EventCategory),
		AdminID:    id.OwnerAdminID(),
		WorkflowID: req.WorkflowID,
		SessionID:  req.SessionID,
		UserID:     trackingUser(id, req.UserID),
		Payload:    payloadFor(req),
		Metadata:   req.Metadata,
	})
	h.tracked(c, ev, err)
}

func (h *Handler) TrackWorkflowStart(c *gin.Context) {
	if !h.trackingReady(c) {
		return
	}
	var req RunContext
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	if req.WorkflowID == "" {
		errors.BadRequest(c, "workflow_id is required")
		return
	}
	ev, err := h.tracking.TrackWorkflowStart(c.Request.Context(), h.runContext(c, req), req.Metadata)
	h.tracked(c, ev, err)
}

func (h *Handler) TrackNodeExecution(c *gin.Context) {
	if !h.trackingReady(c) {
		return
	}
	var req NodeExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	ev, err := h.tracking.TrackNodeExecution(c.Request.Context(), h.runContext(c, req.RunContext), tracking.NodeExecution{
		NodeID:          req.NodeID,
		NodeType:        req.NodeType,
		ExecutionTimeMs: req.ExecutionTimeMs,
		Success:         req.Success,
		Metadata:        req.Metadata,
	})
	h.tracked(c, ev, err)
}

func (h *Handler) TrackUserInput(c *gin.Context) {
	if !h.trackingReady(c) {
		return
	}
	var req UserInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	ev, err := h.tracking.TrackUserInput(c.Request.Context(), h.runContext(c, req.RunContext), tracking.UserInput{
		NodeID:        req.NodeID,
		NodeType:      req.NodeType,
		InputVariable: req.InputVariable,
		InputValue:    req.InputValue,
		Metadata:      req.Metadata,
	})
	if ev != nil {
		redacted := tracking.Redacted(*ev)
		ev = &redacted
	}
	h.tracked(c, ev, err)
}

func (h *Handler) TrackConditionEvaluation(c *gin.Context) {
	if !h.trackingReady(c) {
		return
	}
	var req ConditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	ev, err := h.tracking.TrackConditionEvaluation(c.Request.Context(), h.runContext(c, req.RunContext), tracking.ConditionEvaluation{
		NodeID:    req.NodeID,
		Condition: req.Condition,
		Result:    req.Result,
		Metadata:  req.Metadata,
	})
	h.tracked(c, ev, err)
}

func (h *Handler) TrackAPICall(c *gin.Context) {
	if !h.trackingReady(c) {
		return
	}
	var req APICallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	ev, err := h.tracking.TrackAPICall(c.Request.Context(), h.runContext(c, req.RunContext), tracking.APICall{
		Category:        tracking.Category(req.Category),
		NodeID:          req.NodeID,
		Endpoint:        req.Endpoint,
		Method:          req.Method,
		StatusCode:      req.StatusCode,
		ExecutionTimeMs: req.ExecutionTimeMs,
		Success:         req.Success,
		Metadata:        req.Metadata,
	})
	h.tracked(c, ev, err)
}

func (h *Handler) TrackWorkflowCompletion(c *gin.Context) {
	if !h.trackingReady(c) {
		return
	}
	var req CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	ev, err := h.tracking.TrackWorkflowCompletion(c.Request.Context(), h.runContext(c, req.RunContext), tracking.WorkflowCompletion{
		CompletedNodes:  req.CompletedNodes,
		TotalNodes:      req.TotalNodes,
		ExecutionTimeMs: req.ExecutionTimeMs,
		Success:         req.Success,
		Metadata:        req.Metadata,
	})
	h.tracked(c, ev, err)
}

// kycMetadata stamps the caller's tenant so KYC events stay scoped.
func kycMetadata(id auth.Identity, md map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(md)+1)
	for k, v := range md {
		out[k] = v
	}
	if owner := id.OwnerAdminID(); owner != "" {
		out["admin_id"] = owner
	}
	return out
}

func (h *Handler) TrackKycStep(c *gin.Context) {
	if !h.trackingReady(c) {
		return
	}
	var req KycStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	id := middleware.MustIdentity(c)
	ev, err := h.tracking.TrackKycStep(c.Request.Context(), trackingUser(id, req.UserID), req.Step, req.Success, kycMetadata(id, req.Metadata))
	h.tracked(c, ev, err)
}

func (h *Handler) TrackKycStatus(c *gin.Context) {
	if !h.trackingReady(c) {
		return
	}
	var req KycStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	id := middleware.MustIdentity(c)
	ev, err := h.tracking.TrackKycStatus(c.Request.Context(), trackingUser(id, req.UserID), req.Status, kycMetadata(id, req.Metadata))
	h.tracked(c, ev, err)
}

// ListTrackingEvents pages through the tenant's event log. Stored input
// values are returned redacted.
func (h *Handler) ListTrackingEvents(c *gin.Context) {
	if !h.trackingReady(c) {
		return
	}
	category := c.Query("event_category")
	if category != "" && !tracking.Category(category).Valid() {
		errors.BadRequest(c, "event_category must be one of workflow, kyc, api, user_interaction")
		return
	}
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	id := middleware.MustIdentity(c)
	q := tracking.Query{
		AdminID:    id.OwnerAdminID(),
		Category:   tracking.Category(category),
		EventType:  c.Query("event_type"),
		WorkflowID: c.Query("workflow_id"),
		SessionID:  c.Query("session_id"),
		UserID:     c.Query("user_id"),
	}
	if id.Role == auth.RoleSuperAdmin {
		q.AdminID = c.Query("admin_id")
	}
	if from != nil {
		q.From = *from
	}
	if to != nil {
		q.To = *to
	}
	pagination := utils.ParsePagination(c)
	q.Skip = pagination.Skip()
	q.Limit = int64(pagination.Limit)

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	events, total, err := h.tracking.Events(ctx, q)
	if err != nil {
		h.fail(c, err)
		return
	}
	for i := range events {
		events[i] = tracking.Redacted(events[i])
	}

	c.JSON(http.StatusOK, utils.NewPage(events, pagination, total))
}

func (h *Handler) GetWorkflowTrackingSummary(c *gin.Context) {
	if !h.trackingReady(c) {
		return
	}
	id := middleware.MustIdentity(c)
	adminID := id.OwnerAdminID()
	if id.Role == auth.RoleSuperAdmin {
		adminID = c.Query("admin_id")
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	summary, err := h.tracking.WorkflowSummary(ctx, adminID, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// TrackingStream upgrades to the live broadcast websocket.
func (h *Handler) TrackingStream(c *gin.Context) {
	if !requireService(c, h.hub != nil, "tracking stream") {
		return
	}
	h.hub.ServeWS(c.Writer, c.Request)
}

// TrackingStreamStats reports connected websocket clients.
func (h *Handler) TrackingStreamStats(c *gin.Context) {
	clients := 0
	if h.hub != nil {
		clients = h.hub.Clients()
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients, "message_type": tracking.MessageType})
}
