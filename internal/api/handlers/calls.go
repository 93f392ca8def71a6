package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/models"
	"github.com/troikatech/engage-api/internal/tracking"
	"github.com/troikatech/engage-api/pkg/activity"
	"github.com/troikatech/engage-api/pkg/auth"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/exotel"
	"github.com/troikatech/engage-api/pkg/logger"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/mongo"
	"github.com/troikatech/engage-api/pkg/storage"
	"github.com/troikatech/engage-api/pkg/utils"
)

const exotelTimeLayout = "2006-01-02 15:04:05"

type CreateCallRequest struct {
	From      string `json:"from" binding:"required,e164"`
	To        string `json:"to" binding:"required,e164"`
	Record    bool   `json:"record"`
	TimeLimit int    `json:"time_limit" binding:"gte=0,lte=14400"`
}

func (h *Handler) CreateCall(c *gin.Context) {
	if !requireService(c, h.exotel != nil, "Exotel") {
		return
	}
	var req CreateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	start := time.Now()
	ec, err := h.exotel.ConnectCall(c.Request.Context(), exotel.ConnectCallRequest{
		From:           req.From,
		To:             req.To,
		CallerID:       h.cfg.ExotelCallerID,
		StatusCallback: h.cfg.ExotelStatusCallbackURL,
		TimeLimit:      req.TimeLimit,
		Record:         req.Record,
		CustomField:    adminID.Hex(),
	})
	h.trackOutbound(c, tracking.CategoryAPI, "", "exotel/calls/connect", http.MethodPost, err == nil, time.Since(start))
	if err != nil {
		h.upstreamFailed(c, "exotel", err)
		return
	}

	call := models.Call{
		AdminID:   adminID,
		CallSID:   ec.Sid,
		From:      req.From,
		To:        req.To,
		CallerID:  h.cfg.ExotelCallerID,
		Direction: "outbound",
		Status:    strings.ToLower(ec.Status),
	}
	if call.Status == "" {
		call.Status = "queued"
	}
	if id := middleware.MustIdentity(c); id.Role == auth.RoleAgent {
		if agentID, err := primitive.ObjectIDFromHex(id.ID); err == nil {
			call.AgentID = &agentID
		}
	}
	call.Touch()

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	if _, err := h.mongoClient.NewQuery(mongo.CollCalls).Insert(ctx, call); err != nil {
		h.fail(c, err)
		return
	}

	h.record(c, activity.ActionCall, "call", call.CallSID, "to "+utils.MaskPhoneNumber(req.To))
	c.JSON(http.StatusCreated, call.View())
}

func (h *Handler) ListCalls(c *gin.Context) {
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	pagination := utils.ParsePagination(c)

	q := h.mongoClient.NewQuery(mongo.CollCalls).
		Eq("admin_id", adminID).
		EqIf("status", c.Query("status")).
		EqIf("direction", c.Query("direction"))
	if from, err := time.Parse(time.RFC3339, c.Query("from_date")); err == nil {
		q.Gte("created_at", from)
	}
	if to, err := time.Parse(time.RFC3339, c.Query("to_date")); err == nil {
		q.Lte("created_at", to)
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	var calls []models.Call
	total, err := q.Sort("created_at", false).FindPage(ctx, pagination.Skip(), int64(pagination.Limit), &calls)
	if err != nil {
		h.logger.Error("Failed to fetch calls", zap.Error(err))
		h.fail(c, err)
		return
	}

	views := make([]models.CallView, 0, len(calls))
	for _, call := range calls {
		views = append(views, call.View())
	}
	c.JSON(http.StatusOK, utils.NewPage(views, pagination, total))
}

func (h *Handler) GetCall(c *gin.Context) {
	var call models.Call
	if !h.findByID(c, mongo.CollCalls, c.Param("id"), &call) || !h.checkOwner(c, call.AdminID) {
		return
	}
	c.JSON(http.StatusOK, call.View())
}

// RefreshCall pulls the latest state from Exotel into the stored call.
func (h *Handler) RefreshCall(c *gin.Context) {
	if !requireService(c, h.exotel != nil, "Exotel") {
		return
	}
	var call models.Call
	if !h.findByID(c, mongo.CollCalls, c.Param("id"), &call) || !h.checkOwner(c, call.AdminID) {
		return
	}

	ec, err := h.exotel.GetCall(c.Request.Context(), call.CallSID)
	if err != nil {
		h.upstreamFailed(c, "exotel", err)
		return
	}

	updates := callUpdates(ec.Status, ec.Duration, ec.RecordingURL, ec.StartTime, ec.EndTime)
	if ec.Price != "" {
		updates["price"] = ec.Price
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	if _, err := h.mongoClient.NewQuery(mongo.CollCalls).Eq("_id", call.ID).UpdateOne(ctx, updates); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.mongoClient.NewQuery(mongo.CollCalls).Eq("_id", call.ID).FindOneInto(ctx, &call); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, call.View())
}

// GetRecording streams the provider recording, or redirects to a stored copy.
func (h *Handler) GetRecording(c *gin.Context) {
	var call models.Call
	if !h.findByID(c, mongo.CollCalls, c.Param("id"), &call) || !h.checkOwner(c, call.AdminID) {
		return
	}
	if call.RecordingURL == "" {
		errors.NotFound(c, "no recording for this call")
		return
	}

	target, err := h.storage.RecordingURL(call.CallSID, call.RecordingURL)
	if err != nil {
		errors.NotFound(c, err.Error())
		return
	}
	if target != call.RecordingURL || h.exotel == nil {
		c.Redirect(http.StatusFound, target)
		return
	}

	c.Header("Content-Type", "audio/mpeg")
	c.Header("Content-Disposition", `inline; filename="`+call.CallSID+`.mp3"`)
	if err := h.exotel.DownloadRecording(c.Request.Context(), target, c.Writer); err != nil {
		h.logger.Error("Failed to stream recording",
			zap.String("call_sid", call.CallSID),
			logger.MaskPhone("to", call.To),
			zap.Error(err))
		if !c.Writer.Written() {
			h.upstreamFailed(c, "exotel", err)
		}
	}
}

// ServeStoredRecording serves a recording kept by the local storage driver.
// The file name is <call_sid>.mp3 and the call must belong to the caller.
func (h *Handler) ServeStoredRecording(c *gin.Context) {
	local, ok := h.storage.(*storage.LocalDriver)
	if !ok {
		errors.NotFound(c, "recordings are not stored locally")
		return
	}
	sid := strings.TrimSuffix(c.Param("file"), ".mp3")

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	var call models.Call
	if err := h.mongoClient.NewQuery(mongo.CollCalls).Eq("call_sid", sid).FindOneInto(ctx, &call); err != nil {
		h.fail(c, err)
		return
	}
	if !h.checkOwner(c, call.AdminID) {
		return
	}

	path, err := local.FilePath(sid)
	if err != nil {
		errors.NotFound(c, "no recording for this call")
		return
	}
	c.Header("Content-Type", "audio/mpeg")
	c.File(path)
}

// callUpdates converts provider call fields into a $set document.
func callUpdates(status, duration, recordingURL, startTime, endTime string) map[string]interface{} {
	updates := map[string]interface{}{"updated_at": nowUTC()}
	if status != "" {
		updates["status"] = strings.ToLower(status)
	}
	if d, err := strconv.Atoi(strings.TrimSpace(duration)); err == nil && d >= 0 {
		updates["duration"] = d
	}
	if recordingURL != "" {
		updates["recording_url"] = recordingURL
	}
	if t, ok := parseExotelTime(startTime); ok {
		updates["start_time"] = t
	}
	if t, ok := parseExotelTime(endTime); ok {
		updates["end_time"] = t
	}
	return updates
}

func parseExotelTime(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(exotelTimeLayout, v, time.Local); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
