package handlers

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/models"
	"github.com/troikatech/engage-api/internal/tracking"
	"github.com/troikatech/engage-api/pkg/activity"
	"github.com/troikatech/engage-api/pkg/auth"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/logger"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/mongo"
)

const maxPANImageBytes = 5 << 20

var (
	panPattern     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	aadhaarPattern = regexp.MustCompile(`^[2-9][0-9]{11}$`)
	ifscPattern    = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
)

type VerifyPANRequest struct {
	UserID    string `json:"user_id" binding:"omitempty,objectid"`
	PANNumber string `json:"pan_number" binding:"required"`
}

type AadhaarOTPRequest struct {
	UserID        string `json:"user_id" binding:"omitempty,objectid"`
	AadhaarNumber string `json:"aadhaar_number" binding:"required"`
}

type AadhaarVerifyRequest struct {
	UserID   string `json:"user_id" binding:"omitempty,objectid"`
	ClientID string `json:"client_id" binding:"required"`
	OTP      string `json:"otp" binding:"required,len=6,numeric"`
}

type VerifyBankRequest struct {
	UserID        string `json:"user_id" binding:"omitempty,objectid"`
	AccountNumber string `json:"account_number" binding:"required,min=6,max=20,numeric"`
	IFSC          string `json:"ifsc" binding:"required"`
}

// kycSubject resolves whose KYC is being run. End users verify themselves;
// staff name a user of their own tenant.
func (h *Handler) kycSubject(c *gin.Context, requested string) (*models.User, bool) {
	id := middleware.MustIdentity(c)
	target := requested
	if id.Role == auth.RoleUser {
		target = id.ID
	}
	if target == "" {
		errors.BadRequest(c, "user_id is required")
		return nil, false
	}
	var user models.User
	if !h.findByID(c, mongo.CollUsers, target, &user) || !h.checkOwner(c, user.AdminID) {
		return nil, false
	}
	if user.IsDeleted() {
		errors.NotFound(c, "resource not found")
		return nil, false
	}
	return &user, true
}

func (h *Handler) kycReady(c *gin.Context) bool {
	return requireService(c, h.surepass != nil, "surepass")
}

// kycOutcome tracks one provider step. With store set the result is also
// written to the user and the overall status recomputed.
func (h *Handler) kycOutcome(c *gin.Context, user *models.User, step, endpoint string, verified bool, detail string, elapsed time.Duration, store bool) {
	userHex := user.ID.Hex()
	h.trackOutbound(c, tracking.CategoryKYC, userHex, "surepass/"+endpoint, http.MethodPost, verified, elapsed)

	if h.tracking != nil {
		if _, err := h.tracking.TrackKycStep(c.Request.Context(), userHex, step, verified, map[string]interface{}{
			"admin_id":          user.AdminID.Hex(),
			"execution_time_ms": elapsed.Milliseconds(),
			"provider":          "surepass",
		}); err != nil {
			h.logger.Debug("Failed to track KYC step", zap.String("step", step), zap.Error(err))
		}
	}
	if !store {
		return
	}

	steps := make(map[string]models.KYCStep, len(user.KYCSteps)+1)
	for k, v := range user.KYCSteps {
		steps[k] = v
	}
	steps[step] = models.KYCStep{Verified: verified, At: nowUTC(), Detail: detail}
	status := models.DeriveKYCStatus(steps)

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	if _, err := h.mongoClient.NewQuery(mongo.CollUsers).Eq("_id", user.ID).UpdateOne(ctx, map[string]interface{}{
		"kyc_steps." + step: steps[step],
		"kyc_status":        status,
		"updated_at":        nowUTC(),
	}); err != nil {
		h.logger.Error("Failed to store KYC step", zap.String("user_id", userHex), zap.String("step", step), zap.Error(err))
		return
	}
	outcome := "failed"
	if verified {
		outcome = "verified"
	}
	h.record(c, activity.ActionVerify, "user", userHex, step+" "+outcome)

	if status != user.KYCStatus && h.tracking != nil {
		if _, err := h.tracking.TrackKycStatus(c.Request.Context(), userHex, status, map[string]interface{}{
			"admin_id":        user.AdminID.Hex(),
			"previous_status": user.KYCStatus,
		}); err != nil {
			h.logger.Debug("Failed to track KYC status", zap.Error(err))
		}
	}
	user.KYCSteps = steps
	user.KYCStatus = status
}

func kycResponse(user *models.User, step string, verified bool, message string, data interface{}) gin.H {
	return gin.H{
		"user_id":    user.ID.Hex(),
		"step":       step,
		"verified":   verified,
		"kyc_status": user.KYCStatus,
		"message":    message,
		"data":       data,
	}
}

func (h *Handler) VerifyPAN(c *gin.Context) {
	if !h.kycReady(c) {
		return
	}
	var req VerifyPANRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	pan := strings.ToUpper(strings.TrimSpace(req.PANNumber))
	if !panPattern.MatchString(pan) {
		h.fail(c, errors.NewValidationError("pan_number", "must look like ABCDE1234F"))
		return
	}
	user, ok := h.kycSubject(c, req.UserID)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := h.surepass.VerifyPAN(c.Request.Context(), pan)
	if resp == nil {
		h.kycOutcome(c, user, "pan", "pan", false, "", time.Since(start), false)
		h.upstreamFailed(c, "surepass", err)
		return
	}
	verified := err == nil
	if !verified {
		h.logger.Info("PAN not verified", logger.Redact("pan_number", pan), zap.String("reason", resp.Message))
	}
	h.kycOutcome(c, user, "pan", "pan", verified, resp.Message, time.Since(start), true)
	c.JSON(http.StatusOK, kycResponse(user, "pan", verified, resp.Message, resp.Data))
}

func (h *Handler) GenerateAadhaarOTP(c *gin.Context) {
	if !h.kycReady(c) {
		return
	}
	var req AadhaarOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	aadhaar := strings.ReplaceAll(req.AadhaarNumber, " ", "")
	if !aadhaarPattern.MatchString(aadhaar) {
		h.fail(c, errors.NewValidationError("aadhaar_number", "must be 12 digits"))
		return
	}
	user, ok := h.kycSubject(c, req.UserID)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := h.surepass.AadhaarGenerateOTP(c.Request.Context(), aadhaar)
	if err != nil {
		h.logger.Info("Aadhaar OTP not sent", logger.Redact("aadhaar_number", aadhaar), zap.Error(err))
	}
	if resp == nil {
		h.kycOutcome(c, user, "aadhaar_otp", "aadhaar-v2/generate-otp", false, "", time.Since(start), false)
		h.upstreamFailed(c, "surepass", err)
		return
	}
	sent := err == nil && resp.Data.OTPSent
	h.kycOutcome(c, user, "aadhaar_otp", "aadhaar-v2/generate-otp", sent, resp.Message, time.Since(start), false)
	c.JSON(http.StatusOK, gin.H{
		"user_id":   user.ID.Hex(),
		"otp_sent":  sent,
		"client_id": resp.Data.ClientID,
		"message":   resp.Message,
	})
}

func (h *Handler) VerifyAadhaarOTP(c *gin.Context) {
	if !h.kycReady(c) {
		return
	}
	var req AadhaarVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	user, ok := h.kycSubject(c, req.UserID)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := h.surepass.AadhaarSubmitOTP(c.Request.Context(), req.ClientID, req.OTP)
	if resp == nil {
		h.kycOutcome(c, user, "aadhaar", "aadhaar-v2/submit-otp", false, "", time.Since(start), false)
		h.upstreamFailed(c, "surepass", err)
		return
	}
	verified := err == nil
	h.kycOutcome(c, user, "aadhaar", "aadhaar-v2/submit-otp", verified, resp.Message, time.Since(start), true)
	c.JSON(http.StatusOK, kycResponse(user, "aadhaar", verified, resp.Message, gin.H{
		"full_name": resp.Data.FullName,
		"dob":       resp.Data.DOB,
		"gender":    resp.Data.Gender,
	}))
}

func (h *Handler) VerifyBankAccount(c *gin.Context) {
	if !h.kycReady(c) {
		return
	}
	var req VerifyBankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	ifsc := strings.ToUpper(strings.TrimSpace(req.IFSC))
	if !ifscPattern.MatchString(ifsc) {
		h.fail(c, errors.NewValidationError("ifsc", "must look like ABCD0123456"))
		return
	}
	user, ok := h.kycSubject(c, req.UserID)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := h.surepass.VerifyBankAccount(c.Request.Context(), req.AccountNumber, ifsc)
	if resp == nil {
		h.kycOutcome(c, user, "bank", "bank-verification", false, "", time.Since(start), false)
		h.upstreamFailed(c, "surepass", err)
		return
	}
	verified := err == nil && resp.Data.AccountExists
	h.kycOutcome(c, user, "bank", "bank-verification", verified, resp.Message, time.Since(start), true)
	c.JSON(http.StatusOK, kycResponse(user, "bank", verified, resp.Message, resp.Data))
}

// PANCardOCR extracts PAN fields from an uploaded card image. The result is
// returned for confirmation and does not change KYC status.
func (h *Handler) PANCardOCR(c *gin.Context) {
	if !h.kycReady(c) {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPANImageBytes)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		errors.BadRequest(c, "file is required (max 5MB)")
		return
	}
	defer file.Close()

	user, ok := h.kycSubject(c, c.PostForm("user_id"))
	if !ok {
		return
	}

	start := time.Now()
	resp, err := h.surepass.PANOCR(c.Request.Context(), header.Filename, file)
	if resp == nil {
		h.kycOutcome(c, user, "pan_ocr", "ocr/pan", false, "", time.Since(start), false)
		h.upstreamFailed(c, "surepass", err)
		return
	}
	h.kycOutcome(c, user, "pan_ocr", "ocr/pan", err == nil, resp.Message, time.Since(start), false)
	c.JSON(http.StatusOK, gin.H{
		"user_id": user.ID.Hex(),
		"success": err == nil,
		"message": resp.Message,
		"data":    resp.Data,
	})
}

// GetKYCStatus returns a user's KYC status and per-step results.
func (h *Handler) GetKYCStatus(c *gin.Context) {
	user, ok := h.kycSubject(c, c.Query("user_id"))
	if !ok {
		return
	}
	status := user.KYCStatus
	if status == "" {
		status = models.KYCPending
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":    user.ID.Hex(),
		"kyc_status": status,
		"steps":      user.KYCSteps,
	})
}

