package handlers

import (
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/models"
	"github.com/troikatech/engage-api/pkg/activity"
	"github.com/troikatech/engage-api/pkg/auth"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/mongo"
)

var principalCollections = map[string]string{
	auth.RoleSuperAdmin: mongo.CollSuperAdmins,
	auth.RoleAdmin:      mongo.CollAdmins,
	auth.RoleAgent:      mongo.CollAgents,
	auth.RoleUser:       mongo.CollUsers,
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	// AdminID picks the tenant for user logins; emails are unique per tenant.
	AdminID string `json:"admin_id" binding:"omitempty,objectid"`
}

type RegisterUserRequest struct {
	AdminID  string `json:"admin_id" binding:"required,objectid"`
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"omitempty,e164"`
	Password string `json:"password" binding:"required,min=8"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
}

type UserInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	AdminID string `json:"admin_id,omitempty"`
}

// principalRecord is the subset of every principal document login needs.
type principalRecord struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	Password  string             `bson:"password"`
	AdminID   primitive.ObjectID `bson:"admin_id,omitempty"`
	IsActive  *bool              `bson:"is_active"`
	DeletedAt *time.Time         `bson:"deleted_at"`
}

func (p principalRecord) active() bool {
	return p.DeletedAt == nil && (p.IsActive == nil || *p.IsActive)
}

func (p principalRecord) identity(role string) auth.Identity {
	id := auth.Identity{ID: p.ID.Hex(), Role: role, Email: p.Email}
	if !p.AdminID.IsZero() {
		id.AdminID = p.AdminID.Hex()
	}
	return id
}

// Login returns the login handler for one principal role.
func (h *Handler) Login(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.BindFailed(c, err)
			return
		}

		ctx, cancel := h.dbCtx(c)
		defer cancel()

		q := h.mongoClient.NewQuery(principalCollections[role]).
			Eq("email", strings.ToLower(strings.TrimSpace(req.Email)))
		if role == auth.RoleUser && req.AdminID != "" {
			adminID, _ := primitive.ObjectIDFromHex(req.AdminID)
			q.Eq("admin_id", adminID)
		}

		var p principalRecord
		if err := q.FindOneInto(ctx, &p); err != nil && !stderrors.Is(err, mongo.ErrNoDocuments) {
			h.logger.Error("Failed to look up principal", zap.String("role", role), zap.Error(err))
			errors.InternalError(c, err, h.logger)
			return
		}
		if err := auth.CheckCredentials(p.Password, req.Password); err != nil {
			errors.Unauthorized(c, "invalid credentials")
			return
		}
		if !p.active() {
			errors.Forbidden(c, "account is inactive")
			return
		}

		h.issueSession(c, http.StatusOK, role, p)
	}
}

func (h *Handler) issueSession(c *gin.Context, status int, role string, p principalRecord) {
	identity := p.identity(role)
	token, expiresAt, err := auth.GenerateToken(identity, h.cfg.JWTSecret, h.cfg.JWTIssuer,
		time.Duration(h.cfg.TokenTTLHours)*time.Hour)
	if err != nil {
		h.logger.Error("Failed to generate token", zap.Error(err))
		errors.InternalError(c, err, h.logger)
		return
	}
	if err := h.sessions.Save(c.Request.Context(), role, identity.ID, token); err != nil {
		h.logger.Error("Failed to store session", zap.String("role", role), zap.Error(err))
		errors.InternalError(c, err, h.logger)
		return
	}

	middleware.SetIdentity(c, identity)
	h.record(c, activity.ActionLogin, role, identity.ID, "")

	c.JSON(status, AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User: UserInfo{
			ID:      identity.ID,
			Name:    p.Name,
			Email:   identity.Email,
			Role:    role,
			AdminID: identity.AdminID,
		},
	})
}

// Logout clears the caller's stored token; the JWT stops verifying at once.
func (h *Handler) Logout(c *gin.Context) {
	id := middleware.MustIdentity(c)
	if err := h.sessions.Revoke(c.Request.Context(), id.Role, id.ID); err != nil {
		h.fail(c, err)
		return
	}
	h.record(c, activity.ActionLogout, id.Role, id.ID, "")
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

// Me returns the caller's profile without the password hash.
func (h *Handler) Me(c *gin.Context) {
	id := middleware.MustIdentity(c)
	var profile bson.M
	if !h.findByID(c, principalCollections[id.Role], id.ID, &profile) {
		return
	}
	profile["role"] = id.Role
	c.JSON(http.StatusOK, profile)
}

// RegisterUser creates an end user under an active admin and signs them in.
func (h *Handler) RegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	adminID, _ := primitive.ObjectIDFromHex(req.AdminID)

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	var admin models.Admin
	if err := h.mongoClient.NewQuery(mongo.CollAdmins).Eq("_id", adminID).FindOneInto(ctx, &admin); err != nil || !admin.IsActive {
		errors.BadRequest(c, "unknown or inactive admin")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}

	user := models.User{
		AdminID:   adminID,
		Name:      middleware.SanitizeString(req.Name),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     req.Phone,
		Password:  hash,
		IsActive:  true,
		KYCStatus: models.KYCPending,
	}
	user.Touch()

	if _, err := h.mongoClient.NewQuery(mongo.CollUsers).Insert(ctx, user); err != nil {
		if mongo.IsDuplicateKey(err) {
			errors.Conflict(c, "email already registered")
			return
		}
		h.fail(c, err)
		return
	}

	h.issueSession(c, http.StatusCreated, auth.RoleUser, principalRecord{
		ID:      user.ID,
		Name:    user.Name,
		Email:   user.Email,
		AdminID: adminID,
	})
}
