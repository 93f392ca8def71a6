package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/tracking"
	"github.com/troikatech/engage-api/pkg/activity"
	"github.com/troikatech/engage-api/pkg/auth"
	"github.com/troikatech/engage-api/pkg/broadcast"
	"github.com/troikatech/engage-api/pkg/client"
	"github.com/troikatech/engage-api/pkg/env"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/exotel"
	"github.com/troikatech/engage-api/pkg/gtm"
	"github.com/troikatech/engage-api/pkg/logger"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/mongo"
	"github.com/troikatech/engage-api/pkg/storage"
	"github.com/troikatech/engage-api/pkg/surepass"
	"github.com/troikatech/engage-api/pkg/webhook"
	"github.com/troikatech/engage-api/pkg/whatsapp"
)

const dbTimeout = 5 * time.Second

// ActivityLog records and lists tenant activity.
type ActivityLog interface {
	activity.Recorder
	List(ctx context.Context, f activity.Filter, skip, limit int64) ([]activity.Entry, int64, error)
}

// Deps are the collaborators a Handler needs. External clients are nil when
// their integration is not configured.
type Deps struct {
	Config   *env.Config
	Redis    *redis.Client
	Mongo    *mongo.Client
	Sessions auth.SessionStore
	Activity ActivityLog
	Tracking *tracking.Service
	Hub      *broadcast.Hub
	WhatsApp *whatsapp.Client
	Exotel   *exotel.Client
	Surepass *surepass.Client
	GTM      *gtm.Client
	Storage  storage.Driver
	Deduper  *webhook.Deduper
}

type Handler struct {
	cfg         *env.Config
	redisClient *redis.Client
	mongoClient *mongo.Client
	sessions    auth.SessionStore
	activity    ActivityLog
	tracking    *tracking.Service
	hub         *broadcast.Hub
	whatsapp    *whatsapp.Client
	exotel      *exotel.Client
	surepass    *surepass.Client
	gtm         *gtm.Client
	storage     storage.Driver
	deduper     *webhook.Deduper
	inventory   inventory
	logger      *zap.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		cfg:         d.Config,
		redisClient: d.Redis,
		mongoClient: d.Mongo,
		sessions:    d.Sessions,
		activity:    d.Activity,
		tracking:    d.Tracking,
		hub:         d.Hub,
		whatsapp:    d.WhatsApp,
		exotel:      d.Exotel,
		surepass:    d.Surepass,
		gtm:         d.GTM,
		storage:     d.Storage,
		deduper:     d.Deduper,
		inventory:   mongoInventory{client: d.Mongo},
		logger:      logger.Log,
	}
}

func (h *Handler) dbCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), dbTimeout)
}

// fail hands err to ErrorTranslator.
func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// tenantID is the admin the caller acts for.
func tenantID(c *gin.Context) (primitive.ObjectID, error) {
	id := middleware.MustIdentity(c)
	oid, err := primitive.ObjectIDFromHex(id.OwnerAdminID())
	if err != nil {
		return primitive.NilObjectID, errors.ErrForbidden
	}
	return oid, nil
}

// ownedBy reports whether identity may touch a document owned by adminID.
func ownedBy(id auth.Identity, adminID primitive.ObjectID) bool {
	if id.Role == auth.RoleSuperAdmin {
		return true
	}
	return !adminID.IsZero() && adminID.Hex() == id.OwnerAdminID()
}

func (h *Handler) checkOwner(c *gin.Context, adminID primitive.ObjectID) bool {
	if ownedBy(middleware.MustIdentity(c), adminID) {
		return true
	}
	errors.Forbidden(c, "resource belongs to another account")
	c.Abort()
	return false
}

// findByID loads one document by its hex id into out, rendering 400/404 itself.
func (h *Handler) findByID(c *gin.Context, collection, hexID string, out interface{}) bool {
	oid, err := mongo.ObjectIDFromHex(hexID)
	if err != nil {
		errors.BadRequest(c, "invalid id")
		return false
	}
	ctx, cancel := h.dbCtx(c)
	defer cancel()

	if err := h.mongoClient.NewQuery(collection).Eq("_id", oid).Omit("password").FindOneInto(ctx, out); err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			errors.NotFound(c, "resource not found")
			return false
		}
		h.fail(c, err)
		return false
	}
	return true
}

func (h *Handler) record(c *gin.Context, action activity.Action, resourceType, resourceID, description string) {
	if h.activity == nil {
		return
	}
	id := middleware.MustIdentity(c)
	h.activity.Record(c.Request.Context(), activity.Entry{
		AdminID:      id.OwnerAdminID(),
		ActorID:      id.ID,
		ActorRole:    id.Role,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Description:  description,
		IP:           c.ClientIP(),
	})
}

// revokeSessions ends every session of a principal. Failures are logged;
// the token expires on its own.
func (h *Handler) revokeSessions(c *gin.Context, role, id string) {
	if err := h.sessions.Revoke(c.Request.Context(), role, id); err != nil {
		h.logger.Warn("Failed to revoke session",
			zap.String("role", role),
			zap.String("subject_id", id),
			zap.Error(err),
		)
	}
}

func requireService(c *gin.Context, configured bool, name string) bool {
	if configured {
		return true
	}
	errors.ErrorResponse(c, http.StatusServiceUnavailable, "Service Unavailable", name+" integration is not configured")
	return false
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// upstreamFailed reports a failed call to an external provider as 502.
func (h *Handler) upstreamFailed(c *gin.Context, service string, err error) {
	h.logger.Error("Upstream call failed", zap.String("service", service), zap.Error(err))
	detail := service + " request failed"
	var apiErr *client.APIError
	if stderrors.As(err, &apiErr) && apiErr.StatusCode < 500 {
		detail = service + " rejected the request"
	}
	errors.BadGateway(c, detail)
}
