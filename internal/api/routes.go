// Package api mounts the HTTP route table.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/troikatech/engage-api/internal/api/handlers"
	"github.com/troikatech/engage-api/pkg/auth"
	"github.com/troikatech/engage-api/pkg/middleware"
)

const (
	jsonBodyLimit   = 1 << 20
	uploadBodyLimit = 6 << 20
)

// Guards are the request middlewares the route table needs. Nil limiters
// are skipped.
type Guards struct {
	JWTSecret     string
	Sessions      auth.SessionStore
	RateLimit     gin.HandlerFunc
	AuthRateLimit gin.HandlerFunc
	Idempotency   gin.HandlerFunc
	// SendLimit throttles outbound WhatsApp sends per tenant.
	SendLimit gin.HandlerFunc
}

func use(g *gin.RouterGroup, mws ...gin.HandlerFunc) {
	for _, m := range mws {
		if m != nil {
			g.Use(m)
		}
	}
}

var (
	superadmin = middleware.RoleMiddleware(auth.RoleSuperAdmin)
	adminOnly  = middleware.RoleMiddleware(auth.RoleAdmin)
	staff      = middleware.RoleMiddleware(auth.RoleAdmin, auth.RoleAgent)
	managers   = middleware.RoleMiddleware(auth.RoleAdmin, auth.RoleSuperAdmin)
	operators  = middleware.RoleMiddleware(auth.RoleAdmin, auth.RoleAgent, auth.RoleSuperAdmin)
	kycActors  = middleware.RoleMiddleware(auth.RoleAdmin, auth.RoleAgent, auth.RoleUser)

	idParam = middleware.ValidateObjectIDParam("id")
)

// Register mounts every route on r.
func Register(r gin.IRouter, h *handlers.Handler, g Guards) {
	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", h.GetPrometheusMetrics)

	// Live tracking stream. Unauthenticated; the origin check follows CORS.
	r.GET("/ws/tracking", h.TrackingStream)

	webhooks := r.Group("/webhooks")
	{
		webhooks.GET("/whatsapp", h.VerifyWhatsAppWebhook)
		webhooks.POST("/whatsapp", h.WhatsAppWebhook)
		webhooks.POST("/exotel", h.ExotelWebhook)
	}

	authGroup := r.Group("/auth")
	use(authGroup, g.AuthRateLimit, middleware.RequestSizeLimit(jsonBodyLimit))
	{
		authGroup.POST("/superadmin/login", h.Login(auth.RoleSuperAdmin))
		authGroup.POST("/admin/login", h.Login(auth.RoleAdmin))
		authGroup.POST("/agent/login", h.Login(auth.RoleAgent))
		authGroup.POST("/user/login", h.Login(auth.RoleUser))
		authGroup.POST("/user/register", h.RegisterUser)
	}

	authed := r.Group("/api")
	authed.Use(middleware.Authenticate(g.JWTSecret, g.Sessions,
		auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleAgent, auth.RoleUser))
	use(authed, g.Idempotency, g.RateLimit)

	uploads := authed.Group("", middleware.RequestSizeLimit(uploadBodyLimit))
	uploads.POST("/kyc/pan/ocr", kycActors, h.PANCardOCR)

	api := authed.Group("", middleware.RequestSizeLimit(jsonBodyLimit))

	session := api.Group("/auth")
	{
		session.POST("/logout", h.Logout)
		session.GET("/me", h.Me)
	}

	admins := api.Group("/admins", superadmin)
	{
		admins.POST("", h.CreateAdmin)
		admins.GET("", h.ListAdmins)
		admins.GET("/:id", h.GetAdmin)
		admins.PUT("/:id", h.UpdateAdmin)
		admins.POST("/:id/activate", idParam, h.SetAdminActive(true))
		admins.POST("/:id/deactivate", idParam, h.SetAdminActive(false))
	}

	agents := api.Group("/agents", adminOnly)
	{
		agents.POST("", h.CreateAgent)
		agents.GET("", h.ListAgents)
		agents.GET("/:id", h.GetAgent)
		agents.PUT("/:id", h.UpdateAgent)
		agents.DELETE("/:id", h.DeleteAgent)
	}

	users := api.Group("/users", staff)
	{
		users.GET("", h.ListUsers)
		users.GET("/:id", h.GetUser)
		users.PUT("/:id", h.UpdateUser)
		users.DELETE("/:id", adminOnly, h.DeleteUser)
	}

	catalogs := api.Group("/catalogs", staff)
	{
		catalogs.POST("", adminOnly, h.CreateCatalog)
		catalogs.GET("", h.ListCatalogs)
		catalogs.GET("/:id", h.GetCatalog)
		catalogs.PUT("/:id", adminOnly, h.UpdateCatalog)
		catalogs.POST("/:id/default", idParam, adminOnly, h.SetDefaultCatalog)
		catalogs.DELETE("/:id", adminOnly, h.DeleteCatalog)
	}

	products := api.Group("/products", staff)
	{
		products.POST("", adminOnly, h.CreateProduct)
		products.GET("", h.ListProducts)
		products.GET("/:id", h.GetProduct)
		products.PUT("/:id", adminOnly, h.UpdateProduct)
		products.DELETE("/:id", adminOnly, h.DeleteProduct)
	}

	templates := api.Group("/whatsapp/templates", staff)
	{
		templates.POST("", adminOnly, h.CreateTemplate)
		templates.GET("", h.ListTemplates)
		templates.POST("/sync", adminOnly, h.SyncTemplates)
		templates.GET("/:id", h.GetTemplate)
		templates.DELETE("/:id", adminOnly, h.DeleteTemplate)
	}

	messages := api.Group("/whatsapp/messages", staff)
	use(messages, g.SendLimit)
	{
		messages.POST("/text", h.SendText)
		messages.POST("/template", h.SendTemplate)
	}

	notifications := api.Group("/notifications", operators)
	{
		notifications.GET("", h.ListNotifications)
		notifications.GET("/unread-count", h.UnreadNotificationCount)
		notifications.PUT("/read-all", h.MarkAllNotificationsRead)
		notifications.PUT("/:id/read", idParam, h.MarkNotificationRead)
	}

	calls := api.Group("/calls", staff)
	{
		calls.POST("", h.CreateCall)
		calls.GET("", h.ListCalls)
		calls.GET("/:id", h.GetCall)
		calls.POST("/:id/refresh", idParam, h.RefreshCall)
		calls.GET("/:id/recording", idParam, h.GetRecording)
	}
	api.GET("/recordings/:file", staff, h.ServeStoredRecording)

	api.GET("/analytics/calls", staff, h.GetCallAnalytics)

	gtm := api.Group("/gtm", managers)
	{
		gtm.GET("/accounts", h.ListGTMAccounts())
		gtm.GET("/containers", h.ListGTMContainers())
		gtm.GET("/workspaces", h.ListGTMWorkspaces())
		gtm.GET("/environments", h.ListGTMEnvironments())
		gtm.GET("/tags", h.ListGTMTags())
		gtm.POST("/tags", h.CreateGTMTag)
		gtm.POST("/tags/sync", h.SyncGTMTag)
		gtm.DELETE("/tags/:tag_id", h.DeleteGTMTag)
		gtm.GET("/triggers", h.ListGTMTriggers())
		gtm.POST("/triggers", h.CreateGTMTrigger)
		gtm.GET("/variables", h.ListGTMVariables())
		gtm.GET("/folders", h.ListGTMFolders())
		gtm.POST("/publish", h.PublishGTM)
	}

	workflows := api.Group("/workflows", staff)
	{
		workflows.POST("", adminOnly, h.CreateWorkflow)
		workflows.GET("", h.ListWorkflows)
		workflows.GET("/:id", h.GetWorkflow)
		workflows.PUT("/:id", adminOnly, h.UpdateWorkflow)
		workflows.DELETE("/:id", adminOnly, h.DeleteWorkflow)
	}

	orders := api.Group("/orders", staff)
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.PUT("/:id/status", idParam, h.UpdateOrderStatus)
	}

	api.GET("/activity-logs", managers, h.ListActivityLogs)

	trackingGroup := api.Group("/tracking")
	{
		trackingGroup.POST("/events", h.TrackEvent)
		trackingGroup.POST("/workflow/start", h.TrackWorkflowStart)
		trackingGroup.POST("/workflow/node", h.TrackNodeExecution)
		trackingGroup.POST("/workflow/input", h.TrackUserInput)
		trackingGroup.POST("/workflow/condition", h.TrackConditionEvaluation)
		trackingGroup.POST("/workflow/completion", h.TrackWorkflowCompletion)
		trackingGroup.POST("/api-call", h.TrackAPICall)
		trackingGroup.POST("/kyc/step", h.TrackKycStep)
		trackingGroup.POST("/kyc/status", h.TrackKycStatus)
		trackingGroup.GET("/events", operators, h.ListTrackingEvents)
		trackingGroup.GET("/workflows/:id/summary", operators, h.GetWorkflowTrackingSummary)
		trackingGroup.GET("/stream/stats", operators, h.TrackingStreamStats)
	}

	kyc := api.Group("/kyc", kycActors)
	{
		kyc.POST("/pan", h.VerifyPAN)
		kyc.POST("/aadhaar/otp", h.GenerateAadhaarOTP)
		kyc.POST("/aadhaar/verify", h.VerifyAadhaarOTP)
		kyc.POST("/bank", h.VerifyBankAccount)
		kyc.GET("/status", h.GetKYCStatus)
	}
}
