package mongo

// Collection names.
const (
	CollSuperAdmins       = "superadmins"
	CollAdmins            = "admins"
	CollAgents            = "agents"
	CollUsers             = "users"
	CollProducts          = "products"
	CollProductCatalogs   = "product_catalogs"
	CollWhatsappTemplates = "whatsapp_templates"
	CollCalls             = "calls"
	CollNotifications     = "notifications"
	CollActivityLogs      = "activity_logs"
	CollTrackingEvents    = "unified_tracking_events"
	CollWorkflows         = "workflows"
	CollOrders            = "orders"

	CollSuperAdminTokens = "superadmin_tokens"
	CollAdminTokens      = "admin_tokens"
	CollAgentTokens      = "agent_tokens"
	CollUserTokens       = "user_tokens"
)
