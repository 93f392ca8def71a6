package auth

const (
	RoleSuperAdmin = "superadmin"
	RoleAdmin      = "admin"
	RoleAgent      = "agent"
	RoleUser       = "user"
)

// ValidRole reports whether role is one the API issues tokens for.
func ValidRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleAgent, RoleUser:
		return true
	}
	return false
}

// Identity is the authenticated principal attached to a request. AdminID is
// the owning tenant for agents and users and empty otherwise.
type Identity struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	AdminID string `json:"admin_id,omitempty"`
	Email   string `json:"email,omitempty"`
}

// OwnerAdminID returns the tenant the identity acts for. Admins own
// themselves; superadmins belong to no tenant.
func (i Identity) OwnerAdminID() string {
	switch i.Role {
	case RoleAdmin:
		return i.ID
	case RoleSuperAdmin:
		return ""
	}
	return i.AdminID
}
