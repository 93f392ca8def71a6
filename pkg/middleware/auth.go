package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/pkg/auth"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/logger"
)

const (
	identityKey = "identity"
	authRoleKey = "auth_role"
	tokenKey    = "auth_token"
)

// Authenticate verifies the bearer token and accepts it for the first role in
// roles whose session store still holds that exact token.
func Authenticate(jwtSecret string, sessions auth.SessionStore, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			errors.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		claims, err := auth.ParseToken(tokenString, jwtSecret)
		if err != nil {
			errors.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		for _, role := range roles {
			if claims.Role != role {
				continue
			}
			valid, err := sessions.Valid(c.Request.Context(), role, claims.SubjectID, tokenString)
			if err != nil {
				logger.Log.Warn("session lookup failed", zap.String("role", role), zap.Error(err))
				continue
			}
			if !valid {
				continue
			}

			SetIdentity(c, claims.Identity())
			c.Set(tokenKey, tokenString)
			c.Next()
			return
		}

		errors.Unauthorized(c, "session expired or revoked")
		c.Abort()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// SetIdentity attaches an identity to the request, as Authenticate does.
func SetIdentity(c *gin.Context, id auth.Identity) {
	c.Set(identityKey, id)
	c.Set(authRoleKey, id.Role)
	c.Set("user_id", id.ID)
}

// GetIdentity returns the identity set by Authenticate.
func GetIdentity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

// MustIdentity is for handlers mounted behind Authenticate.
func MustIdentity(c *gin.Context) auth.Identity {
	id, _ := GetIdentity(c)
	return id
}

func RoleMiddleware(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(authRoleKey)
		if role == "" {
			errors.Forbidden(c, "role not found in token")
			c.Abort()
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				c.Next()
				return
			}
		}

		errors.Forbidden(c, "insufficient permissions")
		c.Abort()
	}
}
