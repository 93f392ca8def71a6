package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultTokenTTL = 24 * time.Hour
	clockLeeway     = 30 * time.Second
)

// TokenClaims is the payload of an access token. The subject is duplicated
// into "id" for clients that read it directly.
type TokenClaims struct {
	SubjectID string `json:"id"`
	Role      string `json:"role"`
	AdminID   string `json:"admin_id,omitempty"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *TokenClaims) Identity() Identity {
	return Identity{ID: c.SubjectID, Role: c.Role, AdminID: c.AdminID, Email: c.Email}
}

// GenerateToken signs an HS256 access token for id, valid for ttl.
func GenerateToken(id Identity, secret, issuer string, ttl time.Duration) (string, time.Time, error) {
	if !ValidRole(id.Role) {
		return "", time.Time{}, fmt.Errorf("sign token: unknown role %q", id.Role)
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := time.Now()
	exp := now.Add(ttl)

	claims := TokenClaims{
		SubjectID: id.ID,
		Role:      id.Role,
		AdminID:   id.AdminID,
		Email:     id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ParseToken verifies signature, expiry and shape. jwt sentinel errors stay
// matchable with errors.Is.
func ParseToken(tokenString, secret string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockLeeway),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.SubjectID == "" || !ValidRole(claims.Role) {
		return nil, fmt.Errorf("parse token: %w", jwt.ErrTokenMalformed)
	}
	return claims, nil
}
