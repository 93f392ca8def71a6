package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	id := Identity{ID: "a1", Role: RoleAgent, AdminID: "adm1", Email: "agent@example.com"}

	token, expiresAt, err := GenerateToken(id, "secret", "engage-api", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := ParseToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, id, claims.Identity())
	assert.Equal(t, "engage-api", claims.Issuer)
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, _, err := GenerateToken(Identity{ID: "a1", Role: RoleAdmin}, "secret", "engage-api", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "other")
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestParseToken_Expired(t *testing.T) {
	claims := TokenClaims{
		SubjectID: "a1",
		Role:      RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = ParseToken(token, "secret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseToken_RejectsMalformedClaims(t *testing.T) {
	exp := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	tests := []struct {
		name   string
		claims TokenClaims
		want   error
	}{
		{"missing role", TokenClaims{SubjectID: "x", RegisteredClaims: exp}, jwt.ErrTokenMalformed},
		{"unknown role", TokenClaims{SubjectID: "x", Role: "root", RegisteredClaims: exp}, jwt.ErrTokenMalformed},
		{"missing subject", TokenClaims{Role: RoleAdmin, RegisteredClaims: exp}, jwt.ErrTokenMalformed},
		{"missing expiry", TokenClaims{SubjectID: "x", Role: RoleAdmin}, jwt.ErrTokenRequiredClaimMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tt.claims).SignedString([]byte("secret"))
			require.NoError(t, err)

			_, err = ParseToken(token, "secret")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	claims := TokenClaims{
		SubjectID:        "a1",
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = ParseToken(token, "secret")
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestGenerateToken_UnknownRole(t *testing.T) {
	_, _, err := GenerateToken(Identity{ID: "x", Role: "root"}, "secret", "engage-api", time.Hour)
	assert.Error(t, err)
}

func TestGenerateToken_UniqueIDs(t *testing.T) {
	id := Identity{ID: "a1", Role: RoleAdmin}
	t1, _, err := GenerateToken(id, "secret", "engage-api", time.Hour)
	require.NoError(t, err)
	t2, _, err := GenerateToken(id, "secret", "engage-api", time.Hour)
	require.NoError(t, err)

	c1, err := ParseToken(t1, "secret")
	require.NoError(t, err)
	c2, err := ParseToken(t2, "secret")
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)
}

func TestIdentity_OwnerAdminID(t *testing.T) {
	assert.Equal(t, "adm1", Identity{ID: "adm1", Role: RoleAdmin}.OwnerAdminID())
	assert.Equal(t, "adm1", Identity{ID: "ag1", Role: RoleAgent, AdminID: "adm1"}.OwnerAdminID())
	assert.Equal(t, "", Identity{ID: "s1", Role: RoleSuperAdmin}.OwnerAdminID())
}

func TestCheckCredentials(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)

	assert.NoError(t, CheckCredentials(hash, "correct-horse"))
	assert.ErrorIs(t, CheckCredentials(hash, "wrong-horse"), ErrInvalidCredentials)
	assert.ErrorIs(t, CheckCredentials("", "correct-horse"), ErrInvalidCredentials)
}

func TestHashPassword_RejectsShortPasswords(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestMongoSessionStore_UnknownRole(t *testing.T) {
	store := NewMongoSessionStore(nil)
	err := store.Save(context.Background(), "guest", "1", "t")
	assert.ErrorIs(t, err, ErrUnknownRole)
}
