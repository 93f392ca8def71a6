package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/pkg/auth"
	apperrors "github.com/troikatech/engage-api/pkg/errors"
)

const secret = "test-secret"

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Save(ctx context.Context, role, id, token string) error {
	return m.Called(role, id, token).Error(0)
}

func (m *mockSessions) Valid(ctx context.Context, role, id, token string) (bool, error) {
	args := m.Called(role, id, token)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessions) Revoke(ctx context.Context, role, id string) error {
	return m.Called(role, id).Error(0)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func token(t *testing.T, id auth.Identity) string {
	t.Helper()
	tok, _, err := auth.GenerateToken(id, secret, "test", time.Hour)
	require.NoError(t, err)
	return tok
}

func authRouter(sessions auth.SessionStore, roles ...string) *gin.Engine {
	r := gin.New()
	r.GET("/me", Authenticate(secret, sessions, roles...), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": MustIdentity(c).ID, "role": c.GetString(authRoleKey)})
	})
	return r
}

func get(r http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	agent := auth.Identity{ID: "ag1", Role: auth.RoleAgent, AdminID: "adm1"}
	tok := token(t, agent)

	tests := []struct {
		name     string
		bearer   string
		roles    []string
		valid    bool
		wantCode int
	}{
		{"missing header", "", []string{auth.RoleAgent}, false, http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", []string{auth.RoleAgent}, false, http.StatusUnauthorized},
		{"role not accepted", tok, []string{auth.RoleAdmin}, true, http.StatusUnauthorized},
		{"revoked session", tok, []string{auth.RoleAgent}, false, http.StatusUnauthorized},
		{"composite accepts agent", tok, []string{auth.RoleAdmin, auth.RoleAgent}, true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := new(mockSessions)
			sessions.On("Valid", auth.RoleAgent, "ag1", tok).Return(tt.valid, nil).Maybe()

			rec := get(authRouter(sessions, tt.roles...), "/me", tt.bearer)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				assert.JSONEq(t, `{"id":"ag1","role":"agent"}`, rec.Body.String())
			} else {
				assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestRoleMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { c.Set(authRoleKey, auth.RoleAgent) }, RoleMiddleware(auth.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusForbidden, get(r, "/x", "").Code)
}

func TestErrorTranslator(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		production bool
		wantCode   int
		wantDetail string
		wantParams []apperrors.InvalidParam
	}{
		{"validation", apperrors.NewValidationError("name", "is required"), true, http.StatusBadRequest, "request validation failed",
			[]apperrors.InvalidParam{{Name: "name", Reason: "is required"}}},
		{"forbidden", apperrors.ErrForbidden, true, http.StatusForbidden, "forbidden", nil},
		{"internal hidden in production", fmt.Errorf("db exploded"), true, http.StatusInternalServerError, "An unexpected error occurred. Please try again later.", nil},
		{"internal shown in development", fmt.Errorf("db exploded"), false, http.StatusInternalServerError, "db exploded", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(ErrorTranslator(tt.production, zap.NewNop()))
			r.GET("/x", func(c *gin.Context) { _ = c.Error(tt.err) })

			rec := get(r, "/x", "")
			assert.Equal(t, tt.wantCode, rec.Code)

			var body apperrors.ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantDetail, body.Detail)
			assert.Equal(t, tt.wantParams, body.InvalidParams)
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := get(r, "/x", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRequestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(RequestSizeLimit(8))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("this body is too long"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestValidateObjectIDParam(t *testing.T) {
	r := gin.New()
	r.GET("/items/:id", ValidateObjectIDParam("id"), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusBadRequest, get(r, "/items/123", "").Code)
	assert.Equal(t, http.StatusOK, get(r, "/items/64b7f0c2a1b2c3d4e5f60718", "").Code)
}

func TestRegisterValidators_ObjectIDTag(t *testing.T) {
	require.NoError(t, RegisterValidators())

	type body struct {
		CatalogID string `json:"catalog_id" binding:"omitempty,objectid"`
	}
	r := gin.New()
	r.POST("/x", func(c *gin.Context) {
		var b body
		if err := c.ShouldBindJSON(&b); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	send := func(payload string) int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(payload)))
		return rec.Code
	}
	assert.Equal(t, http.StatusBadRequest, send(`{"catalog_id":"zzz"}`))
	assert.Equal(t, http.StatusOK, send(`{"catalog_id":"64b7f0c2a1b2c3d4e5f60718"}`))
}

func TestRateLimiter_FailsOpenWithoutRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	r := gin.New()
	r.Use(NewRateLimiter(rdb, 1).Middleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/x", "").Code)
}

func TestTokenBucket_FailsOpenWithoutRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	r := gin.New()
	r.Use(NewTokenBucket(rdb, 1, 1, time.Minute).Middleware("whatsapp"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/x", "").Code)
}

func TestAuthRateLimiter_FailsOpenWithoutRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	r := gin.New()
	r.Use(NewAuthRateLimiter(rdb, 1, 60, 60).Middleware())
	r.POST("/auth/admin/login", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/admin/login", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 2, retryAfterSeconds(1500*time.Millisecond))
	assert.Equal(t, 60, retryAfterSeconds(time.Minute))
}

func TestTraceMiddleware_PropagatesTraceID(t *testing.T) {
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("trace_id")) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Trace-ID", "abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "abc", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestTraceMiddleware_Traceparent(t *testing.T) {
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("trace_id")) })

	tests := []struct {
		name        string
		traceparent string
		want        string
	}{
		{"valid", "00-4BF92F3577B34DA6A3CE929D0E0E4736-00f067aa0ba902b7-01", "4bf92f3577b34da6a3ce929d0e0e4736"},
		{"all zero", "00-00000000000000000000000000000000-00f067aa0ba902b7-01", ""},
		{"short", "00-abc-00f067aa0ba902b7-01", ""},
		{"not hex", "00-zzf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.Header.Set("traceparent", tt.traceparent)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if tt.want == "" {
				assert.Len(t, rec.Body.String(), 36)
				return
			}
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestTraceMiddleware_RequestID(t *testing.T) {
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "retry-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "retry-42", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "bad id")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.NotEqual(t, "bad id", rec.Header().Get("X-Request-ID"))
}

func TestFingerprintBody_RestoresBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"qty":2}`))

	first, ok := fingerprintBody(req)
	require.True(t, ok)

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"qty":2}`, string(body))

	again := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"qty":3}`))
	second, ok := fingerprintBody(again)
	require.True(t, ok)
	assert.NotEqual(t, first, second)
}

func TestFingerprintBody_SkipsLargeBodies(t *testing.T) {
	big := strings.Repeat("a", maxFingerprintBytes+10)
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(big))

	_, ok := fingerprintBody(req)
	assert.False(t, ok)

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Len(t, body, len(big))
}

func TestIdempotency_PassesThroughWithoutRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	calls := 0
	r := gin.New()
	r.Use(IdempotencyMiddleware(rdb))
	r.POST("/orders", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"n": calls})
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{}`))
		req.Header.Set(idempotencyKeyHeader, "k1")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
	assert.Equal(t, 2, calls)
}
