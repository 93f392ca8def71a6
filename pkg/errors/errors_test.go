package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func TestStatusFor(t *testing.T) {
	dupKey := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", NewValidationError("event_type", "is required"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("track: %w", NewValidationError("x", "y")), http.StatusBadRequest},
		{"expired jwt", fmt.Errorf("parse: %w", jwt.ErrTokenExpired), http.StatusUnauthorized},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"no documents", mongo.ErrNoDocuments, http.StatusNotFound},
		{"duplicate key", dupKey, http.StatusConflict},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestInternalError_HidesDetailUnlessExposed(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, expose := range []bool{false, true} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/api/things", nil)
		if expose {
			ExposeDetail(c)
		}

		InternalError(c, fmt.Errorf("mongo exploded"), zap.NewNop())

		var problem ProblemDetail
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
		assert.Equal(t, http.StatusInternalServerError, problem.Status)
		assert.Equal(t, "/api/things", problem.Instance)
		if expose {
			assert.Equal(t, "mongo exploded", problem.Detail)
		} else {
			assert.NotContains(t, problem.Detail, "mongo")
		}
	}
}

func TestValidationError_Message(t *testing.T) {
	assert.Equal(t, "event_type: is required", NewValidationError("event_type", "is required").Error())
	assert.Equal(t, "bad", (&ValidationError{Message: "bad"}).Error())
	assert.True(t, IsValidation(fmt.Errorf("wrap: %w", NewValidationError("a", "b"))))
}

func TestBindFailed_ListsInvalidParams(t *testing.T) {
	gin.SetMode(gin.TestMode)

	type body struct {
		Email string `validate:"required,email"`
		Role  string `validate:"oneof=admin agent"`
	}
	err := validator.New().Struct(body{Role: "root"})
	require.Error(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/agents", nil)
	c.Set("trace_id", "trace-1")

	BindFailed(c, err)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Equal(t, "trace-1", problem.TraceID)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.ElementsMatch(t, []InvalidParam{
		{Name: "Email", Reason: "is required"},
		{Name: "Role", Reason: "must be one of: admin agent"},
	}, problem.InvalidParams)
}

func TestBindFailed_PlainDecodeError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/agents", nil)

	BindFailed(c, fmt.Errorf("unexpected EOF"))

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, "unexpected EOF", problem.Detail)
	assert.Empty(t, problem.InvalidParams)
	assert.Equal(t, problemBaseURL+"bad-request", problem.Type)
}

func TestErrorResponse_DefaultsTitle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/gtm/tags", nil)

	ErrorResponse(c, http.StatusServiceUnavailable, "", "gtm integration is not configured")

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, "Service Unavailable", problem.Title)
	assert.Equal(t, problemBaseURL+"service-unavailable", problem.Type)
}
