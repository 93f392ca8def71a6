package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	ErrUnauthorized = stderrors.New("unauthorized")
	ErrForbidden    = stderrors.New("forbidden")
	ErrNotFound     = stderrors.New("not found")
	ErrConflict     = stderrors.New("conflict")
)

// ValidationError is returned when required input is missing or malformed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return stderrors.As(err, &ve)
}

// StatusFor maps an error onto the HTTP status of the taxonomy.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var ve *ValidationError
	var fieldErrs validator.ValidationErrors
	switch {
	case stderrors.As(err, &ve), stderrors.As(err, &fieldErrs):
		return http.StatusBadRequest
	case stderrors.Is(err, ErrUnauthorized),
		stderrors.Is(err, jwt.ErrTokenMalformed),
		stderrors.Is(err, jwt.ErrTokenExpired),
		stderrors.Is(err, jwt.ErrTokenNotValidYet),
		stderrors.Is(err, jwt.ErrTokenSignatureInvalid):
		return http.StatusUnauthorized
	case stderrors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case stderrors.Is(err, ErrNotFound), stderrors.Is(err, mongo.ErrNoDocuments):
		return http.StatusNotFound
	case stderrors.Is(err, ErrConflict), mongo.IsDuplicateKeyError(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes the problem response matching err.
func Respond(c *gin.Context, err error, logger *zap.Logger) {
	status := StatusFor(err)
	switch status {
	case http.StatusBadRequest:
		if params := invalidParams(err); len(params) > 0 {
			InvalidInput(c, params)
			return
		}
		BadRequest(c, err.Error())
	case http.StatusUnauthorized:
		Unauthorized(c, "invalid or expired token")
	case http.StatusForbidden:
		Forbidden(c, err.Error())
	case http.StatusNotFound:
		NotFound(c, err.Error())
	case http.StatusConflict:
		if mongo.IsDuplicateKeyError(err) {
			Conflict(c, "resource already exists")
			return
		}
		Conflict(c, err.Error())
	default:
		InternalError(c, err, logger)
	}
}

// invalidParams flattens validator and ValidationError failures into field
// entries. Field names use the struct's json tag when the validator has a
// tag name func registered.
func invalidParams(err error) []InvalidParam {
	var fieldErrs validator.ValidationErrors
	if stderrors.As(err, &fieldErrs) {
		params := make([]InvalidParam, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			params = append(params, InvalidParam{Name: fe.Field(), Reason: reasonFor(fe)})
		}
		return params
	}
	var ve *ValidationError
	if stderrors.As(err, &ve) && ve.Field != "" {
		return []InvalidParam{{Name: ve.Field, Reason: ve.Message}}
	}
	return nil
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "objectid":
		return "must be a 24 character hex id"
	}
	if fe.Param() != "" {
		return "failed " + fe.Tag() + "=" + fe.Param()
	}
	return "failed " + fe.Tag()
}

// BindFailed writes the 400 for a request body or query that did not bind.
func BindFailed(c *gin.Context, err error) {
	if params := invalidParams(err); len(params) > 0 {
		InvalidInput(c, params)
		return
	}
	BadRequest(c, err.Error())
}
