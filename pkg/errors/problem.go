package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const problemBaseURL = "https://api.engage.troikatech.in/problems/"

// ProblemDetail is an RFC 7807 body. InvalidParams is the RFC's
// "invalid-params" extension and is only set for 400s raised by validation.
type ProblemDetail struct {
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Status        int            `json:"status"`
	Detail        string         `json:"detail,omitempty"`
	TraceID       string         `json:"trace_id,omitempty"`
	Instance      string         `json:"instance,omitempty"`
	InvalidParams []InvalidParam `json:"invalid_params,omitempty"`
}

// InvalidParam names one rejected input field.
type InvalidParam struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

var problemSlugs = map[int]string{
	http.StatusBadRequest:          "bad-request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not-found",
	http.StatusConflict:            "conflict",
	http.StatusTooManyRequests:     "rate-limit-exceeded",
	http.StatusInternalServerError: "internal-error",
	http.StatusBadGateway:          "upstream-error",
	http.StatusServiceUnavailable:  "service-unavailable",
}

func problemType(status int) string {
	if slug, ok := problemSlugs[status]; ok {
		return problemBaseURL + slug
	}
	return problemBaseURL + "error"
}

func newProblem(c *gin.Context, status int, title, detail string) ProblemDetail {
	traceID := c.GetString("trace_id")
	if traceID == "" {
		traceID = c.GetString("request_id")
	}
	p := ProblemDetail{
		Type:    problemType(status),
		Title:   title,
		Status:  status,
		Detail:  detail,
		TraceID: traceID,
	}
	if c.Request != nil {
		p.Instance = c.Request.URL.Path
	}
	return p
}

func writeProblem(c *gin.Context, p ProblemDetail) {
	c.Header("Content-Type", "application/problem+json")
	c.JSON(p.Status, p)
}

// ErrorResponse writes a problem+json body. An empty title falls back to the
// standard status text.
func ErrorResponse(c *gin.Context, status int, title, detail string) {
	if title == "" {
		title = http.StatusText(status)
	}
	writeProblem(c, newProblem(c, status, title, detail))
}

// InvalidInput writes a 400 listing every rejected field.
func InvalidInput(c *gin.Context, params []InvalidParam) {
	p := newProblem(c, http.StatusBadRequest, "Bad Request", "request validation failed")
	p.InvalidParams = params
	writeProblem(c, p)
}

// InternalError logs err and writes a 500. The error text reaches the client
// only when ExposeDetail was called for the request.
func InternalError(c *gin.Context, err error, logger *zap.Logger) {
	fields := []zap.Field{zap.Error(err)}
	if c.Request != nil {
		fields = append(fields,
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
	}
	if traceID := c.GetString("trace_id"); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	logger.Error("request failed", fields...)

	detail := "An unexpected error occurred. Please try again later."
	if exposeDetail(c) && err != nil {
		detail = err.Error()
	}
	ErrorResponse(c, http.StatusInternalServerError, "Internal Server Error", detail)
}

func BadRequest(c *gin.Context, detail string) {
	ErrorResponse(c, http.StatusBadRequest, "Bad Request", detail)
}

func Unauthorized(c *gin.Context, detail string) {
	ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", detail)
}

func Forbidden(c *gin.Context, detail string) {
	ErrorResponse(c, http.StatusForbidden, "Forbidden", detail)
}

func NotFound(c *gin.Context, detail string) {
	ErrorResponse(c, http.StatusNotFound, "Not Found", detail)
}

func Conflict(c *gin.Context, detail string) {
	ErrorResponse(c, http.StatusConflict, "Conflict", detail)
}

func TooManyRequests(c *gin.Context, detail string) {
	ErrorResponse(c, http.StatusTooManyRequests, "Too Many Requests", detail)
}

// BadGateway is used when an upstream provider call fails.
func BadGateway(c *gin.Context, detail string) {
	ErrorResponse(c, http.StatusBadGateway, "Bad Gateway", detail)
}

const exposeDetailKey = "expose_error_detail"

// ExposeDetail marks the request so that internal error text is echoed back.
func ExposeDetail(c *gin.Context) {
	c.Set(exposeDetailKey, true)
}

func exposeDetail(c *gin.Context) bool {
	return c.GetBool(exposeDetailKey)
}
