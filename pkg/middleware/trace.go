package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader     = "X-Trace-ID"
	requestIDHeader   = "X-Request-ID"
	traceparentHeader = "traceparent"

	maxRequestIDLen = 64
)

// TraceMiddleware tags every request with a trace id and a request id and
// echoes both in response headers. The trace id comes from X-Trace-ID, then
// from a W3C traceparent header, and is generated otherwise. A well-formed
// inbound X-Request-ID is kept so that callers can correlate retries.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceIDHeader)
		if traceID == "" {
			traceID = traceIDFromTraceparent(c.GetHeader(traceparentHeader))
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		requestID := c.GetHeader(requestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}

		c.Set("trace_id", traceID)
		c.Set("request_id", requestID)
		c.Header(traceIDHeader, traceID)
		c.Header(requestIDHeader, requestID)

		c.Next()
	}
}

// traceIDFromTraceparent extracts the trace-id field of
// "version-traceid-parentid-flags", rejecting the all-zero id.
func traceIDFromTraceparent(v string) string {
	parts := strings.Split(strings.TrimSpace(v), "-")
	if len(parts) != 4 || len(parts[1]) != 32 {
		return ""
	}
	id := strings.ToLower(parts[1])
	if strings.Trim(id, "0") == "" || !isHex(id) {
		return ""
	}
	return id
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
