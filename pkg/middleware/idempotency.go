package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/logger"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour
	idempotencyLockTTL   = 30 * time.Second
	maxFingerprintBytes  = 1 << 20
)

type storedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware replays the stored 2xx response for a repeated
// Idempotency-Key on POST, PUT and PATCH. Keys are scoped to the caller and
// the route. Reusing a key with a different body is rejected with 422 and a
// duplicate that arrives while the first is running gets 409.
func IdempotencyMiddleware(redisClient *redis.Client) gin.HandlerFunc {
	log := logger.For("idempotency")

	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyKeyHeader)
		if key == "" || !replayable(c.Request.Method) {
			c.Next()
			return
		}

		fingerprint, ok := fingerprintBody(c.Request)
		if !ok {
			c.Next()
			return
		}

		base := "idempotency:" + sha256Hex(callerScope(c)+"|"+c.FullPath()+"|"+key)
		ctx := c.Request.Context()

		raw, err := redisClient.Get(ctx, base).Bytes()
		switch {
		case err == nil:
			var stored storedResponse
			if json.Unmarshal(raw, &stored) != nil {
				break
			}
			if stored.Fingerprint != fingerprint {
				errors.ErrorResponse(c, http.StatusUnprocessableEntity, "Idempotency Key Reused",
					"the key was already used with a different request body")
				c.Abort()
				return
			}
			c.Header("X-Idempotency-Key-Used", "true")
			c.Data(stored.Status, stored.ContentType, stored.Body)
			c.Abort()
			return
		case err != redis.Nil:
			log.Warn("Idempotency lookup failed, passing through", zap.Error(err))
			c.Next()
			return
		}

		lock := base + ":lock"
		acquired, err := redisClient.SetNX(ctx, lock, fingerprint, idempotencyLockTTL).Result()
		if err != nil {
			log.Warn("Idempotency lock failed, passing through", zap.Error(err))
			c.Next()
			return
		}
		if !acquired {
			errors.Conflict(c, "a request with this idempotency key is still in progress")
			c.Abort()
			return
		}
		defer redisClient.Del(ctx, lock)

		w := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status < 200 || status >= 300 {
			return
		}
		out, err := json.Marshal(storedResponse{
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		})
		if err != nil {
			return
		}
		if err := redisClient.Set(ctx, base, out, idempotencyTTL).Err(); err != nil {
			log.Warn("Failed to store idempotent response", zap.Error(err))
		}
	}
}

func replayable(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

func callerScope(c *gin.Context) string {
	if id, ok := GetIdentity(c); ok {
		return id.Role + ":" + id.ID
	}
	return c.ClientIP()
}

// fingerprintBody hashes the request body and puts it back for the handler.
// Bodies over maxFingerprintBytes are not fingerprinted.
func fingerprintBody(r *http.Request) (string, bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return sha256Hex(""), true
	}
	head, err := io.ReadAll(io.LimitReader(r.Body, maxFingerprintBytes+1))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
	if err != nil || len(head) > maxFingerprintBytes {
		return "", false
	}
	return sha256Hex(string(head)), true
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
