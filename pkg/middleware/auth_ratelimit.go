package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/logger"
)

// AuthRateLimiter blocks an IP after too many failed logins. Only 401
// responses count; a successful login clears the counter.
type AuthRateLimiter struct {
	client      *redis.Client
	maxFailures int64
	window      time.Duration
	block       time.Duration
}

// NewAuthRateLimiter blocks an IP for blockSec once it collects maxFailures
// failed attempts within windowSec.
func NewAuthRateLimiter(client *redis.Client, maxFailures, windowSec, blockSec int) *AuthRateLimiter {
	return &AuthRateLimiter{
		client:      client,
		maxFailures: int64(maxFailures),
		window:      time.Duration(windowSec) * time.Second,
		block:       time.Duration(blockSec) * time.Second,
	}
}

func (arl *AuthRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		failKey := "auth_failures:" + ip
		blockKey := "auth_blocked:" + ip
		ctx := c.Request.Context()

		ttl, err := arl.client.PTTL(ctx, blockKey).Result()
		if err != nil {
			logger.Log.Warn("auth rate limit check failed", zap.Error(err))
		} else if ttl > 0 {
			arl.reject(c, ttl)
			return
		}

		c.Next()

		switch status := c.Writer.Status(); {
		case status == http.StatusUnauthorized:
			arl.recordFailure(c, failKey, blockKey)
		case status < http.StatusBadRequest:
			arl.client.Del(ctx, failKey)
		}
	}
}

func (arl *AuthRateLimiter) recordFailure(c *gin.Context, failKey, blockKey string) {
	ctx := c.Request.Context()

	failures, err := arl.client.Incr(ctx, failKey).Result()
	if err != nil {
		logger.Log.Warn("auth failure not recorded", zap.Error(err))
		return
	}
	if failures == 1 {
		arl.client.Expire(ctx, failKey, arl.window)
	}

	if failures >= arl.maxFailures {
		if err := arl.client.Set(ctx, blockKey, "1", arl.block).Err(); err != nil {
			logger.Log.Warn("auth block not stored", zap.Error(err))
			return
		}
		arl.client.Del(ctx, failKey)
		logger.Log.Warn("login blocked after repeated failures",
			zap.String("ip", c.ClientIP()),
			zap.Duration("for", arl.block),
		)
	}
}

func (arl *AuthRateLimiter) reject(c *gin.Context, retryAfter time.Duration) {
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
	errors.TooManyRequests(c, "too many failed authentication attempts")
	c.Abort()
}
