package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/logger"
)

// RateLimiter is a fixed-window request counter. Each window gets its own
// key, so a counter never outlives its window even if EXPIRE is lost.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client, perMinute int) *RateLimiter {
	return &RateLimiter{client: client, limit: int64(perMinute), window: time.Minute, now: time.Now}
}

// Middleware keys on the authenticated principal when present, else the
// client IP. Redis failures fail open.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.ClientIP()
		if id, ok := GetIdentity(c); ok {
			subject = id.Role + ":" + id.ID
		}

		count, reset, err := rl.hit(c.Request.Context(), subject)
		if err != nil {
			logger.Log.Warn("rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(rl.limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(rl.limit-count, 0), 10))
		if count > rl.limit {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(reset)))
			errors.TooManyRequests(c, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) hit(ctx context.Context, subject string) (int64, time.Duration, error) {
	now := rl.now()
	start := now.Truncate(rl.window)
	key := "ratelimit:" + subject + ":" + strconv.FormatInt(start.Unix(), 10)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return incr.Val(), start.Add(rl.window).Sub(now), nil
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// takeTokenScript refills a bucket hash {tokens, ts} by elapsed time and
// spends one token when available. Returns 1 when a token was taken.
var takeTokenScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local period = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end

tokens = math.min(capacity, tokens + math.max(0, now - ts) / period * rate)
local taken = 0
if tokens >= 1 then
  tokens = tokens - 1
  taken = 1
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', now)
redis.call('PEXPIRE', KEYS[1], math.ceil(capacity / rate * period) + period)
return taken
`)

// TokenBucket throttles outbound work such as WhatsApp sends per tenant.
// refillRate tokens are added every refillPeriod, up to capacity.
type TokenBucket struct {
	client       *redis.Client
	capacity     int64
	refillRate   int64
	refillPeriod time.Duration
}

func NewTokenBucket(client *redis.Client, capacity, refillRate int64, refillPeriod time.Duration) *TokenBucket {
	if refillRate < 1 {
		refillRate = 1
	}
	if refillPeriod < time.Millisecond {
		refillPeriod = time.Second
	}
	return &TokenBucket{client: client, capacity: capacity, refillRate: refillRate, refillPeriod: refillPeriod}
}

// TakeToken atomically spends one token from the bucket named key.
func (tb *TokenBucket) TakeToken(ctx context.Context, key string) (bool, error) {
	taken, err := takeTokenScript.Run(ctx, tb.client, []string{"token_bucket:" + key},
		tb.capacity, tb.refillRate, tb.refillPeriod.Milliseconds(), time.Now().UnixMilli(),
	).Int()
	if err != nil {
		return false, err
	}
	return taken == 1, nil
}

// Middleware spends one token per request from the caller's tenant bucket.
// Redis failures fail open.
func (tb *TokenBucket) Middleware(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.ClientIP()
		if id, ok := GetIdentity(c); ok && id.OwnerAdminID() != "" {
			tenant = id.OwnerAdminID()
		}

		ok, err := tb.TakeToken(c.Request.Context(), scope+":"+tenant)
		if err != nil {
			logger.Log.Warn("token bucket check failed", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			perToken := tb.refillPeriod / time.Duration(tb.refillRate)
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(perToken)))
			errors.TooManyRequests(c, scope+" send quota exhausted")
			c.Abort()
			return
		}
		c.Next()
	}
}
