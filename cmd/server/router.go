package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/troikatech/engage-api/internal/api"
	"github.com/troikatech/engage-api/pkg/logger"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/otel"
)

func (s *Server) setupRouter() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceMiddleware())
	router.Use(middleware.SecurityHeaders())

	if s.cfg.OTELEnabled {
		router.Use(otel.GinMiddleware())
	}

	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.ErrorTranslator(s.cfg.IsProduction(), logger.Log))

	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s\n",
			param.TimeStamp.Format(time.RFC3339),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
		)
	}))

	corsConfig := cors.DefaultConfig()
	origins := allowedOrigins(s.cfg.CORSAllowedOrigins)
	if origins == nil {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", "X-Trace-ID"}
	router.Use(cors.New(corsConfig))

	guards := api.Guards{
		JWTSecret:     s.cfg.JWTSecret,
		Sessions:      s.sessions,
		RateLimit:     middleware.NewRateLimiter(s.redisClient, s.cfg.APIRateLimitRPM).Middleware(),
		AuthRateLimit: middleware.NewAuthRateLimiter(s.redisClient, s.cfg.AuthRateLimitMax, s.cfg.AuthRateLimitWindow, s.cfg.AuthRateLimitBlock).Middleware(),
		Idempotency:   middleware.IdempotencyMiddleware(s.redisClient),
	}
	if perMinute := int64(s.cfg.WhatsAppSendPerMinute); perMinute > 0 {
		guards.SendLimit = middleware.NewTokenBucket(s.redisClient, perMinute, perMinute, time.Minute).Middleware("whatsapp")
	}

	api.Register(router, s.handler, guards)
	return router
}

// allowedOrigins splits CORS_ALLOWED_ORIGINS. Nil means any origin.
func allowedOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			return nil
		}
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// originAllowed applies the CORS origin list to websocket upgrades.
func originAllowed(raw string) func(r *http.Request) bool {
	origins := allowedOrigins(raw)
	return func(r *http.Request) bool {
		if origins == nil {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
