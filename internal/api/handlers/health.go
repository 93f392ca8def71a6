package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/engage-api/pkg/metrics"
)

const healthProbeTimeout = 2 * time.Second

const (
	statusHealthy    = "healthy"
	statusUnhealthy  = "unhealthy"
	statusUnknown    = "unknown"
	statusConfigured = "configured"
	statusDisabled   = "disabled"
)

// HealthResponse reports backing stores as healthy/unhealthy/unknown and
// optional integrations as configured/disabled. Latencies are for the
// store probes only.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
	LatencyMS map[string]int64  `json:"latency_ms,omitempty"`
}

type probe struct {
	name string
	ping func(context.Context) error
}

func (h *Handler) probes() []probe {
	var ps []probe
	if h.redisClient != nil {
		ps = append(ps, probe{"redis", func(ctx context.Context) error { return h.redisClient.Ping(ctx).Err() }})
	}
	if h.mongoClient != nil {
		ps = append(ps, probe{"database", h.mongoClient.Ping})
	}
	return ps
}

// HealthCheck answers 503 unless every backing store answers a ping.
// Disabled integrations do not degrade the status.
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services: map[string]string{
			"api":      statusHealthy,
			"database": statusUnknown,
			"redis":    statusUnknown,
			"whatsapp": integration(h.whatsapp != nil),
			"exotel":   integration(h.exotel != nil),
			"surepass": integration(h.surepass != nil),
			"gtm":      integration(h.gtm != nil),
		},
		LatencyMS: map[string]int64{},
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, p := range h.probes() {
		wg.Add(1)
		go func(p probe) {
			defer wg.Done()
			start := time.Now()
			err := p.ping(ctx)
			elapsed := time.Since(start).Milliseconds()

			mu.Lock()
			defer mu.Unlock()
			resp.LatencyMS[p.name] = elapsed
			if err != nil {
				resp.Services[p.name] = statusUnhealthy
				return
			}
			resp.Services[p.name] = statusHealthy
		}(p)
	}
	wg.Wait()

	code := http.StatusOK
	for _, s := range resp.Services {
		if s == statusUnhealthy || s == statusUnknown {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(code, resp)
}

func integration(enabled bool) string {
	if enabled {
		return statusConfigured
	}
	return statusDisabled
}

// GetPrometheusMetrics serves the Prometheus registry. Websocket client
// count is refreshed on scrape.
func (h *Handler) GetPrometheusMetrics(c *gin.Context) {
	if h.hub != nil {
		metrics.SetWebsocketClients(h.hub.Clients())
	}
	metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
