package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/pkg/mongo"
)

type callStatusBucket struct {
	Status      string  `bson:"_id" json:"status"`
	Count       int64   `bson:"count" json:"count"`
	AvgDuration float64 `bson:"avg_duration" json:"avg_duration"`
	TotalTime   int64   `bson:"total_duration" json:"total_duration"`
}

// GetCallAnalytics summarises the tenant's calls over the last `days` days (default 30).
func (h *Handler) GetCallAnalytics(c *gin.Context) {
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days < 1 || days > 365 {
		days = 30
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	var buckets []callStatusBucket
	err = h.mongoClient.NewQuery(mongo.CollCalls).
		Eq("admin_id", adminID).
		Gte("created_at", time.Now().UTC().AddDate(0, 0, -days)).
		Aggregate(ctx, mongodrv.Pipeline{
			{{Key: "$group", Value: bson.M{
				"_id":            "$status",
				"count":          bson.M{"$sum": 1},
				"avg_duration":   bson.M{"$avg": "$duration"},
				"total_duration": bson.M{"$sum": "$duration"},
			}}},
			{{Key: "$sort", Value: bson.M{"count": -1}}},
		}, &buckets)
	if err != nil {
		h.logger.Error("Failed to fetch analytics", zap.Error(err))
		h.fail(c, err)
		return
	}

	var total, completed, totalDuration int64
	for _, b := range buckets {
		total += b.Count
		totalDuration += b.TotalTime
		if b.Status == "completed" {
			completed = b.Count
		}
	}
	avgDuration := 0.0
	if total > 0 {
		avgDuration = float64(totalDuration) / float64(total)
	}

	c.JSON(http.StatusOK, gin.H{
		"overview": gin.H{
			"total_calls":     total,
			"completed_calls": completed,
			"avg_duration":    avgDuration,
			"total_duration":  totalDuration,
		},
		"by_status": buckets,
		"period":    strconv.Itoa(days) + " days",
	})
}
