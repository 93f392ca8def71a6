package webhook

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeTTL = 48 * time.Hour

// Deduper remembers provider event ids so redelivered webhooks are processed once.
type Deduper struct {
	client *redis.Client
	prefix string
}

func NewDeduper(client *redis.Client, prefix string) *Deduper {
	return &Deduper{client: client, prefix: prefix}
}

// FirstSeen reports whether id has not been processed before. Redis errors
// report true so events are never dropped.
func (d *Deduper) FirstSeen(ctx context.Context, id string) bool {
	if d == nil || d.client == nil || id == "" {
		return true
	}
	ok, err := d.client.SetNX(ctx, "webhook:"+d.prefix+":"+id, 1, dedupeTTL).Result()
	if err != nil {
		return true
	}
	return ok
}
