package broadcast

import (
	"context"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/pkg/metrics"
)

// RedisRelay shares messages between instances over a Redis pub/sub channel.
// Publish only sends remotely; Run hands messages from other instances to local.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	local   Publisher
	logger  *zap.Logger
}

func NewRedisRelay(client *redis.Client, channel string, local Publisher, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, origin: uuid.NewString(), local: local, logger: logger}
}

func (r *RedisRelay) Publish(ctx context.Context, msg Message) error {
	raw, err := encodeEnvelope(r.origin, msg)
	if err != nil {
		return err
	}
	err = r.client.Publish(ctx, r.channel, raw).Err()
	metrics.RecordBroadcast("redis", err == nil)
	return err
}

// Run blocks until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("tracking redis relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			msg, remote := decodeEnvelope(r.origin, []byte(m.Payload))
			if !remote {
				continue
			}
			if err := r.local.Publish(ctx, msg); err != nil {
				r.logger.Warn("tracking relay local delivery failed", zap.Error(err))
			}
		}
	}
}
