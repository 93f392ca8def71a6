package broadcast

import (
	"context"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/pkg/metrics"
)

// NatsRelay is RedisRelay over a NATS subject.
type NatsRelay struct {
	nc      *nats.Conn
	subject string
	origin  string
	local   Publisher
	logger  *zap.Logger
	sub     *nats.Subscription
}

func NewNatsRelay(url, subject string, local Publisher, logger *zap.Logger) (*NatsRelay, error) {
	nc, err := nats.Connect(url, nats.Name("engage-api"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	return &NatsRelay{nc: nc, subject: subject, origin: uuid.NewString(), local: local, logger: logger}, nil
}

func (n *NatsRelay) Publish(ctx context.Context, msg Message) error {
	raw, err := encodeEnvelope(n.origin, msg)
	if err != nil {
		return err
	}
	err = n.nc.Publish(n.subject, raw)
	metrics.RecordBroadcast("nats", err == nil)
	return err
}

// Start subscribes and forwards remote messages to the local publisher.
func (n *NatsRelay) Start() error {
	sub, err := n.nc.Subscribe(n.subject, func(m *nats.Msg) {
		msg, remote := decodeEnvelope(n.origin, m.Data)
		if !remote {
			return
		}
		if err := n.local.Publish(context.Background(), msg); err != nil {
			n.logger.Warn("tracking relay local delivery failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	n.sub = sub
	n.logger.Info("tracking nats relay subscribed", zap.String("subject", n.subject))
	return nil
}

func (n *NatsRelay) Close() error {
	if n.sub != nil {
		_ = n.sub.Unsubscribe()
	}
	_ = n.nc.Flush()
	n.nc.Close()
	return nil
}
