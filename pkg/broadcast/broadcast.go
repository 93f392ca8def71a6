// Package broadcast fans tracking payloads out to live listeners: websocket
// clients on this instance and, through relays, on every other instance.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is what listeners receive.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage encodes data under a fresh id.
func NewMessage(msgType string, data interface{}) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{ID: uuid.NewString(), Type: msgType, Data: raw, Timestamp: time.Now().UTC()}, nil
}

// Publisher delivers a message to its listeners. Implementations must not
// block on slow listeners.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, msg Message) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every message.
type Nop struct{}

func (Nop) Publish(context.Context, Message) error { return nil }

// envelope tags relayed messages with the sending instance so it can skip its own echo.
type envelope struct {
	Origin  string  `json:"origin"`
	Message Message `json:"message"`
}

func encodeEnvelope(origin string, msg Message) ([]byte, error) {
	return json.Marshal(envelope{Origin: origin, Message: msg})
}

// decodeEnvelope returns the message and whether it came from another instance.
func decodeEnvelope(origin string, raw []byte) (Message, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, false
	}
	if env.Origin == origin {
		return Message{}, false
	}
	return env.Message, true
}

// Dedup forwards each message id to next at most once among the last size ids.
type Dedup struct {
	next Publisher

	mu   sync.Mutex
	seen map[string]struct{}
	ring []string
	pos  int
}

func NewDedup(next Publisher, size int) *Dedup {
	if size < 1 {
		size = 1
	}
	return &Dedup{next: next, seen: make(map[string]struct{}, size), ring: make([]string, size)}
}

func (d *Dedup) Publish(ctx context.Context, msg Message) error {
	if msg.ID != "" && !d.first(msg.ID) {
		return nil
	}
	return d.next.Publish(ctx, msg)
}

func (d *Dedup) first(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return false
	}
	if old := d.ring[d.pos]; old != "" {
		delete(d.seen, old)
	}
	d.ring[d.pos] = id
	d.pos = (d.pos + 1) % len(d.ring)
	d.seen[id] = struct{}{}
	return true
}
