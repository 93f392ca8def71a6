package tracking

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/pkg/broadcast"
	apperrors "github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/gtm"
	"github.com/troikatech/engage-api/pkg/logger"
	"github.com/troikatech/engage-api/pkg/metrics"
	"github.com/troikatech/engage-api/pkg/utils"
)

// MessageType is the broadcast type listeners subscribe to.
const MessageType = "unified_tracking_event"

const (
	tagSyncTimeout = 30 * time.Second
	tracerName     = "engage-api/tracking"
)

// Store persists events. Implementations must never update or delete.
type Store interface {
	Insert(ctx context.Context, e *Event) error
	List(ctx context.Context, q Query) ([]Event, int64, error)
	WorkflowSummary(ctx context.Context, adminID, workflowID string) (*Summary, error)
}

// TagSyncer mirrors an event into GTM.
type TagSyncer interface {
	SyncUnifiedTag(ctx context.Context, ev gtm.TagEvent) (*gtm.SyncResult, error)
}

// Input is what callers hand to Track.
type Input struct {
	EventType  string
	Category   Category
	AdminID    string
	WorkflowID string
	SessionID  string
	UserID     string
	Payload    Payload
	Metadata   map[string]interface{}
}

type Service struct {
	store     Store
	publisher broadcast.Publisher
	tags      TagSyncer
	logger    *zap.Logger
	now       func() time.Time

	syncs sync.WaitGroup
}

// NewService wires the pipeline. publisher and tags may be nil; a nil tags
// disables GTM mirroring.
func NewService(store Store, publisher broadcast.Publisher, tags TagSyncer, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = broadcast.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		tags:      tags,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Track validates, persists, broadcasts and mirrors one event. Only
// validation and persistence errors are returned.
func (s *Service) Track(ctx context.Context, in Input) (*Event, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "tracking.Track", trace.WithAttributes(
		attribute.String("tracking.event_type", in.EventType),
		attribute.String("tracking.event_category", string(in.Category)),
	))
	defer span.End()

	if err := validate(in); err != nil {
		metrics.RecordTrackedEvent(string(in.Category), false)
		span.SetStatus(codes.Error, "invalid event")
		return nil, err
	}

	ev := &Event{
		EventType:     in.EventType,
		EventCategory: in.Category,
		AdminID:       in.AdminID,
		WorkflowID:    in.WorkflowID,
		SessionID:     in.SessionID,
		UserID:        in.UserID,
		Metadata:      copyMetadata(in.Metadata),
		Timestamp:     s.now(),
	}
	if in.Payload != nil {
		in.Payload.apply(ev)
	}

	if err := s.store.Insert(ctx, ev); err != nil {
		metrics.RecordTrackedEvent(string(in.Category), false)
		fields := append([]zap.Field{
			zap.String("event_type", ev.EventType),
			zap.String("event_category", string(ev.EventCategory)),
			zap.Error(err),
		}, logger.SafeFields(ev.Metadata)...)
		s.logger.Error("failed to persist tracking event", fields...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, err
	}
	metrics.RecordTrackedEvent(string(ev.EventCategory), true)

	s.broadcast(ctx, *ev)
	s.syncTag(ctx, *ev)

	return ev, nil
}

// Events lists stored events matching q.
func (s *Service) Events(ctx context.Context, q Query) ([]Event, int64, error) {
	return s.store.List(ctx, q)
}

// WorkflowSummary aggregates one workflow's events within a tenant.
func (s *Service) WorkflowSummary(ctx context.Context, adminID, workflowID string) (*Summary, error) {
	return s.store.WorkflowSummary(ctx, adminID, workflowID)
}

// Wait blocks until in-flight GTM syncs finish.
func (s *Service) Wait() {
	s.syncs.Wait()
}

func validate(in Input) error {
	if strings.TrimSpace(in.EventType) == "" {
		return apperrors.NewValidationError("event_type", "is required")
	}
	if in.Category == "" {
		return apperrors.NewValidationError("event_category", "is required")
	}
	if !in.Category.Valid() {
		return apperrors.NewValidationError("event_category", "must be one of workflow, kyc, api, user_interaction")
	}
	if in.Payload != nil && in.Payload.Category() != in.Category {
		return apperrors.NewValidationError("payload", "does not match event_category "+string(in.Category))
	}
	return nil
}

// Redacted returns the broadcast form of e. Storage always keeps the raw value.
func Redacted(e Event) Event {
	if e.InputValue != nil && utils.IsSensitiveKey(e.InputVariable) {
		e.InputValue = utils.RedactedValue
	}
	return e
}

func (s *Service) broadcast(ctx context.Context, ev Event) {
	msg, err := broadcast.NewMessage(MessageType, Redacted(ev))
	if err != nil {
		s.logger.Warn("failed to encode tracking broadcast", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.Warn("tracking broadcast failed",
			zap.String("event_type", ev.EventType),
			zap.Error(err))
	}
}

func (s *Service) syncTag(ctx context.Context, ev Event) {
	if s.tags == nil {
		return
	}
	tagEv := gtm.TagEvent{
		Category: string(ev.EventCategory),
		Type:     ev.EventType,
		Entity:   ev.entity(),
		UserID:   ev.UserID,
	}

	s.syncs.Add(1)
	go func() {
		defer s.syncs.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tagSyncTimeout)
		defer cancel()

		res, err := s.tags.SyncUnifiedTag(ctx, tagEv)
		if err != nil {
			s.logger.Warn("GTM tag sync failed",
				zap.String("tag", gtm.UnifiedTagName(tagEv)),
				zap.Error(err))
			return
		}
		s.logger.Debug("GTM tag synced",
			zap.String("tag", res.TagName),
			zap.Bool("created", res.Created))
	}()
}

func copyMetadata(m map[string]interface{}) map[string]interface{} {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
