package otel

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const dbTracerName = TracerName + "/mongo"

// WithDBSpan runs fn inside a client span for one collection operation.
// A miss (mongo.ErrNoDocuments) is recorded as an attribute, not an error.
func WithDBSpan(ctx context.Context, collection, operation string, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer(dbTracerName).Start(ctx, collection+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemMongoDB,
			semconv.DBOperationKey.String(operation),
			semconv.DBMongoDBCollectionKey.String(collection),
		),
	)
	defer span.End()

	err := fn(ctx)
	switch {
	case err == nil:
	case errors.Is(err, mongo.ErrNoDocuments):
		span.SetAttributes(attribute.Bool("db.miss", true))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
