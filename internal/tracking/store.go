package tracking

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	mongopkg "github.com/troikatech/engage-api/pkg/mongo"
)

// Query filters the event log. Zero values are ignored.
type Query struct {
	AdminID    string
	Category   Category
	EventType  string
	WorkflowID string
	SessionID  string
	UserID     string
	From       time.Time
	To         time.Time
	Skip       int64
	Limit      int64
}

// TypeSummary is the per-event-type slice of a workflow summary.
type TypeSummary struct {
	EventType          string  `bson:"_id" json:"event_type"`
	Count              int64   `bson:"count" json:"count"`
	Successes          int64   `bson:"successes" json:"successes"`
	Failures           int64   `bson:"failures" json:"failures"`
	Timed              int64   `bson:"timed" json:"timed"`
	AvgExecutionTimeMs float64 `bson:"avg_execution_time_ms" json:"avg_execution_time_ms"`
}

type Summary struct {
	WorkflowID         string        `json:"workflow_id"`
	TotalEvents        int64         `json:"total_events"`
	Sessions           int64         `json:"sessions"`
	SuccessRate        float64       `json:"success_rate"`
	AvgExecutionTimeMs float64       `json:"avg_execution_time_ms"`
	ByType             []TypeSummary `json:"by_type"`
}

type MongoStore struct {
	client *mongopkg.Client
}

func NewMongoStore(client *mongopkg.Client) *MongoStore {
	return &MongoStore{client: client}
}

func (s *MongoStore) Insert(ctx context.Context, e *Event) error {
	id, err := s.client.NewQuery(mongopkg.CollTrackingEvents).Insert(ctx, e)
	if err != nil {
		return fmt.Errorf("insert tracking event: %w", err)
	}
	if oid, ok := id.(primitive.ObjectID); ok {
		e.ID = oid
	}
	return nil
}

func (s *MongoStore) filtered(q Query) *mongopkg.QueryBuilder {
	b := s.client.NewQuery(mongopkg.CollTrackingEvents).
		EqIf("admin_id", q.AdminID).
		EqIf("event_category", string(q.Category)).
		EqIf("event_type", q.EventType).
		EqIf("workflow_id", q.WorkflowID).
		EqIf("session_id", q.SessionID).
		EqIf("user_id", q.UserID)
	if !q.From.IsZero() {
		b.Gte("timestamp", q.From)
	}
	if !q.To.IsZero() {
		b.Lte("timestamp", q.To)
	}
	return b
}

// List returns matching events newest first plus the total match count.
func (s *MongoStore) List(ctx context.Context, q Query) ([]Event, int64, error) {
	events := []Event{}
	total, err := s.filtered(q).Sort("timestamp", false).FindPage(ctx, q.Skip, q.Limit, &events)
	if err != nil {
		return nil, 0, fmt.Errorf("list tracking events: %w", err)
	}
	return events, total, nil
}

// WorkflowSummary aggregates a workflow's events by type. An empty adminID
// spans every tenant.
func (s *MongoStore) WorkflowSummary(ctx context.Context, adminID, workflowID string) (*Summary, error) {
	byType := []TypeSummary{}
	err := s.filtered(Query{AdminID: adminID, WorkflowID: workflowID}).Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":                   "$event_type",
			"count":                 bson.M{"$sum": 1},
			"successes":             bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$success", true}}, 1, 0}}},
			"failures":              bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$success", false}}, 1, 0}}},
			"timed":                 bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$isNumber": "$execution_time_ms"}, 1, 0}}},
			"avg_execution_time_ms": bson.M{"$avg": "$execution_time_ms"},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}, &byType)
	if err != nil {
		return nil, fmt.Errorf("summarise workflow %s: %w", workflowID, err)
	}

	var sessions []struct {
		N int64 `bson:"n"`
	}
	err = s.filtered(Query{AdminID: adminID, WorkflowID: workflowID}).Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"session_id": bson.M{"$exists": true}}}},
		{{Key: "$group", Value: bson.M{"_id": "$session_id"}}},
		{{Key: "$count", Value: "n"}},
	}, &sessions)
	if err != nil {
		return nil, fmt.Errorf("count workflow sessions %s: %w", workflowID, err)
	}

	summary := Summarise(workflowID, byType)
	if len(sessions) > 0 {
		summary.Sessions = sessions[0].N
	}
	return summary, nil
}

// Summarise folds per-type rows into workflow totals. The average execution
// time is weighted by the number of timed events in each type.
func Summarise(workflowID string, byType []TypeSummary) *Summary {
	s := &Summary{WorkflowID: workflowID, ByType: byType}
	var successes, judged int64
	var weighted float64
	var timed int64
	for _, t := range byType {
		s.TotalEvents += t.Count
		successes += t.Successes
		judged += t.Successes + t.Failures
		if t.Timed > 0 {
			weighted += t.AvgExecutionTimeMs * float64(t.Timed)
			timed += t.Timed
		}
	}
	if judged > 0 {
		s.SuccessRate = float64(successes) / float64(judged) * 100
	}
	if timed > 0 {
		s.AvgExecutionTimeMs = weighted / float64(timed)
	}
	return s
}
