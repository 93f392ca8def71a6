package activity

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/pkg/logger"
	"github.com/troikatech/engage-api/pkg/mongo"
)

// Action represents an activity action
type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionActivate   Action = "activate"
	ActionDeactivate Action = "deactivate"
	ActionLogin      Action = "login"
	ActionLogout     Action = "logout"
	ActionSend       Action = "send"
	ActionCall       Action = "call"
	ActionPublish    Action = "publish"
	ActionVerify     Action = "verify"
)

// Entry is one row of the activity_logs collection.
type Entry struct {
	ID           primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	AdminID      string                 `bson:"admin_id,omitempty" json:"admin_id,omitempty"`
	ActorID      string                 `bson:"actor_id" json:"actor_id"`
	ActorRole    string                 `bson:"actor_role" json:"actor_role"`
	Action       Action                 `bson:"action" json:"action"`
	ResourceType string                 `bson:"resource_type" json:"resource_type"`
	ResourceID   string                 `bson:"resource_id,omitempty" json:"resource_id,omitempty"`
	Description  string                 `bson:"description,omitempty" json:"description,omitempty"`
	Metadata     map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	IP           string                 `bson:"ip,omitempty" json:"ip,omitempty"`
	CreatedAt    time.Time              `bson:"created_at" json:"created_at"`
}

// Recorder is what handlers depend on.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// MongoRecorder writes entries to activity_logs. Failures are logged, never returned.
type MongoRecorder struct {
	client *mongo.Client
}

func NewMongoRecorder(client *mongo.Client) *MongoRecorder {
	return &MongoRecorder{client: client}
}

func (r *MongoRecorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.client == nil {
		logger.Log.Warn("activity logging skipped: MongoDB client not available")
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	// detached so a finished request does not cancel the write
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if _, err := r.client.NewQuery(mongo.CollActivityLogs).Insert(ctx, e); err != nil {
		logger.Log.Error("failed to record activity",
			zap.Error(err),
			zap.String("action", string(e.Action)),
			zap.String("resource_type", e.ResourceType),
		)
	}
}

// Filter narrows List.
type Filter struct {
	AdminID      string
	ActorID      string
	Action       string
	ResourceType string
	From         *time.Time
	To           *time.Time
}

// List returns one page of entries, newest first, plus the total match count.
func (r *MongoRecorder) List(ctx context.Context, f Filter, skip, limit int64) ([]Entry, int64, error) {
	q := r.client.NewQuery(mongo.CollActivityLogs).
		EqIf("admin_id", f.AdminID).
		EqIf("actor_id", f.ActorID).
		EqIf("action", f.Action).
		EqIf("resource_type", f.ResourceType)
	if f.From != nil {
		q.Gte("created_at", *f.From)
	}
	if f.To != nil {
		q.Lte("created_at", *f.To)
	}

	entries := []Entry{}
	total, err := q.Sort("created_at", false).FindPage(ctx, skip, limit, &entries)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
