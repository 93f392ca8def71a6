package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"

	"github.com/troikatech/engage-api/pkg/mongo"
)

// SessionStore persists the one live token per principal. Logout clears it.
type SessionStore interface {
	Save(ctx context.Context, role, id, token string) error
	Valid(ctx context.Context, role, id, token string) (bool, error)
	Revoke(ctx context.Context, role, id string) error
}

var tokenCollections = map[string]string{
	RoleSuperAdmin: mongo.CollSuperAdminTokens,
	RoleAdmin:      mongo.CollAdminTokens,
	RoleAgent:      mongo.CollAgentTokens,
	RoleUser:       mongo.CollUserTokens,
}

// ErrUnknownRole is returned for roles without a token collection.
var ErrUnknownRole = stderrors.New("unknown role")

// MongoSessionStore keeps {id, token} rows in one collection per role.
type MongoSessionStore struct {
	client *mongo.Client
}

func NewMongoSessionStore(client *mongo.Client) *MongoSessionStore {
	return &MongoSessionStore{client: client}
}

type sessionRow struct {
	ID        string    `bson:"id"`
	Token     *string   `bson:"token"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (s *MongoSessionStore) query(role string) (*mongo.QueryBuilder, error) {
	coll, ok := tokenCollections[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	return s.client.NewQuery(coll), nil
}

func (s *MongoSessionStore) Save(ctx context.Context, role, id, token string) error {
	q, err := s.query(role)
	if err != nil {
		return err
	}
	_, err = q.Eq("id", id).Upsert(ctx, bson.M{"id": id, "token": token, "updated_at": time.Now()})
	return err
}

func (s *MongoSessionStore) Valid(ctx context.Context, role, id, token string) (bool, error) {
	q, err := s.query(role)
	if err != nil {
		return false, err
	}
	var row sessionRow
	err = q.Eq("id", id).FindOneInto(ctx, &row)
	if stderrors.Is(err, mongodrv.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row.Token != nil && *row.Token == token, nil
}

func (s *MongoSessionStore) Revoke(ctx context.Context, role, id string) error {
	q, err := s.query(role)
	if err != nil {
		return err
	}
	_, err = q.Eq("id", id).UpdateOne(ctx, bson.M{"token": nil, "updated_at": time.Now()})
	return err
}
