// Package models holds the Mongo document shapes shared by handlers and stores.
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Base carries the id and timestamps every document has.
type Base struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Touch stamps UpdatedAt, and CreatedAt plus a fresh id on first save.
func (b *Base) Touch() {
	now := time.Now().UTC()
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// SoftDelete marks documents that are hidden instead of removed.
type SoftDelete struct {
	DeletedAt *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
}

func (s SoftDelete) IsDeleted() bool {
	return s.DeletedAt != nil
}
