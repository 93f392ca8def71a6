package mongo

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrInvalidID is returned when a hex ObjectID cannot be parsed.
var ErrInvalidID = errors.New("invalid object id")

// IsDuplicateKey reports whether err is a unique-index violation.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// ObjectIDFromHex parses a hex ObjectID, wrapping failures in ErrInvalidID.
func ObjectIDFromHex(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}

// ErrNoDocuments is returned by FindOneInto when nothing matches.
var ErrNoDocuments = mongo.ErrNoDocuments
