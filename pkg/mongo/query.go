package mongo

import (
	"context"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/troikatech/engage-api/pkg/otel"
)

// QueryBuilder accumulates a filter, projection and paging for one
// collection. Every terminal method runs inside a tracing span named after
// the collection and operation.
type QueryBuilder struct {
	coll       *mongo.Collection
	filter     bson.M
	projection bson.M
	sort       bson.D
	skip       int64
	limit      int64
}

func (c *Client) NewQuery(collection string) *QueryBuilder {
	return NewQuery(c.Collection(collection))
}

// NewQuery wraps an already resolved collection.
func NewQuery(coll *mongo.Collection) *QueryBuilder {
	return &QueryBuilder{coll: coll, filter: bson.M{}, projection: bson.M{}}
}

// Filters

func (q *QueryBuilder) Eq(field string, value interface{}) *QueryBuilder {
	q.filter[field] = value
	return q
}

// EqIf is Eq for optional string query parameters: empty values are skipped.
func (q *QueryBuilder) EqIf(field, value string) *QueryBuilder {
	if value == "" {
		return q
	}
	return q.Eq(field, value)
}

func (q *QueryBuilder) Ne(field string, value interface{}) *QueryBuilder {
	return q.op(field, "$ne", value)
}

func (q *QueryBuilder) In(field string, values interface{}) *QueryBuilder {
	q.filter[field] = bson.M{"$in": values}
	return q
}

// IsNull matches documents where field is null or missing, e.g. deleted_at.
func (q *QueryBuilder) IsNull(field string) *QueryBuilder {
	return q.Eq(field, nil)
}

func (q *QueryBuilder) IsNotNull(field string) *QueryBuilder {
	return q.op(field, "$ne", nil)
}

// Contains is a case-insensitive substring match on user input; the term is
// quoted so it never acts as a pattern.
func (q *QueryBuilder) Contains(field, term string) *QueryBuilder {
	if term == "" {
		return q
	}
	q.filter[field] = bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}
	return q
}

func (q *QueryBuilder) Gte(field string, value interface{}) *QueryBuilder {
	return q.op(field, "$gte", value)
}

func (q *QueryBuilder) Lte(field string, value interface{}) *QueryBuilder {
	return q.op(field, "$lte", value)
}

// op adds an operator to field, merging with operators already set on it so
// Gte and Lte on the same field form one range.
func (q *QueryBuilder) op(field, operator string, value interface{}) *QueryBuilder {
	if ops, ok := q.filter[field].(bson.M); ok {
		ops[operator] = value
		return q
	}
	q.filter[field] = bson.M{operator: value}
	return q
}

// Filter returns the accumulated filter document.
func (q *QueryBuilder) Filter() bson.M {
	return q.filter
}

// Shape

// Select limits the returned fields. "*" anywhere clears the projection.
func (q *QueryBuilder) Select(fields ...string) *QueryBuilder {
	q.projection = bson.M{}
	for _, f := range fields {
		if f == "*" {
			q.projection = bson.M{}
			return q
		}
		q.projection[f] = 1
	}
	return q
}

// Omit drops fields from the result, e.g. password hashes.
func (q *QueryBuilder) Omit(fields ...string) *QueryBuilder {
	for _, f := range fields {
		q.projection[f] = 0
	}
	return q
}

func (q *QueryBuilder) Sort(field string, ascending bool) *QueryBuilder {
	dir := -1
	if ascending {
		dir = 1
	}
	q.sort = append(q.sort, bson.E{Key: field, Value: dir})
	return q
}

func (q *QueryBuilder) Skip(n int64) *QueryBuilder {
	q.skip = n
	return q
}

func (q *QueryBuilder) Limit(n int64) *QueryBuilder {
	q.limit = n
	return q
}

// Reads

func (q *QueryBuilder) findOptions() *options.FindOptions {
	opts := options.Find()
	if q.skip > 0 {
		opts.SetSkip(q.skip)
	}
	if q.limit > 0 {
		opts.SetLimit(q.limit)
	}
	if len(q.sort) > 0 {
		opts.SetSort(q.sort)
	}
	if len(q.projection) > 0 {
		opts.SetProjection(q.projection)
	}
	return opts
}

// FindInto decodes every match into out, a pointer to a slice.
func (q *QueryBuilder) FindInto(ctx context.Context, out interface{}) error {
	return q.traced(ctx, "find", func(ctx context.Context) error {
		cursor, err := q.coll.Find(ctx, q.filter, q.findOptions())
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, out)
	})
}

// FindPage counts all matches, then decodes the page selected by skip and
// limit into out. Sort and projection set on q apply to the page.
func (q *QueryBuilder) FindPage(ctx context.Context, skip, limit int64, out interface{}) (int64, error) {
	total, err := q.Count(ctx)
	if err != nil {
		return 0, err
	}
	if err := q.Skip(skip).Limit(limit).FindInto(ctx, out); err != nil {
		return 0, err
	}
	return total, nil
}

// FindOneInto decodes the first match into out, or returns ErrNoDocuments.
func (q *QueryBuilder) FindOneInto(ctx context.Context, out interface{}) error {
	opts := options.FindOne()
	if len(q.sort) > 0 {
		opts.SetSort(q.sort)
	}
	if len(q.projection) > 0 {
		opts.SetProjection(q.projection)
	}
	return q.traced(ctx, "findOne", func(ctx context.Context) error {
		return q.coll.FindOne(ctx, q.filter, opts).Decode(out)
	})
}

func (q *QueryBuilder) Count(ctx context.Context) (int64, error) {
	var n int64
	err := q.traced(ctx, "count", func(ctx context.Context) (err error) {
		n, err = q.coll.CountDocuments(ctx, q.filter)
		return err
	})
	return n, err
}

// Aggregate runs stages after a $match on the current filter.
func (q *QueryBuilder) Aggregate(ctx context.Context, stages mongo.Pipeline, out interface{}) error {
	pipeline := make(mongo.Pipeline, 0, len(stages)+1)
	if len(q.filter) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: q.filter}})
	}
	pipeline = append(pipeline, stages...)

	return q.traced(ctx, "aggregate", func(ctx context.Context) error {
		cursor, err := q.coll.Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, out)
	})
}

// Writes

func (q *QueryBuilder) Insert(ctx context.Context, doc interface{}) (interface{}, error) {
	var id interface{}
	err := q.traced(ctx, "insert", func(ctx context.Context) error {
		res, err := q.coll.InsertOne(ctx, doc)
		if err != nil {
			return err
		}
		id = res.InsertedID
		return nil
	})
	return id, err
}

// UpdateOne $sets fields on the first match.
func (q *QueryBuilder) UpdateOne(ctx context.Context, set interface{}) (*mongo.UpdateResult, error) {
	return q.updateOne(ctx, "updateOne", bson.M{"$set": set}, nil)
}

// Upsert $sets fields on the match, inserting a document when none exists.
func (q *QueryBuilder) Upsert(ctx context.Context, set interface{}) (*mongo.UpdateResult, error) {
	return q.updateOne(ctx, "upsert", bson.M{"$set": set}, options.Update().SetUpsert(true))
}

// ApplyOne runs a full update document ($set, $push, $inc...) on one match.
func (q *QueryBuilder) ApplyOne(ctx context.Context, update bson.M) (*mongo.UpdateResult, error) {
	return q.updateOne(ctx, "updateOne", update, nil)
}

// Update $sets fields on every match.
func (q *QueryBuilder) Update(ctx context.Context, set interface{}) (*mongo.UpdateResult, error) {
	var res *mongo.UpdateResult
	err := q.traced(ctx, "updateMany", func(ctx context.Context) (err error) {
		res, err = q.coll.UpdateMany(ctx, q.filter, bson.M{"$set": set})
		return err
	})
	return res, err
}

func (q *QueryBuilder) updateOne(ctx context.Context, op string, update interface{}, opts *options.UpdateOptions) (*mongo.UpdateResult, error) {
	if opts == nil {
		opts = options.Update()
	}
	var res *mongo.UpdateResult
	err := q.traced(ctx, op, func(ctx context.Context) (err error) {
		res, err = q.coll.UpdateOne(ctx, q.filter, update, opts)
		return err
	})
	return res, err
}

func (q *QueryBuilder) DeleteOne(ctx context.Context) (*mongo.DeleteResult, error) {
	var res *mongo.DeleteResult
	err := q.traced(ctx, "deleteOne", func(ctx context.Context) (err error) {
		res, err = q.coll.DeleteOne(ctx, q.filter)
		return err
	})
	return res, err
}

func (q *QueryBuilder) traced(ctx context.Context, op string, fn func(context.Context) error) error {
	return otel.WithDBSpan(ctx, q.coll.Name(), op, fn)
}
