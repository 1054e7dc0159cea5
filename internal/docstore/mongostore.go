package docstore

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// uniqueKeysField holds "name:value" strings under a sparse unique index so
// that every declared key is enforced by one index per collection.
const uniqueKeysField = "uniqueKeys"

type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "mongo ping")
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) Insert(ctx context.Context, coll, id string, doc any, keys []UniqueKey) error {
	d, err := toDoc(doc, id, keys)
	if err != nil {
		return errors.Wrapf(err, "encode %s/%s", coll, id)
	}
	_, err = s.db.Collection(coll).InsertOne(ctx, d)
	if mongo.IsDuplicateKeyError(err) {
		return errors.Wrapf(ErrDuplicateKey, "%s/%s", coll, id)
	}
	return errors.Wrapf(err, "insert %s/%s", coll, id)
}

func (s *MongoStore) Replace(ctx context.Context, coll, id string, doc any, keys []UniqueKey, cond Filter) error {
	d, err := toDoc(doc, id, keys)
	if err != nil {
		return errors.Wrapf(err, "encode %s/%s", coll, id)
	}
	sel := translate(cond)
	sel["_id"] = id
	res, err := s.db.Collection(coll).ReplaceOne(ctx, sel, d)
	if mongo.IsDuplicateKeyError(err) {
		return errors.Wrapf(ErrDuplicateKey, "%s/%s", coll, id)
	}
	if err != nil {
		return errors.Wrapf(err, "replace %s/%s", coll, id)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := s.db.Collection(coll).CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrapf(err, "replace %s/%s", coll, id)
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "%s/%s", coll, id)
	}
	return errors.Wrapf(ErrConflict, "%s/%s", coll, id)
}

func (s *MongoStore) Get(ctx context.Context, coll, id string, out any) error {
	err := s.db.Collection(coll).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return errors.Wrapf(ErrNotFound, "%s/%s", coll, id)
	}
	return errors.Wrapf(err, "get %s/%s", coll, id)
}

func (s *MongoStore) Delete(ctx context.Context, coll, id string) error {
	res, err := s.db.Collection(coll).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrapf(err, "delete %s/%s", coll, id)
	}
	if res.DeletedCount == 0 {
		return errors.Wrapf(ErrNotFound, "%s/%s", coll, id)
	}
	return nil
}

func (s *MongoStore) Find(ctx context.Context, coll string, q Query, out any) error {
	opts := options.Find()
	if q.Sort != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: fieldName(q.Sort), Value: dir}})
	}
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.db.Collection(coll).Find(ctx, translate(q.Filter), opts)
	if err != nil {
		return errors.Wrapf(err, "find %s", coll)
	}
	return errors.Wrapf(cur.All(ctx, out), "decode %s", coll)
}

func (s *MongoStore) Count(ctx context.Context, coll string, f Filter) (int64, error) {
	n, err := s.db.Collection(coll).CountDocuments(ctx, translate(f))
	return n, errors.Wrapf(err, "count %s", coll)
}

// EnsureIndexes creates the unique-key index for each collection plus the
// listed secondary indexes. Safe to run repeatedly.
func (s *MongoStore) EnsureIndexes(ctx context.Context, specs []IndexSpec) error {
	for _, spec := range specs {
		models := []mongo.IndexModel{{
			Keys:    bson.D{{Key: uniqueKeysField, Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		}}
		for _, f := range spec.Fields {
			models = append(models, mongo.IndexModel{Keys: bson.D{{Key: fieldName(f), Value: 1}}})
		}
		if _, err := s.db.Collection(spec.Collection).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "indexes %s", spec.Collection)
		}
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func toDoc(doc any, id string, keys []UniqueKey) (bson.D, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var fields bson.D
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	out := bson.D{{Key: "_id", Value: id}}
	for _, e := range fields {
		if e.Key == "_id" || e.Key == uniqueKeysField {
			continue
		}
		out = append(out, e)
	}
	if len(keys) > 0 {
		ks := make([]string, len(keys))
		for i, k := range keys {
			ks[i] = k.String()
		}
		out = append(out, bson.E{Key: uniqueKeysField, Value: ks})
	}
	return out, nil
}

func fieldName(f string) string {
	if f == IDField {
		return "_id"
	}
	return f
}

func translate(f Filter) bson.M {
	out := bson.M{}
	for k, v := range f {
		switch w := v.(type) {
		case Gt:
			out[fieldName(k)] = bson.M{"$gt": w.Value}
		case In:
			out[fieldName(k)] = bson.M{"$in": w.Values}
		default:
			out[fieldName(k)] = v
		}
	}
	return out
}
