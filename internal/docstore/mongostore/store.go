// Package mongostore implements docstore.Store and docstore.Watcher on top of
// MongoDB. Document ids are stored in _id; change streams back live queries
// and therefore require a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/dmitrijs2005/tradegate/internal/docstore"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to uri and verifies the connection with a ping.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func idFilter(id string) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}

// fieldsFilter builds an equality filter with keys in a stable order.
func fieldsFilter(fields map[string]any) bson.D {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filter := make(bson.D, 0, len(keys))
	for _, k := range keys {
		filter = append(filter, bson.E{Key: k, Value: fields[k]})
	}
	return filter
}

func sortDirection(desc bool) int {
	if desc {
		return -1
	}
	return 1
}

// fromBSON strips the _id key, returning the id separately.
func fromBSON(m bson.M) (string, docstore.Document) {
	id := ""
	if v, ok := m["_id"]; ok {
		id = fmt.Sprint(v)
	}
	doc := make(docstore.Document, len(m))
	for k, v := range m {
		if k == "_id" {
			continue
		}
		doc[k] = v
	}
	return id, doc
}

func toBSON(id string, doc docstore.Document) bson.M {
	m := make(bson.M, len(doc)+1)
	for k, v := range doc {
		m[k] = v
	}
	m["_id"] = id
	return m
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var m bson.M
	err := s.db.Collection(collection).FindOne(ctx, idFilter(id)).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("mongo get %s/%s: %w", collection, id, err)
	}
	_, doc := fromBSON(m)
	return doc, nil
}

func (s *Store) FindByField(ctx context.Context, collection, field string, value any) ([]docstore.Snapshot, error) {
	return s.find(ctx, collection, bson.D{{Key: field, Value: value}}, options.Find())
}

func (s *Store) FindByFields(ctx context.Context, collection string, fields map[string]any) ([]docstore.Snapshot, error) {
	return s.find(ctx, collection, fieldsFilter(fields), options.Find())
}

func (s *Store) ListOrdered(ctx context.Context, collection, orderBy string, desc bool, limit int) ([]docstore.Snapshot, error) {
	opts := options.Find().SetSort(bson.D{{Key: orderBy, Value: sortDirection(desc)}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, collection, bson.D{}, opts)
}

func (s *Store) find(ctx context.Context, collection string, filter bson.D, opts *options.FindOptionsBuilder) ([]docstore.Snapshot, error) {
	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var rows []bson.M
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongo decode %s: %w", collection, err)
	}

	out := make([]docstore.Snapshot, 0, len(rows))
	for _, m := range rows {
		id, doc := fromBSON(m)
		out = append(out, docstore.Snapshot{ID: id, Data: doc})
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, doc docstore.Document) error {
	_, err := s.db.Collection(collection).ReplaceOne(ctx, idFilter(id), toBSON(id, doc), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx, idFilter(id), bson.D{{Key: "$set", Value: fieldsFilter(fields)}})
	if err != nil {
		return fmt.Errorf("mongo update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, idFilter(id)); err != nil {
		return fmt.Errorf("mongo delete %s/%s: %w", collection, id, err)
	}
	return nil
}

var (
	_ docstore.Store   = (*Store)(nil)
	_ docstore.Watcher = (*Store)(nil)
	_ docstore.Closer  = (*Store)(nil)
)
