package mongostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/dmitrijs2005/tradegate/internal/docstore"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type changeEvent struct {
	OperationType string `bson:"operationType"`
	FullDocument  bson.M `bson:"fullDocument"`
}

func watchPipeline(id string) mongo.Pipeline {
	return mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: id}}}},
	}
}

func toChange(id string, ev changeEvent) docstore.Change {
	switch ev.OperationType {
	case "delete":
		return docstore.Change{ID: id, Deleted: true}
	}
	if ev.FullDocument == nil {
		// update lookup found nothing: the document is gone by now
		return docstore.Change{ID: id, Deleted: true}
	}
	_, doc := fromBSON(ev.FullDocument)
	return docstore.Change{ID: id, Data: doc}
}

// Watch opens a change stream on one document. The current state is emitted
// first so subscribers never miss a change made before the stream opened.
func (s *Store) Watch(ctx context.Context, collection, id string) (<-chan docstore.Change, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := s.db.Collection(collection).Watch(ctx, watchPipeline(id), opts)
	if err != nil {
		return nil, fmt.Errorf("mongo watch %s/%s: %w", collection, id, err)
	}

	initial := docstore.Change{ID: id}
	doc, err := s.Get(ctx, collection, id)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		initial.Deleted = true
	case err != nil:
		_ = cs.Close(ctx)
		return nil, err
	default:
		initial.Data = doc
	}

	out := make(chan docstore.Change, 1)
	out <- initial

	go func() {
		defer close(out)
		defer cs.Close(context.WithoutCancel(ctx))

		for cs.Next(ctx) {
			var ev changeEvent
			if err := cs.Decode(&ev); err != nil {
				return
			}
			select {
			case out <- toChange(id, ev):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
