package pgstore

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/dmitrijs2005/tradegate/internal/docstore"
)

// Watch polls the document and emits its state whenever it differs from the
// previously emitted one. Transient read errors are skipped; the next tick
// retries.
func (s *Store) Watch(ctx context.Context, collection, id string) (<-chan docstore.Change, error) {
	first, err := s.snapshot(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	out := make(chan docstore.Change, 1)
	out <- first

	go func() {
		defer close(out)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		last := first
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			cur, err := s.snapshot(ctx, collection, id)
			if err != nil {
				continue
			}
			if cur.Deleted == last.Deleted && reflect.DeepEqual(cur.Data, last.Data) {
				continue
			}
			select {
			case out <- cur:
				last = cur
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (s *Store) snapshot(ctx context.Context, collection, id string) (docstore.Change, error) {
	doc, err := s.Get(ctx, collection, id)
	if errors.Is(err, common.ErrorNotFound) {
		return docstore.Change{ID: id, Deleted: true}, nil
	}
	if err != nil {
		return docstore.Change{}, err
	}
	return docstore.Change{ID: id, Data: doc}, nil
}
