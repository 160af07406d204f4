// Package docstore describes the remote, schema-less document store that holds
// the allow-list. Documents are addressed by collection and id; backends live
// in sub-packages (mongostore, pgstore) and MemoryStore serves tests and
// local runs.
package docstore

import "context"

// Document is a schema-less record. Backends may return driver-specific value
// types (for example bson.DateTime or RFC 3339 strings for timestamps);
// consumers decode tolerantly.
type Document map[string]any

// Snapshot is a document together with its id.
type Snapshot struct {
	ID   string
	Data Document
}

// Store is the set of queries the authorization core issues.
//
// Get and Update return common.ErrorNotFound for missing documents. Delete of
// a missing document is not an error.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	FindByField(ctx context.Context, collection, field string, value any) ([]Snapshot, error)
	FindByFields(ctx context.Context, collection string, fields map[string]any) ([]Snapshot, error)
	Set(ctx context.Context, collection, id string, doc Document) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	ListOrdered(ctx context.Context, collection, orderBy string, desc bool, limit int) ([]Snapshot, error)
}

// Change is one event of a live query on a single document.
type Change struct {
	ID      string
	Data    Document
	Deleted bool
}

// Watcher is implemented by stores that support live queries. The returned
// channel is closed when ctx is done or the subscription fails.
type Watcher interface {
	Watch(ctx context.Context, collection, id string) (<-chan Change, error)
}

// Closer is implemented by stores holding network resources.
type Closer interface {
	Close(ctx context.Context) error
}
