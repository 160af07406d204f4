package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/tradegate/internal/common"
)

const watchBuffer = 16

type subscription struct {
	collection string
	id         string
	ch         chan Change
}

// MemoryStore is an in-process Store and Watcher.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	subs        map[*subscription]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Document),
		subs:        make(map[*subscription]struct{}),
	}
}

func copyDoc(d Document) Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyDoc(doc), nil
}

func (m *MemoryStore) FindByField(ctx context.Context, collection, field string, value any) ([]Snapshot, error) {
	return m.FindByFields(ctx, collection, map[string]any{field: value})
}

func (m *MemoryStore) FindByFields(ctx context.Context, collection string, fields map[string]any) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Snapshot
	for id, doc := range m.collections[collection] {
		if matches(doc, fields) {
			out = append(out, Snapshot{ID: id, Data: copyDoc(doc)})
		}
	}
	// map iteration is random; keep results stable
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matches(doc Document, fields map[string]any) bool {
	for k, want := range fields {
		got, ok := doc[k]
		if !ok || !equalValues(got, want) {
			return false
		}
	}
	return true
}

func (m *MemoryStore) Set(ctx context.Context, collection, id string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		c = make(map[string]Document)
		m.collections[collection] = c
	}
	c[id] = copyDoc(doc)
	m.notifyLocked(Change{ID: id, Data: copyDoc(doc)}, collection)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return common.ErrorNotFound
	}
	for k, v := range fields {
		doc[k] = v
	}
	m.notifyLocked(Change{ID: id, Data: copyDoc(doc)}, collection)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection][id]; !ok {
		return nil
	}
	delete(m.collections[collection], id)
	m.notifyLocked(Change{ID: id, Deleted: true}, collection)
	return nil
}

func (m *MemoryStore) ListOrdered(ctx context.Context, collection, orderBy string, desc bool, limit int) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]Snapshot, 0, len(m.collections[collection]))
	for id, doc := range m.collections[collection] {
		out = append(out, Snapshot{ID: id, Data: copyDoc(doc)})
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		c := compareValues(out[i].Data[orderBy], out[j].Data[orderBy])
		if c == 0 {
			return out[i].ID < out[j].ID
		}
		if desc {
			return c > 0
		}
		return c < 0
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Watch emits the current state of the document first, then every change.
// Changes carry the full document, so a slow reader only ever loses
// intermediate states.
func (m *MemoryStore) Watch(ctx context.Context, collection, id string) (<-chan Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &subscription{collection: collection, id: id, ch: make(chan Change, watchBuffer)}

	m.mu.Lock()
	if doc, ok := m.collections[collection][id]; ok {
		sub.ch <- Change{ID: id, Data: copyDoc(doc)}
	} else {
		sub.ch <- Change{ID: id, Deleted: true}
	}
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, sub)
		close(sub.ch)
		m.mu.Unlock()
	}()

	return sub.ch, nil
}

func (m *MemoryStore) notifyLocked(c Change, collection string) {
	for sub := range m.subs {
		if sub.collection != collection || sub.id != c.ID {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			// drop the oldest pending state
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- c
		}
	}
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Watcher = (*MemoryStore)(nil)
)
