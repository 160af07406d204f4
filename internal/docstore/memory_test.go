package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "allowlist", "r1")
	require.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, s.Set(ctx, "allowlist", "r1", Document{"email": "a@x.com", "isActive": true}))

	doc, err := s.Get(ctx, "allowlist", "r1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", doc["email"])

	// returned documents are copies
	doc["email"] = "mutated"
	doc, err = s.Get(ctx, "allowlist", "r1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", doc["email"])

	require.NoError(t, s.Update(ctx, "allowlist", "r1", map[string]any{"isActive": false, "name": "A"}))
	doc, err = s.Get(ctx, "allowlist", "r1")
	require.NoError(t, err)
	assert.Equal(t, false, doc["isActive"])
	assert.Equal(t, "A", doc["name"])

	require.ErrorIs(t, s.Update(ctx, "allowlist", "missing", map[string]any{"x": 1}), common.ErrorNotFound)

	require.NoError(t, s.Delete(ctx, "allowlist", "r1"))
	require.NoError(t, s.Delete(ctx, "allowlist", "r1"))
	_, err = s.Get(ctx, "allowlist", "r1")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestMemoryStore_FindByFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "c", "a", Document{"email": "a@x.com", "externalUserId": "1", "isActive": true}))
	require.NoError(t, s.Set(ctx, "c", "b", Document{"email": "A@x.com", "externalUserId": "2", "isActive": true}))
	require.NoError(t, s.Set(ctx, "c", "c", Document{"email": "a@x.com", "externalUserId": "3", "isActive": false}))
	require.NoError(t, s.Set(ctx, "other", "z", Document{"email": "a@x.com"}))

	got, err := s.FindByField(ctx, "c", "email", "a@x.com")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)

	got, err = s.FindByFields(ctx, "c", map[string]any{"email": "a@x.com", "isActive": true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	got, err = s.FindByField(ctx, "c", "externalUserId", "404")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_ListOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Set(ctx, "c", "old", Document{"addedAt": base}))
	require.NoError(t, s.Set(ctx, "c", "new", Document{"addedAt": base.Add(2 * time.Hour)}))
	require.NoError(t, s.Set(ctx, "c", "mid", Document{"addedAt": base.Add(time.Hour)}))
	require.NoError(t, s.Set(ctx, "c", "none", Document{}))

	got, err := s.ListOrdered(ctx, "c", "addedAt", true, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "mid", got[1].ID)

	got, err = s.ListOrdered(ctx, "c", "addedAt", false, 0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "none", got[0].ID)
	assert.Equal(t, "old", got[1].ID)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	require.Error(t, s.Set(ctx, "c", "a", Document{}))
	_, err := s.Get(ctx, "c", "a")
	require.Error(t, err)
}

func recv(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "channel closed")
		return c
	case <-time.After(time.Second):
		t.Fatal("no change received")
	}
	return Change{}
}

func TestMemoryStore_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "c", "r1", Document{"isActive": true}))

	ch, err := s.Watch(ctx, "c", "r1")
	require.NoError(t, err)

	first := recv(t, ch)
	assert.False(t, first.Deleted)
	assert.Equal(t, true, first.Data["isActive"])

	require.NoError(t, s.Set(ctx, "c", "unrelated", Document{}))
	require.NoError(t, s.Update(ctx, "c", "r1", map[string]any{"isActive": false}))

	upd := recv(t, ch)
	assert.Equal(t, false, upd.Data["isActive"])

	require.NoError(t, s.Delete(ctx, "c", "r1"))
	assert.True(t, recv(t, ch).Deleted)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStore_WatchMissingDocument(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := NewMemoryStore().Watch(ctx, "c", "ghost")
	require.NoError(t, err)
	assert.True(t, recv(t, ch).Deleted)
}

func TestMemoryStore_WatchSlowReaderKeepsLatest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "c", "r1", Document{"n": 0}))
	ch, err := s.Watch(ctx, "c", "r1")
	require.NoError(t, err)

	for i := 1; i <= watchBuffer*2; i++ {
		require.NoError(t, s.Update(ctx, "c", "r1", map[string]any{"n": i}))
	}

	var last Change
	for i := 0; i < watchBuffer; i++ {
		last = recv(t, ch)
	}
	assert.Equal(t, watchBuffer*2, last.Data["n"])
}

func TestCompareValues(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"times", now, now.Add(time.Second), -1},
		{"rfc3339 strings", "2024-01-02T00:00:00Z", "2024-01-01T00:00:00Z", 1},
		{"numbers mixed kinds", int64(3), 3.0, 0},
		{"nil first", nil, "x", -1},
		{"strings", "a", "b", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compareValues(tt.a, tt.b))
		})
	}
}
