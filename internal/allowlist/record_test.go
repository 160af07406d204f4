package allowlist

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/tradegate/internal/docstore"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

type dateTime int64

func (d dateTime) Time() time.Time { return time.UnixMilli(int64(d)) }

func TestRecordFromDocument_Tolerant(t *testing.T) {
	ts := time.Date(2024, 3, 5, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		doc  docstore.Document
		want Record
	}{
		{
			name: "native types",
			doc: docstore.Document{
				FieldEmail: "a@x.com", FieldExternalUserID: "777", FieldIsActive: true,
				FieldAddedAt: ts, FieldAddedBy: "admin",
			},
			want: Record{ID: "r", Email: "a@x.com", ExternalUserID: "777", IsActive: true, AddedAt: ts, AddedBy: "admin"},
		},
		{
			name: "json shapes",
			doc: docstore.Document{
				FieldExternalUserID: float64(777), FieldIsActive: "true",
				FieldCreatedAt: "2024-03-05T08:30:00Z", FieldLastLoginAt: float64(ts.UnixMilli()),
			},
			want: Record{ID: "r", ExternalUserID: "777", IsActive: true, CreatedAt: ts, LastLoginAt: ts},
		},
		{
			name: "driver date type and int ids",
			doc: docstore.Document{
				FieldExternalUserID: int64(42), FieldIsActive: int32(0), FieldAddedAt: dateTime(ts.UnixMilli()),
			},
			want: Record{ID: "r", ExternalUserID: "42", AddedAt: ts},
		},
		{
			name: "garbage",
			doc: docstore.Document{
				FieldEmail: []string{"x"}, FieldIsActive: "maybe", FieldAddedAt: "yesterday",
			},
			want: Record{ID: "r"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecordFromDocument("r", tt.doc)
			assert.Empty(t, cmp.Diff(tt.want, got))
		})
	}
}

func TestRecord_DocumentRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 5, 8, 30, 0, 0, time.UTC)
	r := Record{ID: "r", Email: "a@x.com", IsActive: true, CreatedAt: ts, AddedAt: ts, AddedBy: "web_registration"}

	doc := r.Document()
	_, hasLastLogin := doc[FieldLastLoginAt]
	assert.False(t, hasLastLogin)

	assert.Empty(t, cmp.Diff(r, RecordFromDocument("r", doc)))
}

func TestVerdictErr(t *testing.T) {
	assert.NoError(t, authorized(Record{}).Err())
	assert.EqualError(t, transient(nil).Err(), "authorization store unreachable")
	assert.Equal(t, "inactive_blocked", InactiveBlocked.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}
