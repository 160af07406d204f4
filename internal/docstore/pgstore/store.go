// Package pgstore implements docstore.Store on a single PostgreSQL table of
// JSONB documents keyed by (collection, id). Live queries are served by
// polling.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/dmitrijs2005/tradegate/internal/dbx"
	"github.com/dmitrijs2005/tradegate/internal/docstore"
	"github.com/dmitrijs2005/tradegate/internal/docstore/pgstore/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const DefaultPollInterval = 2 * time.Second

type Store struct {
	db           dbx.DBTX
	closer       func() error
	pollInterval time.Duration
}

func New(db dbx.DBTX, pollInterval time.Duration) *Store {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Store{db: db, pollInterval: pollInterval}
}

// Open connects with the pgx driver and applies the embedded migrations.
func Open(ctx context.Context, dsn string, pollInterval time.Duration) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := dbx.Migrate(ctx, db, "postgres", migrations.FS); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := New(db, pollInterval)
	s.closer = db.Close
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// timeLayout keeps every fraction digit so that the text of two UTC
// timestamps compares like the instants do.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// encode marshals doc to JSON with timestamps written in timeLayout, which
// ListOrdered relies on when sorting by a time field.
func encode(doc map[string]any) (string, error) {
	norm := make(map[string]any, len(doc))
	for k, v := range doc {
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(timeLayout)
		}
		norm[k] = v
	}
	b, err := json.Marshal(norm)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(b), nil
}

func decode(raw []byte) (docstore.Document, error) {
	doc := docstore.Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	query := `SELECT data FROM documents WHERE collection = $1 AND id = $2`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return decode(raw)
}

func (s *Store) FindByField(ctx context.Context, collection, field string, value any) ([]docstore.Snapshot, error) {
	return s.FindByFields(ctx, collection, map[string]any{field: value})
}

// FindByFields matches with JSONB containment, which compares values with
// their JSON types.
func (s *Store) FindByFields(ctx context.Context, collection string, fields map[string]any) ([]docstore.Snapshot, error) {
	filter, err := encode(fields)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, data FROM documents
		 WHERE collection = $1 AND data @> $2::jsonb
		 ORDER BY id`

	return s.query(ctx, query, collection, filter)
}

func (s *Store) ListOrdered(ctx context.Context, collection, orderBy string, desc bool, limit int) ([]docstore.Snapshot, error) {
	query := `SELECT id, data FROM documents
		 WHERE collection = $1
		 ORDER BY data->>$2 ASC NULLS FIRST, id
		 LIMIT $3`
	if desc {
		query = `SELECT id, data FROM documents
		 WHERE collection = $1
		 ORDER BY data->>$2 DESC NULLS LAST, id
		 LIMIT $3`
	}

	var lim any
	if limit > 0 {
		lim = limit
	}
	return s.query(ctx, query, collection, orderBy, lim)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]docstore.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []docstore.Snapshot
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("db scan: %w", err)
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, docstore.Snapshot{ID: id, Data: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db rows: %w", err)
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, doc docstore.Document) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}

	query := `INSERT INTO documents (collection, id, data, updated_at)
		 VALUES ($1, $2, $3::jsonb, now())
		 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

	if _, err := s.db.ExecContext(ctx, query, collection, id, data); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Update merges fields into the stored document in one statement.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := encode(fields)
	if err != nil {
		return err
	}

	query := `UPDATE documents SET data = data || $3::jsonb, updated_at = now()
		 WHERE collection = $1 AND id = $2`

	res, err := s.db.ExecContext(ctx, query, collection, id, patch)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	query := `DELETE FROM documents WHERE collection = $1 AND id = $2`
	if _, err := s.db.ExecContext(ctx, query, collection, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

var (
	_ docstore.Store   = (*Store)(nil)
	_ docstore.Watcher = (*Store)(nil)
	_ docstore.Closer  = (*Store)(nil)
)
