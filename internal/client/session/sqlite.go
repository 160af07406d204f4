package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/tradegate/internal/client/session/migrations"
	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/dmitrijs2005/tradegate/internal/cryptox"
	"github.com/dmitrijs2005/tradegate/internal/dbx"
	"github.com/dmitrijs2005/tradegate/internal/filex"
)

const (
	saltKey     = "session_salt"
	deviceIDKey = "device_id"
)

// SQLiteStore keeps the session sealed with a passphrase-derived key in a
// single-row table. Save is one upsert statement, so a reader sees either
// the old or the new session.
type SQLiteStore struct {
	db     *sql.DB
	sealer *cryptox.Sealer
}

// OpenSQLiteStore opens the database at path, applies migrations and
// prepares the sealing key.
func OpenSQLiteStore(ctx context.Context, path string, passphrase []byte) (*SQLiteStore, error) {
	if _, err := filex.EnsureParentDir(path); err != nil {
		return nil, err
	}
	db, err := dbx.OpenSQLite(ctx, path, migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	s, err := NewSQLiteStore(ctx, db, passphrase)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore uses an already migrated database. The salt is generated on
// first use and kept in the metadata table.
func NewSQLiteStore(ctx context.Context, db *sql.DB, passphrase []byte) (*SQLiteStore, error) {
	salt, err := loadOrCreateSalt(ctx, db)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, sealer: cryptox.NewSealer(passphrase, salt)}, nil
}

func loadOrCreateSalt(ctx context.Context, db *sql.DB) ([]byte, error) {
	return metaValue(ctx, db, saltKey, func() []byte { return common.GenerateRandByteArray(16) })
}

// metaValue returns the metadata value stored under key, storing fresh() first
// when there is none. The lookup, insert and read-back share one transaction,
// and the read-back returns whatever value won a concurrent insert.
func metaValue(ctx context.Context, db *sql.DB, key string, fresh func() []byte) ([]byte, error) {
	const selectValue = `SELECT value FROM metadata WHERE key = ?`

	var val []byte
	err := dbx.WithTx(ctx, db, func(tx dbx.DBTX) error {
		err := tx.QueryRowContext(ctx, selectValue, key).Scan(&val)
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`, key, fresh()); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, selectValue, key).Scan(&val)
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return val, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sess AuthorizedSession) error {
	blob, err := s.sealer.Seal(sess)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_slot (slot, blob, saved_at) VALUES (1, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET blob = excluded.blob, saved_at = excluded.saved_at
	`, blob, sess.SavedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context) (AuthorizedSession, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM session_slot WHERE slot = 1`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return AuthorizedSession{}, common.ErrNoSession
	}
	if err != nil {
		return AuthorizedSession{}, fmt.Errorf("db error: %w", err)
	}

	var sess AuthorizedSession
	if err := s.sealer.Open(blob, &sess); err != nil {
		return AuthorizedSession{}, fmt.Errorf("open session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_slot`); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IsAuthenticated(ctx context.Context) (bool, error) {
	return isAuthenticated(ctx, s)
}

// DeviceID returns the installation's device id, generating it on first use.
// It outlives sessions: Clear does not reset it.
func (s *SQLiteStore) DeviceID(ctx context.Context) (string, error) {
	id, err := metaValue(ctx, s.db, deviceIDKey, func() []byte { return []byte(uuid.NewString()) })
	if err != nil {
		return "", err
	}
	return string(id), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
