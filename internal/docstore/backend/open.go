// Package backend selects and opens the allow-list document store named in
// configuration.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tradegate/internal/docstore"
	"github.com/dmitrijs2005/tradegate/internal/docstore/mongostore"
	"github.com/dmitrijs2005/tradegate/internal/docstore/pgstore"
)

const (
	Memory   = "memory"
	Mongo    = "mongo"
	Postgres = "postgres"
)

type Config struct {
	Kind          string
	MongoURI      string
	MongoDatabase string
	PostgresDSN   string
	// PollInterval drives live queries on backends without change streams.
	PollInterval time.Duration
}

// CloseFunc releases the store's connections. It is never nil.
type CloseFunc func(ctx context.Context) error

// Open returns the store for cfg.Kind. An empty kind means Memory.
func Open(ctx context.Context, cfg Config) (docstore.Store, CloseFunc, error) {
	switch cfg.Kind {
	case "", Memory:
		return docstore.NewMemoryStore(), noClose, nil
	case Mongo:
		if cfg.MongoURI == "" {
			return nil, nil, fmt.Errorf("mongo backend: uri is required")
		}
		s, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case Postgres:
		if cfg.PostgresDSN == "" {
			return nil, nil, fmt.Errorf("postgres backend: dsn is required")
		}
		s, err := pgstore.Open(ctx, cfg.PostgresDSN, cfg.PollInterval)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Kind)
	}
}

// Valid reports whether kind names a supported backend.
func Valid(kind string) bool {
	switch kind {
	case "", Memory, Mongo, Postgres:
		return true
	}
	return false
}

func noClose(context.Context) error { return nil }
