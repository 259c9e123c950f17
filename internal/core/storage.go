package core

import (
	"context"
	"fmt"
	"io"

	"batchcore/internal/infra/persistence/memory"
	"batchcore/internal/infra/persistence/postgres"
	"batchcore/internal/infra/persistence/sqlite"
	"batchcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and configures a node store.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// PersistentStore is a node store that owns resources released by Close.
type PersistentStore interface {
	domain.PersistenceCollaborator
	io.Closer
}

type memoryStore struct{ *memory.Store }

func (memoryStore) Close() error { return nil }

// OpenPersistentStore opens the backend named by opts.Driver. An empty
// driver selects sqlite.
func OpenPersistentStore(ctx context.Context, opts StorageOptions) (PersistentStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memoryStore{memory.NewStore()}, nil
	case StorageSQLite:
		s, err := sqlite.NewStore(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoragePostgres:
		s, err := postgres.NewStore(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
