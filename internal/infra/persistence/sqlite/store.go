// Package sqlite persists node records to an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"batchcore/internal/infra/persistence/memory"
	"batchcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistenceCollaborator = (*Store)(nil)

const (
	defaultPath = "batchcore.db"

	createState = `CREATE TABLE IF NOT EXISTS state (
	bucket TEXT PRIMARY KEY,
	payload BLOB NOT NULL
)`
	upsertState = `INSERT INTO state(bucket,payload) VALUES(?,?)
ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`
)

// Store answers reads from memory and rewrites the state table inside one
// transaction after every successful Save or Delete.
type Store struct {
	*memory.Store
	db      *sql.DB
	path    string
	flushMu sync.Mutex
}

// NewStore opens (or creates) the database at path and hydrates the store.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.hydrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) hydrate() error {
	if _, err := s.db.Exec(createState); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var snap memory.Snapshot
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		if err := snap.Apply(bucket, payload); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	s.ImportState(snap)
	return nil
}

func (s *Store) flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	buckets, err := s.ExportState().Buckets()
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, b := range buckets {
		if _, err := tx.ExecContext(ctx, upsertState, b.Name, b.Payload); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert %s: %w", b.Name, err)
		}
	}
	return tx.Commit()
}

// Save stores nodes through the memory layer, then flushes the snapshot.
func (s *Store) Save(ctx context.Context, level string, nodes []*domain.Node) ([]*domain.Node, error) {
	saved, err := s.Store.Save(ctx, level, nodes)
	if err != nil {
		return nil, err
	}
	if err := s.flush(ctx); err != nil {
		return nil, err
	}
	return saved, nil
}

// Delete removes nodes with their descendants, then flushes the snapshot.
func (s *Store) Delete(ctx context.Context, level string, ids []domain.NodeID) error {
	if err := s.Store.Delete(ctx, level, ids); err != nil {
		return err
	}
	return s.flush(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }
