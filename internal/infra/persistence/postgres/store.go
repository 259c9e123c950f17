// Package postgres keeps node records in memory and mirrors them into a
// Postgres state table with one JSONB row per snapshot bucket.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"batchcore/internal/infra/persistence/memory"
	"batchcore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
)

var _ domain.PersistenceCollaborator = (*Store)(nil)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/batchcore?sslmode=disable"

	createState = `CREATE TABLE IF NOT EXISTS state (
	bucket TEXT PRIMARY KEY,
	payload JSONB NOT NULL
)`
	upsertState = `INSERT INTO state(bucket,payload) VALUES($1,$2)
ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a memory.Store whose mutations are flushed to Postgres.
type Store struct {
	*memory.Store
	db      *sql.DB
	flushMu sync.Mutex
}

// NewStore connects to dsn (defaultDSN when empty), creates the state table
// if needed and hydrates from the stored snapshot.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	open := sqlOpen
	openMu.Unlock()
	db, err := open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	snap, err := readSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore()
	mem.ImportState(snap)
	return &Store{Store: mem, db: db}, nil
}

func readSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	var snap memory.Snapshot
	if _, err := db.ExecContext(ctx, createState); err != nil {
		return snap, fmt.Errorf("ensure state table: %w", err)
	}
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return snap, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return snap, fmt.Errorf("scan state: %w", err)
		}
		if err := snap.Apply(bucket, payload); err != nil {
			return snap, err
		}
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("iterate state: %w", err)
	}
	return snap, nil
}

func (s *Store) flush(ctx context.Context) (err error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	buckets, err := s.ExportState().Buckets()
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, b := range buckets {
		if _, err = tx.ExecContext(ctx, upsertState, b.Name, b.Payload); err != nil {
			return fmt.Errorf("upsert %s: %w", b.Name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Save stores nodes through the memory layer, then flushes to Postgres.
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

// Delete removes nodes with their descendants, then flushes to Postgres.
func (s *Store) Delete(ctx context.Context, level string, ids []domain.NodeID) error {
	if err := s.Store.Delete(ctx, level, ids); err != nil {
		return err
	}
	return s.flush(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the connection opener for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
