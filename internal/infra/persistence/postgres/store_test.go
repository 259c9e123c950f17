package postgres

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"

	"batchcore/pkg/domain"
)

func TestNewStoreCreatesStateTableAndPersists(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	ctx := context.Background()
	store, err := NewStore(ctx, "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if len(conn.execs) == 0 || !strings.Contains(conn.execs[0], "CREATE TABLE IF NOT EXISTS state") {
		t.Fatalf("expected state table ddl, got %v", conn.execs)
	}
	saved, err := store.Save(ctx, "CATCH_BATCH", []*domain.Node{{Label: "root", RankOrder: 1}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.Contains(string(conn.state["nodes"]), `"label":"root"`) {
		t.Fatalf("expected nodes snapshot, got %s", conn.state["nodes"])
	}
	if string(conn.state["sequence"]) != "2" {
		t.Fatalf("expected sequence 2, got %s", conn.state["sequence"])
	}

	// A second store over the same connection hydrates from the snapshot.
	again, err := NewStore(ctx, "ignored")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	loaded, err := again.Load(ctx, "", domain.LoadFilter{IDs: []domain.NodeID{saved[0].ID}})
	if err != nil || len(loaded) != 1 || loaded[0].Label != "root" {
		t.Fatalf("expected hydrated root, got %+v err %v", loaded, err)
	}
	if err := again.Delete(ctx, "", []domain.NodeID{saved[0].ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if string(conn.state["nodes"]) != "[]" {
		t.Fatalf("expected empty snapshot after delete, got %s", conn.state["nodes"])
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := newStubDB()
	conn.failPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestNewStoreSnapshotFailure(t *testing.T) {
	db, conn := newStubDB()
	conn.failQuery = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "select state") {
		t.Fatalf("expected select error, got %v", err)
	}
}

func TestStoreAgainstRealPostgres(t *testing.T) {
	dsn := os.Getenv("BATCHCORE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BATCHCORE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	saved, err := store.Save(ctx, "CATCH_BATCH", []*domain.Node{{Label: "pg-root", RankOrder: 1}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, "", []domain.NodeID{saved[0].ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
