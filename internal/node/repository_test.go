package node

import (
	"context"
	"path/filepath"
	"testing"

	_ "github.com/radiomesh/meshbridge/migrations"

	"github.com/radiomesh/meshbridge/internal/infrastructure/database"
)

// testDB opens a migrated temporary database.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestSQLiteRepositoryRoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db.DB)
	ctx := context.Background()

	err := repo.Upsert(ctx, "!a1b2c3d4", Names{Short: "ALCE", Long: "Alice Base"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	all, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("All() returned %d rows, want 1", len(all))
	}
	if got := all["!a1b2c3d4"]; got != (Names{Short: "ALCE", Long: "Alice Base"}) {
		t.Errorf("stored names = %+v", got)
	}
}

func TestSQLiteRepositoryUpsertReplaces(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db.DB)
	ctx := context.Background()

	if err := repo.Upsert(ctx, "!01", Names{Short: "OLD1", Long: "Old Name"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.Upsert(ctx, "!01", Names{Short: "NEW1", Long: "New Name"}); err != nil {
		t.Fatalf("Upsert() second call error = %v", err)
	}

	all, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("All() returned %d rows, want 1 after upsert", len(all))
	}
	if got := all["!01"]; got != (Names{Short: "NEW1", Long: "New Name"}) {
		t.Errorf("stored names = %+v, want replacement", got)
	}
}

func TestSQLiteRepositoryEmpty(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db.DB)

	all, err := repo.All(context.Background())
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("All() returned %d rows, want 0", len(all))
	}
}
