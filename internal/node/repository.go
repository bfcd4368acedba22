package node

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the interface for node name persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Upsert inserts or updates the names for a node.
	Upsert(ctx context.Context, id string, names Names) error

	// All retrieves every stored node name, keyed by node id.
	All(ctx context.Context) (map[string]Names, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the
// node_names migration applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts or updates the names for a node.
func (r *SQLiteRepository) Upsert(ctx context.Context, id string, names Names) error {
	query := `
		INSERT INTO node_names (id, short_name, long_name, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			short_name = excluded.short_name,
			long_name = excluded.long_name,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		id, names.Short, names.Long, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting node names: %w", err)
	}
	return nil
}

// All retrieves every stored node name, keyed by node id.
func (r *SQLiteRepository) All(ctx context.Context) (map[string]Names, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, short_name, long_name FROM node_names")
	if err != nil {
		return nil, fmt.Errorf("querying node names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]Names)
	for rows.Next() {
		var id string
		var n Names
		if err := rows.Scan(&id, &n.Short, &n.Long); err != nil {
			return nil, fmt.Errorf("scanning node name row: %w", err)
		}
		names[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating node names: %w", err)
	}
	return names, nil
}
