// Package database provides SQLite persistence for meshbridge.
//
// The only durable state the bridge keeps is the node name cache: mesh
// messages themselves are never persisted (a restart loses in-flight
// deliveries by design), but names learned from nodeinfo packets are
// configuration-like and worth keeping across restarts.
//
// This package manages:
//   - Opening the SQLite database with WAL mode and busy timeout
//   - Embedded schema migrations (see the migrations package)
//   - Health checks and lifecycle management
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
