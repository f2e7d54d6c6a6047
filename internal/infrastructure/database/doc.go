// Package database provides the SQLite connection used by the conversation
// registry.
//
// Open applies the configured pragmas (busy timeout, WAL) and limits the
// pool to one connection. Schema changes are versioned SQL files applied by
// Migrate from any fs.FS; the gateway's own migrations are embedded by the
// top-level migrations package.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
package database
