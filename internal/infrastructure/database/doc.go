// Package database provides SQLite connectivity for the EnOcean bridge.
//
// This package manages:
//   - Database connection with WAL mode and a single writer connection
//   - Embedded schema migrations (see the migrations package)
//   - Transaction helpers used by the button store
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default,
// and every .up.sql file has a matching .down.sql.
package database
