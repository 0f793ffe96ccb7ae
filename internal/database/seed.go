package database

import (
	"context"
	"database/sql"
)

// SeedRoles makes sure the well-known USER and ADMIN rows exist in the
// roles table.  It runs once at startup and is idempotent.
func SeedRoles(ctx context.Context, db *sql.DB) error {
	for _, name := range []string{"USER", "ADMIN"} {
		var exists bool
		err := db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM roles WHERE name=?)", name).Scan(&exists)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.ExecContext(ctx,
			"INSERT INTO roles (name) VALUES (?)", name); err != nil {
			return err
		}
	}
	return nil
}
