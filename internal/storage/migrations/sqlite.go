package migrations

import (
	"context"
	"fmt"

	"ore-strategy-lab/internal/storage/sqlite"
)

// RunSqliteMigrations applies all embedded SQLite files in lexical order,
// one statement at a time inside a single transaction.
func RunSqliteMigrations(ctx context.Context, db *sqlite.DB) error {
	files, err := readMigrations(SqliteFS, "sqlite")
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, m := range files {
		stmts, err := m.statements()
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.file, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}
