package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Ledger schema: classes, students, the fee_transactions table with its
// one-payment-per-month unique index and immutability triggers, exam
// results, and the register sync cursor.
//
//go:embed migrations/*.sql
var ledgerMigrations embed.FS

// RunMigrations brings the fee ledger database at dbPath up to the latest
// schema version. A database that is already current is left untouched.
func RunMigrations(dbPath string) error {
	// own handle so the repository connection keeps its pragmas
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open ledger database for migration: %w", err)
	}
	defer db.Close()

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("ledger migration driver: %w", err)
	}

	src, err := iofs.New(ledgerMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("ledger migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("ledger migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}
