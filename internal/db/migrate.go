// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/ManuGH/archivesvc/internal/log"
)

//go:embed migrations/*.sql schema_sqlite.sql
var schemaFS embed.FS

// Migrate brings the schema up to date. PostgreSQL goes through the
// versioned migrations; SQLite applies the equivalent idempotent schema in
// one shot (the dialects differ too much to share migration files).
func Migrate(d *sqlx.DB) error {
	logger := log.WithComponent("db")

	switch d.DriverName() {
	case "postgres":
		src, err := iofs.New(schemaFS, "migrations")
		if err != nil {
			return fmt.Errorf("db: migration source: %w", err)
		}
		drv, err := postgres.WithInstance(d.DB, &postgres.Config{})
		if err != nil {
			return fmt.Errorf("db: migration driver: %w", err)
		}
		m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
		if err != nil {
			return fmt.Errorf("db: migrate: %w", err)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("db: migrate up: %w", err)
		}
		logger.Info().Msg("postgres schema up to date")
		return nil

	case "sqlite":
		raw, err := schemaFS.ReadFile("schema_sqlite.sql")
		if err != nil {
			return fmt.Errorf("db: sqlite schema: %w", err)
		}
		if _, err := d.Exec(string(raw)); err != nil {
			return fmt.Errorf("db: sqlite schema: %w", err)
		}
		logger.Info().Msg("sqlite schema up to date")
		return nil

	default:
		return fmt.Errorf("db: no migrations for driver %q", d.DriverName())
	}
}
