// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package db opens the relational database and applies schema migrations.
// Production deployments use PostgreSQL; development and tests run against
// embedded SQLite with an equivalent schema.
package db

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	// database drivers
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func init() {
	// The modernc driver registers as "sqlite", which sqlx does not know a
	// bind type for.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open connects to the database named by the connection string. Supported
// schemes: postgres:// (or postgresql://) and sqlite:// (a file path or
// ":memory:").
func Open(conn string) (*sqlx.DB, error) {
	driver, dsn, err := splitDSN(conn)
	if err != nil {
		return nil, err
	}
	d, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db: connect %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// A single connection keeps in-memory databases coherent and
		// sidesteps SQLITE_BUSY under the worker pool.
		d.SetMaxOpenConns(1)
	}
	return d, nil
}

func splitDSN(conn string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(conn, "postgres://") || strings.HasPrefix(conn, "postgresql://"):
		return "postgres", conn, nil
	case strings.HasPrefix(conn, "sqlite://"):
		return "sqlite", strings.TrimPrefix(conn, "sqlite://"), nil
	case conn == ":memory:" || strings.HasSuffix(conn, ".db") || strings.HasSuffix(conn, ".sqlite"):
		return "sqlite", conn, nil
	default:
		return "", "", fmt.Errorf("db: unsupported connection string %q", conn)
	}
}
