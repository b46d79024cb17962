// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package jobqueue

import (
	"database/sql"
	"time"
)

// Job is one row of the chat_archive_jobs table.
type Job struct {
	ID               int64          `db:"id"`
	SessionID        int64          `db:"session_id"`
	Owner            sql.NullString `db:"owner"`
	Created          time.Time      `db:"created"`
	NotBefore        sql.NullTime   `db:"not_before"`
	Start            sql.NullTime   `db:"start"`
	End              sql.NullTime   `db:"end"`
	Successful       sql.NullBool   `db:"successful"`
	RetriesRemaining int            `db:"retries_remaining"`
	Data             []byte         `db:"data"`
}

// NewJob describes a job row to insert. A zero NotBefore means eligible
// immediately.
type NewJob struct {
	SessionID        int64
	NotBefore        time.Time
	RetriesRemaining int
	Data             []byte
}
