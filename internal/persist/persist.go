// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package persist uploads finished artifacts to their object containers
// and records them as chat archive rows.
package persist

import (
	"context"
	"fmt"

	"github.com/ManuGH/archivesvc/internal/stream"
)

// Persister stores a session's streams: uploads by classification and
// one transactional batch of database rows.
type Persister interface {
	Persist(ctx context.Context, sessionID int64, streams []stream.Stream) error
}

// Error is the persister failure kind: upload failure, unknown type or
// mime lookup, duplicate path, or a failed transaction.
type Error struct {
	msg string
	err error
}

func errorf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

func wrap(err error, format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...), err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("persist: %s: %v", e.msg, e.err)
	}
	return "persist: " + e.msg
}

func (e *Error) Unwrap() error { return e.err }
