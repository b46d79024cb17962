// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package fetch pulls per-participant recordings from the telephony
// provider into local storage and produces the archive manifest.
package fetch

import (
	"context"
	"fmt"

	"github.com/ManuGH/archivesvc/internal/stream"
)

// Fetcher downloads and deletes provider-side recordings for a session.
// The data payload is the opaque provider context stored on the job row;
// its shape never leaks past this package.
type Fetcher interface {
	// Fetch downloads every recording of the session into the local
	// storage pool and returns the manifest, sorted by offset. A nil
	// manifest or one with no streams means the session has nothing to
	// archive.
	Fetch(ctx context.Context, sessionID int64, data []byte, baseName string) (*stream.Manifest, error)

	// Delete removes the recordings at the provider. Idempotent: missing
	// recordings are a success.
	Delete(ctx context.Context, sessionID int64, data []byte) error
}

// Error is the fetcher failure kind: provider unreachable, missing
// recording, or auth failure.
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
		return fmt.Sprintf("fetch: %s: %v", e.msg, e.err)
	}
	return "fetch: " + e.msg
}

func (e *Error) Unwrap() error { return e.err }
