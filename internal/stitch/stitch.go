// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package stitch combines per-participant recordings into a single
// normalized session audio track using external ffmpeg and sox binaries.
package stitch

import (
	"context"
	"fmt"

	"github.com/ManuGH/archivesvc/internal/stream"
)

// Stitcher merges the manifest's participant streams into stitched
// session-level streams.
type Stitcher interface {
	// Stitch produces the stitched streams for the given inputs. baseName
	// is the session path prefix; outputs are derived from it. The result
	// is ordered mp4 first, then mp3.
	Stitch(ctx context.Context, streams []stream.Stream, baseName string) ([]stream.Stream, error)
}

// Error is the stitcher failure kind. When a tool invocation failed the
// captured output is carried for diagnosis.
type Error struct {
	msg    string
	output string
	err    error
}

func errorf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

func wrap(err error, format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...), err: err}
}

func (e *Error) Error() string {
	s := "stitch: " + e.msg
	if e.err != nil {
		s += ": " + e.err.Error()
	}
	if e.output != "" {
		s += "\n" + e.output
	}
	return s
}

func (e *Error) Unwrap() error { return e.err }

// Output returns the captured tool output, if any.
func (e *Error) Output() string { return e.output }
