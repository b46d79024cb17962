// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	jobIDKey     ctxKey = "job_id"
	sessionIDKey ctxKey = "session_id"
)

// ContextWithJobID stores the provided job ID in the context.
func ContextWithJobID(ctx context.Context, id int64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// ContextWithSessionID stores the provided session ID in the context.
func ContextWithSessionID(ctx context.Context, id int64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// JobIDFromContext extracts the job ID from context if present.
func JobIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	v, ok := ctx.Value(jobIDKey).(int64)
	return v, ok
}

// SessionIDFromContext extracts the session ID from context if present.
func SessionIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	v, ok := ctx.Value(sessionIDKey).(int64)
	return v, ok
}

// WithContext returns the given logger enriched with any job or session
// identity stored in ctx.
func WithContext(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return l
	}
	c := l.With()
	if id, ok := JobIDFromContext(ctx); ok {
		c = c.Int64(FieldJobID, id)
	}
	if id, ok := SessionIDFromContext(ctx); ok {
		c = c.Int64(FieldSessionID, id)
	}
	return c.Logger()
}
