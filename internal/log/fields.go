// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldJobID     = "job_id"
	FieldSessionID = "session_id"
	FieldOwner     = "owner"
	FieldCallID    = "call_id"
	FieldUserID    = "user_id"

	// Process / pipeline fields
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldTool      = "tool"
	FieldAttempt   = "attempt"

	// Media / stream fields
	FieldStream   = "stream"
	FieldOffsetMS = "offset_ms"
	FieldLengthMS = "length_ms"

	// Path / storage fields
	FieldPath      = "path"
	FieldContainer = "container"
	FieldBaseName  = "base_name"
)
