package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldCorrelationID = "correlation_id"
	FieldComponent     = "component"

	// Pipeline fields
	FieldRendition = "rendition"
	FieldPath      = "path"
	FieldRemoteKey = "remote_key"
	FieldAttempt   = "attempt"

	// Process fields
	FieldPID      = "pid"
	FieldExitCode = "exit_code"
	FieldStream   = "stream"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldDuration = "duration_s"
)
