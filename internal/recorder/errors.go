package recorder

import "errors"

// Error taxonomy surfaced to the HTTP layer. The mapping to status codes
// lives outside this package.
var (
	// ErrConflict: a start was requested while another session is live.
	ErrConflict = errors.New("another recording is already in progress")
	// ErrNotFound: the session id is unknown to the store.
	ErrNotFound = errors.New("session not found")
	// ErrBadState: the requested transition is illegal for the session's
	// current state.
	ErrBadState = errors.New("invalid session state for this operation")
)
