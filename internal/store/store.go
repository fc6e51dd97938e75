// Package store persists session and track metadata.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// State is the lifecycle state of a session. Transitions are one-way:
// scheduled -> live -> ended.
type State string

const (
	StateScheduled State = "scheduled"
	StateLive      State = "live"
	StateEnded     State = "ended"
)

// Session is a recording session. The id is the primary key and immutable.
// Timestamps are unix seconds; nil means unset.
type Session struct {
	ID              string `json:"id"`
	Title           string `json:"title,omitempty"`
	State           State  `json:"state"`
	ScheduledAt     *int64 `json:"scheduledAt,omitempty"`
	StartedAt       *int64 `json:"startedAt,omitempty"`
	EndedAt         *int64 `json:"endedAt,omitempty"`
	ExpiresAt       *int64 `json:"expiresAt,omitempty"`
	DurationSeconds *int64 `json:"durationSeconds,omitempty"`
}

// Track is a tracklist entry of a session, ordered by position.
type Track struct {
	ID               int64  `json:"id"`
	SessionID        string `json:"sessionId"`
	Position         int    `json:"position"`
	TimestampSeconds int64  `json:"timestampSeconds"`
	Artist           string `json:"artist,omitempty"`
	Title            string `json:"title"`
	Label            string `json:"label,omitempty"`
}

// SessionUpdate is a partial update; nil fields are left untouched.
type SessionUpdate struct {
	Title           *string
	State           *State
	ScheduledAt     *int64
	StartedAt       *int64
	EndedAt         *int64
	ExpiresAt       *int64
	DurationSeconds *int64
}

// TrackUpdate is a partial update; nil fields are left untouched.
type TrackUpdate struct {
	Position         *int
	TimestampSeconds *int64
	Artist           *string
	Title            *string
	Label            *string
}

// Store is the metadata persistence contract consumed by the recorder and
// the HTTP layer.
type Store interface {
	CreateSession(ctx context.Context, s Session) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	UpdateSession(ctx context.Context, id string, upd SessionUpdate) (*Session, error)
	DeleteSession(ctx context.Context, id string) error

	CreateTrack(ctx context.Context, t Track) (*Track, error)
	GetTrack(ctx context.Context, id int64) (*Track, error)
	ListTracks(ctx context.Context, sessionID string) ([]Track, error)
	UpdateTrack(ctx context.Context, id int64, upd TrackUpdate) (*Track, error)
	DeleteTrack(ctx context.Context, id int64) error
}
