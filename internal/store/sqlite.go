package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	title TEXT,
	state TEXT NOT NULL DEFAULT 'scheduled'
		CHECK (state IN ('scheduled', 'live', 'ended')),
	scheduled_at INTEGER,
	started_at INTEGER,
	ended_at INTEGER,
	expires_at INTEGER,
	duration_seconds INTEGER
);

CREATE TABLE IF NOT EXISTS tracks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	timestamp_seconds INTEGER NOT NULL,
	artist TEXT,
	title TEXT NOT NULL,
	label TEXT
);

CREATE INDEX IF NOT EXISTS idx_tracks_session ON tracks(session_id, position);
`

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open initializes a SQLite connection pool with mandatory PRAGMAs and
// creates the schema if absent. WAL and foreign_keys are applied via the DSN
// so they hold for every connection in the pool.
func Open(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, (5 * time.Second).Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(1) // single writer, avoids SQLITE_BUSY under concurrent updates
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema failed: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess Session) (*Session, error) {
	if sess.State == "" {
		sess.State = StateScheduled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, state, scheduled_at) VALUES (?, ?, ?, ?)`,
		sess.ID, nullStr(sess.Title), string(sess.State), sess.ScheduledAt)
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return s.GetSession(ctx, sess.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, state, scheduled_at, started_at, ended_at, expires_at, duration_seconds
		 FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, state, scheduled_at, started_at, ended_at, expires_at, duration_seconds
		 FROM sessions ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, id string, upd SessionUpdate) (*Session, error) {
	var sets []string
	var args []any

	if upd.Title != nil {
		sets, args = append(sets, "title = ?"), append(args, *upd.Title)
	}
	if upd.State != nil {
		sets, args = append(sets, "state = ?"), append(args, string(*upd.State))
	}
	if upd.ScheduledAt != nil {
		sets, args = append(sets, "scheduled_at = ?"), append(args, *upd.ScheduledAt)
	}
	if upd.StartedAt != nil {
		sets, args = append(sets, "started_at = ?"), append(args, *upd.StartedAt)
	}
	if upd.EndedAt != nil {
		sets, args = append(sets, "ended_at = ?"), append(args, *upd.EndedAt)
	}
	if upd.ExpiresAt != nil {
		sets, args = append(sets, "expires_at = ?"), append(args, *upd.ExpiresAt)
	}
	if upd.DurationSeconds != nil {
		sets, args = append(sets, "duration_seconds = ?"), append(args, *upd.DurationSeconds)
	}
	if len(sets) == 0 {
		return s.GetSession(ctx, id)
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("update session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetSession(ctx, id)
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CreateTrack(ctx context.Context, t Track) (*Track, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tracks (session_id, position, timestamp_seconds, artist, title, label)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.Position, t.TimestampSeconds, nullStr(t.Artist), t.Title, nullStr(t.Label))
	if err != nil {
		return nil, fmt.Errorf("create track for %s: %w", t.SessionID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetTrack(ctx, id)
}

func (s *SQLiteStore) GetTrack(ctx context.Context, id int64) (*Track, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, position, timestamp_seconds, artist, title, label
		 FROM tracks WHERE id = ?`, id)

	var t Track
	var artist, label sql.NullString
	err := row.Scan(&t.ID, &t.SessionID, &t.Position, &t.TimestampSeconds, &artist, &t.Title, &label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Artist, t.Label = artist.String, label.String
	return &t, nil
}

func (s *SQLiteStore) ListTracks(ctx context.Context, sessionID string) ([]Track, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, position, timestamp_seconds, artist, title, label
		 FROM tracks WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Track
	for rows.Next() {
		var t Track
		var artist, label sql.NullString
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Position, &t.TimestampSeconds, &artist, &t.Title, &label); err != nil {
			return nil, err
		}
		t.Artist, t.Label = artist.String, label.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateTrack(ctx context.Context, id int64, upd TrackUpdate) (*Track, error) {
	var sets []string
	var args []any

	if upd.Position != nil {
		sets, args = append(sets, "position = ?"), append(args, *upd.Position)
	}
	if upd.TimestampSeconds != nil {
		sets, args = append(sets, "timestamp_seconds = ?"), append(args, *upd.TimestampSeconds)
	}
	if upd.Artist != nil {
		sets, args = append(sets, "artist = ?"), append(args, nullStr(*upd.Artist))
	}
	if upd.Title != nil {
		sets, args = append(sets, "title = ?"), append(args, *upd.Title)
	}
	if upd.Label != nil {
		sets, args = append(sets, "label = ?"), append(args, nullStr(*upd.Label))
	}
	if len(sets) == 0 {
		return s.GetTrack(ctx, id)
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		"UPDATE tracks SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("update track %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetTrack(ctx, id)
}

func (s *SQLiteStore) DeleteTrack(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	sess, err := scanSessionRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

func scanSessionRows(row rowScanner) (*Session, error) {
	var sess Session
	var title sql.NullString
	var state string
	err := row.Scan(&sess.ID, &title, &state,
		&sess.ScheduledAt, &sess.StartedAt, &sess.EndedAt, &sess.ExpiresAt, &sess.DurationSeconds)
	if err != nil {
		return nil, err
	}
	sess.Title = title.String
	sess.State = State(state)
	return &sess, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
