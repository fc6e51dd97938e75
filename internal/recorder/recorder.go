// Package recorder orchestrates a recording session: it ties the process
// supervisor, the directory watcher and the metadata store together and
// enforces the single-live-session invariant.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/aircast/aircast/internal/log"
	"github.com/aircast/aircast/internal/metrics"
	"github.com/aircast/aircast/internal/store"
	"github.com/aircast/aircast/internal/supervisor"
)

// archiveTTL is how long an ended session's archive stays available.
// Premium-tier overrides are a billing concern outside this service.
const archiveTTL = 48 * time.Hour

// Encoder is the supervisor surface the recorder depends on.
type Encoder interface {
	Spawn(ctx context.Context, sessionID, liveDir, archiveDir string) (<-chan supervisor.ExitStatus, error)
	Terminate(ctx context.Context) (time.Duration, error)
}

// DirWatcher is the watcher surface the recorder depends on.
type DirWatcher interface {
	Start(sessionID, liveDir, archiveDir string) error
	Stop()
}

// instance is the in-memory record of the currently-live session. At most
// one exists; it lives between a successful Start and the matching Stop (or
// an unexpected encoder exit).
type instance struct {
	sessionID string
	startedAt time.Time
}

// Recorder exposes the start/stop operations of the recording pipeline.
type Recorder struct {
	store   store.Store
	encoder Encoder
	watcher DirWatcher
	dataDir string
	log     zerolog.Logger

	mu      sync.Mutex
	current *instance
}

// New builds a Recorder. dataDir is the base of the per-session output tree.
func New(st store.Store, enc Encoder, w DirWatcher, dataDir string) *Recorder {
	return &Recorder{
		store:   st,
		encoder: enc,
		watcher: w,
		dataDir: dataDir,
		log:     xlog.WithComponent("recorder"),
	}
}

// OutputDirs returns the live and archive directories for a session.
func (r *Recorder) OutputDirs(sessionID string) (liveDir, archiveDir string) {
	base := filepath.Join(r.dataDir, sessionID)
	return filepath.Join(base, "live"), filepath.Join(base, "archive")
}

// Start begins recording the given session: spawns the encoder, starts the
// directory watcher and transitions the session to live.
func (r *Recorder) Start(ctx context.Context, sessionID string) (*store.Session, error) {
	sess, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.IncRecordingStart(false)
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return nil, err
	}
	if sess.State == store.StateEnded {
		metrics.IncRecordingStart(false)
		return nil, fmt.Errorf("%w: session %s has already ended", ErrBadState, sessionID)
	}

	liveDir, archiveDir := r.OutputDirs(sessionID)

	// Check-and-create must be one atomic unit: the lock is held across the
	// spawn so two concurrent starts can never both claim the slot.
	r.mu.Lock()
	if r.current != nil {
		liveID := r.current.sessionID
		r.mu.Unlock()
		metrics.IncRecordingStart(false)
		return nil, fmt.Errorf("%w: session %s", ErrConflict, liveID)
	}

	if err := mkOutputDirs(liveDir, archiveDir); err != nil {
		r.mu.Unlock()
		metrics.IncRecordingStart(false)
		return nil, err
	}

	exitC, err := r.encoder.Spawn(ctx, sessionID, liveDir, archiveDir)
	if err != nil {
		r.mu.Unlock()
		metrics.IncRecordingStart(false)
		return nil, fmt.Errorf("start encoder: %w", err)
	}

	// A watch failure is contained: the recording proceeds, uploads for this
	// session just won't happen.
	if err := r.watcher.Start(sessionID, liveDir, archiveDir); err != nil {
		r.log.Error().Err(err).
			Str(xlog.FieldSessionID, sessionID).
			Msg("could not watch output directories, uploads disabled for this session")
	}

	inst := &instance{sessionID: sessionID, startedAt: time.Now()}
	r.current = inst
	r.mu.Unlock()

	go r.watchExit(inst, exitC)

	startedAt := inst.startedAt.Unix()
	live := store.StateLive
	updated, err := r.store.UpdateSession(ctx, sessionID, store.SessionUpdate{
		State:     &live,
		StartedAt: &startedAt,
	})
	if err != nil {
		// The encoder is running but the store refused the transition; tear
		// everything down rather than leaving the two diverged.
		r.log.Error().Err(err).
			Str(xlog.FieldSessionID, sessionID).
			Msg("state transition failed, aborting recording")
		r.teardown(inst)
		metrics.IncRecordingStart(false)
		return nil, err
	}

	metrics.IncRecordingStart(true)
	r.log.Info().
		Str(xlog.FieldSessionID, sessionID).
		Str(xlog.FieldOldState, string(sess.State)).
		Str(xlog.FieldNewState, string(store.StateLive)).
		Msg("recording started")
	return updated, nil
}

// Stop ends the recording of the given session and reports the elapsed
// duration plus the archive expiry.
func (r *Recorder) Stop(ctx context.Context, sessionID string) (*store.Session, error) {
	r.mu.Lock()
	inst := r.current
	if inst == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: no recording in progress", ErrBadState)
	}
	if inst.sessionID != sessionID {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: session %s is not the live one", ErrBadState, sessionID)
	}
	r.current = nil
	r.mu.Unlock()

	if _, err := r.encoder.Terminate(ctx); err != nil {
		// The process may have died on its own in the meantime; the session
		// still has to be closed out.
		r.log.Warn().Err(err).
			Str(xlog.FieldSessionID, sessionID).
			Msg("encoder termination reported an error")
	}
	r.watcher.Stop()

	updated, err := r.endSession(ctx, inst)
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str(xlog.FieldSessionID, sessionID).
		Int64(xlog.FieldDuration, *updated.DurationSeconds).
		Msg("recording stopped")
	return updated, nil
}

// IsRecording reports whether a session is currently live.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// CurrentSessionID returns the live session id, or "" when idle.
func (r *Recorder) CurrentSessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentID()
}

// ElapsedSeconds returns the running time of the live recording.
func (r *Recorder) ElapsedSeconds() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return 0, false
	}
	return int64(time.Since(r.current.startedAt).Seconds()), true
}

// watchExit handles the encoder dying while the session is nominally live.
// Without this the persisted state would be stuck at live forever.
func (r *Recorder) watchExit(inst *instance, exitC <-chan supervisor.ExitStatus) {
	st, ok := <-exitC
	if !ok || st.Expected {
		return
	}

	r.mu.Lock()
	if r.current != inst {
		// A Stop already claimed this instance.
		r.mu.Unlock()
		return
	}
	r.current = nil
	r.mu.Unlock()

	metrics.EncoderUnexpectedExitTotal.Inc()
	r.log.Error().
		Str(xlog.FieldSessionID, inst.sessionID).
		Int(xlog.FieldExitCode, st.Code).
		Msg("encoder exited unexpectedly, forcing session to ended")

	r.watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := r.endSession(ctx, inst); err != nil {
		r.log.Error().Err(err).
			Str(xlog.FieldSessionID, inst.sessionID).
			Msg("could not persist forced stop")
	}
}

// endSession performs the live -> ended transition with duration and expiry.
func (r *Recorder) endSession(ctx context.Context, inst *instance) (*store.Session, error) {
	now := time.Now()
	ended := store.StateEnded
	endedAt := now.Unix()
	duration := int64(now.Sub(inst.startedAt).Seconds())
	expiresAt := now.Add(archiveTTL).Unix()

	return r.store.UpdateSession(ctx, inst.sessionID, store.SessionUpdate{
		State:           &ended,
		EndedAt:         &endedAt,
		DurationSeconds: &duration,
		ExpiresAt:       &expiresAt,
	})
}

// teardown reverts a half-started recording after a store failure.
func (r *Recorder) teardown(inst *instance) {
	r.mu.Lock()
	if r.current == inst {
		r.current = nil
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := r.encoder.Terminate(ctx); err != nil {
		r.log.Warn().Err(err).Msg("teardown: encoder termination failed")
	}
	r.watcher.Stop()
}

// currentID must be called with r.mu held.
func (r *Recorder) currentID() string {
	if r.current == nil {
		return ""
	}
	return r.current.sessionID
}

func mkOutputDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}
	return nil
}
