// Package watcher observes a session's output directories and emits one
// event per file change once the file has been stable for a configured
// interval. This avoids shipping a segment or playlist while the encoder is
// still writing it.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xlog "github.com/aircast/aircast/internal/log"
	"github.com/aircast/aircast/internal/media"
)

// Op distinguishes a newly created file from an in-place rewrite.
type Op string

const (
	OpCreated  Op = "created"
	OpModified Op = "modified"
)

// Event is a stability-confirmed change to one output file.
type Event struct {
	SessionID string
	Rendition media.Rendition
	Path      string
	Op        Op
}

// Handler consumes confirmed events. It is called from timer goroutines and
// must not block for long.
type Handler func(Event)

// DefaultStabilityInterval mirrors the encoder's write cadence: half a
// second with no further writes marks a file complete.
const DefaultStabilityInterval = 500 * time.Millisecond

// stabilityRecheck is the pause between the two size stats that confirm a
// debounced file really stopped growing.
const stabilityRecheck = 50 * time.Millisecond

// Watcher observes one session's live and archive directories at a time.
// Start tears down any previous watch first, so events can never reference
// an earlier session.
type Watcher struct {
	mu       sync.Mutex
	interval time.Duration
	handler  Handler
	current  *dirWatch
	log      zerolog.Logger
}

// New builds a Watcher. interval <= 0 selects DefaultStabilityInterval.
func New(interval time.Duration, handler Handler) *Watcher {
	if interval <= 0 {
		interval = DefaultStabilityInterval
	}
	return &Watcher{
		interval: interval,
		handler:  handler,
		log:      xlog.WithComponent("watcher"),
	}
}

// Start begins observing liveDir and archiveDir for the given session.
func (w *Watcher) Start(sessionID, liveDir, archiveDir string) error {
	w.Stop()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range []string{liveDir, archiveDir} {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return err
		}
	}

	dw := &dirWatch{
		sessionID:  sessionID,
		liveDir:    filepath.Clean(liveDir),
		archiveDir: filepath.Clean(archiveDir),
		fsw:        fsw,
		interval:   w.interval,
		handler:    w.handler,
		timers:     make(map[string]*time.Timer),
		pendingOps: make(map[string]Op),
		emitted:    make(map[string]bool),
		done:       make(chan struct{}),
		log: w.log.With().
			Str(xlog.FieldSessionID, sessionID).
			Logger(),
	}

	w.mu.Lock()
	w.current = dw
	w.mu.Unlock()

	go dw.run()
	dw.log.Info().
		Str("live_dir", liveDir).
		Str("archive_dir", archiveDir).
		Msg("watching output directories")
	return nil
}

// Stop tears down all watches. Idempotent; safe when nothing is watched.
func (w *Watcher) Stop() {
	w.mu.Lock()
	dw := w.current
	w.current = nil
	w.mu.Unlock()

	if dw == nil {
		return
	}
	dw.stop()
	w.log.Info().Str(xlog.FieldSessionID, dw.sessionID).Msg("stopped watching")
}

// dirWatch is the state of one session's watch. A fresh one is created per
// Start so a stale debounce timer can never emit into a new session.
type dirWatch struct {
	sessionID  string
	liveDir    string
	archiveDir string
	fsw        *fsnotify.Watcher
	interval   time.Duration
	handler    Handler
	done       chan struct{}
	log        zerolog.Logger

	mu         sync.Mutex
	stopped    bool
	timers     map[string]*time.Timer
	pendingOps map[string]Op
	emitted    map[string]bool
	inflight   sync.WaitGroup
}

func (dw *dirWatch) run() {
	defer close(dw.done)
	for {
		select {
		case event, ok := <-dw.fsw.Events:
			if !ok {
				return
			}
			dw.observe(event)
		case err, ok := <-dw.fsw.Errors:
			if !ok {
				return
			}
			dw.log.Warn().Err(err).Msg("fsnotify error")
		}
	}
}

func (dw *dirWatch) stop() {
	dw.mu.Lock()
	dw.stopped = true
	for path, t := range dw.timers {
		t.Stop()
		delete(dw.timers, path)
	}
	dw.mu.Unlock()

	_ = dw.fsw.Close()
	<-dw.done
	dw.inflight.Wait()
}

// observe filters raw fsnotify events and arms the debounce timer. Every
// write to an interesting file pushes its emission out by one interval;
// the encoder writes a live segment over its whole hls_time window, so the
// timer must keep resetting until the writes actually stop.
func (dw *dirWatch) observe(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !interesting(name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	isPlaylist := strings.HasSuffix(name, ".m3u8")

	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.stopped {
		return
	}

	path := event.Name
	switch {
	case event.Has(fsnotify.Create) && !dw.emitted[path]:
		dw.pendingOps[path] = OpCreated
	case isPlaylist:
		// The playlist is rewritten in place as the sliding window
		// advances; each rewrite is a fresh modified emission.
		if _, ok := dw.pendingOps[path]; !ok {
			dw.pendingOps[path] = OpModified
		}
	default:
		// Segments are immutable once finalized: writes before the first
		// emission only extend the debounce, writes after it are stale.
		if _, ok := dw.pendingOps[path]; !ok {
			return
		}
	}

	if t, ok := dw.timers[path]; ok {
		t.Reset(dw.interval)
		return
	}
	dw.timers[path] = time.AfterFunc(dw.interval, func() {
		dw.confirm(path)
	})
}

// confirm re-checks that the file stayed stable, then emits exactly one event.
func (dw *dirWatch) confirm(path string) {
	dw.mu.Lock()
	if dw.stopped {
		dw.mu.Unlock()
		return
	}
	dw.inflight.Add(1)
	dw.mu.Unlock()
	defer dw.inflight.Done()

	info, err := os.Stat(path)
	if err != nil {
		// Pruned by the encoder before it stabilized; nothing to upload.
		dw.clear(path)
		return
	}
	sizeBefore := info.Size()

	dw.mu.Lock()
	if dw.stopped {
		dw.mu.Unlock()
		return
	}
	op, pending := dw.pendingOps[path]
	if !pending {
		// A concurrent confirmation already claimed this path.
		dw.mu.Unlock()
		return
	}
	delete(dw.timers, path)
	delete(dw.pendingOps, path)
	dw.emitted[path] = true
	dw.mu.Unlock()

	// A write can land between the last event and the timer firing without
	// fsnotify delivering yet; a second stat after a short pause closes that
	// window.
	time.Sleep(stabilityRecheck)
	if info, err := os.Stat(path); err != nil || info.Size() != sizeBefore {
		dw.rearm(path, op)
		return
	}

	dw.handler(Event{
		SessionID: dw.sessionID,
		Rendition: dw.rendition(path),
		Path:      path,
		Op:        op,
	})
}

func (dw *dirWatch) rearm(path string, op Op) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.stopped {
		return
	}
	dw.pendingOps[path] = op
	dw.emitted[path] = false
	dw.timers[path] = time.AfterFunc(dw.interval, func() {
		dw.confirm(path)
	})
}

func (dw *dirWatch) clear(path string) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	delete(dw.timers, path)
	delete(dw.pendingOps, path)
}

func (dw *dirWatch) rendition(path string) media.Rendition {
	if filepath.Dir(filepath.Clean(path)) == dw.archiveDir {
		return media.RenditionArchive
	}
	return media.RenditionLive
}

func interesting(name string) bool {
	switch filepath.Ext(name) {
	case ".m3u8", ".ts", ".m4s", ".mp4":
		return true
	default:
		return false
	}
}
