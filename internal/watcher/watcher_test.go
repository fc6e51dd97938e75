package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aircast/aircast/internal/media"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) handle(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *eventSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newTestWatcher(t *testing.T, sink *eventSink) (*Watcher, string, string) {
	t.Helper()
	base := t.TempDir()
	liveDir := filepath.Join(base, "live")
	archiveDir := filepath.Join(base, "archive")
	require.NoError(t, os.MkdirAll(liveDir, 0o750))
	require.NoError(t, os.MkdirAll(archiveDir, 0o750))

	w := New(100*time.Millisecond, sink.handle)
	t.Cleanup(w.Stop)
	return w, liveDir, archiveDir
}

func TestSegmentCreateEmitsOneEvent(t *testing.T) {
	sink := &eventSink{}
	w, liveDir, archiveDir := newTestWatcher(t, sink)
	require.NoError(t, w.Start("2024-01-01", liveDir, archiveDir))

	seg := filepath.Join(liveDir, "segment_00001.ts")
	require.NoError(t, os.WriteFile(seg, []byte("data"), 0o600))

	require.Eventually(t, func() bool { return sink.count() == 1 }, 3*time.Second, 20*time.Millisecond)

	ev := sink.all()[0]
	require.Equal(t, "2024-01-01", ev.SessionID)
	require.Equal(t, media.RenditionLive, ev.Rendition)
	require.Equal(t, seg, ev.Path)
	require.Equal(t, OpCreated, ev.Op)

	// No duplicate after the debounce settles.
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, 1, sink.count())
}

func TestPlaylistRewriteEmitsModified(t *testing.T) {
	sink := &eventSink{}
	w, liveDir, archiveDir := newTestWatcher(t, sink)
	require.NoError(t, w.Start("2024-01-01", liveDir, archiveDir))

	playlist := filepath.Join(archiveDir, "index.m3u8")
	require.NoError(t, os.WriteFile(playlist, []byte("#EXTM3U\n"), 0o600))

	require.Eventually(t, func() bool { return sink.count() == 1 }, 3*time.Second, 20*time.Millisecond)
	require.Equal(t, OpCreated, sink.all()[0].Op)
	require.Equal(t, media.RenditionArchive, sink.all()[0].Rendition)

	// Rewrite in place: the sliding window advanced.
	require.NoError(t, os.WriteFile(playlist, []byte("#EXTM3U\n#EXTINF:4,\nsegment_00001.ts\n"), 0o600))

	require.Eventually(t, func() bool { return sink.count() == 2 }, 3*time.Second, 20*time.Millisecond)
	require.Equal(t, OpModified, sink.all()[1].Op)
}

func TestUninterestingFilesIgnored(t *testing.T) {
	sink := &eventSink{}
	w, liveDir, archiveDir := newTestWatcher(t, sink)
	require.NoError(t, w.Start("2024-01-01", liveDir, archiveDir))

	require.NoError(t, os.WriteFile(filepath.Join(liveDir, "encoder.log"), []byte("x"), 0o600))

	time.Sleep(400 * time.Millisecond)
	require.Zero(t, sink.count())
}

func TestDebounceCoalescesRapidWrites(t *testing.T) {
	sink := &eventSink{}
	w, liveDir, archiveDir := newTestWatcher(t, sink)
	require.NoError(t, w.Start("2024-01-01", liveDir, archiveDir))

	seg := filepath.Join(liveDir, "segment_00002.ts")
	f, err := os.OpenFile(seg, os.O_CREATE|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = f.Write([]byte("chunk"))
		require.NoError(t, err)
		time.Sleep(30 * time.Millisecond) // below the 100ms stability interval
	}
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return sink.count() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, 1, sink.count())
}

func TestSegmentEmittedOnlyAfterWritesStop(t *testing.T) {
	var (
		mu         sync.Mutex
		emitted    int
		sizeAtEmit int64
	)
	base := t.TempDir()
	liveDir := filepath.Join(base, "live")
	archiveDir := filepath.Join(base, "archive")
	require.NoError(t, os.MkdirAll(liveDir, 0o750))
	require.NoError(t, os.MkdirAll(archiveDir, 0o750))

	w := New(150*time.Millisecond, func(ev Event) {
		var size int64 = -1
		if info, err := os.Stat(ev.Path); err == nil {
			size = info.Size()
		}
		mu.Lock()
		emitted++
		sizeAtEmit = size
		mu.Unlock()
	})
	t.Cleanup(w.Stop)
	require.NoError(t, w.Start("2024-01-01", liveDir, archiveDir))

	// The encoder appends to a live segment over its whole hls_time window.
	// The write cadence here sits above the double-stat recheck but below
	// the stability interval, so only timer resets on writes can hold the
	// emission back until the segment is complete.
	seg := filepath.Join(liveDir, "segment_00003.ts")
	f, err := os.OpenFile(seg, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	chunk := make([]byte, 1024)
	var want int64
	for i := 0; i < 10; i++ {
		_, err = f.Write(chunk)
		require.NoError(t, err)
		want += int64(len(chunk))
		time.Sleep(60 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return emitted == 1
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	require.Equal(t, want, sizeAtEmit, "segment emitted while still being written")
	mu.Unlock()

	// Still exactly one event once everything settles.
	time.Sleep(400 * time.Millisecond)
	mu.Lock()
	require.Equal(t, 1, emitted)
	mu.Unlock()
}

func TestStopIsIdempotent(t *testing.T) {
	sink := &eventSink{}
	w, liveDir, archiveDir := newTestWatcher(t, sink)

	// Stop with nothing watched is a no-op.
	w.Stop()
	w.Stop()

	require.NoError(t, w.Start("2024-01-01", liveDir, archiveDir))
	w.Stop()
	w.Stop()
}

func TestNoEventsForPreviousSessionAfterRestart(t *testing.T) {
	sink := &eventSink{}
	w, liveDir, archiveDir := newTestWatcher(t, sink)
	require.NoError(t, w.Start("2024-01-01", liveDir, archiveDir))
	w.Stop()

	// Writes into the old directories must not surface.
	require.NoError(t, os.WriteFile(filepath.Join(liveDir, "segment_00009.ts"), []byte("x"), 0o600))
	time.Sleep(300 * time.Millisecond)
	require.Zero(t, sink.count())

	// A new session only sees its own directories.
	base2 := t.TempDir()
	live2 := filepath.Join(base2, "live")
	archive2 := filepath.Join(base2, "archive")
	require.NoError(t, os.MkdirAll(live2, 0o750))
	require.NoError(t, os.MkdirAll(archive2, 0o750))
	require.NoError(t, w.Start("2024-01-02", live2, archive2))

	require.NoError(t, os.WriteFile(filepath.Join(live2, "segment_00001.ts"), []byte("x"), 0o600))
	require.Eventually(t, func() bool { return sink.count() == 1 }, 3*time.Second, 20*time.Millisecond)
	require.Equal(t, "2024-01-02", sink.all()[0].SessionID)
}
