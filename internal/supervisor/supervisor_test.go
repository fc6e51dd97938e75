//go:build !windows

package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeEncoderScript behaves like ffmpeg for lifecycle purposes: it ignores
// its arguments, runs until interrupted and exits with 255 on SIGINT.
const fakeEncoderScript = `#!/bin/sh
trap 'exit 255' INT
while :; do sleep 0.1; done
`

func writeFakeEncoder(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-encoder.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))
	return path
}

func newTestSupervisor(t *testing.T, binary string, grace time.Duration) *Supervisor {
	t.Helper()
	cfg := testConfig(ContainerMPEGTS)
	cfg.BinaryPath = binary
	return New(cfg, grace)
}

func TestSpawnAndTerminate(t *testing.T) {
	s := newTestSupervisor(t, writeFakeEncoder(t, fakeEncoderScript), 5*time.Second)

	status, err := s.Spawn(context.Background(), "2024-01-01", t.TempDir(), t.TempDir())
	require.NoError(t, err)
	require.True(t, s.IsActive())
	require.Equal(t, "2024-01-01", s.SessionID())

	elapsed, ok := s.Elapsed()
	require.True(t, ok)
	require.GreaterOrEqual(t, elapsed, time.Duration(0))

	time.Sleep(200 * time.Millisecond)

	elapsed, err = s.Terminate(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, elapsed, 200*time.Millisecond)

	st := <-status
	require.True(t, st.Clean, "SIGINT exit (255) must count as clean, got code %d", st.Code)
	require.True(t, st.Expected)
	require.False(t, s.IsActive())
	require.Empty(t, s.SessionID())
}

func TestSpawnConflict(t *testing.T) {
	s := newTestSupervisor(t, writeFakeEncoder(t, fakeEncoderScript), 5*time.Second)

	status, err := s.Spawn(context.Background(), "2024-01-01", t.TempDir(), t.TempDir())
	require.NoError(t, err)

	_, err = s.Spawn(context.Background(), "2024-01-02", t.TempDir(), t.TempDir())
	require.ErrorIs(t, err, ErrAlreadyRunning)

	_, err = s.Terminate(context.Background())
	require.NoError(t, err)
	<-status
}

func TestTerminateWithoutProcess(t *testing.T) {
	s := newTestSupervisor(t, "ffmpeg", time.Second)
	_, err := s.Terminate(context.Background())
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestUnexpectedExitReported(t *testing.T) {
	// Exits immediately with a failure code, no Terminate involved.
	s := newTestSupervisor(t, writeFakeEncoder(t, "#!/bin/sh\nexit 1\n"), time.Second)

	status, err := s.Spawn(context.Background(), "2024-01-01", t.TempDir(), t.TempDir())
	require.NoError(t, err)

	select {
	case st := <-status:
		require.False(t, st.Clean)
		require.False(t, st.Expected)
		require.Equal(t, 1, st.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit status")
	}

	require.False(t, s.IsActive())

	// Slot is free again after the unexpected exit.
	status, err = s.Spawn(context.Background(), "2024-01-02", t.TempDir(), t.TempDir())
	require.NoError(t, err)
	<-status
}

func TestGraceEscalatesToKill(t *testing.T) {
	// Ignores SIGINT entirely; only the kill escalation can end it.
	script := "#!/bin/sh\ntrap '' INT\nwhile :; do sleep 0.1; done\n"
	s := newTestSupervisor(t, writeFakeEncoder(t, script), 300*time.Millisecond)

	status, err := s.Spawn(context.Background(), "2024-01-01", t.TempDir(), t.TempDir())
	require.NoError(t, err)

	start := time.Now()
	_, err = s.Terminate(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)

	st := <-status
	require.True(t, st.Expected)
	require.False(t, st.Clean) // killed, not a clean code
}

func TestStalledEncoderIsKilled(t *testing.T) {
	// Never writes progress output, so the watchdog has to step in.
	s := newTestSupervisor(t, writeFakeEncoder(t, fakeEncoderScript), 5*time.Second)
	s.startTimeout = 200 * time.Millisecond

	status, err := s.Spawn(context.Background(), "2024-01-01", t.TempDir(), t.TempDir())
	require.NoError(t, err)

	select {
	case st := <-status:
		require.False(t, st.Expected)
		require.False(t, st.Clean)
	case <-time.After(5 * time.Second):
		t.Fatal("stalled encoder was not killed")
	}
	require.False(t, s.IsActive())
}

func TestSpawnFailure(t *testing.T) {
	s := newTestSupervisor(t, "/nonexistent/encoder-binary", time.Second)

	_, err := s.Spawn(context.Background(), "2024-01-01", t.TempDir(), t.TempDir())
	require.Error(t, err)
	require.False(t, s.IsActive())
}
