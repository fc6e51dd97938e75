// Package supervisor owns the lifecycle of the single external encoder
// process: spawn, output draining, graceful termination and exit reporting.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/aircast/aircast/internal/log"
	"github.com/aircast/aircast/internal/metrics"
)

var (
	// ErrAlreadyRunning is returned by Spawn while an encoder is active.
	ErrAlreadyRunning = errors.New("encoder process already running")
	// ErrNotRunning is returned by Terminate when no encoder is active.
	ErrNotRunning = errors.New("no encoder process running")
)

// DefaultStopGrace bounds the wait between the graceful interrupt and the
// forced kill.
const DefaultStopGrace = 10 * time.Second

// ffmpeg exits with 255 after handling SIGINT; both that and 0 are clean.
func cleanExit(code int) bool {
	return code == 0 || code == 255
}

// ExitStatus reports how the encoder process ended.
type ExitStatus struct {
	Code     int
	Clean    bool
	Expected bool // true when Terminate caused the exit
}

// Supervisor runs at most one encoder subprocess.
type Supervisor struct {
	cfg          EncoderConfig
	stopGrace    time.Duration
	startTimeout time.Duration
	stallTimeout time.Duration
	log          zerolog.Logger

	mu   sync.Mutex
	proc *process
}

type process struct {
	cmd       *exec.Cmd
	sessionID string
	startedAt time.Time
	expected  bool
	status    chan ExitStatus // buffered(1), receives exactly one value
	waitDone  chan struct{}   // closed once Wait returned
}

// New builds a Supervisor. stopGrace <= 0 selects DefaultStopGrace.
func New(cfg EncoderConfig, stopGrace time.Duration) *Supervisor {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "ffmpeg"
	}
	if stopGrace <= 0 {
		stopGrace = DefaultStopGrace
	}
	return &Supervisor{
		cfg:          cfg,
		stopGrace:    stopGrace,
		startTimeout: defaultStartTimeout,
		stallTimeout: defaultStallTimeout,
		log:          xlog.WithComponent("supervisor"),
	}
}

// Spawn launches the encoder for a session. The returned channel receives
// exactly one ExitStatus when the process ends, however it ends.
func (s *Supervisor) Spawn(ctx context.Context, sessionID, liveDir, archiveDir string) (<-chan ExitStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != nil {
		return nil, fmt.Errorf("%w: session %s", ErrAlreadyRunning, s.proc.sessionID)
	}

	args := s.cfg.args(liveDir, archiveDir)
	cmd := exec.Command(s.cfg.BinaryPath, args...) // #nosec G204 -- binary path comes from operator config

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn encoder: %w", err)
	}

	p := &process{
		cmd:       cmd,
		sessionID: sessionID,
		startedAt: time.Now(),
		status:    make(chan ExitStatus, 1),
		waitDone:  make(chan struct{}),
	}
	s.proc = p

	logger := s.log.With().
		Str(xlog.FieldSessionID, sessionID).
		Int(xlog.FieldPID, cmd.Process.Pid).
		Logger()
	logger.Info().Strs("args", args).Msg("encoder started")

	wd := newWatchdog(s.startTimeout, s.stallTimeout)

	// Drain both pipes continuously so pipe back-pressure can never stall
	// the encoder. Stdout carries the -progress stream.
	go drainProgress(stdout, wd)
	go drain(logger, "stderr", stderr)
	go s.watchStall(p, wd, logger)
	go s.wait(p, logger)

	metrics.RecordingActive.Set(1)
	return p.status, nil
}

func (s *Supervisor) wait(p *process, logger zerolog.Logger) {
	err := p.cmd.Wait()
	close(p.waitDone)

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	s.mu.Lock()
	expected := p.expected
	if s.proc == p {
		s.proc = nil
	}
	s.mu.Unlock()

	status := ExitStatus{Code: code, Clean: cleanExit(code), Expected: expected}
	metrics.RecordingActive.Set(0)

	switch {
	case status.Clean:
		logger.Info().Int(xlog.FieldExitCode, code).Msg("encoder exited")
	case expected:
		logger.Warn().Int(xlog.FieldExitCode, code).Msg("encoder exited uncleanly during shutdown")
	default:
		logger.Error().Int(xlog.FieldExitCode, code).Msg("encoder exited unexpectedly")
	}

	p.status <- status
}

// Terminate sends the graceful interrupt and waits for the process to exit,
// escalating to a forced kill after the configured grace period. It returns
// the elapsed recording time.
func (s *Supervisor) Terminate(ctx context.Context) (time.Duration, error) {
	s.mu.Lock()
	p := s.proc
	if p == nil {
		s.mu.Unlock()
		return 0, ErrNotRunning
	}
	p.expected = true
	s.mu.Unlock()

	// SIGINT makes ffmpeg finalize both playlists before exiting.
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		return 0, fmt.Errorf("signal encoder: %w", err)
	}

	grace := time.NewTimer(s.stopGrace)
	defer grace.Stop()

	select {
	case <-p.waitDone:
	case <-grace.C:
		s.log.Warn().
			Str(xlog.FieldSessionID, p.sessionID).
			Dur("grace", s.stopGrace).
			Msg("encoder did not exit in time, killing")
		_ = p.cmd.Process.Kill()
		select {
		case <-p.waitDone:
		case <-ctx.Done():
			return time.Since(p.startedAt), ctx.Err()
		}
	case <-ctx.Done():
		return time.Since(p.startedAt), ctx.Err()
	}

	return time.Since(p.startedAt), nil
}

// IsActive reports whether an encoder process is currently running.
func (s *Supervisor) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil
}

// SessionID returns the live session id, or "" when idle.
func (s *Supervisor) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return ""
	}
	return s.proc.sessionID
}

// Elapsed returns the running time of the current recording.
func (s *Supervisor) Elapsed() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0, false
	}
	return time.Since(s.proc.startedAt), true
}

func drain(logger zerolog.Logger, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug().
			Str(xlog.FieldStream, stream).
			Msg(scanner.Text())
	}
}

func drainProgress(r io.Reader, wd *watchdog) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		wd.Observe(scanner.Text())
	}
}

// watchStall kills the encoder when its progress output dries up; the kill
// then surfaces through the normal wait path as an unexpected exit.
func (s *Supervisor) watchStall(p *process, wd *watchdog, logger zerolog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-p.waitDone
		cancel()
	}()

	if err := wd.watch(ctx); err != nil {
		logger.Error().Err(err).Msg("encoder stalled, killing")
		_ = p.cmd.Process.Kill()
	}
}
