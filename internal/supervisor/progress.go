package supervisor

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Stall detection timeouts. The encoder reads a live capture device, so
// progress output must keep flowing for the whole recording.
const (
	defaultStartTimeout = 30 * time.Second
	defaultStallTimeout = 30 * time.Second
)

var errEncoderStalled = errors.New("encoder made no progress")

type progressState int

const (
	progressStarting progressState = iota
	progressRunning
	progressStalled
	progressDone
)

type clock interface {
	Now() time.Time
	NewTicker(d time.Duration) ticker
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time                   { return time.Now() }
func (realClock) NewTicker(d time.Duration) ticker { return &realTicker{time.NewTicker(d)} }

type realTicker struct {
	*time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.Ticker.C }

// watchdog consumes the encoder's -progress output and flags the process
// as stalled when neither the output timestamp nor the written byte count
// advances within the stall timeout.
type watchdog struct {
	mu sync.Mutex

	startTimeout time.Duration
	stallTimeout time.Duration

	lastTimeMs int64
	lastBytes  int64
	lastBeat   time.Time
	state      progressState

	clock clock
}

func newWatchdog(startTimeout, stallTimeout time.Duration) *watchdog {
	return &watchdog{
		startTimeout: startTimeout,
		stallTimeout: stallTimeout,
		clock:        realClock{},
	}
}

// Observe parses one key=value line from the -progress pipe. Unknown keys
// and malformed lines are ignored; counters only ever move forward.
func (w *watchdog) Observe(line string) {
	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	w.mu.Lock()
	defer w.mu.Unlock()

	switch key {
	case "out_time_ms":
		ms, _ := strconv.ParseInt(val, 10, 64)
		if ms > w.lastTimeMs {
			w.lastTimeMs = ms
			w.beat()
		}
	case "total_size":
		size, _ := strconv.ParseInt(val, 10, 64)
		if size > w.lastBytes {
			w.lastBytes = size
			w.beat()
		}
	case "progress":
		if val == "end" {
			w.state = progressDone
		}
	}
}

func (w *watchdog) beat() {
	w.lastBeat = w.clock.Now()
	if w.state == progressStarting {
		w.state = progressRunning
	}
}

func (w *watchdog) currentState() progressState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// watch polls until the encoder stalls, finishes, or ctx is cancelled.
// It returns errEncoderStalled only when intervention is needed.
func (w *watchdog) watch(ctx context.Context) error {
	w.mu.Lock()
	w.lastBeat = w.clock.Now()
	w.mu.Unlock()

	t := w.clock.NewTicker(time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			if stalled := w.check(); stalled {
				return errEncoderStalled
			}
			if w.currentState() == progressDone {
				return nil
			}
		}
	}
}

func (w *watchdog) check() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	idle := w.clock.Now().Sub(w.lastBeat)
	switch w.state {
	case progressStarting:
		if idle > w.startTimeout {
			w.state = progressStalled
			return true
		}
	case progressRunning:
		if idle > w.stallTimeout {
			w.state = progressStalled
			return true
		}
	}
	return false
}
