package supervisor

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *fakeTicker
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) NewTicker(time.Duration) ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticker = &fakeTicker{c: make(chan time.Time)}
	return f.ticker
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeClock) tick(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	tk := f.ticker
	f.mu.Unlock()
	require.NotNil(t, tk)
	tk.c <- f.Now()
}

type fakeTicker struct {
	c chan time.Time
}

func (f *fakeTicker) C() <-chan time.Time { return f.c }
func (f *fakeTicker) Stop()               {}

func newTestWatchdog() (*watchdog, *fakeClock) {
	clk := &fakeClock{now: time.Now()}
	wd := newWatchdog(2*time.Second, 5*time.Second)
	wd.clock = clk
	return wd, clk
}

func runWatch(wd *watchdog) (chan error, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() { errC <- wd.watch(ctx) }()
	// Give watch time to install the ticker.
	time.Sleep(20 * time.Millisecond)
	return errC, cancel
}

func TestWatchdogStartTimeout(t *testing.T) {
	wd, clk := newTestWatchdog()
	errC, cancel := runWatch(wd)
	defer cancel()

	clk.advance(3 * time.Second)
	clk.tick(t)

	assert.ErrorIs(t, <-errC, errEncoderStalled)
	assert.Equal(t, progressStalled, wd.currentState())
}

func TestWatchdogStallAfterProgress(t *testing.T) {
	wd, clk := newTestWatchdog()
	errC, cancel := runWatch(wd)
	defer cancel()

	wd.Observe("out_time_ms=1000")
	assert.Equal(t, progressRunning, wd.currentState())

	clk.advance(6 * time.Second)
	clk.tick(t)

	assert.ErrorIs(t, <-errC, errEncoderStalled)
	assert.Equal(t, progressStalled, wd.currentState())
}

func TestWatchdogProgressKeepsItAlive(t *testing.T) {
	wd, clk := newTestWatchdog()
	errC, cancel := runWatch(wd)
	defer cancel()

	for i := 0; i < 5; i++ {
		clk.advance(3 * time.Second)
		wd.Observe("total_size=" + strconv.Itoa((i+1)*1000))
		clk.tick(t)
	}

	cancel()
	assert.NoError(t, <-errC)
}

func TestWatchdogEndStopsWatching(t *testing.T) {
	wd, clk := newTestWatchdog()
	errC, cancel := runWatch(wd)
	defer cancel()

	wd.Observe("out_time_ms=1000")
	wd.Observe("progress=end")
	clk.tick(t)

	assert.NoError(t, <-errC)
	assert.Equal(t, progressDone, wd.currentState())
}

func TestWatchdogOnlyRealProgressCounts(t *testing.T) {
	wd, _ := newTestWatchdog()

	wd.Observe("frame=10")
	assert.Equal(t, progressStarting, wd.currentState())

	wd.Observe("out_time_ms=0")
	assert.Equal(t, progressStarting, wd.currentState())

	wd.Observe("total_size=123")
	assert.Equal(t, progressRunning, wd.currentState())
}

func TestWatchdogParserRobustness(t *testing.T) {
	wd, _ := newTestWatchdog()

	wd.Observe("out_time_ms=N/A")
	assert.Equal(t, int64(0), wd.lastTimeMs)

	wd.Observe("garbage")
	wd.Observe("key=val=extra")

	wd.Observe("total_size=100")
	assert.Equal(t, int64(100), wd.lastBytes)
	wd.Observe("total_size=50")
	assert.Equal(t, int64(100), wd.lastBytes)
}
