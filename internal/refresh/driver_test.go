package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quiet = 50 * time.Millisecond

type fakeTicker struct {
	d       time.Duration
	ch      chan time.Time
	stopped atomic.Bool
	resets  atomic.Int32
}

func (f *fakeTicker) C() <-chan time.Time   { return f.ch }
func (f *fakeTicker) Stop()                 { f.stopped.Store(true) }
func (f *fakeTicker) Reset(d time.Duration) { f.resets.Add(1) }

type tickerFactory struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (tf *tickerFactory) New(d time.Duration) Ticker {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	ft := &fakeTicker{d: d, ch: make(chan time.Time)}
	tf.tickers = append(tf.tickers, ft)
	return ft
}

// last returns the most recent ticker created for d.
func (tf *tickerFactory) last(t *testing.T, d time.Duration) *fakeTicker {
	t.Helper()
	tf.mu.Lock()
	defer tf.mu.Unlock()
	for i := len(tf.tickers) - 1; i >= 0; i-- {
		if tf.tickers[i].d == d {
			return tf.tickers[i]
		}
	}
	t.Fatalf("no ticker for %s", d)
	return nil
}

func (tf *tickerFactory) count(d time.Duration) int {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	n := 0
	for _, ft := range tf.tickers {
		if ft.d == d {
			n++
		}
	}
	return n
}

func newTestDriver(opts Options) (*Driver, *tickerFactory, chan uint64) {
	tf := &tickerFactory{}
	cycles := make(chan uint64, 32)
	opts.NewTicker = tf.New
	d := NewDriver(func(ctx context.Context, seq uint64) error {
		cycles <- seq
		return nil
	}, opts)
	return d, tf, cycles
}

func expectCycle(t *testing.T, cycles <-chan uint64, want uint64) {
	t.Helper()
	select {
	case got := <-cycles:
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatalf("cycle %d did not run", want)
	}
}

func expectNoCycle(t *testing.T, cycles <-chan uint64) {
	t.Helper()
	select {
	case got := <-cycles:
		t.Fatalf("unexpected cycle %d", got)
	case <-time.After(quiet):
	}
}

func tick(t *testing.T, ft *fakeTicker) {
	t.Helper()
	select {
	case ft.ch <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("tick not consumed")
	}
}

func TestStartRendersOnceImmediately(t *testing.T) {
	d, tf, cycles := newTestDriver(Options{})
	defer d.Stop()

	require.NoError(t, d.Start(context.Background()))
	assert.Equal(t, Running, d.State())

	expectCycle(t, cycles, 1)
	expectNoCycle(t, cycles)
	assert.Equal(t, 1, tf.count(DefaultInterval))
}

func TestCyclePerTick(t *testing.T) {
	d, tf, cycles := newTestDriver(Options{Interval: 5 * time.Second})
	defer d.Stop()

	require.NoError(t, d.Start(context.Background()))
	expectCycle(t, cycles, 1)

	regen := tf.last(t, 5*time.Second)
	for i := uint64(2); i <= 4; i++ {
		tick(t, regen)
		expectCycle(t, cycles, i)
	}
	expectNoCycle(t, cycles)
	assert.Equal(t, uint64(4), d.Cycles())
}

func TestStartTwice(t *testing.T) {
	d, _, cycles := newTestDriver(Options{})
	defer d.Stop()

	require.NoError(t, d.Start(context.Background()))
	expectCycle(t, cycles, 1)

	assert.ErrorIs(t, d.Start(context.Background()), ErrAlreadyRunning)
	expectNoCycle(t, cycles)
}

func TestStopHaltsRendering(t *testing.T) {
	d, tf, cycles := newTestDriver(Options{})

	require.NoError(t, d.Start(context.Background()))
	expectCycle(t, cycles, 1)

	regen := tf.last(t, DefaultInterval)
	d.Stop()

	assert.Equal(t, Idle, d.State())
	assert.True(t, regen.stopped.Load())

	select {
	case regen.ch <- time.Now():
		t.Fatal("stopped driver still reading ticks")
	case <-time.After(quiet):
	}
	expectNoCycle(t, cycles)

	// idempotent
	d.Stop()
	assert.Equal(t, Idle, d.State())
}

func TestStartAfterStop(t *testing.T) {
	d, _, cycles := newTestDriver(Options{})
	defer d.Stop()

	require.NoError(t, d.Start(context.Background()))
	expectCycle(t, cycles, 1)
	d.Stop()

	require.NoError(t, d.Start(context.Background()))
	expectCycle(t, cycles, 2)
}

func TestSkipRestartsCycle(t *testing.T) {
	d, tf, cycles := newTestDriver(Options{})
	defer d.Stop()

	require.NoError(t, d.Start(context.Background()))
	expectCycle(t, cycles, 1)
	first := tf.last(t, DefaultInterval)

	assert.True(t, d.Skip())
	expectCycle(t, cycles, 2)
	expectNoCycle(t, cycles)

	assert.True(t, first.stopped.Load())
	assert.Equal(t, 2, tf.count(DefaultInterval))
	assert.Equal(t, Running, d.State())

	second := tf.last(t, DefaultInterval)
	tick(t, second)
	expectCycle(t, cycles, 3)
}

func TestStopWhileSkipPending(t *testing.T) {
	tf := &tickerFactory{}
	entered := make(chan uint64, 8)
	release := make(chan struct{})

	d := NewDriver(func(ctx context.Context, seq uint64) error {
		entered <- seq
		<-release
		return nil
	}, Options{NewTicker: tf.New})

	require.NoError(t, d.Start(context.Background()))
	expectCycle(t, entered, 1)

	// cycle 1 is still rendering while skip and stop arrive
	skipped := make(chan bool, 1)
	go func() { skipped <- d.Skip() }()
	assert.True(t, <-skipped)
	assert.Equal(t, Running, d.State())

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	require.Eventually(t, func() bool { return d.State() == Idle }, time.Second, 5*time.Millisecond)

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	assert.Equal(t, Idle, d.State())
	expectNoCycle(t, entered)
	assert.Equal(t, uint64(1), d.Cycles())
	assert.Equal(t, 1, tf.count(DefaultInterval))
}

func TestSkipsCoalesce(t *testing.T) {
	tf := &tickerFactory{}
	entered := make(chan uint64, 8)
	release := make(chan struct{})

	d := NewDriver(func(ctx context.Context, seq uint64) error {
		entered <- seq
		if seq == 1 {
			<-release
		}
		return nil
	}, Options{NewTicker: tf.New})
	defer d.Stop()

	require.NoError(t, d.Start(context.Background()))
	expectCycle(t, entered, 1)

	assert.True(t, d.Skip())
	assert.True(t, d.Skip())
	close(release)

	expectCycle(t, entered, 2)
	expectNoCycle(t, entered)
}

func TestSkipWhileIdle(t *testing.T) {
	d, tf, cycles := newTestDriver(Options{})

	assert.False(t, d.Skip())
	assert.Equal(t, Idle, d.State())
	expectNoCycle(t, cycles)
	assert.Equal(t, 0, tf.count(DefaultInterval))
}

func TestContextCancelStopsDriver(t *testing.T) {
	d, tf, cycles := newTestDriver(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))
	expectCycle(t, cycles, 1)

	cancel()
	require.Eventually(t, func() bool { return d.State() == Idle }, time.Second, 5*time.Millisecond)
	assert.True(t, tf.last(t, DefaultInterval).stopped.Load())
	assert.False(t, d.Skip())
}

func TestStartWithCancelledContext(t *testing.T) {
	d, _, cycles := newTestDriver(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, d.Start(ctx), context.Canceled)
	assert.Equal(t, Idle, d.State())
	expectNoCycle(t, cycles)
}

func TestCycleErrorsAreReported(t *testing.T) {
	tf := &tickerFactory{}
	errs := make(chan error, 4)
	boom := errors.New("render failed")

	d := NewDriver(func(ctx context.Context, seq uint64) error {
		return boom
	}, Options{
		NewTicker: tf.New,
		OnError:   func(err error) { errs <- err },
	})
	defer d.Stop()

	require.NoError(t, d.Start(context.Background()))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("error not reported")
	}

	tick(t, tf.last(t, DefaultInterval))
	select {
	case <-errs:
	case <-time.After(time.Second):
		t.Fatal("driver stopped after a failed cycle")
	}
	assert.Equal(t, Running, d.State())
}

func TestCountdown(t *testing.T) {
	remaining := make(chan int, 32)
	d, tf, cycles := newTestDriver(Options{
		Interval:    5 * time.Second,
		OnCountdown: func(n int) { remaining <- n },
	})
	defer d.Stop()

	expectRemaining := func(want int) {
		t.Helper()
		select {
		case got := <-remaining:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("countdown %d not reported", want)
		}
	}

	require.NoError(t, d.Start(context.Background()))
	expectCycle(t, cycles, 1)
	expectRemaining(5)

	countdown := tf.last(t, time.Second)
	assert.Equal(t, int32(1), countdown.resets.Load())
	for _, want := range []int{4, 3, 2, 1, 1} {
		tick(t, countdown)
		expectRemaining(want)
	}
	expectNoCycle(t, cycles)

	tick(t, tf.last(t, 5*time.Second))
	expectCycle(t, cycles, 2)
	expectRemaining(5)
	assert.Equal(t, int32(2), countdown.resets.Load())

	// the countdown restarts from the regeneration
	tick(t, countdown)
	expectRemaining(4)

	assert.True(t, d.Skip())
	expectCycle(t, cycles, 3)
	expectRemaining(5)
	assert.Equal(t, int32(3), countdown.resets.Load())
	assert.Equal(t, 1, tf.count(time.Second))

	d.Stop()
	assert.True(t, countdown.stopped.Load())
}

func TestDefaults(t *testing.T) {
	d := NewDriver(func(context.Context, uint64) error { return nil }, Options{})
	assert.Equal(t, DefaultInterval, d.Interval())
	assert.Equal(t, Idle, d.State())
	assert.Equal(t, "idle", d.State().String())
}
