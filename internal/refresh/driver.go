package refresh

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultInterval = 5 * time.Second
	countdownTick   = time.Second
)

var ErrAlreadyRunning = errors.New("refresh driver already running")

type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// CycleFunc generates and renders one frame. seq starts at 1 for the first
// cycle of a driver and keeps counting across skips.
type CycleFunc func(ctx context.Context, seq uint64) error

type Options struct {
	Interval time.Duration

	// OnCountdown, when set, is called once per second with the seconds left
	// until the next regeneration.
	OnCountdown func(remaining int)

	// OnError receives cycle failures. Defaults to logging them.
	OnError func(err error)

	NewTicker func(d time.Duration) Ticker
}

// Driver re-runs a cycle on a fixed interval. It owns at most one active run.
type Driver struct {
	cycle CycleFunc
	opts  Options

	mu  sync.Mutex
	run *run

	seq atomic.Uint64
}

type run struct {
	parent context.Context
	cancel context.CancelFunc
	done   chan struct{}
	skip   chan struct{}
}

func (r *run) halt() {
	r.cancel()
	<-r.done
}

func NewDriver(cycle CycleFunc, opts Options) *Driver {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	if opts.OnError == nil {
		opts.OnError = func(err error) {
			log.Errorf("refresh cycle failed: %v", err)
		}
	}
	return &Driver{cycle: cycle, opts: opts}
}

func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.run == nil {
		return Idle
	}
	return Running
}

// Cycles returns how many cycles have been started so far.
func (d *Driver) Cycles() uint64 {
	return d.seq.Load()
}

func (d *Driver) Interval() time.Duration {
	return d.opts.Interval
}

// Start performs one cycle right away and then one per interval until Stop
// is called or ctx is cancelled.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.run != nil {
		return ErrAlreadyRunning
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	d.run = d.launch(ctx)
	return nil
}

// Skip drops the pending interval and runs the next cycle as soon as the
// current one, if any, has finished. It reports false when the driver is idle.
func (d *Driver) Skip() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.run == nil {
		return false
	}
	select {
	case d.run.skip <- struct{}{}:
	default:
		// a skip is already pending
	}
	return true
}

// Stop cancels all timers and waits for the loop to exit. No cycle runs
// after Stop returns. It must not be called from inside a cycle.
func (d *Driver) Stop() {
	d.mu.Lock()
	r := d.run
	d.run = nil
	d.mu.Unlock()

	if r != nil {
		r.halt()
	}
}

// launch must be called with d.mu held.
func (d *Driver) launch(parent context.Context) *run {
	ctx, cancel := context.WithCancel(parent)
	r := &run{
		parent: parent,
		cancel: cancel,
		done:   make(chan struct{}),
		skip:   make(chan struct{}, 1),
	}

	regen := d.opts.NewTicker(d.opts.Interval)

	var countdown Ticker
	if d.opts.OnCountdown != nil {
		countdown = d.opts.NewTicker(countdownTick)
	}

	go d.loop(ctx, r, regen, countdown)
	return r
}

func (d *Driver) loop(ctx context.Context, r *run, regen, countdown Ticker) {
	defer close(r.done)
	defer func() { regen.Stop() }()

	var countdownC <-chan time.Time
	if countdown != nil {
		defer countdown.Stop()
		countdownC = countdown.C()
	}

	full := d.countdownSeconds()
	remaining := full

	tick := func() {
		d.runCycle(ctx)
		remaining = full
		if countdown != nil {
			// realign so the seconds count down from the regeneration
			countdown.Reset(countdownTick)
		}
		if d.opts.OnCountdown != nil && ctx.Err() == nil {
			d.opts.OnCountdown(remaining)
		}
	}

	tick()

	for {
		select {
		case <-ctx.Done():
			d.release(r)
			return
		case <-regen.C():
			tick()
		case <-r.skip:
			if ctx.Err() != nil {
				continue
			}
			regen.Stop()
			regen = d.opts.NewTicker(d.opts.Interval)
			tick()
		case <-countdownC:
			if remaining > 1 {
				remaining--
			}
			if ctx.Err() == nil {
				d.opts.OnCountdown(remaining)
			}
		}
	}
}

func (d *Driver) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	seq := d.seq.Add(1)
	if err := d.cycle(ctx, seq); err != nil {
		d.opts.OnError(err)
	}
}

// release clears the run when its parent context ended on its own.
func (d *Driver) release(r *run) {
	if r.parent.Err() == nil {
		return
	}
	d.mu.Lock()
	if d.run == r {
		d.run = nil
	}
	d.mu.Unlock()
}

func (d *Driver) countdownSeconds() int {
	n := int(math.Ceil(d.opts.Interval.Seconds()))
	if n < 1 {
		return 1
	}
	return n
}
