// Package thread provides the tree of real-time threads. Every thread
// ticks its body at a fixed frequency. Children are started by their
// parent and stopped before it.
package thread

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"pipelined.dev/sequencer/log"
	"pipelined.dev/sequencer/metric"
)

// ErrInvalidFrequency is returned when thread frequency is not positive.
var ErrInvalidFrequency = errors.New("invalid frequency")

// TickFunc is a body of a thread tick. It must not block beyond the
// bounded task queue drain.
type TickFunc func(ctx context.Context)

// Option provides a way to set functional parameters to thread.
type Option func(*Thread)

// WithLogger sets logger of the thread.
func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Thread) {
		t.logger = l
	}
}

// WithMetric sets metric of the thread.
func WithMetric(m *metric.Metric) Option {
	return func(t *Thread) {
		t.meter = m.Meter(t.name)
	}
}

// Thread is a node of the thread tree.
type Thread struct {
	name      string
	frequency float64
	period    time.Duration
	tick      TickFunc
	logger    logrus.FieldLogger
	meter     *metric.Meter

	// start barrier
	mu      sync.Mutex
	cond    *sync.Cond
	running bool
	started bool
	queue   []*Thread
	cancel  context.CancelFunc
	done    chan struct{}
	parent  *Thread

	children atomic.Pointer[[]*Thread]
	tic      atomic.Uint64
	lastTick atomic.Int64
}

// New creates a thread that ticks with provided frequency in Hz.
func New(name string, frequency float64, tick TickFunc, options ...Option) (*Thread, error) {
	if frequency <= 0 {
		return nil, fmt.Errorf("%w: %s %v", ErrInvalidFrequency, name, frequency)
	}
	if tick == nil {
		tick = func(context.Context) {}
	}
	t := Thread{
		name:      name,
		frequency: frequency,
		period:    time.Duration(float64(time.Second) / frequency),
		tick:      tick,
		logger:    log.Discard(),
	}
	t.cond = sync.NewCond(&t.mu)
	t.children.Store(&[]*Thread{})
	for _, option := range options {
		option(&t)
	}
	t.logger = t.logger.WithField("thread", name)
	return &t, nil
}

// FrequencyOf returns the frequency of a device thread.
func FrequencyOf(sampleRate, bufferSize int) float64 {
	if bufferSize <= 0 {
		return 0
	}
	return float64(sampleRate) / float64(bufferSize)
}

// Name returns thread name.
func (t *Thread) Name() string {
	return t.name
}

// Frequency returns ticks per second.
func (t *Thread) Frequency() float64 {
	return t.frequency
}

// Period returns duration of a single tick.
func (t *Thread) Period() time.Duration {
	return t.period
}

// Tic returns the number of completed ticks.
func (t *Thread) Tic() uint64 {
	return t.tic.Load()
}

// LastTick returns the time of the last completed tick.
func (t *Thread) LastTick() time.Time {
	ns := t.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Hangs reports if running thread missed ticks for longer than provided
// number of periods.
func (t *Thread) Hangs(periods int) bool {
	if !t.IsRunning() {
		return false
	}
	last := t.LastTick()
	if last.IsZero() {
		return false
	}
	return time.Since(last) > time.Duration(periods)*t.period
}

// IsRunning reports if thread is running.
func (t *Thread) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Parent returns parent thread or nil.
func (t *Thread) Parent() *Thread {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.parent
}

// Children returns a snapshot of children.
func (t *Thread) Children() []*Thread {
	return *t.children.Load()
}

// Toplevel returns the root of the tree.
func (t *Thread) Toplevel() *Thread {
	current := t
	for {
		parent := current.Parent()
		if parent == nil {
			return current
		}
		current = parent
	}
}

// Walk calls fn for the thread and all its descendants depth-first.
func (t *Thread) Walk(fn func(*Thread)) {
	fn(t)
	for _, c := range t.Children() {
		c.Walk(fn)
	}
}

// Find returns the first thread in the subtree with provided name.
func (t *Thread) Find(name string) *Thread {
	if t.name == name {
		return t
	}
	for _, c := range t.Children() {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// AddChild links the child. If the thread is running, child is started
// on the next tick. It must be called from a task.
func (t *Thread) AddChild(child *Thread) {
	child.mu.Lock()
	child.parent = t
	child.mu.Unlock()

	current := *t.children.Load()
	next := make([]*Thread, len(current), len(current)+1)
	copy(next, current)
	next = append(next, child)
	t.children.Store(&next)

	t.mu.Lock()
	if t.running {
		t.queue = append(t.queue, child)
	}
	t.mu.Unlock()
}

// RemoveChild stops and unlinks the child. It returns false if child
// isn't linked to the thread. It must be called from a task and never
// for the thread that executes the task.
func (t *Thread) RemoveChild(child *Thread) bool {
	current := *t.children.Load()
	next := make([]*Thread, 0, len(current))
	for _, c := range current {
		if c != child {
			next = append(next, c)
		}
	}
	if len(next) == len(current) {
		return false
	}
	t.children.Store(&next)

	t.mu.Lock()
	for i, q := range t.queue {
		if q == child {
			t.queue = append(t.queue[:i], t.queue[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	child.Stop()
	child.mu.Lock()
	child.parent = nil
	child.mu.Unlock()
	return true
}

// Start runs the thread and blocks until its children are started and
// the loop is ready to tick. Starting a running thread has no effect.
func (t *Thread) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.running = true
	t.started = false
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(ctx, t.done)
	for !t.started {
		t.cond.Wait()
	}
}

// Stop halts the thread. Children are stopped first, depth-first.
// Stopping an idle thread has no effect.
func (t *Thread) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.queue = nil
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	for _, c := range t.Children() {
		c.Stop()
	}
	cancel()
	<-done
	t.logger.Debug("stopped")
}

func (t *Thread) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t.mu.Lock()
	for _, c := range t.Children() {
		c.Start()
	}
	t.started = true
	t.cond.Broadcast()
	t.mu.Unlock()
	t.logger.Debug("started")

	ticker := time.NewTicker(t.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		t.startQueued()
		begin := time.Now()
		t.tick(ctx)
		elapsed := time.Since(begin)
		t.tic.Add(1)
		t.lastTick.Store(time.Now().UnixNano())
		if t.meter.Tick(elapsed, t.period) {
			t.logger.WithField("elapsed", elapsed).Warn("tick overrun")
		}
	}
}

// startQueued starts children added while the thread was running. The
// mutex is held, so Stop can't miss a child that is being started.
func (t *Thread) startQueued() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	for _, c := range t.queue {
		c.Start()
	}
	t.queue = nil
}
