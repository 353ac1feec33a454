package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"pipelined.dev/sequencer/internal/worker"
	"pipelined.dev/sequencer/log"
	"pipelined.dev/sequencer/metric"
)

// Option provides a way to set functional parameters to queue.
type Option func(*Queue)

// WithLocker sets locker that is held while tasks are launched. The
// engine passes the write side of the graph lock here.
func WithLocker(l sync.Locker) Option {
	return func(q *Queue) {
		q.locker = l
	}
}

// WithLogger sets logger of the queue.
func WithLogger(l logrus.FieldLogger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// WithMetric sets metric of the queue.
func WithMetric(m *metric.Metric) Option {
	return func(q *Queue) {
		q.metric = m
	}
}

// WithExternSync makes queue drain only after an external host announced
// the tick with ExternTick.
func WithExternSync() Option {
	return func(q *Queue) {
		q.extern = true
	}
}

type entry struct {
	handle Handle
	task   Task
}

// Queue is a double-buffered task queue. Appended tasks go into incoming
// buffer, Run swaps it with executing buffer under the mutex and launches
// tasks without holding it.
type Queue struct {
	locker sync.Locker
	logger logrus.FieldLogger
	metric *metric.Metric
	extern bool

	mu        sync.Mutex
	incoming  []entry
	executing []entry
	ran       chan struct{}
	announced bool

	// cyclic is a copy-on-write list, writers are serialized by cmu.
	cmu    sync.Mutex
	cyclic atomic.Pointer[[]Task]
}

// NewQueue creates a queue.
func NewQueue(options ...Option) *Queue {
	q := Queue{
		logger: log.Discard(),
		ran:    make(chan struct{}),
	}
	q.cyclic.Store(&[]Task{})
	for _, option := range options {
		option(&q)
	}
	return &q
}

// Append adds a task to the next tick.
func (q *Queue) Append(t Task) Handle {
	h := newHandle()
	q.mu.Lock()
	q.incoming = append(q.incoming, entry{handle: h, task: t})
	pending := len(q.incoming)
	q.mu.Unlock()
	q.metric.TaskQueued(1)
	q.metric.SetPending(pending)
	return h
}

// AppendAll adds tasks to the next tick. Tasks are launched in provided
// order and can't be interleaved with tasks of other callers.
func (q *Queue) AppendAll(ts ...Task) []Handle {
	handles := make([]Handle, len(ts))
	q.mu.Lock()
	for i, t := range ts {
		handles[i] = newHandle()
		q.incoming = append(q.incoming, entry{handle: handles[i], task: t})
	}
	pending := len(q.incoming)
	q.mu.Unlock()
	q.metric.TaskQueued(len(ts))
	q.metric.SetPending(pending)
	return handles
}

// Revoke removes the task if it wasn't taken for execution yet.
func (q *Queue) Revoke(h Handle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.incoming {
		if q.incoming[i].handle == h {
			q.incoming = append(q.incoming[:i], q.incoming[i+1:]...)
			q.metric.SetPending(len(q.incoming))
			return true
		}
	}
	return false
}

// Pending returns the number of tasks waiting for the next tick.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.incoming)
}

// AppendCyclic adds a task that is launched every tick. Adding the same
// task twice has no effect.
func (q *Queue) AppendCyclic(t Task) error {
	if !isComparable(t) {
		return fmt.Errorf("%w: %T", ErrNotComparable, t)
	}
	q.cmu.Lock()
	defer q.cmu.Unlock()
	current := *q.cyclic.Load()
	for _, c := range current {
		if c == t {
			return nil
		}
	}
	next := make([]Task, len(current), len(current)+1)
	copy(next, current)
	next = append(next, t)
	q.cyclic.Store(&next)
	return nil
}

// RemoveCyclic removes cyclic task. It returns false if task wasn't
// found.
func (q *Queue) RemoveCyclic(t Task) bool {
	if !isComparable(t) {
		return false
	}
	q.cmu.Lock()
	defer q.cmu.Unlock()
	current := *q.cyclic.Load()
	for i, c := range current {
		if c == t {
			next := make([]Task, 0, len(current)-1)
			next = append(next, current[:i]...)
			next = append(next, current[i+1:]...)
			q.cyclic.Store(&next)
			return true
		}
	}
	return false
}

// Cyclic returns cyclic tasks.
func (q *Queue) Cyclic() []Task {
	return append([]Task(nil), *q.cyclic.Load()...)
}

// Run launches one tick: all tasks appended before the swap, then all
// cyclic tasks. Task errors and panics are logged and don't stop the
// batch. It returns the number of launched one-shot tasks.
func (q *Queue) Run(ctx context.Context) int {
	q.mu.Lock()
	if q.extern && !q.announced {
		q.mu.Unlock()
		return 0
	}
	q.announced = false
	q.incoming, q.executing = q.executing[:0], q.incoming
	batch := q.executing
	ran := q.ran
	q.ran = make(chan struct{})
	q.mu.Unlock()
	q.metric.SetPending(q.Pending())

	if q.locker != nil {
		q.locker.Lock()
	}
	for i := range batch {
		q.launch(ctx, batch[i].task)
		batch[i] = entry{}
	}
	for _, t := range *q.cyclic.Load() {
		q.launch(ctx, t)
	}
	if q.locker != nil {
		q.locker.Unlock()
	}
	close(ran)
	return len(batch)
}

// WaitRun blocks until every task appended before the call is launched.
func (q *Queue) WaitRun(timeout time.Duration) error {
	q.mu.Lock()
	ran := q.ran
	q.mu.Unlock()
	select {
	case <-ran:
		return nil
	case <-time.After(timeout):
		return ErrTimeout
	}
}

// ExternTick announces a tick of the external host and waits until the
// queue is drained.
func (q *Queue) ExternTick(ctx context.Context, timeout time.Duration) error {
	q.mu.Lock()
	q.announced = true
	ran := q.ran
	q.mu.Unlock()
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return ErrTimeout
	}
}

func (q *Queue) launch(ctx context.Context, t Task) {
	err := safeLaunch(ctx, t)
	q.metric.TaskLaunched()
	if err != nil {
		q.metric.TaskFailed()
		q.logger.WithField("task", Name(t)).WithError(err).Warn("task failed")
	}
}

func safeLaunch(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return t.Launch(ctx)
}

// Appender appends tasks of a single origin through the worker pool, so
// the caller never waits for the queue mutex. Tasks of one appender keep
// their order.
type Appender struct {
	queue *Queue
	pool  *worker.Pool

	mu        sync.Mutex
	pending   []Task
	scheduled bool
}

// Appender returns a new appender bound to the pool.
func (q *Queue) Appender(p *worker.Pool) *Appender {
	return &Appender{
		queue: q,
		pool:  p,
	}
}

// Append schedules tasks to be appended to the queue. It returns
// worker.ErrClosed if the pool is closed, provided tasks are not
// appended then.
func (a *Appender) Append(ts ...Task) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, ts...)
	if a.scheduled {
		return nil
	}
	if err := a.pool.Go(a.flush); err != nil {
		a.pending = nil
		return err
	}
	a.scheduled = true
	return nil
}

// flush runs even if the pool is closed while it waits for a slot,
// accepted tasks are never lost.
func (a *Appender) flush(context.Context) {
	for {
		a.mu.Lock()
		batch := a.pending
		a.pending = nil
		if len(batch) == 0 {
			a.scheduled = false
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()
		a.queue.AppendAll(batch...)
	}
}
