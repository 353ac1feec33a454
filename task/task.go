// Package task provides the task queue: the single point where structural
// changes of the graph are applied.
//
// Tasks are appended from any goroutine and launched by the task thread
// on its next tick, in append order, exactly once. Cyclic tasks are
// launched every tick after the one-shot batch.
package task

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/xid"
)

var (
	// ErrPanic is wrapped around recovered task panics.
	ErrPanic = errors.New("task panic")
	// ErrNotComparable is returned when cyclic task can't be compared.
	ErrNotComparable = errors.New("task is not comparable")
	// ErrTimeout is returned when a sync handshake times out.
	ErrTimeout = errors.New("sync timeout")
)

// Task is a unit of work launched by the task thread.
type Task interface {
	Launch(ctx context.Context) error
}

// Func is a named task function. Pointers are comparable, so the same
// Func can be appended and removed as a cyclic task.
type Func struct {
	name string
	fn   func(context.Context) error
}

// NewFunc returns a task that calls fn.
func NewFunc(name string, fn func(context.Context) error) *Func {
	return &Func{
		name: name,
		fn:   fn,
	}
}

// Launch implements Task.
func (f *Func) Launch(ctx context.Context) error {
	return f.fn(ctx)
}

func (f *Func) String() string {
	return f.name
}

// Handle identifies an appended task. It's used to revoke the task before
// it's launched.
type Handle struct {
	id string
}

// ID returns handle id.
func (h Handle) ID() string {
	return h.id
}

// IsZero reports if handle doesn't refer to any task.
func (h Handle) IsZero() bool {
	return h.id == ""
}

func newHandle() Handle {
	return Handle{id: xid.New().String()}
}

// Name returns printable name of the task.
func Name(t Task) string {
	if s, ok := t.(fmt.Stringer); ok {
		return s.String()
	}
	return reflect.TypeOf(t).String()
}

func isComparable(t Task) bool {
	return t != nil && reflect.TypeOf(t).Comparable()
}
