// Package mock provides mocks for sequencer components and allows to
// execute integration tests.
package mock

import (
	"context"
	"sync"

	"pipelined.dev/sequencer/plugin"
	"pipelined.dev/sequencer/signal"
)

// Unit mocks a plugin.Unit interface.
type Unit struct {
	counter
	Specifier   string
	Gain        float64
	ErrorOnCall error
	PanicOnCall bool
	Hooks
}

// Descriptor implements plugin.Unit.
func (m *Unit) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Specifier: m.Specifier,
		Ports: []plugin.Port{
			{Name: "gain", Min: 0, Max: 2, Default: 1},
		},
	}
}

// Process implements plugin.Unit. Buffer is scaled by Gain if it's set.
func (m *Unit) Process(buf []float64) error {
	if m.ErrorOnCall != nil {
		return m.ErrorOnCall
	}
	if m.PanicOnCall {
		panic("mock unit panic")
	}
	if m.Gain != 0 {
		signal.Gain(buf, m.Gain)
	}
	m.advance(len(buf))
	return nil
}

// Activate implements plugin.Activator.
func (m *Unit) Activate(int, int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Activated = true
	return m.ErrorOnActivate
}

// Deactivate implements plugin.Deactivator.
func (m *Unit) Deactivate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deactivated = true
	return m.ErrorOnDeactivate
}

// Cleanup implements plugin.Cleaner.
func (m *Unit) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cleaned = true
	return m.ErrorOnCleanup
}

// Hooks allows to mock unit hooks.
type Hooks struct {
	Activated   bool
	Deactivated bool
	Cleaned     bool

	ErrorOnActivate   error
	ErrorOnDeactivate error
	ErrorOnCleanup    error
}

// Task mocks a task.Task interface.
type Task struct {
	counter
	Name        string
	ErrorOnCall error
	PanicOnCall bool
	Recorder    *Recorder
	Fn          func(context.Context)
}

// Launch implements task.Task.
func (m *Task) Launch(ctx context.Context) error {
	m.advance(0)
	if m.Recorder != nil {
		m.Recorder.Record(m.Name)
	}
	if m.Fn != nil {
		m.Fn(ctx)
	}
	if m.PanicOnCall {
		panic("mock task panic")
	}
	return m.ErrorOnCall
}

// Recorder records names of launched tasks in launch order.
type Recorder struct {
	mu    sync.Mutex
	names []string
}

// Record appends a name.
func (r *Recorder) Record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

// Names returns recorded names.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

// counter counts calls and samples.
type counter struct {
	mu       sync.Mutex
	messages int
	samples  int
}

// advance counter's metrics.
func (c *counter) advance(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages++
	c.samples = c.samples + size
}

// Count returns calls and samples metrics.
func (c *counter) Count() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages, c.samples
}
