// Package fx provides the processing-unit families of the sequencer.
// Every family is a recall.Processor created by the factory of its
// template.
//
// Runs of one invocation are processed in three stages. Process runs
// audio, channel and recycling levels in order, post stage runs them in
// reverse. Note feeders and oscillators work in Process, mixing and
// effects on recycling buffers work in ProcessPost.
package fx

import (
	"errors"
	"fmt"
	"sync"

	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/plugin"
	"pipelined.dev/sequencer/recall"
)

var (
	// ErrUnknownPort is returned when port isn't declared by template.
	ErrUnknownPort = errors.New("unknown port")
	// ErrNoSoundcard is returned when clock-driven unit is created
	// without soundcard.
	ErrNoSoundcard = errors.New("no soundcard")
	// ErrNoLoader is returned when plugin unit is created without loader.
	ErrNoLoader = errors.New("no plugin loader")
	// ErrInvalidDelay is returned when soundcard delay is not positive.
	ErrInvalidDelay = errors.New("invalid delay")
)

// Controller is a processor with control ports.
type Controller interface {
	Controls() *Controls
}

// Controls holds values of control ports. Values are clamped to the port
// range.
type Controls struct {
	mu     sync.RWMutex
	ports  []plugin.Port
	values map[string]float64
}

// NewControls returns controls initialized with port defaults.
func NewControls(ports []plugin.Port) *Controls {
	c := Controls{
		ports:  ports,
		values: make(map[string]float64, len(ports)),
	}
	for _, p := range ports {
		c.values[p.Name] = p.Default
	}
	return &c
}

// Set changes port value.
func (c *Controls) Set(name string, v float64) error {
	for _, p := range c.ports {
		if p.Name != name {
			continue
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.values[name] = p.Clamp(v)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownPort, name)
}

// Value returns port value. Unknown ports return zero.
func (c *Controls) Value(name string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[name]
}

// Ports returns declared ports.
func (c *Controls) Ports() []plugin.Port {
	return c.ports
}

// base is embedded by all processors.
type base struct {
	run      *recall.Run
	controls *Controls
}

func newBase(r *recall.Run) base {
	return base{
		run:      r,
		controls: NewControls(r.Template().Ports),
	}
}

// Controls implements Controller.
func (b *base) Controls() *Controls {
	return b.controls
}

// dependency returns the processor of bound run of the kind.
func dependency[T recall.Processor](r *recall.Run, k recall.Kind) (T, bool) {
	var zero T
	target := r.Dependency(k)
	if target == nil {
		return zero, false
	}
	p, ok := target.Processor().(T)
	return p, ok
}

// finish marks the run and its delay as done. It ends the invocation
// unless it has other audio level runs.
func finish(r *recall.Run) {
	if err := r.Done(); err != nil {
		return
	}
	if d := r.Dependency(recall.Delay); d != nil {
		_ = d.Done()
	}
}

// feedNote creates a note signal in the channel recycling. Negative
// offset means the note started before the current buffer, its frames
// are shortened accordingly.
func feedNote(ch *audio.Channel, owner string, n audio.Note, offset int, framesPerTick float64) *audio.Signal {
	rc := ch.Recycling()
	if rc == nil {
		return nil
	}
	s := ch.Audio().NewNoteSignal(owner, n, max(offset, 0), framesPerTick)
	if offset < 0 {
		s.Resize(s.Frames() + offset)
	}
	if s.Len() == 0 {
		s.Release()
		return nil
	}
	rc.Add(s)
	return s
}
