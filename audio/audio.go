// Package audio provides the data model of the sequencer: audio, channels,
// recyclings and signals together with already parsed note containers.
//
// Lock order is audio, channel, recycling. Topology changes (pads and
// audio channels) must only be issued from tasks, never concurrently
// with streaming.
package audio

import (
	"errors"
	"fmt"
	"sync"

	"pipelined.dev/sequencer/internal/pool"
)

var (
	// ErrInvalidPads is returned when number of pads is less than one.
	ErrInvalidPads = errors.New("invalid number of pads")
	// ErrInvalidAudioChannels is returned when number of audio channels
	// is less than one.
	ErrInvalidAudioChannels = errors.New("invalid number of audio channels")
)

// Audio is a logical instrument with input and output channels. Inputs
// are laid out as pads × lines, outputs have one channel per line.
type Audio struct {
	name   string
	format Format
	pool   *pool.Pool

	mu       sync.RWMutex
	inputs   [][]*Channel
	outputs  []*Channel
	notation *Notation
	wave     *Wave
}

// Remap is a change of a channel recycling chain.
type Remap struct {
	Channel *Channel
	Old     []*Recycling
	New     []*Recycling
}

// Topology describes the result of a structural change.
type Topology struct {
	Added    []*Channel
	Removed  []*Channel
	Remapped []Remap
}

// New creates an audio with provided number of audio channels and input
// pads.
func New(name string, format Format, lines, pads int) (*Audio, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if lines < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAudioChannels, lines)
	}
	if pads < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPads, pads)
	}
	a := Audio{
		name:     name,
		format:   format,
		pool:     pool.New(format.BufferSize),
		notation: NewNotation(),
		wave:     NewWave(nil),
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for l := 0; l < lines; l++ {
		a.outputs = append(a.outputs, a.newOutput(l))
	}
	for p := 0; p < pads; p++ {
		a.inputs = append(a.inputs, a.newPad(p, lines))
	}
	a.rechain()
	return &a, nil
}

// Name returns audio name.
func (a *Audio) Name() string {
	return a.name
}

// Format returns audio stream format.
func (a *Audio) Format() Format {
	return a.format
}

// AudioChannels returns number of lines.
func (a *Audio) AudioChannels() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.outputs)
}

// Pads returns number of pads in provided direction. Outputs always have
// a single pad.
func (a *Audio) Pads(d Direction) int {
	if d == Output {
		return 1
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.inputs)
}

// Input returns input channel or nil.
func (a *Audio) Input(pad, line int) *Channel {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if pad < 0 || pad >= len(a.inputs) || line < 0 || line >= len(a.inputs[pad]) {
		return nil
	}
	return a.inputs[pad][line]
}

// Output returns output channel or nil.
func (a *Audio) Output(line int) *Channel {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if line < 0 || line >= len(a.outputs) {
		return nil
	}
	return a.outputs[line]
}

// Inputs returns input channels ordered by pad, then line.
func (a *Audio) Inputs() []*Channel {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var result []*Channel
	for _, pad := range a.inputs {
		result = append(result, pad...)
	}
	return result
}

// Outputs returns output channels ordered by line.
func (a *Audio) Outputs() []*Channel {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]*Channel(nil), a.outputs...)
}

// Notation returns notation of the audio.
func (a *Audio) Notation() *Notation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.notation
}

// SetNotation replaces notation of the audio.
func (a *Audio) SetNotation(n *Notation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notation = n
}

// Wave returns wave of the audio.
func (a *Audio) Wave() *Wave {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wave
}

// SetWave replaces wave of the audio.
func (a *Audio) SetWave(w *Wave) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.wave = w
}

// ClearOutput silences output buffers of all lines.
func (a *Audio) ClearOutput() {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, c := range a.outputs {
		for i := range c.buffer {
			c.buffer[i] = 0
		}
	}
}

// SetPads changes the number of input pads. New pads are appended,
// removed pads are taken from the end, so indices of remaining pads are
// stable.
func (a *Audio) SetPads(pads int) (Topology, error) {
	if pads < 1 {
		return Topology{}, fmt.Errorf("%w: %d", ErrInvalidPads, pads)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var t Topology
	lines := len(a.outputs)
	for p := len(a.inputs); p < pads; p++ {
		pad := a.newPad(p, lines)
		a.inputs = append(a.inputs, pad)
		t.Added = append(t.Added, pad...)
	}
	for p := pads; p < len(a.inputs); p++ {
		t.Removed = append(t.Removed, a.inputs[p]...)
	}
	a.inputs = a.inputs[:pads]
	t.Remapped = a.rechain()
	return t, nil
}

// SetAudioChannels changes the number of lines. Every pad gets a new
// input channel per added line and a new output channel is created.
func (a *Audio) SetAudioChannels(lines int) (Topology, error) {
	if lines < 1 {
		return Topology{}, fmt.Errorf("%w: %d", ErrInvalidAudioChannels, lines)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var t Topology
	for l := len(a.outputs); l < lines; l++ {
		out := a.newOutput(l)
		a.outputs = append(a.outputs, out)
		t.Added = append(t.Added, out)
		for p := range a.inputs {
			in := a.newInput(p, l)
			a.inputs[p] = append(a.inputs[p], in)
			t.Added = append(t.Added, in)
		}
	}
	for l := lines; l < len(a.outputs); l++ {
		out := a.outputs[l]
		t.Removed = append(t.Removed, out)
		for p := range a.inputs {
			t.Removed = append(t.Removed, a.inputs[p][l])
		}
		t.Remapped = append(t.Remapped, Remap{
			Channel: out,
			Old:     out.ReplaceRecyclings(nil),
		})
	}
	if lines < len(a.outputs) {
		a.outputs = a.outputs[:lines]
		for p := range a.inputs {
			a.inputs[p] = a.inputs[p][:lines]
		}
	}
	t.Remapped = append(t.Remapped, a.rechain()...)
	return t, nil
}

// rechain rebuilds output chains from inputs and returns changed chains.
func (a *Audio) rechain() []Remap {
	var result []Remap
	for l, out := range a.outputs {
		chain := make([]*Recycling, 0, len(a.inputs))
		for p := range a.inputs {
			chain = append(chain, a.inputs[p][l].Recycling())
		}
		if old := out.Recyclings(); !SameChain(old, chain) {
			out.ReplaceRecyclings(chain)
			result = append(result, Remap{
				Channel: out,
				Old:     old,
				New:     chain,
			})
		}
	}
	return result
}

func (a *Audio) newPad(pad, lines int) []*Channel {
	result := make([]*Channel, lines)
	for l := range result {
		result[l] = a.newInput(pad, l)
	}
	return result
}

func (a *Audio) newInput(pad, line int) *Channel {
	c := &Channel{
		audio:     a,
		direction: Input,
		pad:       pad,
		line:      line,
	}
	c.recyclings = []*Recycling{newRecycling(c, a.format.BufferSize)}
	return c
}

func (a *Audio) newOutput(line int) *Channel {
	return &Channel{
		audio:     a,
		direction: Output,
		line:      line,
		buffer:    make([]float64, a.format.BufferSize),
	}
}
