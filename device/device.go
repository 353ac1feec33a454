// Package device defines the soundcard and MIDI boundaries of the
// sequencer. Drivers live outside of this module, Null is a clock-only
// soundcard for offline rendering and tests.
package device

import (
	"errors"
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2"

	"pipelined.dev/sequencer/audio"
)

// DefaultDelayFactor makes a beat-tick a sixteenth note.
const DefaultDelayFactor = 0.25

// ErrInvalidBPM is returned when bpm is not positive.
var ErrInvalidBPM = errors.New("invalid bpm")

// Soundcard provides the clock of device threads.
type Soundcard interface {
	SampleRate() int
	BufferSize() int
	BPM() float64
	DelayFactor() float64
	// Delay returns the number of buffers per beat-tick.
	Delay() float64
}

// MIDISource provides MIDI messages received since the last poll.
type MIDISource interface {
	Poll() []midi.Message
}

// Null is a soundcard without a device.
type Null struct {
	format audio.Format

	mu          sync.RWMutex
	bpm         float64
	delayFactor float64
}

// NewNull returns a soundcard with provided format and tempo.
func NewNull(format audio.Format, bpm float64) (*Null, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if bpm <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBPM, bpm)
	}
	return &Null{
		format:      format,
		bpm:         bpm,
		delayFactor: DefaultDelayFactor,
	}, nil
}

// SampleRate returns sample rate of the soundcard.
func (n *Null) SampleRate() int {
	return n.format.SampleRate
}

// BufferSize returns buffer size of the soundcard.
func (n *Null) BufferSize() int {
	return n.format.BufferSize
}

// BPM returns tempo.
func (n *Null) BPM() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.bpm
}

// SetBPM changes tempo.
func (n *Null) SetBPM(bpm float64) error {
	if bpm <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidBPM, bpm)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bpm = bpm
	return nil
}

// DelayFactor returns the beat fraction of a single tick.
func (n *Null) DelayFactor() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.delayFactor
}

// SetDelayFactor changes the beat fraction of a single tick.
func (n *Null) SetDelayFactor(f float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delayFactor = f
}

// Delay returns the number of buffers per beat-tick.
func (n *Null) Delay() float64 {
	return Delay(n)
}

// Delay computes buffers per beat-tick of the soundcard:
// 60 * (samplerate / buffer size) / bpm * delay factor.
func Delay(card Soundcard) float64 {
	bpm := card.BPM()
	if bpm <= 0 || card.BufferSize() == 0 {
		return 0
	}
	frequency := float64(card.SampleRate()) / float64(card.BufferSize())
	return 60 * frequency / bpm * card.DelayFactor()
}

// FramesPerTick returns the number of frames of a single beat-tick.
func FramesPerTick(card Soundcard) float64 {
	return card.Delay() * float64(card.BufferSize())
}

// MIDIBuffer is an in-memory MIDI source. Messages are pushed by a
// listener and polled by the recording unit.
type MIDIBuffer struct {
	mu       sync.Mutex
	messages []midi.Message
}

// Push appends a message.
func (b *MIDIBuffer) Push(msg midi.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
}

// Poll returns pushed messages and clears the buffer.
func (b *MIDIBuffer) Poll() []midi.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := b.messages
	b.messages = nil
	return result
}
