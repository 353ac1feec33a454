package fx

import (
	"fmt"
	"math"

	"pipelined.dev/sequencer/device"
	"pipelined.dev/sequencer/recall"
	"pipelined.dev/sequencer/signal"
)

// Delay is the beat clock of an invocation. Every buffer advances the
// position by 1/delay beat-ticks, where delay is the number of buffers
// per beat-tick reported by the soundcard. At most one beat-tick starts
// within a buffer.
type Delay struct {
	base
	card device.Soundcard

	position  float64
	processed bool
	buffer    uint64
	t0, t1    float64
	onTic     bool
	tic       uint64
	offset    int
}

func newDelay(r *recall.Run, env recall.Env) (recall.Processor, error) {
	if env.Card == nil {
		return nil, ErrNoSoundcard
	}
	return &Delay{
		base: newBase(r),
		card: env.Card,
	}, nil
}

// Process implements recall.Processor.
func (d *Delay) Process(ctx *recall.StreamContext) error {
	delay := d.card.Delay()
	if delay <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDelay, delay)
	}
	d.t0 = d.position
	d.position += 1 / delay
	d.t1 = d.position
	next := math.Ceil(d.t0)
	d.onTic = next < d.t1
	if d.onTic {
		d.tic = uint64(next)
		d.offset = min(signal.FramesBetween(d.t0, next, d.FramesPerTick()), d.card.BufferSize()-1)
	}
	d.buffer = ctx.Buffer
	d.processed = true
	return nil
}

// Reset implements recall.Resetter.
func (d *Delay) Reset() error {
	d.position = 0
	d.processed = false
	return nil
}

// Window returns beat-tick positions covered by the last buffer.
func (d *Delay) Window() (float64, float64) {
	return d.t0, d.t1
}

// TicAt returns the beat-tick that starts within the buffer and its frame
// offset.
func (d *Delay) TicAt(buffer uint64) (uint64, int, bool) {
	if !d.processed || d.buffer != buffer || !d.onTic {
		return 0, 0, false
	}
	return d.tic, d.offset, true
}

// FramesPerTick returns the length of a beat-tick in frames.
func (d *Delay) FramesPerTick() float64 {
	return device.FramesPerTick(d.card)
}

// CountBeats maps beat-ticks of the delay onto steps. Looping restarts
// at loop-start when loop-end is reached, otherwise run finishes there.
type CountBeats struct {
	base
	next   uint64
	step   uint64
	offset int
	buffer uint64
	fired  bool
}

func newCountBeats(r *recall.Run, _ recall.Env) (recall.Processor, error) {
	c := CountBeats{base: newBase(r)}
	c.next = c.loopStart()
	return &c, nil
}

// Process implements recall.Processor.
func (c *CountBeats) Process(ctx *recall.StreamContext) error {
	c.fired = false
	delay, ok := dependency[*Delay](c.run, recall.Delay)
	if !ok {
		return nil
	}
	_, offset, ok := delay.TicAt(ctx.Buffer)
	if !ok {
		return nil
	}
	start, end := c.loopStart(), c.loopEnd()
	if c.next >= end {
		if !c.Looping() {
			finish(c.run)
			return nil
		}
		c.next = start
	}
	c.step = c.next
	c.next++
	c.offset = offset
	c.buffer = ctx.Buffer
	c.fired = true
	return nil
}

// Reset implements recall.Resetter.
func (c *CountBeats) Reset() error {
	c.next = c.loopStart()
	c.fired = false
	return nil
}

// StepAt returns the step that starts within the buffer and its frame
// offset.
func (c *CountBeats) StepAt(buffer uint64) (uint64, int, bool) {
	if !c.fired || c.buffer != buffer {
		return 0, 0, false
	}
	return c.step, c.offset, true
}

// Looping reports if loop port is on.
func (c *CountBeats) Looping() bool {
	return c.controls.Value(PortLoop) >= 0.5
}

func (c *CountBeats) loopStart() uint64 {
	return uint64(c.controls.Value(PortLoopStart))
}

func (c *CountBeats) loopEnd() uint64 {
	return max(uint64(c.controls.Value(PortLoopEnd)), c.loopStart()+1)
}
