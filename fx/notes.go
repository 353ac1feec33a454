package fx

import (
	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/recall"
	"pipelined.dev/sequencer/signal"
)

// CopyPattern feeds a note into its input channel on every step with the
// pattern bit set.
type CopyPattern struct {
	base
}

func newCopyPattern(r *recall.Run, _ recall.Env) (recall.Processor, error) {
	return &CopyPattern{base: newBase(r)}, nil
}

// Process implements recall.Processor.
func (c *CopyPattern) Process(ctx *recall.StreamContext) error {
	beats, ok := dependency[*CountBeats](c.run, recall.CountBeats)
	if !ok {
		return nil
	}
	step, offset, ok := beats.StepAt(ctx.Buffer)
	if !ok {
		return nil
	}
	ch := c.run.Channel()
	pattern := ch.Pattern()
	if pattern == nil || !pattern.Bit(step) {
		return nil
	}
	delay, ok := dependency[*Delay](c.run, recall.Delay)
	if !ok {
		return nil
	}
	n := audio.Note{
		Key:      int(c.controls.Value(PortKey)),
		Velocity: c.controls.Value(PortVelocity) / 127,
		Onset:    float64(step),
		Offset:   float64(step) + c.controls.Value(PortLength),
	}
	feedNote(ch, ctx.ID.Invocation(), n, offset, delay.FramesPerTick())
	return nil
}

// PlayNotation feeds notes of the audio notation with onset within the
// current step. Note is routed to the pad key modulo number of pads on
// every line.
type PlayNotation struct {
	base
}

func newPlayNotation(r *recall.Run, _ recall.Env) (recall.Processor, error) {
	return &PlayNotation{base: newBase(r)}, nil
}

// Process implements recall.Processor.
func (p *PlayNotation) Process(ctx *recall.StreamContext) error {
	beats, ok := dependency[*CountBeats](p.run, recall.CountBeats)
	if !ok {
		return nil
	}
	step, offset, ok := beats.StepAt(ctx.Buffer)
	if !ok {
		return nil
	}
	delay, ok := dependency[*Delay](p.run, recall.Delay)
	if !ok {
		return nil
	}
	a := p.run.Audio()
	framesPerTick := delay.FramesPerTick()
	from := float64(step)
	pads := a.Pads(audio.Input)
	for _, n := range a.Notation().Range(from, from+1) {
		frames := offset + signal.FramesBetween(from, n.Onset, framesPerTick)
		pad := n.Key % pads
		if pad < 0 {
			pad += pads
		}
		for _, in := range lines(a, pad) {
			feedNote(in, ctx.ID.Invocation(), n, frames, framesPerTick)
		}
	}
	return nil
}
