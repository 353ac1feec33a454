package fx

import (
	"sync"

	goaudio "github.com/go-audio/audio"

	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/recall"
	"pipelined.dev/sequencer/signal"
)

// Stream mixes the signals of the invocation in its recycling. Streamed
// buffers are advanced, done signals are removed.
type Stream struct {
	base
}

func newStream(r *recall.Run, _ recall.Env) (recall.Processor, error) {
	return &Stream{base: newBase(r)}, nil
}

// Process implements recall.Processor.
func (s *Stream) Process(*recall.StreamContext) error {
	return nil
}

// ProcessPost mixes current buffers of the invocation signals into the
// recycling buffer.
func (s *Stream) ProcessPost(ctx *recall.StreamContext) error {
	rc := s.run.Recycling()
	buf := rc.Buffer()
	signal.Clear(buf)
	for _, sig := range rc.FindByOwner(ctx.ID.Invocation()) {
		if current := sig.Stream(); current != nil {
			signal.Mix(buf, current)
		}
		if !sig.Advance() {
			rc.Remove(sig)
		}
	}
	return nil
}

// Play mixes bound stream recyclings into its output channel.
type Play struct {
	base
}

func newPlay(r *recall.Run, _ recall.Env) (recall.Processor, error) {
	return &Play{base: newBase(r)}, nil
}

// Process implements recall.Processor.
func (p *Play) Process(*recall.StreamContext) error {
	return nil
}

// ProcessPost adds recycling buffers to the output buffer.
func (p *Play) ProcessPost(*recall.StreamContext) error {
	out := p.run.Channel().Buffer()
	for _, stream := range p.run.Dependencies(recall.Stream) {
		signal.Mix(out, stream.Recycling().Buffer())
	}
	return nil
}

// Capture appends output buffers of all lines to an interleaved buffer.
type Capture struct {
	base

	mu     sync.Mutex
	buffer *goaudio.FloatBuffer
}

func newCapture(r *recall.Run, _ recall.Env) (recall.Processor, error) {
	a := r.Audio()
	return &Capture{
		base: newBase(r),
		buffer: &goaudio.FloatBuffer{
			Format: a.Format().Audio(a.AudioChannels()),
		},
	}, nil
}

// Process implements recall.Processor.
func (c *Capture) Process(*recall.StreamContext) error {
	return nil
}

// ProcessPost captures the mix of the buffer.
func (c *Capture) ProcessPost(*recall.StreamContext) error {
	outputs := c.run.Audio().Outputs()
	floats := make(signal.Float64, len(outputs))
	for i, out := range outputs {
		floats[i] = out.Buffer()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	signal.AppendInterleaved(c.buffer, floats)
	return nil
}

// Buffer returns a copy of captured samples.
func (c *Capture) Buffer() *goaudio.FloatBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &goaudio.FloatBuffer{
		Format: c.buffer.Format,
		Data:   append([]float64(nil), c.buffer.Data...),
	}
}

// Frames returns the number of captured frames.
func (c *Capture) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.NumFrames()
}

// PlayWave feeds the audio wave into the first pad buffer by buffer. It
// finishes when the end of the wave is reached.
type PlayWave struct {
	base
}

func newPlayWave(r *recall.Run, _ recall.Env) (recall.Processor, error) {
	return &PlayWave{base: newBase(r)}, nil
}

// Process implements recall.Processor.
func (p *PlayWave) Process(ctx *recall.StreamContext) error {
	a := p.run.Audio()
	w := a.Wave()
	bufferSize := a.Format().BufferSize
	index := int(ctx.Buffer) * bufferSize
	if w == nil || index >= w.Len() {
		finish(p.run)
		return nil
	}
	for _, in := range lines(a, 0) {
		rc := in.Recycling()
		if rc == nil {
			continue
		}
		s := a.NewSignal(ctx.ID.Invocation(), 0, bufferSize)
		copy(s.Stream(), w.BufferAt(in.Line(), index, bufferSize))
		rc.Add(s)
	}
	return nil
}

// lines returns input channels of the pad for every line.
func lines(a *audio.Audio, pad int) []*audio.Channel {
	result := make([]*audio.Channel, 0, a.AudioChannels())
	for line := 0; line < a.AudioChannels(); line++ {
		if in := a.Input(pad, line); in != nil {
			result = append(result, in)
		}
	}
	return result
}
