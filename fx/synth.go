package fx

import (
	"fmt"
	"math"
	"sync"

	"github.com/cwbudde/algo-dsp/dsp/core"
	dspsignal "github.com/cwbudde/algo-dsp/dsp/signal"

	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/recall"
)

const (
	wavetableSize = 4096
	// fadeFrames is the length of the linear fade at the end of a voice.
	fadeFrames = 64
)

// Synth is a wavetable oscillator. Every note signal of the invocation in
// its recycling gets a voice on the first feed. Voices are released when
// the signal is removed.
type Synth struct {
	base
	sampleRate float64
	table      []float64

	mu     sync.Mutex
	voices map[*audio.Signal]*voice
	keyOn  map[int]int
}

type voice struct {
	key       int
	phase     float64
	increment float64
	amplitude float64
}

func newSynth(r *recall.Run, _ recall.Env) (recall.Processor, error) {
	sampleRate := r.Audio().Format().SampleRate
	// a single cycle sampled at table size is one period of the table.
	gen := dspsignal.NewGenerator(core.WithSampleRate(wavetableSize))
	table, err := gen.Sine(1, 1, wavetableSize)
	if err != nil {
		return nil, fmt.Errorf("wavetable: %w", err)
	}
	return &Synth{
		base:       newBase(r),
		sampleRate: float64(sampleRate),
		table:      table,
		voices:     make(map[*audio.Signal]*voice),
		keyOn:      make(map[int]int),
	}, nil
}

// Process implements recall.Processor.
func (s *Synth) Process(ctx *recall.StreamContext) error {
	rc := s.run.Channel().Recycling()
	if rc == nil {
		return nil
	}
	for _, sig := range rc.FindByOwner(ctx.ID.Invocation()) {
		s.StreamFeed(sig)
	}
	return nil
}

// StreamFeed fills the current buffer of the note signal. Frames outside
// of the note are cleared. The first feed of a signal allocates a voice
// and increments the key-on counter of its key.
func (s *Synth) StreamFeed(sig *audio.Signal) {
	n, ok := sig.Note()
	if !ok {
		return
	}
	buf := sig.Stream()
	if buf == nil {
		return
	}
	s.mu.Lock()
	v, ok := s.voices[sig]
	if !ok {
		v = s.newVoice(n)
		s.voices[sig] = v
		s.keyOn[n.Key]++
	}
	frames := sig.Frames()
	first := sig.Current()*len(buf) - sig.Offset()
	for i := range buf {
		frame := first + i
		if frame < 0 || frame >= frames {
			buf[i] = 0
			continue
		}
		gain := v.amplitude
		if left := frames - frame; left < fadeFrames {
			gain *= float64(left) / fadeFrames
		}
		buf[i] = gain * s.sample(v.phase)
		v.phase = math.Mod(v.phase+v.increment, wavetableSize)
	}
	s.mu.Unlock()
	if !ok {
		sig.OnRemove(s)
	}
}

// NotifyRemove implements audio.RemoveNotifier. It decrements exactly
// what StreamFeed incremented.
func (s *Synth) NotifyRemove(sig *audio.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.voices[sig]
	if !ok {
		return
	}
	delete(s.voices, sig)
	s.keyOn[v.key]--
	if s.keyOn[v.key] == 0 {
		delete(s.keyOn, v.key)
	}
}

// Voices returns the number of sounding voices.
func (s *Synth) Voices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

// KeyOn returns the number of voices of the key.
func (s *Synth) KeyOn(key int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyOn[key]
}

func (s *Synth) newVoice(n audio.Note) *voice {
	frequency := 440 * math.Pow(2, (float64(n.Key)-69+s.controls.Value(PortTune))/12)
	return &voice{
		key:       n.Key,
		increment: frequency * wavetableSize / s.sampleRate,
		amplitude: n.Velocity * s.controls.Value(PortVolume),
	}
}

// sample interpolates the wavetable linearly.
func (s *Synth) sample(phase float64) float64 {
	i := int(phase)
	frac := phase - float64(i)
	next := i + 1
	if next == wavetableSize {
		next = 0
	}
	return s.table[i]*(1-frac) + s.table[next]*frac
}
