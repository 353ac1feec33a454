package fx

import (
	"gitlab.com/gomidi/midi/v2"

	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/device"
	"pipelined.dev/sequencer/recall"
)

// RecordMIDI plays notes received from the MIDI source and records them
// into the audio notation. Held notes are extended buffer by buffer
// until note off is received.
type RecordMIDI struct {
	base
	source device.MIDISource
	held   map[uint8]*heldNote
	// end of the last processed buffer in beat-ticks.
	position float64
}

type heldNote struct {
	note    audio.Note
	signals []*audio.Signal
}

func newRecordMIDI(r *recall.Run, env recall.Env) (recall.Processor, error) {
	return &RecordMIDI{
		base:   newBase(r),
		source: env.MIDI,
		held:   make(map[uint8]*heldNote),
	}, nil
}

// Process implements recall.Processor.
func (m *RecordMIDI) Process(ctx *recall.StreamContext) error {
	delay, ok := dependency[*Delay](m.run, recall.Delay)
	if !ok {
		return nil
	}
	bufferSize := m.run.Audio().Format().BufferSize
	for _, h := range m.held {
		for _, s := range h.signals {
			if s.Current()+1 >= s.Len() {
				s.Resize(s.Frames() + bufferSize)
			}
		}
	}
	t0, t1 := delay.Window()
	m.position = t1
	if m.source == nil {
		return nil
	}
	for _, msg := range m.source.Poll() {
		var channel, key, velocity uint8
		switch {
		case msg.GetNoteStart(&channel, &key, &velocity):
			m.noteOff(key, t0)
			m.noteOn(ctx, key, velocity, t0, delay.FramesPerTick())
		case msg.GetNoteEnd(&channel, &key):
			m.noteOff(key, t1)
		}
	}
	return nil
}

// Flush implements recall.Flusher. Held notes are recorded.
func (m *RecordMIDI) Flush() error {
	for key := range m.held {
		m.noteOff(key, m.position)
	}
	return nil
}

// Held returns the number of held keys.
func (m *RecordMIDI) Held() int {
	return len(m.held)
}

func (m *RecordMIDI) noteOn(ctx *recall.StreamContext, key, velocity uint8, onset, framesPerTick float64) {
	a := m.run.Audio()
	bufferSize := float64(a.Format().BufferSize)
	n := audio.Note{
		Key:      int(key),
		Velocity: float64(velocity) / 127,
		Onset:    onset,
		// two buffers, extended while the key is held.
		Offset: onset + 2*bufferSize/framesPerTick,
	}
	h := heldNote{note: n}
	for _, in := range lines(a, int(key)%a.Pads(audio.Input)) {
		if s := feedNote(in, ctx.ID.Invocation(), n, 0, framesPerTick); s != nil {
			h.signals = append(h.signals, s)
		}
	}
	m.held[key] = &h
}

func (m *RecordMIDI) noteOff(key uint8, offset float64) {
	h, ok := m.held[key]
	if !ok {
		return
	}
	delete(m.held, key)
	h.note.Offset = max(offset, h.note.Onset)
	if h.note.Valid() {
		a := m.run.Audio()
		notation := a.Notation()
		if notation == nil {
			notation = audio.NewNotation()
			a.SetNotation(notation)
		}
		notation.Add(h.note)
	}
	bufferSize := m.run.Audio().Format().BufferSize
	for _, s := range h.signals {
		// sound until the end of the current buffer.
		s.Resize((s.Current()+1)*bufferSize - s.Offset())
	}
}

// NoteOn returns a note on message, it's used by MIDI listeners and
// tests.
func NoteOn(key, velocity uint8) midi.Message {
	return midi.NoteOn(0, key, velocity)
}

// NoteOff returns a note off message.
func NoteOff(key uint8) midi.Message {
	return midi.NoteOff(0, key)
}
