package audio

import (
	"sync"

	"pipelined.dev/sequencer/internal/pool"
	"pipelined.dev/sequencer/signal"
)

// RemoveNotifier is notified when a signal is removed from its recycling.
type RemoveNotifier interface {
	NotifyRemove(s *Signal)
}

// Signal is a stream of fixed-size buffers with a cursor. It's created by
// a single invocation and destroyed when its invocation ends or its
// recycling is torn down.
type Signal struct {
	owner string
	pool  *pool.Pool

	mu        sync.Mutex
	note      Note
	hasNote   bool
	offset    int
	frames    int
	stream    [][]float64
	current   int
	notifiers []RemoveNotifier
	released  bool
}

// NewSignal allocates a signal owned by the invocation. Frames start at
// offset within the first buffer.
func (a *Audio) NewSignal(owner string, offset, frames int) *Signal {
	s := Signal{
		owner:  owner,
		pool:   a.pool,
		offset: offset,
		frames: frames,
	}
	n := signal.BuffersFor(offset, frames, a.pool.BufferSize())
	s.stream = make([][]float64, n)
	for i := range s.stream {
		s.stream[i] = a.pool.Alloc()
	}
	return &s
}

// NewNoteSignal allocates a signal for the note. Length is derived from
// the note length and the number of frames per beat-tick.
func (a *Audio) NewNoteSignal(owner string, n Note, offset int, framesPerTick float64) *Signal {
	s := a.NewSignal(owner, offset, signal.FramesBetween(n.Onset, n.Offset, framesPerTick))
	s.note = n
	s.hasNote = true
	return s
}

// Owner returns the invocation id that created the signal.
func (s *Signal) Owner() string {
	return s.owner
}

// Note returns attached note.
func (s *Signal) Note() (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.note, s.hasNote
}

// Offset returns the first sounding frame in the first buffer.
func (s *Signal) Offset() int {
	return s.offset
}

// Frames returns the number of sounding frames.
func (s *Signal) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Len returns the number of buffers.
func (s *Signal) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stream)
}

// Current returns the index of current buffer.
func (s *Signal) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Stream returns current buffer or nil if signal is done.
func (s *Signal) Stream() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current >= len(s.stream) {
		return nil
	}
	return s.stream[s.current]
}

// Buffers returns all buffers of the stream.
func (s *Signal) Buffers() [][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// Advance moves cursor to the next buffer. It returns false if signal is
// done after the move.
func (s *Signal) Advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < len(s.stream) {
		s.current++
	}
	return s.current < len(s.stream)
}

// Done reports if all buffers were streamed.
func (s *Signal) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current >= len(s.stream)
}

// Resize changes the number of sounding frames. Buffers are allocated or
// freed to match, already streamed buffers are kept.
func (s *Signal) Resize(frames int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.frames = frames
	n := max(signal.BuffersFor(s.offset, frames, s.pool.BufferSize()), s.current)
	for len(s.stream) < n {
		s.stream = append(s.stream, s.pool.Alloc())
	}
	for i := n; i < len(s.stream); i++ {
		s.pool.Free(s.stream[i])
		s.stream[i] = nil
	}
	s.stream = s.stream[:n]
}

// OnRemove registers notifier. Notifier is registered once.
func (s *Signal) OnRemove(n RemoveNotifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.notifiers {
		if r == n {
			return
		}
	}
	s.notifiers = append(s.notifiers, n)
}

// Release notifies registered notifiers and returns buffers to the pool.
// Consequent calls have no effect.
func (s *Signal) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	notifiers := s.notifiers
	s.notifiers = nil
	for i := range s.stream {
		s.pool.Free(s.stream[i])
	}
	s.stream = nil
	s.current = 0
	s.mu.Unlock()
	for _, n := range notifiers {
		n.NotifyRemove(s)
	}
}
