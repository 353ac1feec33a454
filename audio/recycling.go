package audio

import (
	"sync"
)

// Recycling holds the signals of a single input channel. It's shared by
// the input channel and the output channel of the same line.
type Recycling struct {
	channel *Channel

	mu      sync.Mutex
	signals []*Signal
	buffer  []float64
}

func newRecycling(c *Channel, bufferSize int) *Recycling {
	return &Recycling{
		channel: c,
		buffer:  make([]float64, bufferSize),
	}
}

// Channel returns the input channel that owns the recycling.
func (r *Recycling) Channel() *Channel {
	return r.channel
}

// Buffer returns the recycling mix buffer.
func (r *Recycling) Buffer() []float64 {
	return r.buffer
}

// Add appends a signal.
func (r *Recycling) Add(s *Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
}

// Remove removes the signal and releases it. It returns false if signal
// doesn't belong to recycling.
func (r *Recycling) Remove(s *Signal) bool {
	r.mu.Lock()
	found := false
	for i := range r.signals {
		if r.signals[i] == s {
			r.signals = append(r.signals[:i], r.signals[i+1:]...)
			found = true
			break
		}
	}
	r.mu.Unlock()
	if found {
		s.Release()
	}
	return found
}

// Signals returns a copy of signals list.
func (r *Recycling) Signals() []*Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Signal(nil), r.signals...)
}

// FindByOwner returns signals created by the owner.
func (r *Recycling) FindByOwner(owner string) []*Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*Signal
	for _, s := range r.signals {
		if s.owner == owner {
			result = append(result, s)
		}
	}
	return result
}

// RemoveOwned removes and releases all signals of the owner. It returns
// the number of removed signals.
func (r *Recycling) RemoveOwned(owner string) int {
	return r.removeIf(func(s *Signal) bool { return s.owner == owner })
}

// RemoveDone removes and releases signals that reached their end.
func (r *Recycling) RemoveDone() int {
	return r.removeIf((*Signal).Done)
}

// Clear removes and releases all signals.
func (r *Recycling) Clear() int {
	return r.removeIf(func(*Signal) bool { return true })
}

func (r *Recycling) removeIf(fn func(*Signal) bool) int {
	r.mu.Lock()
	var removed []*Signal
	kept := r.signals[:0]
	for _, s := range r.signals {
		if fn(s) {
			removed = append(removed, s)
		} else {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(r.signals); i++ {
		r.signals[i] = nil
	}
	r.signals = kept
	r.mu.Unlock()
	for _, s := range removed {
		s.Release()
	}
	return len(removed)
}
