package audio

import (
	"sort"
	"sync"
)

// Note is a key event. Onset and offset are fractional beat-ticks.
type Note struct {
	Key      int
	Velocity float64
	Onset    float64
	Offset   float64
}

// Length returns note length in beat-ticks.
func (n Note) Length() float64 {
	return n.Offset - n.Onset
}

// Valid reports if the note has positive length.
func (n Note) Valid() bool {
	return n.Offset > n.Onset
}

// Notation is an already parsed sequence of notes ordered by onset.
type Notation struct {
	mu    sync.RWMutex
	notes []Note
}

// NewNotation returns notation with provided notes.
func NewNotation(notes ...Note) *Notation {
	n := Notation{}
	for _, note := range notes {
		n.Add(note)
	}
	return &n
}

// Add inserts a note keeping onset order. Notes with equal onset keep
// insertion order.
func (n *Notation) Add(note Note) {
	n.mu.Lock()
	defer n.mu.Unlock()
	i := sort.Search(len(n.notes), func(i int) bool {
		return n.notes[i].Onset > note.Onset
	})
	n.notes = append(n.notes, Note{})
	copy(n.notes[i+1:], n.notes[i:])
	n.notes[i] = note
}

// Range returns notes with onset in [from, to).
func (n *Notation) Range(from, to float64) []Note {
	n.mu.RLock()
	defer n.mu.RUnlock()
	start := sort.Search(len(n.notes), func(i int) bool {
		return n.notes[i].Onset >= from
	})
	var result []Note
	for i := start; i < len(n.notes) && n.notes[i].Onset < to; i++ {
		result = append(result, n.notes[i])
	}
	return result
}

// Len returns number of notes.
func (n *Notation) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.notes)
}

// Notes returns a copy of all notes.
func (n *Notation) Notes() []Note {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]Note(nil), n.notes...)
}

// Pattern is a step sequence of a single pad.
type Pattern struct {
	mu    sync.RWMutex
	steps []bool
}

// NewPattern returns a pattern with provided steps.
func NewPattern(steps ...bool) *Pattern {
	return &Pattern{steps: append([]bool(nil), steps...)}
}

// Bit reports if step is set. Steps wrap around the pattern length.
func (p *Pattern) Bit(step uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.steps) == 0 {
		return false
	}
	return p.steps[step%uint64(len(p.steps))]
}

// Set changes the step value. Pattern grows if needed.
func (p *Pattern) Set(step int, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.steps) <= step {
		p.steps = append(p.steps, false)
	}
	p.steps[step] = on
}

// Len returns number of steps.
func (p *Pattern) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.steps)
}
