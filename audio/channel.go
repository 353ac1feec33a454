package audio

import (
	"fmt"
	"sync"
)

// Channel is a single pad/line slot of an audio. Input channels own one
// recycling each. Output channel of line l spans the recyclings of every
// input channel on line l, one per pad.
type Channel struct {
	audio     *Audio
	direction Direction
	pad       int
	line      int
	buffer    []float64

	mu         sync.RWMutex
	recyclings []*Recycling
	pattern    *Pattern
}

// Audio returns the owning audio.
func (c *Channel) Audio() *Audio {
	return c.audio
}

// Direction returns channel direction.
func (c *Channel) Direction() Direction {
	return c.direction
}

// Pad returns pad index of the channel.
func (c *Channel) Pad() int {
	return c.pad
}

// Line returns audio channel index of the channel.
func (c *Channel) Line() int {
	return c.line
}

// Buffer returns output buffer of the channel. Input channels return nil.
func (c *Channel) Buffer() []float64 {
	return c.buffer
}

// Recyclings returns a copy of the recycling chain.
func (c *Channel) Recyclings() []*Recycling {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Recycling(nil), c.recyclings...)
}

// Recycling returns the first recycling of the chain.
func (c *Channel) Recycling() *Recycling {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.recyclings) == 0 {
		return nil
	}
	return c.recyclings[0]
}

// ReplaceRecyclings sets the new chain and returns the old one.
func (c *Channel) ReplaceRecyclings(recyclings []*Recycling) []*Recycling {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.recyclings
	c.recyclings = append([]*Recycling(nil), recyclings...)
	return old
}

// Reachable reports if recycling is on the current chain.
func (c *Channel) Reachable(r *Recycling) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cr := range c.recyclings {
		if cr == r {
			return true
		}
	}
	return false
}

// Pattern returns the step pattern of the channel.
func (c *Channel) Pattern() *Pattern {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pattern
}

// SetPattern assigns the step pattern of the channel.
func (c *Channel) SetPattern(p *Pattern) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pattern = p
}

func (c *Channel) String() string {
	return fmt.Sprintf("%s[%d:%d]", c.direction, c.pad, c.line)
}

// SameChain reports if two chains contain the same recyclings in the same
// order.
func SameChain(a, b []*Recycling) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
