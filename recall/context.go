package recall

import (
	"slices"
	"sync"
	"weak"

	"pipelined.dev/sequencer/audio"
)

// RecyclingContext mirrors the recycling topology of one invocation.
// Children are owned by their parent, the parent is referenced weakly.
type RecyclingContext struct {
	mu         sync.RWMutex
	parent     weak.Pointer[RecyclingContext]
	children   []*RecyclingContext
	recyclings []*audio.Recycling
}

// NewContext creates a context over recyclings. If parent is not nil,
// the context is added to its children.
func NewContext(parent *RecyclingContext, recyclings []*audio.Recycling) *RecyclingContext {
	c := RecyclingContext{
		recyclings: slices.Clone(recyclings),
	}
	if parent != nil {
		parent.AddChild(&c)
	}
	return &c
}

// Parent returns parent context or nil for root.
func (c *RecyclingContext) Parent() *RecyclingContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parent.Value()
}

// Children returns a copy of children list.
func (c *RecyclingContext) Children() []*RecyclingContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.children)
}

// AddChild links child context.
func (c *RecyclingContext) AddChild(child *RecyclingContext) {
	child.mu.Lock()
	child.parent = weak.Make(c)
	child.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.children = append(c.children, child)
}

// RemoveChild unlinks child context. It returns false if context isn't a
// child.
func (c *RecyclingContext) RemoveChild(child *RecyclingContext) bool {
	c.mu.Lock()
	i := slices.Index(c.children, child)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	c.children = slices.Delete(c.children, i, i+1)
	c.mu.Unlock()

	child.mu.Lock()
	child.parent = weak.Pointer[RecyclingContext]{}
	child.mu.Unlock()
	return true
}

// Lineage returns the context followed by its ancestors up to the root.
func (c *RecyclingContext) Lineage() []*RecyclingContext {
	var result []*RecyclingContext
	for current := c; current != nil; current = current.Parent() {
		result = append(result, current)
	}
	return result
}

// Depth returns the number of ancestors.
func (c *RecyclingContext) Depth() int {
	return len(c.Lineage()) - 1
}

// Toplevel returns the root of the context tree.
func (c *RecyclingContext) Toplevel() *RecyclingContext {
	lineage := c.Lineage()
	return lineage[len(lineage)-1]
}

// Recyclings returns a copy of recyclings.
func (c *RecyclingContext) Recyclings() []*audio.Recycling {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.recyclings)
}

// Contains reports if recycling belongs to the context.
func (c *RecyclingContext) Contains(r *audio.Recycling) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.recyclings, r)
}

// Intersects reports if any recycling of the chain belongs to the
// context.
func (c *RecyclingContext) Intersects(chain []*audio.Recycling) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range chain {
		if slices.Contains(c.recyclings, r) {
			return true
		}
	}
	return false
}

// Replace drops recyclings of old that are not in next and appends
// recyclings of next that are not in the context yet.
func (c *RecyclingContext) Replace(old, next []*audio.Recycling) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := make([]*audio.Recycling, 0, len(c.recyclings)+len(next))
	for _, r := range c.recyclings {
		if slices.Contains(old, r) && !slices.Contains(next, r) {
			continue
		}
		kept = append(kept, r)
	}
	for _, r := range next {
		if !slices.Contains(kept, r) {
			kept = append(kept, r)
		}
	}
	c.recyclings = kept
}
