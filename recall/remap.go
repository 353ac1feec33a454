package recall

import (
	"slices"

	"github.com/sirupsen/logrus"

	"pipelined.dev/sequencer/audio"
)

// Remap applies the change of the channel recycling chain. The first
// phase removes runs anchored on recyclings that left the chain and
// bindings pointing at them, then updates the contexts. The second phase
// instantiates recycling-level runs on added recyclings and rebinds
// per-recycling dependencies of the channel runs.
func (c *Container) Remap(ch *audio.Channel, old, next []*audio.Recycling) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gone := difference(old, next)
	added := difference(next, old)
	logger := c.logger.WithFields(logrus.Fields{
		"channel": ch,
		"gone":    len(gone),
		"added":   len(added),
	})

	// phase one: remove.
	for _, id := range slices.Clone(c.ids) {
		for _, r := range slices.Backward(slices.Clone(c.runs[id])) {
			if r.Recycling() != nil && slices.Contains(gone, r.Recycling()) {
				c.removeRun(r)
				continue
			}
			r.unbind(func(b Binding) bool {
				return slices.Contains(gone, b.Recycling) || slices.Contains(gone, b.Target.Recycling())
			})
		}
	}
	for _, id := range c.ids {
		switch {
		case id.IsToplevel():
			id.Context().Replace(old, next)
		case id.Context().Intersects(gone):
			id.Context().Replace(gone, nil)
		}
	}

	// phase two: add.
	c.assertRemoved(gone)
	for _, id := range slices.Clone(c.ids) {
		if !id.IsToplevel() {
			continue
		}
		for _, rc := range added {
			if !id.Context().Contains(rc) {
				continue
			}
			for _, t := range c.scoped(id.Scope(), RecyclingLevel, audio.Input) {
				c.startNew(c.tryInstantiate(t, id, AtRecycling(rc)), id)
			}
		}
	}
	for _, id := range c.ids {
		for _, r := range c.runs[id] {
			if r.Level() == ChannelLevel && r.Channel() == ch {
				c.rebind(r, id)
			}
		}
	}
	logger.Debug("remapped")
}

// Reshape applies the topology change of the audio: removed channels are
// detached, chains are remapped and added channels are attached.
func (c *Container) Reshape(t audio.Topology) {
	for _, ch := range t.Removed {
		c.Detach(ch)
	}
	for _, remap := range t.Remapped {
		c.Remap(remap.Channel, remap.Old, remap.New)
	}
	for _, ch := range t.Added {
		c.Attach(ch)
	}
}

// rebind binds missing per-recycling dependencies of the run.
func (c *Container) rebind(r *Run, id *RecallID) {
	for _, d := range r.template.Dependencies {
		if !d.PerRecycling {
			continue
		}
		for _, rc := range r.Channel().Recyclings() {
			if r.hasBinding(d.Kind, rc) {
				continue
			}
			if target := c.find(r, id, d.Kind, rc); target != nil {
				r.bind(Binding{Kind: d.Kind, Target: target, Recycling: rc})
				c.metric.Resolved()
			} else if !d.Optional {
				c.metric.Unresolved()
				r.logger.WithField("kind", d.Kind).Warn("per-recycling dependency unresolved")
			}
		}
	}
}

// assertRemoved checks that nothing references removed recyclings.
func (c *Container) assertRemoved(gone []*audio.Recycling) {
	if len(gone) == 0 {
		return
	}
	for _, id := range c.ids {
		if id.Context().Intersects(gone) {
			assertf(c.logger, "context of %v holds removed recycling", id)
		}
		for _, r := range c.runs[id] {
			if slices.Contains(gone, r.Recycling()) {
				assertf(c.logger, "%v anchored on removed recycling", r)
			}
			for _, b := range r.Bindings() {
				if slices.Contains(gone, b.Recycling) || slices.Contains(gone, b.Target.Recycling()) {
					assertf(c.logger, "%v bound to removed recycling", r)
				}
			}
		}
	}
}

// difference returns recyclings of a that are not in b.
func difference(a, b []*audio.Recycling) []*audio.Recycling {
	var result []*audio.Recycling
	for _, r := range a {
		if !slices.Contains(b, r) {
			result = append(result, r)
		}
	}
	return result
}
