// Package recall provides the recall graph: immutable templates, their
// per-invocation runs, recycling contexts and the dependency resolver.
//
// All structural changes of a container must be issued from tasks. The
// streaming side only reads snapshots returned by Active, Invocation and
// Runs.
package recall

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/log"
	"pipelined.dev/sequencer/metric"
)

// Option provides a way to set functional parameters to container.
type Option func(*Container)

// WithLogger sets logger of the container.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Container) {
		c.logger = l
	}
}

// WithMetric sets metric of the container.
func WithMetric(m *metric.Metric) Option {
	return func(c *Container) {
		c.metric = m
	}
}

// Container holds templates, registered RecallIDs and runs of an audio.
type Container struct {
	audio  *audio.Audio
	env    Env
	logger logrus.FieldLogger
	metric *metric.Metric

	mu        sync.RWMutex
	templates []*Template
	ids       []*RecallID
	runs      map[*RecallID][]*Run
}

// NewContainer creates a container of the audio.
func NewContainer(a *audio.Audio, env Env, options ...Option) *Container {
	c := Container{
		audio:  a,
		env:    env,
		logger: log.Discard(),
		runs:   make(map[*RecallID][]*Run),
	}
	for _, option := range options {
		option(&c)
	}
	c.logger = c.logger.WithField("audio", a.Name())
	if c.env.Logger == nil {
		c.env.Logger = c.logger
	}
	return &c
}

// Audio returns the audio of the container.
func (c *Container) Audio() *audio.Audio {
	return c.audio
}

// AddTemplate adds the template. Template names are unique.
func (c *Container) AddTemplate(t *Template) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ct := range c.templates {
		if ct.Name == t.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateTemplate, t.Name)
		}
	}
	c.templates = append(c.templates, t)
	return nil
}

// RemoveTemplate removes the template and all its runs.
func (c *Container) RemoveTemplate(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.IndexFunc(c.templates, func(t *Template) bool { return t.Name == name })
	if i < 0 {
		return false
	}
	t := c.templates[i]
	c.templates = slices.Delete(c.templates, i, i+1)
	for _, id := range c.ids {
		for _, r := range slices.Backward(slices.Clone(c.runs[id])) {
			if r.template == t {
				c.removeRun(r)
			}
		}
	}
	return true
}

// Template returns template by name or nil.
func (c *Container) Template(name string) *Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.templates {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Templates returns templates of the level in order of addition.
func (c *Container) Templates(l Level) []*Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var result []*Template
	for _, t := range c.templates {
		if t.Level == l {
			result = append(result, t)
		}
	}
	return result
}

// Register adds the id. Registration order is the resolution order
// within one recycling context.
func (c *Container) Register(id *RecallID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.register(id)
}

func (c *Container) register(id *RecallID) {
	if _, ok := c.runs[id]; ok {
		return
	}
	c.ids = append(c.ids, id)
	c.runs[id] = nil
}

// Unregister removes the id without tearing down its runs. It returns
// false if id isn't registered.
func (c *Container) Unregister(id *RecallID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unregister(id)
}

func (c *Container) unregister(id *RecallID) bool {
	if _, ok := c.runs[id]; !ok {
		return false
	}
	delete(c.runs, id)
	c.ids = slices.DeleteFunc(c.ids, func(cid *RecallID) bool { return cid == id })
	return true
}

// Lookup returns registered id by its string value.
func (c *Container) Lookup(s string) *RecallID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.ids {
		if id.String() == s {
			return id
		}
	}
	return nil
}

// IDs returns registered ids in registration order.
func (c *Container) IDs() []*RecallID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.ids)
}

// Active returns started toplevel ids.
func (c *Container) Active() []*RecallID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var result []*RecallID
	for _, id := range c.ids {
		if id.IsToplevel() && id.Started() {
			result = append(result, id)
		}
	}
	return result
}

// Invocation returns the toplevel id followed by its descendants in
// registration order.
func (c *Container) Invocation(id *RecallID) []*RecallID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var result []*RecallID
	for _, cid := range c.ids {
		if cid.Invocation() == id.Invocation() {
			result = append(result, cid)
		}
	}
	return result
}

// Runs returns runs of the id in order of instantiation.
func (c *Container) Runs(id *RecallID) []*Run {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.runs[id])
}

// All returns runs of all registered ids.
func (c *Container) All() []*Run {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var result []*Run
	for _, id := range c.ids {
		result = append(result, c.runs[id]...)
	}
	return result
}

// Instantiate creates a run of the template within the id. The run is
// returned in resolved state. If any required dependency can't be
// resolved, run is discarded and ErrUnresolved is returned.
func (c *Container) Instantiate(t *Template, id *RecallID, anchor Anchor) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instantiate(t, id, anchor)
}

func (c *Container) instantiate(t *Template, id *RecallID, anchor Anchor) (*Run, error) {
	if _, ok := c.runs[id]; !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotRegistered, id)
	}
	if err := c.validate(t, anchor); err != nil {
		return nil, err
	}
	r := newRun(t, id, c.audio, anchor, c.logger.WithField("scope", id.Scope()))
	if err := r.setState(Resolving); err != nil {
		return nil, err
	}
	if err := c.resolve(r, id); err != nil {
		c.discard(r)
		c.metric.Unresolved()
		r.logger.WithError(err).Warn("recall is inactive")
		return nil, err
	}
	c.metric.Resolved()
	if t.New != nil {
		p, err := t.New(r, c.env)
		if err != nil {
			c.discard(r)
			return nil, fmt.Errorf("create %s: %w", t.Name, err)
		}
		r.setProcessor(p)
	}
	if err := r.setState(Resolved); err != nil {
		c.discard(r)
		return nil, err
	}
	c.runs[id] = append(c.runs[id], r)
	return r, nil
}

func (c *Container) validate(t *Template, anchor Anchor) error {
	if anchor.level() != t.Level {
		return fmt.Errorf("%w: %s is %v level, anchor is %v", ErrInvalidAnchor, t.Name, t.Level, anchor.level())
	}
	if anchor.Channel == nil {
		return nil
	}
	if anchor.Channel.Audio() != c.audio {
		return fmt.Errorf("%w: %s channel of other audio", ErrInvalidAnchor, t.Name)
	}
	if t.Level == ChannelLevel && anchor.Channel.Direction() != t.Direction {
		return fmt.Errorf("%w: %s requires %v channel", ErrInvalidAnchor, t.Name, t.Direction)
	}
	return nil
}

// resolve binds every declared dependency of the run.
func (c *Container) resolve(r *Run, id *RecallID) error {
	for _, d := range r.template.Dependencies {
		if !d.PerRecycling {
			if target := c.find(r, id, d.Kind, nil); target != nil {
				r.bind(Binding{Kind: d.Kind, Target: target})
			} else if !d.Optional {
				return fmt.Errorf("%w: %s requires %v", ErrUnresolved, r.template.Name, d.Kind)
			}
			continue
		}
		ch := r.Channel()
		if ch == nil {
			return fmt.Errorf("%w: %s per-recycling %v without channel", ErrUnresolved, r.template.Name, d.Kind)
		}
		for _, rc := range ch.Recyclings() {
			if target := c.find(r, id, d.Kind, rc); target != nil {
				r.bind(Binding{Kind: d.Kind, Target: target, Recycling: rc})
			} else if !d.Optional {
				return fmt.Errorf("%w: %s requires %v on %v", ErrUnresolved, r.template.Name, d.Kind, rc.Channel())
			}
		}
	}
	return nil
}

// find walks the lineage of the id context from nearest to root. Within a
// context the ids are visited in registration order and their runs in
// instantiation order. The first match wins.
func (c *Container) find(r *Run, id *RecallID, k Kind, want *audio.Recycling) *Run {
	for _, ctx := range id.Context().Lineage() {
		for _, cid := range c.ids {
			if cid.Context() != ctx {
				continue
			}
			for _, target := range c.runs[cid] {
				if target != r && target.Kind() == k && target.State().resolvable() && compatible(r, target, want) {
					return target
				}
			}
		}
	}
	return nil
}

func compatible(r, target *Run, want *audio.Recycling) bool {
	switch target.Level() {
	case AudioLevel:
		return want == nil
	case ChannelLevel:
		return want == nil && r.Channel() != nil && target.Channel() == r.Channel()
	case RecyclingLevel:
		if want != nil {
			return target.Recycling() == want
		}
		if r.Recycling() != nil {
			return target.Recycling() == r.Recycling()
		}
		return r.Channel() != nil && r.Channel().Reachable(target.Recycling())
	}
	return false
}

// discard unbinds partially resolved run.
func (c *Container) discard(r *Run) {
	r.unbind(func(Binding) bool { return true })
	r.mu.Lock()
	r.state = Removed
	r.mu.Unlock()
}

// RemoveDependency unbinds dependencies of the kind. It returns the number
// of removed bindings.
func (c *Container) RemoveDependency(r *Run, k Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return r.unbind(func(b Binding) bool { return b.Kind == k })
}

// Start starts resolved runs of the id and its descendants.
func (c *Container) Start(id *RecallID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.runs[id]; !ok {
		return fmt.Errorf("%w: %v", ErrNotRegistered, id)
	}
	var errs runErrors
	for _, cid := range c.descendants(id) {
		cid.started.Store(true)
		for _, r := range c.runs[cid] {
			if r.State() != Resolved {
				continue
			}
			if err := r.Start(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs.ret()
}

// Pause pauses running runs of the id and its descendants.
func (c *Container) Pause(id *RecallID) {
	c.each(id, func(r *Run) {
		if r.State() == Running {
			_ = r.Pause()
		}
	})
}

// Resume resumes paused runs of the id and its descendants.
func (c *Container) Resume(id *RecallID) {
	c.each(id, func(r *Run) {
		if r.State() == Paused {
			_ = r.Resume()
		}
	})
}

func (c *Container) each(id *RecallID, fn func(*Run)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cid := range c.descendants(id) {
		for _, r := range c.runs[cid] {
			fn(r)
		}
	}
}

// descendants returns the id followed by its registered descendants.
func (c *Container) descendants(id *RecallID) []*RecallID {
	result := []*RecallID{id}
	for i := 0; i < len(result); i++ {
		for _, cid := range c.ids {
			if cid.Parent() == result[i] {
				result = append(result, cid)
			}
		}
	}
	return result
}

// Cancel removes the run. Dependents of the run lose their bindings to it.
func (c *Container) Cancel(r *Run) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeRun(r)
}

// removeRun unbinds and removes the run. Mutex must be held.
func (c *Container) removeRun(r *Run) {
	if r.State() == Removed {
		return
	}
	for _, id := range c.ids {
		for _, dependent := range c.runs[id] {
			if dependent != r {
				dependent.unbind(func(b Binding) bool { return b.Target == r })
			}
		}
	}
	r.release()
	r.unbind(func(Binding) bool { return true })
	if err := r.setState(Removed); err != nil {
		r.logger.WithError(err).Debug("remove")
	}
	if !r.Balanced() {
		assertf(r.logger, "%v removed with dependents", r)
	}
	if r.flush != nil {
		if err := r.flush(); err != nil {
			r.logger.WithError(err).Warn("flush failed")
		}
	}
	if id := r.RecallID(); id != nil {
		c.runs[id] = slices.DeleteFunc(c.runs[id], func(cr *Run) bool { return cr == r })
	}
}

// Teardown removes the id with all its descendants. Runs are removed in
// reverse order, signals of the invocation in the id context are removed
// and the context is unlinked from its parent.
func (c *Container) Teardown(id *RecallID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.runs[id]; !ok {
		return fmt.Errorf("%w: %v", ErrNotRegistered, id)
	}
	c.teardown(id)
	return nil
}

func (c *Container) teardown(id *RecallID) {
	for _, cid := range slices.Backward(slices.Clone(c.ids)) {
		if _, ok := c.runs[cid]; ok && cid.Parent() == id {
			c.teardown(cid)
		}
	}
	for _, rc := range id.Context().Recyclings() {
		rc.RemoveOwned(id.Invocation())
	}
	for _, r := range slices.Backward(slices.Clone(c.runs[id])) {
		c.removeRun(r)
	}
	c.unregister(id)
	if parent := id.Context().Parent(); parent != nil {
		parent.RemoveChild(id.Context())
	}
	c.logger.WithField("id", id).Debug("teardown")
}

// Finished reports if the started invocation has non-persistent audio
// level runs and all of them are over. A run is over when it's done or
// any of its dependencies is over.
func (c *Container) Finished(id *RecallID) bool {
	if !id.Started() {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	found := false
	for _, r := range c.runs[id] {
		if r.Level() != AudioLevel || r.template.Persistent {
			continue
		}
		if !over(r, 0) {
			return false
		}
		found = true
	}
	return found
}

func over(r *Run, depth int) bool {
	if r.State() == Done {
		return true
	}
	if depth > len(kindNames) {
		return false
	}
	for _, b := range r.Bindings() {
		if b.Target.Level() == AudioLevel && over(b.Target, depth+1) {
			return true
		}
	}
	return false
}

// Sweep tears down finished invocations and removes signals whose
// invocation isn't registered anymore. It returns the number of removed
// invocations and signals.
func (c *Container) Sweep() (int, int) {
	var finished []*RecallID
	for _, id := range c.Active() {
		if c.Finished(id) {
			finished = append(finished, id)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range finished {
		c.teardown(id)
	}
	registered := make(map[string]bool, len(c.ids))
	for _, id := range c.ids {
		registered[id.Invocation()] = true
	}
	signals := 0
	for _, in := range c.audio.Inputs() {
		for _, rc := range in.Recyclings() {
			for _, s := range rc.Signals() {
				if !registered[s.Owner()] && rc.Remove(s) {
					signals++
				}
			}
		}
	}
	return len(finished), signals
}

// Invoke registers a new toplevel invocation of the scope and
// instantiates templates of the scope: audio level, recycling level for
// every recycling of output chains, output channels and a child id per
// input channel. Unresolved runs are skipped.
func (c *Container) Invoke(scope audio.SoundScope) (*RecallID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.ContainsFunc(c.templates, func(t *Template) bool { return t.HasScope(scope) }) {
		return nil, fmt.Errorf("%w: %v", ErrNoTemplates, scope)
	}
	var recyclings []*audio.Recycling
	for _, out := range c.audio.Outputs() {
		recyclings = append(recyclings, out.Recyclings()...)
	}
	id := NewRecallID(scope, NewContext(nil, recyclings), nil)
	c.register(id)
	for _, t := range c.scoped(scope, AudioLevel, audio.Input) {
		c.tryInstantiate(t, id, AtAudio())
	}
	for _, rc := range recyclings {
		for _, t := range c.scoped(scope, RecyclingLevel, audio.Input) {
			c.tryInstantiate(t, id, AtRecycling(rc))
		}
	}
	for _, out := range c.audio.Outputs() {
		c.attach(id, out)
	}
	for _, in := range c.audio.Inputs() {
		c.attach(id, in)
	}
	c.logger.WithFields(logrus.Fields{"id": id, "scope": scope}).Debug("invoked")
	return id, nil
}

// Attach instantiates channel templates of every toplevel invocation on
// the channel. Input channels get a child id with their own context.
func (c *Container) Attach(ch *audio.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range slices.Clone(c.ids) {
		if id.IsToplevel() {
			c.attach(id, ch)
		}
	}
}

func (c *Container) attach(id *RecallID, ch *audio.Channel) {
	templates := c.scoped(id.Scope(), ChannelLevel, ch.Direction())
	if len(templates) == 0 {
		return
	}
	owner := id
	if ch.Direction() == audio.Input {
		owner = c.child(id, ch)
	}
	for _, t := range templates {
		c.startNew(c.tryInstantiate(t, owner, AtChannel(ch)), id)
	}
}

// Detach removes child ids of the input channel and all runs anchored on
// the channel.
func (c *Container) Detach(ch *audio.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range slices.Backward(slices.Clone(c.ids)) {
		if _, ok := c.runs[id]; !ok {
			continue
		}
		if !id.IsToplevel() && ch.Direction() == audio.Input && id.Context().Contains(ch.Recycling()) {
			c.teardown(id)
			continue
		}
		for _, r := range slices.Backward(slices.Clone(c.runs[id])) {
			if r.Channel() == ch {
				c.removeRun(r)
			}
		}
	}
}

func (c *Container) scoped(scope audio.SoundScope, l Level, d audio.Direction) []*Template {
	var result []*Template
	for _, t := range c.templates {
		if t.Level != l || !t.HasScope(scope) {
			continue
		}
		if l == ChannelLevel && t.Direction != d {
			continue
		}
		result = append(result, t)
	}
	return result
}

// tryInstantiate logs failures that aren't resolution failures.
func (c *Container) tryInstantiate(t *Template, id *RecallID, anchor Anchor) *Run {
	r, err := c.instantiate(t, id, anchor)
	if err != nil && !errors.Is(err, ErrUnresolved) {
		c.logger.WithError(err).WithField("recall", t.Name).Warn("instantiate failed")
	}
	return r
}

// Apply instantiates the added template for every toplevel id of its
// scope. Input channel runs are owned by the child id of the channel.
// Runs of started ids are started.
func (c *Container) Apply(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.IndexFunc(c.templates, func(t *Template) bool { return t.Name == name })
	if i < 0 {
		return fmt.Errorf("%w: template %s", ErrNotRegistered, name)
	}
	t := c.templates[i]
	for _, id := range slices.Clone(c.ids) {
		if !id.IsToplevel() || !t.HasScope(id.Scope()) {
			continue
		}
		switch t.Level {
		case AudioLevel:
			c.startNew(c.tryInstantiate(t, id, AtAudio()), id)
		case RecyclingLevel:
			for _, rc := range id.Context().Recyclings() {
				c.startNew(c.tryInstantiate(t, id, AtRecycling(rc)), id)
			}
		case ChannelLevel:
			if t.Direction == audio.Output {
				for _, out := range c.audio.Outputs() {
					c.startNew(c.tryInstantiate(t, id, AtChannel(out)), id)
				}
				continue
			}
			for _, in := range c.audio.Inputs() {
				c.startNew(c.tryInstantiate(t, c.child(id, in), AtChannel(in)), id)
			}
		}
	}
	return nil
}

// child returns the child id of the input channel. It's registered if
// the channel has none.
func (c *Container) child(id *RecallID, in *audio.Channel) *RecallID {
	for _, cid := range c.ids {
		if cid.Parent() == id && cid.Context().Contains(in.Recycling()) {
			return cid
		}
	}
	child := NewRecallID(id.Scope(), NewContext(id.Context(), []*audio.Recycling{in.Recycling()}), id)
	c.register(child)
	if id.Started() {
		child.started.Store(true)
	}
	return child
}

// startNew starts the run if its invocation is started.
func (c *Container) startNew(r *Run, id *RecallID) {
	if r == nil || !id.Started() {
		return
	}
	if err := r.Start(); err != nil {
		r.logger.WithError(err).Warn("start failed")
	}
}
