package recall

import (
	"fmt"
	"slices"
	"sync"
	"weak"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/sequencer/audio"
)

// Anchor is the place of the run in the audio: the audio itself, a
// channel or a recycling.
type Anchor struct {
	Channel   *audio.Channel
	Recycling *audio.Recycling
}

// AtAudio anchors a run on the audio.
func AtAudio() Anchor {
	return Anchor{}
}

// AtChannel anchors a run on the channel.
func AtChannel(ch *audio.Channel) Anchor {
	return Anchor{Channel: ch}
}

// AtRecycling anchors a run on the recycling.
func AtRecycling(r *audio.Recycling) Anchor {
	return Anchor{Channel: r.Channel(), Recycling: r}
}

func (a Anchor) level() Level {
	switch {
	case a.Recycling != nil:
		return RecyclingLevel
	case a.Channel != nil:
		return ChannelLevel
	}
	return AudioLevel
}

// Binding is a resolved dependency.
type Binding struct {
	Kind   Kind
	Target *Run
	// Recycling is set for per-recycling dependencies.
	Recycling *audio.Recycling
}

// Run is an instance of the template within one RecallID. It owns the
// processor and references its RecallID weakly.
type Run struct {
	id       xid.ID
	template *Template
	recallID weak.Pointer[RecallID]
	audio    *audio.Audio
	anchor   Anchor
	logger   logrus.FieldLogger

	mu        sync.Mutex
	state     State
	live      bool
	bindings  []Binding
	refs      [notifyKinds]int
	processor Processor
	hooks
}

type hooks struct {
	pre    func(*StreamContext) error
	post   func(*StreamContext) error
	reset  func() error
	flush  func() error
	notify func(NotifyKind, bool)
}

func newRun(t *Template, id *RecallID, a *audio.Audio, anchor Anchor, logger logrus.FieldLogger) *Run {
	r := Run{
		id:       xid.New(),
		template: t,
		recallID: weak.Make(id),
		audio:    a,
		anchor:   anchor,
	}
	r.logger = logger.WithFields(logrus.Fields{
		"recall": t.Name,
		"run":    r.id.String(),
	})
	return &r
}

// ID returns unique id of the run.
func (r *Run) ID() string {
	return r.id.String()
}

// Template returns template of the run.
func (r *Run) Template() *Template {
	return r.template
}

// Kind returns kind of the template.
func (r *Run) Kind() Kind {
	return r.template.Kind
}

// Level returns level of the template.
func (r *Run) Level() Level {
	return r.template.Level
}

// RecallID returns the id of the run or nil if it's released.
func (r *Run) RecallID() *RecallID {
	return r.recallID.Value()
}

// Audio returns audio of the run.
func (r *Run) Audio() *audio.Audio {
	return r.audio
}

// Channel returns anchor channel. Recycling-level runs return the
// channel of their recycling, audio-level runs return nil.
func (r *Run) Channel() *audio.Channel {
	return r.anchor.Channel
}

// Recycling returns anchor recycling or nil.
func (r *Run) Recycling() *audio.Recycling {
	return r.anchor.Recycling
}

// State returns current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsRunning reports if run is processed by the executor.
func (r *Run) IsRunning() bool {
	return r.State() == Running
}

// Processor returns processor of the run.
func (r *Run) Processor() Processor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processor
}

// Bindings returns a copy of resolved dependencies.
func (r *Run) Bindings() []Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.bindings)
}

// Dependency returns the first bound target of the kind or nil.
func (r *Run) Dependency(k Kind) *Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bindings {
		if b.Kind == k {
			return b.Target
		}
	}
	return nil
}

// Dependencies returns all bound targets of the kind.
func (r *Run) Dependencies(k Kind) []*Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*Run
	for _, b := range r.bindings {
		if b.Kind == k {
			result = append(result, b.Target)
		}
	}
	return result
}

// Refs returns the counter of the notification kind.
func (r *Run) Refs(k NotifyKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs[k]
}

// Balanced reports if all dependency counters are zero.
func (r *Run) Balanced() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.refs {
		if n != 0 {
			return false
		}
	}
	return true
}

// NotifyDependency is called by dependents of the run. Counters never go
// below zero.
func (r *Run) NotifyDependency(k NotifyKind, increase bool) {
	r.mu.Lock()
	if increase {
		r.refs[k]++
	} else if r.refs[k] == 0 {
		r.mu.Unlock()
		assertf(r.logger, "%v counter of %v goes negative", k, r)
		return
	} else {
		r.refs[k]--
	}
	notify := r.notify
	r.mu.Unlock()
	if notify != nil {
		notify(k, increase)
	}
}

// Start moves resolved run to running state.
func (r *Run) Start() error {
	r.mu.Lock()
	if err := r.transit(Running); err != nil {
		r.mu.Unlock()
		return err
	}
	r.live = true
	reset := r.reset
	bindings := slices.Clone(r.bindings)
	r.mu.Unlock()

	notifyAll(bindings, liveNotify(r.Level()), true)
	if reset != nil {
		if err := reset(); err != nil {
			return fmt.Errorf("reset %v: %w", r, err)
		}
	}
	return nil
}

// Pause suspends running run.
func (r *Run) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transit(Paused)
}

// Resume continues paused run.
func (r *Run) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Paused {
		return fmt.Errorf("%w: resume %v in %v", ErrInvalidState, r, r.state)
	}
	return r.transit(Running)
}

// Done marks run as finished. Persistent runs ignore it.
func (r *Run) Done() error {
	if r.template.Persistent {
		return nil
	}
	r.mu.Lock()
	if err := r.transit(Done); err != nil {
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()
	r.release()
	return nil
}

func (r *Run) String() string {
	return fmt.Sprintf("%s/%s", r.template.Name, r.id)
}

// transit changes the state. Mutex must be held.
func (r *Run) transit(to State) error {
	if !r.state.canTransit(to) {
		return fmt.Errorf("%w: %v from %v to %v", ErrInvalidState, r, r.state, to)
	}
	r.state = to
	return nil
}

func (r *Run) setState(to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transit(to)
}

// release decreases liveness counters of targets once.
func (r *Run) release() {
	r.mu.Lock()
	if !r.live {
		r.mu.Unlock()
		return
	}
	r.live = false
	bindings := slices.Clone(r.bindings)
	r.mu.Unlock()
	notifyAll(bindings, liveNotify(r.Level()), false)
}

// bind appends binding and notifies the target.
func (r *Run) bind(b Binding) {
	r.mu.Lock()
	r.bindings = append(r.bindings, b)
	live := r.live
	r.mu.Unlock()
	b.Target.NotifyDependency(bindNotify(r.Level()), true)
	if live {
		b.Target.NotifyDependency(liveNotify(r.Level()), true)
	}
}

// unbind removes bindings matching fn and notifies their targets. It
// returns the number of removed bindings.
func (r *Run) unbind(fn func(Binding) bool) int {
	r.mu.Lock()
	var removed []Binding
	kept := r.bindings[:0]
	for _, b := range r.bindings {
		if fn(b) {
			removed = append(removed, b)
		} else {
			kept = append(kept, b)
		}
	}
	clear(r.bindings[len(kept):])
	r.bindings = kept
	live := r.live
	r.mu.Unlock()

	if live {
		notifyAll(removed, liveNotify(r.Level()), false)
	}
	notifyAll(removed, bindNotify(r.Level()), false)
	return len(removed)
}

func (r *Run) hasBinding(k Kind, rc *audio.Recycling) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bindings {
		if b.Kind == k && b.Recycling == rc {
			return true
		}
	}
	return false
}

func (r *Run) setProcessor(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processor = p
	r.hooks = bindHooks(p)
}

// Process calls processing stage of the run.
func (r *Run) Process(ctx *StreamContext) error {
	if r.processor == nil {
		return nil
	}
	return r.processor.Process(ctx)
}

// ProcessPre calls pre-processing stage of the run if processor has one.
func (r *Run) ProcessPre(ctx *StreamContext) error {
	if r.pre == nil {
		return nil
	}
	return r.pre(ctx)
}

// ProcessPost calls post-processing stage of the run if processor has
// one.
func (r *Run) ProcessPost(ctx *StreamContext) error {
	if r.post == nil {
		return nil
	}
	return r.post(ctx)
}

func notifyAll(bindings []Binding, k NotifyKind, increase bool) {
	for _, b := range bindings {
		b.Target.NotifyDependency(k, increase)
	}
}

func bindHooks(v interface{}) hooks {
	return hooks{
		pre:    preProcessor(v),
		post:   postProcessor(v),
		reset:  resetter(v),
		flush:  flusher(v),
		notify: dependencyNotifier(v),
	}
}

func preProcessor(v interface{}) func(*StreamContext) error {
	if p, ok := v.(PreProcessor); ok {
		return p.ProcessPre
	}
	return nil
}

func postProcessor(v interface{}) func(*StreamContext) error {
	if p, ok := v.(PostProcessor); ok {
		return p.ProcessPost
	}
	return nil
}

func resetter(v interface{}) func() error {
	if r, ok := v.(Resetter); ok {
		return r.Reset
	}
	return nil
}

func flusher(v interface{}) func() error {
	if f, ok := v.(Flusher); ok {
		return f.Flush
	}
	return nil
}

func dependencyNotifier(v interface{}) func(NotifyKind, bool) {
	if n, ok := v.(DependencyNotifier); ok {
		return n.NotifyDependency
	}
	return nil
}
