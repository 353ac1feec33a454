package recall

import (
	"github.com/sirupsen/logrus"

	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/device"
	"pipelined.dev/sequencer/plugin"
)

type (
	// Processor is the per-buffer streaming entry point of a run. Every
	// processing-unit family implements it.
	Processor interface {
		Process(ctx *StreamContext) error
	}

	// PreProcessor is called before any run of the invocation is
	// processed in the buffer.
	PreProcessor interface {
		ProcessPre(ctx *StreamContext) error
	}

	// PostProcessor is called after all runs of the invocation were
	// processed in the buffer. Post stage runs levels in reverse order.
	PostProcessor interface {
		ProcessPost(ctx *StreamContext) error
	}

	// Resetter is called when run is started.
	Resetter interface {
		Reset() error
	}

	// Flusher is called when run is removed.
	Flusher interface {
		Flush() error
	}

	// DependencyNotifier receives the notifications of dependents.
	DependencyNotifier interface {
		NotifyDependency(kind NotifyKind, increase bool)
	}
)

// StreamContext is passed to processors on every buffer.
type StreamContext struct {
	ID *RecallID
	// Buffer is the index of the buffer since the invocation start.
	Buffer uint64
	Logger logrus.FieldLogger
}

// Env provides external collaborators to processor factories.
type Env struct {
	Card   device.Soundcard
	Loader plugin.Loader
	MIDI   device.MIDISource
	Logger logrus.FieldLogger
}

// Factory creates the processor of the run. It's called after the
// dependencies are resolved.
type Factory func(r *Run, env Env) (Processor, error)

// Dependency declares a run of the kind the template requires.
type Dependency struct {
	Kind Kind
	// PerRecycling dependency binds one target per recycling of the
	// owning channel chain.
	PerRecycling bool
	// Optional dependency doesn't fail resolution.
	Optional bool
}

// Template is an immutable description of a processing unit. It's shared
// by all its runs.
type Template struct {
	Name  string
	Kind  Kind
	Level Level
	// Direction of channels channel-level runs are anchored on.
	Direction    audio.Direction
	Scopes       []audio.SoundScope
	Ports        []plugin.Port
	Dependencies []Dependency
	// Persistent runs ignore Done.
	Persistent bool
	New        Factory
}

// HasScope reports if template is instantiated in the scope.
func (t *Template) HasScope(s audio.SoundScope) bool {
	for _, ts := range t.Scopes {
		if ts == s {
			return true
		}
	}
	return false
}

// Port returns port by name.
func (t *Template) Port(name string) (plugin.Port, bool) {
	for _, p := range t.Ports {
		if p.Name == name {
			return p, true
		}
	}
	return plugin.Port{}, false
}

// DependsOn reports if template declares dependency of the kind.
func (t *Template) DependsOn(k Kind) bool {
	for _, d := range t.Dependencies {
		if d.Kind == k {
			return true
		}
	}
	return false
}

func (t *Template) String() string {
	return t.Name
}
