package recall

import (
	"sync/atomic"
	"weak"

	"github.com/rs/xid"

	"pipelined.dev/sequencer/audio"
)

// RecallID identifies one playback invocation, or a part of it anchored
// on a nested recycling context.
type RecallID struct {
	id         xid.ID
	invocation string
	scope      audio.SoundScope
	ctx        *RecyclingContext
	parent     weak.Pointer[RecallID]

	started atomic.Bool
	buffer  atomic.Uint64
}

// NewRecallID creates an id of the scope over the context. Child ids
// share the invocation of their parent.
func NewRecallID(scope audio.SoundScope, ctx *RecyclingContext, parent *RecallID) *RecallID {
	id := RecallID{
		id:    xid.New(),
		scope: scope,
		ctx:   ctx,
	}
	id.invocation = id.id.String()
	if parent != nil {
		id.parent = weak.Make(parent)
		id.invocation = parent.invocation
	}
	return &id
}

// String returns unique id.
func (id *RecallID) String() string {
	return id.id.String()
}

// Invocation returns the id of the toplevel invocation. Signals are owned
// by invocations.
func (id *RecallID) Invocation() string {
	return id.invocation
}

// Scope returns sound scope of the invocation.
func (id *RecallID) Scope() audio.SoundScope {
	return id.scope
}

// Context returns recycling context.
func (id *RecallID) Context() *RecyclingContext {
	return id.ctx
}

// Parent returns parent id or nil.
func (id *RecallID) Parent() *RecallID {
	return id.parent.Value()
}

// IsToplevel reports if id has no parent.
func (id *RecallID) IsToplevel() bool {
	return id.invocation == id.String()
}

// Started reports if invocation was started.
func (id *RecallID) Started() bool {
	return id.started.Load()
}

// Buffer returns the number of streamed buffers.
func (id *RecallID) Buffer() uint64 {
	return id.buffer.Load()
}

// Advance increments streamed buffers counter and returns the index of
// the streamed buffer.
func (id *RecallID) Advance() uint64 {
	return id.buffer.Add(1) - 1
}
