package sequencer

import (
	"context"
	"fmt"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/sirupsen/logrus"

	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/fx"
	"pipelined.dev/sequencer/recall"
	"pipelined.dev/sequencer/task"
)

// Playback is an invocation of a track in a sound scope. It's a task:
// launching it invokes and starts the scope. Playback is done when the
// invocation finishes, is cancelled or fails to start.
type Playback struct {
	engine *Engine
	track  string
	scope  audio.SoundScope
	done   chan struct{}
	once   sync.Once

	mu        sync.Mutex
	id        *recall.RecallID
	container *recall.Container
	captured  *goaudio.FloatBuffer
	err       error
}

// StartPlayback returns a playback of the track. It must be submitted to
// start.
func (e *Engine) StartPlayback(track string, scope audio.SoundScope) *Playback {
	return &Playback{
		engine: e,
		track:  track,
		scope:  scope,
		done:   make(chan struct{}),
	}
}

// CancelPlayback returns a task that tears down the playback. Playback
// that wasn't launched yet is marked done.
func (e *Engine) CancelPlayback(p *Playback) *task.Func {
	return task.NewFunc("cancel-playback "+p.track, func(context.Context) error {
		p.mu.Lock()
		id, c := p.id, p.container
		p.mu.Unlock()
		if id == nil {
			p.close()
			return nil
		}
		if _, ok := e.playbacks[id]; ok {
			e.finish(c, id)
		}
		return nil
	})
}

// Launch implements task.Task.
func (p *Playback) Launch(context.Context) error {
	e := p.engine
	t, ok := e.lookup(p.track)
	if !ok {
		return p.fail(fmt.Errorf("%w: %s", ErrTrackNotFound, p.track))
	}
	id, err := t.container.Invoke(p.scope)
	if err != nil {
		return p.fail(err)
	}
	p.mu.Lock()
	p.id = id
	p.container = t.container
	p.mu.Unlock()
	e.playbacks[id] = p
	if err := t.container.Start(id); err != nil {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		e.finish(t.container, id)
		return err
	}
	e.logger.WithFields(logrus.Fields{
		"track": p.track,
		"scope": p.scope,
		"id":    id,
	}).Debug("playback started")
	return nil
}

func (p *Playback) String() string {
	return fmt.Sprintf("playback %s %v", p.track, p.scope)
}

// ID returns the invocation id or nil if playback wasn't launched.
func (p *Playback) ID() *recall.RecallID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// Done returns a channel that is closed when playback is over.
func (p *Playback) Done() <-chan struct{} {
	return p.done
}

// Err returns the error of the launch.
func (p *Playback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Capture returns samples captured by the invocation or nil. It's
// available after playback is done.
func (p *Playback) Capture() *goaudio.FloatBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captured
}

// Wait blocks until playback is done.
func (p *Playback) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// capture keeps captured samples before runs are torn down.
func (p *Playback) capture(c *recall.Container, id *recall.RecallID) {
	for _, r := range c.Runs(id) {
		if capture, ok := r.Processor().(*fx.Capture); ok {
			buf := capture.Buffer()
			p.mu.Lock()
			p.captured = buf
			p.mu.Unlock()
			return
		}
	}
}

func (p *Playback) fail(err error) error {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.close()
	return err
}

func (p *Playback) close() {
	p.once.Do(func() { close(p.done) })
}
