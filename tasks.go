package sequencer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/fx"
	"pipelined.dev/sequencer/plugin"
	"pipelined.dev/sequencer/recall"
	"pipelined.dev/sequencer/thread"
	"pipelined.dev/sequencer/task"
)

// AddTrack returns a task that creates a track with the built-in
// templates. Audio has provided number of audio channels and pads.
func (e *Engine) AddTrack(name string, lines, pads int) *task.Func {
	return task.NewFunc("add-track "+name, func(context.Context) error {
		if _, ok := e.lookup(name); ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTrack, name)
		}
		a, err := audio.New(name, e.Format(), lines, pads)
		if err != nil {
			return err
		}
		c := recall.NewContainer(a, e.env,
			recall.WithLogger(e.logger.WithField("track", name)),
			recall.WithMetric(e.metric),
		)
		for _, t := range fx.Templates() {
			if err := c.AddTemplate(t); err != nil {
				return err
			}
		}
		e.tmu.Lock()
		e.tracks[name] = &Track{
			name:      name,
			audio:     a,
			container: c,
		}
		e.tmu.Unlock()
		e.executor.Add(c)
		e.logger.WithFields(logrus.Fields{
			"track": name,
			"lines": lines,
			"pads":  pads,
		}).Debug("track added")
		return nil
	})
}

// RemoveTrack returns a task that tears down all invocations of the track
// and removes it.
func (e *Engine) RemoveTrack(name string) *task.Func {
	return task.NewFunc("remove-track "+name, func(context.Context) error {
		return e.removeTrack(name)
	})
}

func (e *Engine) removeTrack(name string) error {
	t, ok := e.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, name)
	}
	e.executor.Remove(t.container)
	for _, id := range t.container.IDs() {
		if id.IsToplevel() {
			e.finish(t.container, id)
		}
	}
	e.tmu.Lock()
	delete(e.tracks, name)
	e.tmu.Unlock()
	e.logger.WithField("track", name).Debug("track removed")
	return nil
}

// AddRecall returns a task that adds plugin template to the track and
// instantiates it in every running invocation.
func (e *Engine) AddRecall(track string, d plugin.Descriptor) *task.Func {
	return task.NewFunc("add-recall "+d.Specifier, func(context.Context) error {
		t, ok := e.lookup(track)
		if !ok {
			return fmt.Errorf("%w: %s", ErrTrackNotFound, track)
		}
		if err := t.container.AddTemplate(fx.PluginTemplate(d)); err != nil {
			return err
		}
		return t.container.Apply(d.Specifier)
	})
}

// SetPort returns a task that sets control port value of every run of
// the recall.
func (e *Engine) SetPort(track, recallName, port string, value float64) *task.Func {
	return task.NewFunc("set-port "+recallName+"."+port, func(context.Context) error {
		t, ok := e.lookup(track)
		if !ok {
			return fmt.Errorf("%w: %s", ErrTrackNotFound, track)
		}
		found := false
		for _, r := range t.container.All() {
			if r.Template().Name != recallName {
				continue
			}
			found = true
			c, ok := r.Processor().(fx.Controller)
			if !ok {
				return fmt.Errorf("%w: %s", ErrNoControls, recallName)
			}
			if err := c.Controls().Set(port, value); err != nil {
				return err
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrRecallNotFound, recallName)
		}
		return nil
	})
}

// ResizePads returns a task that changes the number of input pads.
// Recalls of removed channels are detached, new channels get recalls of
// all running invocations.
func (e *Engine) ResizePads(track string, pads int) *task.Func {
	return task.NewFunc("resize-pads "+track, func(context.Context) error {
		t, ok := e.lookup(track)
		if !ok {
			return fmt.Errorf("%w: %s", ErrTrackNotFound, track)
		}
		topology, err := t.audio.SetPads(pads)
		if err != nil {
			return err
		}
		t.container.Reshape(topology)
		return nil
	})
}

// ResizeAudioChannels returns a task that changes the number of lines.
func (e *Engine) ResizeAudioChannels(track string, lines int) *task.Func {
	return task.NewFunc("resize-audio-channels "+track, func(context.Context) error {
		t, ok := e.lookup(track)
		if !ok {
			return fmt.Errorf("%w: %s", ErrTrackNotFound, track)
		}
		topology, err := t.audio.SetAudioChannels(lines)
		if err != nil {
			return err
		}
		t.container.Reshape(topology)
		return nil
	})
}

// SetNotation returns a task that replaces the notation of the track.
func (e *Engine) SetNotation(track string, n *audio.Notation) *task.Func {
	return task.NewFunc("set-notation "+track, func(context.Context) error {
		t, ok := e.lookup(track)
		if !ok {
			return fmt.Errorf("%w: %s", ErrTrackNotFound, track)
		}
		t.audio.SetNotation(n)
		return nil
	})
}

// SetWave returns a task that replaces the wave of the track.
func (e *Engine) SetWave(track string, w *audio.Wave) *task.Func {
	return task.NewFunc("set-wave "+track, func(context.Context) error {
		t, ok := e.lookup(track)
		if !ok {
			return fmt.Errorf("%w: %s", ErrTrackNotFound, track)
		}
		t.audio.SetWave(w)
		return nil
	})
}

// SetPattern returns a task that replaces the pattern of every line of
// the pad.
func (e *Engine) SetPattern(track string, pad int, p *audio.Pattern) *task.Func {
	return task.NewFunc("set-pattern "+track, func(context.Context) error {
		t, ok := e.lookup(track)
		if !ok {
			return fmt.Errorf("%w: %s", ErrTrackNotFound, track)
		}
		for line := 0; line < t.audio.AudioChannels(); line++ {
			ch := t.audio.Input(pad, line)
			if ch == nil {
				return fmt.Errorf("%w: %d", audio.ErrInvalidPads, pad)
			}
			ch.SetPattern(p)
		}
		return nil
	})
}

// AddThread returns a task that links the thread to the parent. Running
// parent starts it on the next tick.
func (e *Engine) AddThread(parent string, th *thread.Thread) *task.Func {
	return task.NewFunc("add-thread "+th.Name(), func(context.Context) error {
		p := e.main.Find(parent)
		if p == nil {
			return fmt.Errorf("%w: %s", ErrThreadNotFound, parent)
		}
		if e.main.Find(th.Name()) != nil {
			return fmt.Errorf("%w: %s", ErrDuplicateThread, th.Name())
		}
		p.AddChild(th)
		return nil
	})
}

// RemoveThread returns a task that stops and unlinks the thread. Engine
// threads can't be removed.
func (e *Engine) RemoveThread(name string) *task.Func {
	return task.NewFunc("remove-thread "+name, func(context.Context) error {
		switch name {
		case MainThread, TaskThread, AudioThread:
			return fmt.Errorf("%w: %s", ErrProtectedThread, name)
		}
		th := e.main.Find(name)
		if th == nil {
			return fmt.Errorf("%w: %s", ErrThreadNotFound, name)
		}
		th.Parent().RemoveChild(th)
		return nil
	})
}
