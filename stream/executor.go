// Package stream executes the recall graph once per output buffer.
//
// Every started invocation of every track is processed in three stages.
// Pre and process stages walk audio, channel and recycling levels. Post
// stage walks them back: recycling, channel, audio, and within a level
// child invocation ids go before their parents, so input channel effects
// see the mixed recyclings before output channels are played.
package stream

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/log"
	"pipelined.dev/sequencer/metric"
	"pipelined.dev/sequencer/recall"
	"pipelined.dev/sequencer/signal"
)

// Option provides a way to set functional parameters to executor.
type Option func(*Executor)

// WithLogger sets logger of the executor.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithMetric sets metric of the executor.
func WithMetric(m *metric.Metric) Option {
	return func(e *Executor) {
		e.metric = m
	}
}

// WithLocker sets locker that is held while the buffer is processed.
// The engine passes the read side of the graph lock here.
func WithLocker(l sync.Locker) Option {
	return func(e *Executor) {
		e.locker = l
	}
}

// WithParallelism sets the number of tracks processed at once.
func WithParallelism(n int) Option {
	return func(e *Executor) {
		e.parallelism = max(n, 1)
	}
}

// Executor processes tracks buffer by buffer.
type Executor struct {
	logger      logrus.FieldLogger
	metric      *metric.Metric
	locker      sync.Locker
	parallelism int

	mu     sync.Mutex
	tracks []*recall.Container
}

// New returns an executor without tracks.
func New(options ...Option) *Executor {
	e := Executor{
		logger:      log.Discard(),
		parallelism: 1,
	}
	for _, option := range options {
		option(&e)
	}
	return &e
}

// Add appends a track. Adding the same track twice has no effect.
func (e *Executor) Add(c *recall.Container) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !slices.Contains(e.tracks, c) {
		e.tracks = append(e.tracks, c)
	}
}

// Remove removes the track. It returns false if track wasn't added.
func (e *Executor) Remove(c *recall.Container) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := slices.Index(e.tracks, c)
	if i < 0 {
		return false
	}
	e.tracks = slices.Delete(e.tracks, i, i+1)
	return true
}

// Tracks returns added tracks.
func (e *Executor) Tracks() []*recall.Container {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.tracks)
}

// Tick processes one buffer of every track. It's used as a tick body of
// the audio thread. Failures are recovered and logged, nothing is
// returned to the thread.
func (e *Executor) Tick(ctx context.Context) {
	if e.locker != nil {
		e.locker.Lock()
		defer e.locker.Unlock()
	}
	tracks := e.Tracks()
	if e.parallelism == 1 || len(tracks) < 2 {
		for _, c := range tracks {
			e.Buffer(c)
		}
		return
	}
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for _, c := range tracks {
		g.Go(func() error {
			e.Buffer(c)
			return nil
		})
	}
	_ = g.Wait()
}

// Buffer clears the output of the track and processes one buffer of all
// its started invocations.
func (e *Executor) Buffer(c *recall.Container) {
	c.Audio().ClearOutput()
	for _, id := range c.Active() {
		e.invocation(c, id)
	}
}

// stage is a single step of a run in the buffer.
type stage func(r *recall.Run, ctx *recall.StreamContext) error

var (
	pre     stage = (*recall.Run).ProcessPre
	process stage = (*recall.Run).Process
	post    stage = (*recall.Run).ProcessPost
)

var (
	forward  = []recall.Level{recall.AudioLevel, recall.ChannelLevel, recall.RecyclingLevel}
	backward = []recall.Level{recall.RecyclingLevel, recall.ChannelLevel, recall.AudioLevel}
)

func (e *Executor) invocation(c *recall.Container, id *recall.RecallID) {
	ids := c.Invocation(id)
	runs := make([][]*recall.Run, len(ids))
	for i := range ids {
		runs[i] = c.Runs(ids[i])
	}
	ctx := &recall.StreamContext{
		ID:     id,
		Buffer: id.Advance(),
		Logger: e.logger,
	}
	var errs streamErrors
	e.walk(forward, runs, false, func(r *recall.Run) {
		errs = e.step(errs, pre, r, ctx)
	})
	e.walk(forward, runs, false, func(r *recall.Run) {
		errs = e.step(errs, process, r, ctx)
	})
	e.walk(backward, runs, true, func(r *recall.Run) {
		errs = e.step(errs, post, r, ctx)
	})
	e.metric.Streamed()
	if err := errs.ret(); err != nil {
		e.logger.WithFields(logrus.Fields{
			"id":     id,
			"buffer": ctx.Buffer,
		}).WithError(err).Warn("stream failed")
	}
}

// walk calls fn for every running run grouped by levels. Ids are walked
// in registration order unless reversed.
func (e *Executor) walk(levels []recall.Level, runs [][]*recall.Run, reversed bool, fn func(*recall.Run)) {
	for _, l := range levels {
		for i := range runs {
			if reversed {
				i = len(runs) - 1 - i
			}
			for _, r := range runs[i] {
				if r.Level() == l && r.IsRunning() {
					fn(r)
				}
			}
		}
	}
}

// step calls the stage of the run. Errors and panics are collected and
// the buffer of the run is cleared.
func (e *Executor) step(errs streamErrors, s stage, r *recall.Run, ctx *recall.StreamContext) streamErrors {
	if err := safeStep(s, r, ctx); err != nil {
		e.metric.StreamFailed()
		clearBuffer(r)
		return append(errs, fmt.Errorf("%v: %w", r, err))
	}
	return errs
}

func safeStep(s stage, r *recall.Run, ctx *recall.StreamContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, rec)
		}
	}()
	return s(r, ctx)
}

// clearBuffer silences the buffer the run writes to.
func clearBuffer(r *recall.Run) {
	switch r.Level() {
	case recall.RecyclingLevel:
		signal.Clear(r.Recycling().Buffer())
	case recall.ChannelLevel:
		ch := r.Channel()
		if ch.Direction() == audio.Output {
			signal.Clear(ch.Buffer())
		} else if rc := ch.Recycling(); rc != nil {
			signal.Clear(rc.Buffer())
		}
	default:
		r.Audio().ClearOutput()
	}
}

type streamErrors []error

func (e streamErrors) Error() string {
	s := make([]string, 0, len(e))
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Unwrap returns collected errors.
func (e streamErrors) Unwrap() []error {
	return e
}

// ret returns untyped nil if error list is empty.
func (e streamErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
