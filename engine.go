package sequencer

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/config"
	"pipelined.dev/sequencer/device"
	"pipelined.dev/sequencer/internal/worker"
	"pipelined.dev/sequencer/log"
	"pipelined.dev/sequencer/metric"
	"pipelined.dev/sequencer/plugin"
	"pipelined.dev/sequencer/recall"
	"pipelined.dev/sequencer/stream"
	"pipelined.dev/sequencer/task"
	"pipelined.dev/sequencer/thread"
)

// Names of engine threads.
const (
	MainThread  = "main"
	TaskThread  = "task"
	AudioThread = "audio"
)

// hangPeriods is the number of missed periods after which a thread is
// reported as hanging.
const hangPeriods = 100

// Option provides a way to set functional parameters to engine.
type Option func(*Engine) error

// WithLogger sets logger to engine. If this option is not provided,
// silent logger is used.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) error {
		e.logger = l
		return nil
	}
}

// WithMetric adds metrics for engine and all its components.
func WithMetric(m *metric.Metric) Option {
	return func(e *Engine) error {
		e.metric = m
		return nil
	}
}

// WithConfig sets engine configuration.
func WithConfig(c config.Config) Option {
	return func(e *Engine) error {
		if err := c.Validate(); err != nil {
			return err
		}
		e.config = c
		return nil
	}
}

// WithName sets name to engine.
func WithName(n string) Option {
	return func(e *Engine) error {
		e.config.Name = n
		return nil
	}
}

// WithLoader sets plugin loader.
func WithLoader(l plugin.Loader) Option {
	return func(e *Engine) error {
		e.env.Loader = l
		return nil
	}
}

// WithMIDI sets MIDI source of recording units.
func WithMIDI(s device.MIDISource) Option {
	return func(e *Engine) error {
		e.env.MIDI = s
		return nil
	}
}

// Engine owns the thread tree, the task queue and the tracks. Structural
// changes of tracks are applied by tasks only. The task thread holds the
// write side of the graph lock while tasks are launched, the audio thread
// holds the read side while buffers are streamed.
type Engine struct {
	config config.Config
	card   device.Soundcard
	env    recall.Env
	logger logrus.FieldLogger
	metric *metric.Metric

	graph     sync.RWMutex
	queue     *task.Queue
	pool      *worker.Pool
	executor  *stream.Executor
	main      *thread.Thread
	tasks     *thread.Thread
	audio     *thread.Thread
	sweep     *task.Func

	// tmu guards the map only, it's never held while a task runs.
	tmu    sync.RWMutex
	tracks map[string]*Track

	playbacks map[*recall.RecallID]*Playback
}

// New creates an engine. If soundcard is nil, a clock-only soundcard is
// created from configuration.
func New(card device.Soundcard, options ...Option) (*Engine, error) {
	e := Engine{
		config:    config.Default(),
		logger:    log.Discard(),
		tracks:    make(map[string]*Track),
		playbacks: make(map[*recall.RecallID]*Playback),
	}
	for _, option := range options {
		if err := option(&e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.WithField("engine", e.config.Name)
	if card == nil {
		null, err := device.NewNull(e.config.Format(), e.config.BPM)
		if err != nil {
			return nil, err
		}
		null.SetDelayFactor(e.config.DelayFactor)
		card = null
	}
	if err := e.format(card).Validate(); err != nil {
		return nil, err
	}
	e.card = card
	e.env.Card = card
	e.env.Logger = e.logger

	queueOptions := []task.Option{
		task.WithLocker(&e.graph),
		task.WithLogger(e.logger),
		task.WithMetric(e.metric),
	}
	if e.config.ExternSync {
		queueOptions = append(queueOptions, task.WithExternSync())
	}
	e.queue = task.NewQueue(queueOptions...)
	e.executor = stream.New(
		stream.WithLocker(e.graph.RLocker()),
		stream.WithLogger(e.logger),
		stream.WithMetric(e.metric),
		stream.WithParallelism(e.config.Parallelism),
	)
	e.sweep = task.NewFunc("clear-cache", e.clearCache)
	if err := e.queue.AppendCyclic(e.sweep); err != nil {
		return nil, err
	}
	if err := e.threads(); err != nil {
		return nil, err
	}
	e.pool = worker.New(e.config.Workers)
	return &e, nil
}

func (e *Engine) format(card device.Soundcard) audio.Format {
	return audio.Format{
		SampleRate: card.SampleRate(),
		BufferSize: card.BufferSize(),
	}
}

// threads builds the tree: main thread with task and audio threads.
func (e *Engine) threads() error {
	options := []thread.Option{
		thread.WithLogger(e.logger),
		thread.WithMetric(e.metric),
	}
	var err error
	if e.main, err = thread.New(MainThread, e.config.MainFrequency, e.checkHangs, options...); err != nil {
		return err
	}
	if e.tasks, err = thread.New(TaskThread, e.config.TaskFrequency, e.runTasks, options...); err != nil {
		return err
	}
	frequency := thread.FrequencyOf(e.card.SampleRate(), e.card.BufferSize())
	if e.audio, err = thread.New(AudioThread, frequency, e.executor.Tick, options...); err != nil {
		return err
	}
	e.main.AddChild(e.tasks)
	e.main.AddChild(e.audio)
	return nil
}

// Start starts the thread tree. It blocks until all threads are ticking.
func (e *Engine) Start() {
	e.main.Start()
	e.logger.Debug("started")
}

// Stop stops the thread tree. Children threads are stopped first.
func (e *Engine) Stop() {
	e.main.Stop()
	e.logger.Debug("stopped")
}

// Close stops the engine, tears down all tracks and releases the worker
// pool.
func (e *Engine) Close() error {
	e.Stop()
	e.pool.Close()
	e.graph.Lock()
	defer e.graph.Unlock()
	var errs closeErrors
	for _, name := range e.trackNames() {
		if err := e.removeTrack(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errs.ret()
}

// Name returns engine name.
func (e *Engine) Name() string {
	return e.config.Name
}

// Config returns engine configuration.
func (e *Engine) Config() config.Config {
	return e.config
}

// Soundcard returns the clock of the engine.
func (e *Engine) Soundcard() device.Soundcard {
	return e.card
}

// Format returns the stream format of tracks.
func (e *Engine) Format() audio.Format {
	return e.format(e.card)
}

// Thread returns the thread with provided name or nil.
func (e *Engine) Thread(name string) *thread.Thread {
	return e.main.Find(name)
}

// Track returns the track with provided name or nil.
func (e *Engine) Track(name string) *Track {
	t, _ := e.lookup(name)
	return t
}

func (e *Engine) lookup(name string) (*Track, bool) {
	e.tmu.RLock()
	defer e.tmu.RUnlock()
	t, ok := e.tracks[name]
	return t, ok
}

// Tracks returns tracks ordered by name.
func (e *Engine) Tracks() []*Track {
	e.tmu.RLock()
	defer e.tmu.RUnlock()
	result := make([]*Track, 0, len(e.tracks))
	for _, name := range e.names() {
		result = append(result, e.tracks[name])
	}
	return result
}

func (e *Engine) trackNames() []string {
	e.tmu.RLock()
	defer e.tmu.RUnlock()
	return e.names()
}

func (e *Engine) names() []string {
	names := make([]string, 0, len(e.tracks))
	for name := range e.tracks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Submit appends the task to the next tick of the task thread.
func (e *Engine) Submit(t task.Task) task.Handle {
	return e.queue.Append(t)
}

// SubmitBatch appends tasks that are launched in provided order without
// interleaving with tasks of other callers.
func (e *Engine) SubmitBatch(ts ...task.Task) []task.Handle {
	return e.queue.AppendAll(ts...)
}

// SubmitCyclic adds a task launched every tick.
func (e *Engine) SubmitCyclic(t task.Task) error {
	return e.queue.AppendCyclic(t)
}

// CancelCyclic removes the cyclic task.
func (e *Engine) CancelCyclic(t task.Task) bool {
	return e.queue.RemoveCyclic(t)
}

// Revoke removes the task if it wasn't launched yet.
func (e *Engine) Revoke(h task.Handle) bool {
	return e.queue.Revoke(h)
}

// Appender returns a submission path that never blocks the caller.
func (e *Engine) Appender() *task.Appender {
	return e.queue.Appender(e.pool)
}

// Sync blocks until tasks submitted before the call are launched.
func (e *Engine) Sync(timeout time.Duration) error {
	return e.queue.WaitRun(timeout)
}

// ExternTick announces the tick of the external host and waits until the
// queue is drained.
func (e *Engine) ExternTick(ctx context.Context) error {
	return e.queue.ExternTick(ctx, e.config.Timeout())
}

// RunTasks launches one tick of the task queue on the caller goroutine.
// It's used to drive the engine offline, without threads.
func (e *Engine) RunTasks(ctx context.Context) int {
	return e.queue.Run(ctx)
}

// Stream processes one buffer of all tracks on the caller goroutine.
func (e *Engine) Stream(ctx context.Context) {
	e.executor.Tick(ctx)
}

// Render drives the engine offline for provided number of buffers. Every
// buffer is preceded by a task tick.
func (e *Engine) Render(ctx context.Context, buffers int) error {
	for i := 0; i < buffers; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.RunTasks(ctx)
		e.Stream(ctx)
	}
	return nil
}

func (e *Engine) runTasks(ctx context.Context) {
	e.queue.Run(ctx)
}

// checkHangs logs device threads that stopped ticking.
func (e *Engine) checkHangs(context.Context) {
	for _, th := range e.main.Children() {
		if th.Hangs(hangPeriods) {
			e.logger.WithFields(logrus.Fields{
				"thread":    th.Name(),
				"last_tick": th.LastTick(),
			}).Warn("thread hangs")
		}
	}
}

// clearCache finishes completed playbacks and removes orphan signals.
func (e *Engine) clearCache(context.Context) error {
	for _, t := range e.Tracks() {
		c := t.container
		for _, id := range c.Active() {
			if c.Finished(id) {
				e.finish(c, id)
			}
		}
		if _, signals := c.Sweep(); signals > 0 {
			e.logger.WithFields(logrus.Fields{
				"track":   t.name,
				"signals": signals,
			}).Debug("orphan signals removed")
		}
	}
	return nil
}

// finish tears down the invocation and notifies its playback.
func (e *Engine) finish(c *recall.Container, id *recall.RecallID) {
	p := e.playbacks[id]
	if p != nil {
		p.capture(c, id)
	}
	if err := c.Teardown(id); err != nil {
		e.logger.WithError(err).Warn("teardown failed")
	}
	delete(e.playbacks, id)
	if p != nil {
		p.close()
	}
}

type closeErrors []error

func (e closeErrors) Error() string {
	s := make([]string, 0, len(e))
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// ret returns untyped nil if error list is empty.
func (e closeErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}

func (e closeErrors) Unwrap() []error {
	return e
}
