package recall_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/metric"
	"pipelined.dev/sequencer/recall"
)

var format = audio.Format{SampleRate: 44100, BufferSize: 64}

var sequencer = []audio.SoundScope{audio.Sequencer}

func delayTemplate() *recall.Template {
	return &recall.Template{Name: "delay", Kind: recall.Delay, Level: recall.AudioLevel, Scopes: sequencer}
}

func countBeatsTemplate() *recall.Template {
	return &recall.Template{
		Name:         "count-beats",
		Kind:         recall.CountBeats,
		Level:        recall.AudioLevel,
		Scopes:       sequencer,
		Dependencies: []recall.Dependency{{Kind: recall.Delay}},
	}
}

func templates() []*recall.Template {
	return []*recall.Template{
		delayTemplate(),
		countBeatsTemplate(),
		{
			Name:   "stream",
			Kind:   recall.Stream,
			Level:  recall.RecyclingLevel,
			Scopes: sequencer,
		},
		{
			Name:         "play",
			Kind:         recall.Play,
			Level:        recall.ChannelLevel,
			Direction:    audio.Output,
			Scopes:       sequencer,
			Dependencies: []recall.Dependency{{Kind: recall.Stream, PerRecycling: true}},
		},
		{
			Name:         "copy-pattern",
			Kind:         recall.CopyPattern,
			Level:        recall.ChannelLevel,
			Direction:    audio.Input,
			Scopes:       sequencer,
			Dependencies: []recall.Dependency{{Kind: recall.Delay}, {Kind: recall.CountBeats}},
		},
		{
			Name:      "synth",
			Kind:      recall.Synth,
			Level:     recall.ChannelLevel,
			Direction: audio.Input,
			Scopes:    sequencer,
		},
		{
			Name:         "chorus",
			Kind:         recall.Chorus,
			Level:        recall.ChannelLevel,
			Direction:    audio.Input,
			Scopes:       sequencer,
			Dependencies: []recall.Dependency{{Kind: recall.Synth}},
		},
	}
}

func newContainer(t *testing.T, lines, pads int, options ...recall.Option) *recall.Container {
	t.Helper()
	a, err := audio.New("test", format, lines, pads)
	require.NoError(t, err)
	c := recall.NewContainer(a, recall.Env{}, options...)
	for _, tmpl := range templates() {
		require.NoError(t, c.AddTemplate(tmpl))
	}
	return c
}

func runsOf(c *recall.Container, k recall.Kind) []*recall.Run {
	var result []*recall.Run
	for _, r := range c.All() {
		if r.Kind() == k {
			result = append(result, r)
		}
	}
	return result
}

// assertReachable checks that no binding points at a recycling that is
// not reachable from the channel of the dependent.
func assertReachable(t *testing.T, c *recall.Container) {
	t.Helper()
	for _, r := range c.All() {
		for _, b := range r.Bindings() {
			if b.Recycling == nil {
				continue
			}
			assert.True(t, r.Channel().Reachable(b.Recycling), "%v bound to unreachable recycling", r)
			assert.Equal(t, b.Recycling, b.Target.Recycling())
		}
	}
}

func TestTemplates(t *testing.T) {
	c := newContainer(t, 1, 1)
	assert.ErrorIs(t, c.AddTemplate(delayTemplate()), recall.ErrDuplicateTemplate)
	assert.Len(t, c.Templates(recall.AudioLevel), 2)
	assert.Len(t, c.Templates(recall.ChannelLevel), 4)
	assert.NotNil(t, c.Template("chorus"))
	assert.Nil(t, c.Template("reverb"))

	tmpl := c.Template("copy-pattern")
	assert.True(t, tmpl.HasScope(audio.Sequencer))
	assert.False(t, tmpl.HasScope(audio.WaveScope))
	assert.True(t, tmpl.DependsOn(recall.CountBeats))
	assert.False(t, tmpl.DependsOn(recall.Synth))
	assert.Equal(t, "delay", recall.Delay.String())
	assert.Equal(t, "kind(99)", recall.Kind(99).String())
	assert.Len(t, recall.Kinds(), 13)
}

func TestInvoke(t *testing.T) {
	c := newContainer(t, 1, 1)
	_, err := c.Invoke(audio.WaveScope)
	assert.ErrorIs(t, err, recall.ErrNoTemplates)

	id, err := c.Invoke(audio.Sequencer)
	require.NoError(t, err)
	assert.True(t, id.IsToplevel())
	assert.Equal(t, id, c.Lookup(id.String()))

	invocation := c.Invocation(id)
	require.Len(t, invocation, 2)
	child := invocation[1]
	assert.Equal(t, id, child.Parent())
	assert.Equal(t, id.Invocation(), child.Invocation())
	assert.Equal(t, id.Context(), child.Context().Parent())
	assert.Equal(t, 1, child.Context().Depth())

	var kinds []recall.Kind
	for _, r := range c.Runs(id) {
		kinds = append(kinds, r.Kind())
		assert.Equal(t, recall.Resolved, r.State())
	}
	assert.Equal(t, []recall.Kind{recall.Delay, recall.CountBeats, recall.Stream, recall.Play}, kinds)
	kinds = nil
	for _, r := range c.Runs(child) {
		kinds = append(kinds, r.Kind())
	}
	assert.Equal(t, []recall.Kind{recall.CopyPattern, recall.Synth, recall.Chorus}, kinds)

	delay := runsOf(c, recall.Delay)[0]
	countBeats := runsOf(c, recall.CountBeats)[0]
	copyPattern := runsOf(c, recall.CopyPattern)[0]
	assert.Equal(t, delay, countBeats.Dependency(recall.Delay))
	assert.Equal(t, delay, copyPattern.Dependency(recall.Delay))
	assert.Equal(t, countBeats, copyPattern.Dependency(recall.CountBeats))
	assert.Equal(t, 1, delay.Refs(recall.NotifyAudioRun))
	assert.Equal(t, 1, delay.Refs(recall.NotifyChannelRun))
	assert.Equal(t, 0, delay.Refs(recall.NotifyAudio))

	play := runsOf(c, recall.Play)[0]
	stream := runsOf(c, recall.Stream)[0]
	assert.Equal(t, []*recall.Run{stream}, play.Dependencies(recall.Stream))
	assert.Equal(t, 1, stream.Refs(recall.NotifyChannelRun))
	assertReachable(t, c)
}

func TestBalance(t *testing.T) {
	c := newContainer(t, 2, 3)
	id, err := c.Invoke(audio.Sequencer)
	require.NoError(t, err)
	require.NoError(t, c.Start(id))
	assert.Len(t, c.Active(), 1)

	delay := runsOf(c, recall.Delay)[0]
	// count-beats and copy-pattern of every input channel.
	assert.Equal(t, 1, delay.Refs(recall.NotifyAudio))
	assert.Equal(t, 6, delay.Refs(recall.NotifyChannel))
	assert.Equal(t, 6, delay.Refs(recall.NotifyChannelRun))

	c.Pause(id)
	assert.Equal(t, recall.Paused, delay.State())
	c.Resume(id)
	assert.Equal(t, recall.Running, delay.State())

	all := c.All()
	require.NoError(t, c.Teardown(id))
	for _, r := range all {
		assert.True(t, r.Balanced(), "%v leaked reference count", r)
		assert.Equal(t, recall.Removed, r.State())
	}
	assert.Empty(t, c.IDs())
	assert.Empty(t, c.Active())
	assert.ErrorIs(t, c.Teardown(id), recall.ErrNotRegistered)
}

func TestSiblingIsolation(t *testing.T) {
	c := newContainer(t, 1, 3)
	inputs := c.Audio().Inputs()
	root := recall.NewRecallID(audio.Sequencer, recall.NewContext(nil, c.Audio().Output(0).Recyclings()), nil)
	c.Register(root)

	newChild := func(pad int) *recall.RecallID {
		ctx := recall.NewContext(root.Context(), []*audio.Recycling{inputs[pad].Recycling()})
		id := recall.NewRecallID(audio.Sequencer, ctx, root)
		c.Register(id)
		return id
	}
	first, second, third := newChild(0), newChild(1), newChild(2)

	firstDelay, err := c.Instantiate(c.Template("delay"), first, recall.AtAudio())
	require.NoError(t, err)
	secondDelay, err := c.Instantiate(c.Template("delay"), second, recall.AtAudio())
	require.NoError(t, err)

	// same-named dependents in sibling branches are not cross-wired.
	beats, err := c.Instantiate(c.Template("count-beats"), second, recall.AtAudio())
	require.NoError(t, err)
	assert.Equal(t, secondDelay, beats.Dependency(recall.Delay))
	beats, err = c.Instantiate(c.Template("count-beats"), first, recall.AtAudio())
	require.NoError(t, err)
	assert.Equal(t, firstDelay, beats.Dependency(recall.Delay))

	// third branch has no delay in its lineage.
	_, err = c.Instantiate(c.Template("count-beats"), third, recall.AtAudio())
	assert.ErrorIs(t, err, recall.ErrUnresolved)

	rootDelay, err := c.Instantiate(c.Template("delay"), root, recall.AtAudio())
	require.NoError(t, err)
	beats, err = c.Instantiate(c.Template("count-beats"), third, recall.AtAudio())
	require.NoError(t, err)
	assert.Equal(t, rootDelay, beats.Dependency(recall.Delay))

	// channel-level targets are matched on the same channel.
	synth, err := c.Instantiate(c.Template("synth"), first, recall.AtChannel(inputs[0]))
	require.NoError(t, err)
	_, err = c.Instantiate(c.Template("chorus"), second, recall.AtChannel(inputs[1]))
	assert.ErrorIs(t, err, recall.ErrUnresolved)
	chorus, err := c.Instantiate(c.Template("chorus"), first, recall.AtChannel(inputs[0]))
	require.NoError(t, err)
	assert.Equal(t, synth, chorus.Dependency(recall.Synth))
}

func TestFirstRegisteredWins(t *testing.T) {
	c := newContainer(t, 1, 1)
	ctx := recall.NewContext(nil, c.Audio().Output(0).Recyclings())
	early := recall.NewRecallID(audio.Sequencer, ctx, nil)
	late := recall.NewRecallID(audio.Sequencer, ctx, nil)
	c.Register(early)
	c.Register(late)
	// registered twice has no effect.
	c.Register(early)
	assert.Equal(t, []*recall.RecallID{early, late}, c.IDs())

	lateDelay, err := c.Instantiate(c.Template("delay"), late, recall.AtAudio())
	require.NoError(t, err)
	earlyDelay, err := c.Instantiate(c.Template("delay"), early, recall.AtAudio())
	require.NoError(t, err)

	beats, err := c.Instantiate(c.Template("count-beats"), late, recall.AtAudio())
	require.NoError(t, err)
	assert.Equal(t, earlyDelay, beats.Dependency(recall.Delay))
	assert.NotEqual(t, lateDelay, beats.Dependency(recall.Delay))

	// nearest ancestor wins over registration order.
	childCtx := recall.NewContext(ctx, c.Audio().Output(0).Recyclings())
	child := recall.NewRecallID(audio.Sequencer, childCtx, late)
	c.Register(child)
	childDelay, err := c.Instantiate(c.Template("delay"), child, recall.AtAudio())
	require.NoError(t, err)
	beats, err = c.Instantiate(c.Template("count-beats"), child, recall.AtAudio())
	require.NoError(t, err)
	assert.Equal(t, childDelay, beats.Dependency(recall.Delay))
}

func TestUnresolved(t *testing.T) {
	m := metric.New("test")
	c := newContainer(t, 1, 1, recall.WithMetric(m))
	id := recall.NewRecallID(audio.Sequencer, recall.NewContext(nil, nil), nil)

	_, err := c.Instantiate(c.Template("delay"), id, recall.AtAudio())
	assert.ErrorIs(t, err, recall.ErrNotRegistered)
	c.Register(id)

	_, err = c.Instantiate(c.Template("count-beats"), id, recall.AtAudio())
	assert.ErrorIs(t, err, recall.ErrUnresolved)
	assert.Empty(t, c.Runs(id))
	assert.Equal(t, 1.0, m.Snapshot()[metric.UnresolvedCounter])

	// partial bindings are released.
	delay, err := c.Instantiate(c.Template("delay"), id, recall.AtAudio())
	require.NoError(t, err)
	_, err = c.Instantiate(c.Template("copy-pattern"), id, recall.AtChannel(c.Audio().Input(0, 0)))
	assert.ErrorIs(t, err, recall.ErrUnresolved)
	assert.True(t, delay.Balanced())

	_, err = c.Instantiate(c.Template("copy-pattern"), id, recall.AtAudio())
	assert.ErrorIs(t, err, recall.ErrInvalidAnchor)
	_, err = c.Instantiate(c.Template("copy-pattern"), id, recall.AtChannel(c.Audio().Output(0)))
	assert.ErrorIs(t, err, recall.ErrInvalidAnchor)
}

func TestOptionalDependency(t *testing.T) {
	c := newContainer(t, 1, 1)
	require.NoError(t, c.AddTemplate(&recall.Template{
		Name:         "optional",
		Kind:         recall.Volume,
		Level:        recall.AudioLevel,
		Dependencies: []recall.Dependency{{Kind: recall.Synth, Optional: true}},
	}))
	id := recall.NewRecallID(audio.Sequencer, recall.NewContext(nil, nil), nil)
	c.Register(id)
	r, err := c.Instantiate(c.Template("optional"), id, recall.AtAudio())
	require.NoError(t, err)
	assert.Nil(t, r.Dependency(recall.Synth))
}

func TestStateMachine(t *testing.T) {
	c := newContainer(t, 1, 1)
	id := recall.NewRecallID(audio.Sequencer, recall.NewContext(nil, nil), nil)
	c.Register(id)
	r, err := c.Instantiate(c.Template("delay"), id, recall.AtAudio())
	require.NoError(t, err)

	assert.ErrorIs(t, r.Pause(), recall.ErrInvalidState)
	assert.ErrorIs(t, r.Resume(), recall.ErrInvalidState)
	assert.ErrorIs(t, r.Done(), recall.ErrInvalidState)
	require.NoError(t, r.Start())
	assert.ErrorIs(t, r.Start(), recall.ErrInvalidState)
	assert.ErrorIs(t, r.Resume(), recall.ErrInvalidState)
	require.NoError(t, r.Pause())
	require.NoError(t, r.Resume())
	require.NoError(t, r.Done())
	assert.ErrorIs(t, r.Start(), recall.ErrInvalidState)
	assert.Equal(t, recall.Done, r.State())
	c.Cancel(r)
	assert.Equal(t, recall.Removed, r.State())
	assert.Empty(t, c.Runs(id))

	persistent := &recall.Template{Name: "persistent", Kind: recall.Capture, Level: recall.AudioLevel, Persistent: true}
	require.NoError(t, c.AddTemplate(persistent))
	p, err := c.Instantiate(persistent, id, recall.AtAudio())
	require.NoError(t, err)
	require.NoError(t, p.Start())
	require.NoError(t, p.Done())
	assert.Equal(t, recall.Running, p.State())
}

func TestDoneReleasesLiveness(t *testing.T) {
	c := newContainer(t, 1, 1)
	id, err := c.Invoke(audio.Sequencer)
	require.NoError(t, err)
	require.NoError(t, c.Start(id))
	delay := runsOf(c, recall.Delay)[0]
	beats := runsOf(c, recall.CountBeats)[0]
	assert.Equal(t, 1, delay.Refs(recall.NotifyAudio))
	require.NoError(t, beats.Done())
	assert.Equal(t, 0, delay.Refs(recall.NotifyAudio))
	assert.Equal(t, 1, delay.Refs(recall.NotifyAudioRun))

	// invocation is finished when all its audio level runs are done.
	assert.False(t, c.Finished(id))
	require.NoError(t, delay.Done())
	assert.True(t, c.Finished(id))
	ids, _ := c.Sweep()
	assert.Equal(t, 1, ids)
	assert.Empty(t, c.IDs())
	assert.True(t, delay.Balanced())
}

func TestSweepSignals(t *testing.T) {
	c := newContainer(t, 1, 1)
	id, err := c.Invoke(audio.Sequencer)
	require.NoError(t, err)
	rc := c.Audio().Input(0, 0).Recycling()
	rc.Add(c.Audio().NewSignal(id.Invocation(), 0, 10))
	rc.Add(c.Audio().NewSignal("gone", 0, 10))
	ids, signals := c.Sweep()
	assert.Equal(t, 0, ids)
	assert.Equal(t, 1, signals)
	assert.Len(t, rc.Signals(), 1)

	require.NoError(t, c.Teardown(id))
	assert.Empty(t, rc.Signals())
}

func TestCancelUnbindsDependents(t *testing.T) {
	c := newContainer(t, 1, 1)
	id, err := c.Invoke(audio.Sequencer)
	require.NoError(t, err)
	require.NoError(t, c.Start(id))
	delay := runsOf(c, recall.Delay)[0]
	beats := runsOf(c, recall.CountBeats)[0]
	copyPattern := runsOf(c, recall.CopyPattern)[0]

	c.Cancel(delay)
	assert.Nil(t, beats.Dependency(recall.Delay))
	assert.Nil(t, copyPattern.Dependency(recall.Delay))
	assert.Equal(t, beats, copyPattern.Dependency(recall.CountBeats))
	assert.True(t, delay.Balanced())

	assert.Equal(t, 1, c.RemoveDependency(copyPattern, recall.CountBeats))
	assert.Equal(t, 0, c.RemoveDependency(copyPattern, recall.CountBeats))
	assert.Equal(t, 0, beats.Refs(recall.NotifyChannelRun))
	assert.Equal(t, 0, beats.Refs(recall.NotifyChannel))
}

func TestRemoveTemplate(t *testing.T) {
	c := newContainer(t, 1, 2)
	_, err := c.Invoke(audio.Sequencer)
	require.NoError(t, err)
	assert.Len(t, runsOf(c, recall.Chorus), 2)
	synths := runsOf(c, recall.Synth)
	assert.True(t, c.RemoveTemplate("synth"))
	assert.False(t, c.RemoveTemplate("synth"))
	assert.Empty(t, runsOf(c, recall.Synth))
	for _, chorus := range runsOf(c, recall.Chorus) {
		assert.Nil(t, chorus.Dependency(recall.Synth))
	}
	for _, s := range synths {
		assert.True(t, s.Balanced())
	}
}

func TestApply(t *testing.T) {
	c := newContainer(t, 2, 2)
	id, err := c.Invoke(audio.Sequencer)
	require.NoError(t, err)
	require.NoError(t, c.Start(id))
	children := len(c.IDs())
	assert.ErrorIs(t, c.Apply("volume"), recall.ErrNotRegistered)

	require.NoError(t, c.AddTemplate(&recall.Template{
		Name:      "volume",
		Kind:      recall.Volume,
		Level:     recall.ChannelLevel,
		Direction: audio.Input,
		Scopes:    sequencer,
	}))
	require.NoError(t, c.Apply("volume"))
	volumes := runsOf(c, recall.Volume)
	require.Len(t, volumes, 4)
	for _, r := range volumes {
		assert.True(t, r.IsRunning())
		assert.False(t, r.RecallID().IsToplevel())
	}
	// existing child ids own the new runs.
	assert.Len(t, c.IDs(), children)

	require.NoError(t, c.AddTemplate(&recall.Template{
		Name:   "capture",
		Kind:   recall.Capture,
		Level:  recall.AudioLevel,
		Scopes: []audio.SoundScope{audio.WaveScope},
	}))
	require.NoError(t, c.Apply("capture"))
	assert.Empty(t, runsOf(c, recall.Capture))
}

// 1 recycling with delay and count-beats, grown to 4 pads.
func TestGrowPads(t *testing.T) {
	m := metric.New("test")
	c := newContainer(t, 1, 1, recall.WithMetric(m))
	id, err := c.Invoke(audio.Sequencer)
	require.NoError(t, err)
	require.NoError(t, c.Start(id))

	topology, err := c.Audio().SetPads(4)
	require.NoError(t, err)
	c.Reshape(topology)

	delay := runsOf(c, recall.Delay)[0]
	beats := runsOf(c, recall.CountBeats)[0]
	pairs := runsOf(c, recall.CopyPattern)
	require.Len(t, pairs, 4)
	for _, r := range pairs {
		assert.Equal(t, delay, r.Dependency(recall.Delay))
		assert.Equal(t, beats, r.Dependency(recall.CountBeats))
		assert.Equal(t, recall.Running, r.State())
	}
	assert.Equal(t, 0.0, m.Snapshot()[metric.UnresolvedCounter])
	assert.Len(t, c.Invocation(id), 5)
	assert.Len(t, id.Context().Recyclings(), 4)
	assert.Len(t, id.Context().Children(), 4)

	play := runsOf(c, recall.Play)[0]
	assert.Len(t, play.Dependencies(recall.Stream), 4)
	assert.Len(t, runsOf(c, recall.Stream), 4)
	assertReachable(t, c)
}

func TestShrinkPads(t *testing.T) {
	c := newContainer(t, 2, 4)
	id, err := c.Invoke(audio.Sequencer)
	require.NoError(t, err)
	require.NoError(t, c.Start(id))
	before := c.All()

	topology, err := c.Audio().SetPads(2)
	require.NoError(t, err)
	c.Reshape(topology)

	assert.Len(t, runsOf(c, recall.CopyPattern), 4)
	assert.Len(t, runsOf(c, recall.Stream), 4)
	assert.Len(t, id.Context().Recyclings(), 4)
	for _, play := range runsOf(c, recall.Play) {
		assert.Len(t, play.Dependencies(recall.Stream), 2)
	}
	assertReachable(t, c)
	for _, r := range before {
		if r.State() == recall.Removed {
			assert.True(t, r.Balanced(), "%v leaked reference count", r)
		}
	}
}

func TestAudioChannels(t *testing.T) {
	c := newContainer(t, 1, 2)
	id, err := c.Invoke(audio.Sequencer)
	require.NoError(t, err)
	require.NoError(t, c.Start(id))

	topology, err := c.Audio().SetAudioChannels(2)
	require.NoError(t, err)
	c.Reshape(topology)
	assert.Len(t, runsOf(c, recall.Play), 2)
	assert.Len(t, runsOf(c, recall.CopyPattern), 4)
	assert.Len(t, id.Context().Recyclings(), 4)
	for _, play := range runsOf(c, recall.Play) {
		assert.Len(t, play.Dependencies(recall.Stream), 2)
	}
	assertReachable(t, c)

	topology, err = c.Audio().SetAudioChannels(1)
	require.NoError(t, err)
	c.Reshape(topology)
	assert.Len(t, runsOf(c, recall.Play), 1)
	assert.Len(t, runsOf(c, recall.CopyPattern), 2)
	assert.Len(t, runsOf(c, recall.Stream), 2)
	assert.Len(t, id.Context().Recyclings(), 2)
	assertReachable(t, c)
}

func TestRemapWithoutDetach(t *testing.T) {
	c := newContainer(t, 1, 2)
	id, err := c.Invoke(audio.Sequencer)
	require.NoError(t, err)
	out := c.Audio().Output(0)
	old := out.Recyclings()
	next := old[:1]
	out.ReplaceRecyclings(next)
	c.Remap(out, old, next)

	assert.Len(t, runsOf(c, recall.Stream), 1)
	assert.Equal(t, next, id.Context().Recyclings())
	assertReachable(t, c)
	// child context of the removed recycling is emptied.
	children := id.Context().Children()
	require.Len(t, children, 2)
	assert.Empty(t, children[1].Recyclings())
}
