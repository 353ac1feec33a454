package fx_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/fx"
	"pipelined.dev/sequencer/internal/mock"
	"pipelined.dev/sequencer/plugin"
	"pipelined.dev/sequencer/recall"
)

var errUnit = errors.New("unit error")

// constant feeds a signal of constant value into every input of the
// invocation.
func constant(a *audio.Audio, id *recall.RecallID, v float64) {
	for _, in := range a.Inputs() {
		s := a.NewSignal(id.Invocation(), 0, format.BufferSize)
		for i := range s.Stream() {
			s.Stream()[i] = v
		}
		in.Recycling().Add(s)
	}
}

func TestVolume(t *testing.T) {
	tr := newTrack(t, 1, 1, recall.Env{}, pick("stream", "play", "volume")...)
	tr.play(t, audio.Playback)
	volume := processor[*fx.Volume](t, tr.Container, recall.Volume)
	require.NoError(t, volume.Controls().Set(fx.PortGain, 0.5))
	a := tr.Audio()

	constant(a, tr.id, 0.5)
	tr.buffers(1)
	for _, v := range a.Output(0).Buffer() {
		assert.Equal(t, 0.25, v)
	}
}

func TestPlugin(t *testing.T) {
	tests := []struct {
		name     string
		unit     *mock.Unit
		expected float64
		failed   bool
	}{
		{
			name:     "gain",
			unit:     &mock.Unit{Specifier: "gain", Gain: 2},
			expected: 1,
		},
		{
			name:     "error",
			unit:     &mock.Unit{Specifier: "error", ErrorOnCall: errUnit},
			expected: 0,
			failed:   true,
		},
		{
			name:     "panic",
			unit:     &mock.Unit{Specifier: "panic", PanicOnCall: true},
			expected: 0,
			failed:   true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			registry := &plugin.Registry{}
			registry.Register(test.unit.Specifier, func() plugin.Unit { return test.unit })
			templates := append(pick("stream", "play"), fx.PluginTemplate(test.unit.Descriptor()))
			tr := newTrack(t, 1, 1, recall.Env{Loader: registry}, templates...)
			tr.play(t, audio.Playback)
			assert.True(t, test.unit.Activated)
			unit := processor[*fx.Plugin](t, tr.Container, recall.Plugin)
			assert.Equal(t, 1.0, unit.Controls().Value("gain"))

			a := tr.Audio()
			constant(a, tr.id, 0.5)
			tr.buffers(1)
			for _, v := range a.Output(0).Buffer() {
				assert.Equal(t, test.expected, v)
			}
			calls, samples := test.unit.Count()
			if test.failed {
				assert.Equal(t, 0, samples)
			} else {
				assert.Equal(t, 1, calls)
				assert.Equal(t, format.BufferSize, samples)
			}

			require.NoError(t, tr.Teardown(tr.id))
			assert.True(t, test.unit.Deactivated)
			assert.True(t, test.unit.Cleaned)
		})
	}
}

func TestPluginNotLoaded(t *testing.T) {
	u := &mock.Unit{Specifier: "mock"}
	tests := []struct {
		name string
		env  recall.Env
		unit *mock.Unit
	}{
		{
			name: "no loader",
		},
		{
			name: "not found",
			env:  recall.Env{Loader: &plugin.Registry{}},
		},
		{
			name: "activate error",
			unit: &mock.Unit{Specifier: "mock", Hooks: mock.Hooks{ErrorOnActivate: errUnit}},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if test.unit != nil {
				registry := &plugin.Registry{}
				registry.Register("mock", func() plugin.Unit { return test.unit })
				test.env.Loader = registry
			}
			tr := newTrack(t, 1, 1, test.env, pick("stream", "play")[0], fx.PluginTemplate(u.Descriptor()))
			tr.play(t, audio.Playback)
			for _, r := range tr.All() {
				assert.NotEqual(t, recall.Plugin, r.Kind())
			}
			if test.unit != nil {
				assert.True(t, test.unit.Cleaned)
			}
		})
	}
}
