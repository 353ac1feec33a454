package fx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/fx"
	"pipelined.dev/sequencer/recall"
	"pipelined.dev/sequencer/signal"
)

func TestPlayWave(t *testing.T) {
	tr := newTrack(t, 2, 1, recall.Env{})
	a := tr.Audio()
	data := signal.Allocate(2, 150)
	for i := range data[0] {
		data[0][i] = 0.5
		data[1][i] = -0.25
	}
	a.SetWave(audio.NewWave(data))
	tr.play(t, audio.WaveScope)
	capture := processor[*fx.Capture](t, tr.Container, recall.Capture)

	tr.buffers(3)
	assert.False(t, tr.Finished(tr.id))
	assert.Equal(t, 3*format.BufferSize, capture.Frames())

	// wave is over.
	tr.buffers(1)
	assert.True(t, tr.Finished(tr.id))
	captured := capture.Buffer()
	assert.Equal(t, 2, captured.Format.NumChannels)
	assert.Equal(t, format.SampleRate, captured.Format.SampleRate)
	require.Equal(t, 4*format.BufferSize, captured.NumFrames())
	for i := 0; i < captured.NumFrames(); i++ {
		left, right := captured.Data[2*i], captured.Data[2*i+1]
		if i < 150 {
			assert.Equal(t, 0.5, left, "frame %d", i)
			assert.Equal(t, -0.25, right, "frame %d", i)
			continue
		}
		assert.Equal(t, 0.0, left, "frame %d", i)
		assert.Equal(t, 0.0, right, "frame %d", i)
	}

	ids, _ := tr.Sweep()
	assert.Equal(t, 1, ids)
	for _, in := range a.Inputs() {
		assert.Empty(t, in.Recycling().Signals())
	}
}

func TestEmptyWave(t *testing.T) {
	tr := newTrack(t, 1, 1, recall.Env{})
	tr.play(t, audio.WaveScope)
	tr.buffers(1)
	assert.True(t, tr.Finished(tr.id))
	assert.True(t, silent(tr.Audio().Output(0).Buffer()))
}

func TestPlayMixesInvocations(t *testing.T) {
	tr := newTrack(t, 1, 2, recall.Env{}, pick("stream", "play")...)
	a := tr.Audio()
	first, err := tr.Invoke(audio.Playback)
	require.NoError(t, err)
	second, err := tr.Invoke(audio.Playback)
	require.NoError(t, err)
	require.NoError(t, tr.Start(first))
	require.NoError(t, tr.Start(second))
	// every play is bound to a stream per pad.
	for _, r := range tr.Runs(first) {
		if r.Kind() == recall.Play {
			assert.Len(t, r.Dependencies(recall.Stream), 2)
		}
	}

	feed := func(id *recall.RecallID, pad int, v float64, buffers int) *audio.Signal {
		s := a.NewSignal(id.Invocation(), 0, buffers*format.BufferSize)
		for _, buf := range s.Buffers() {
			for i := range buf {
				buf[i] = v
			}
		}
		a.Input(pad, 0).Recycling().Add(s)
		return s
	}
	feed(first, 0, 0.25, 1)
	feed(first, 1, 0.125, 2)
	feed(second, 0, 0.5, 1)

	out := a.Output(0).Buffer()
	tr.buffers(1)
	for _, v := range out {
		assert.Equal(t, 0.875, v)
	}
	assert.Len(t, a.Input(1, 0).Recycling().Signals(), 1)
	tr.buffers(1)
	for _, v := range out {
		assert.Equal(t, 0.125, v)
	}
	tr.buffers(1)
	assert.True(t, silent(out))

	// signals of torn down invocations are not streamed.
	feed(first, 0, 1, 4)
	require.NoError(t, tr.Teardown(first))
	tr.buffers(1)
	assert.True(t, silent(out))
}
