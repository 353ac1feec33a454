package thread_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/sequencer/metric"
	"pipelined.dev/sequencer/thread"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNew(t *testing.T) {
	_, err := thread.New("zero", 0, nil)
	assert.ErrorIs(t, err, thread.ErrInvalidFrequency)

	th, err := thread.New("audio", 100, nil)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, th.Period())
	assert.Equal(t, "audio", th.Name())
	assert.InDelta(t, 86.13, thread.FrequencyOf(44100, 512), 0.01)
	assert.Equal(t, 0.0, thread.FrequencyOf(44100, 0))
}

func TestStartStop(t *testing.T) {
	var ticks int32
	th, err := thread.New("main", 1000, func(context.Context) {
		atomic.AddInt32(&ticks, 1)
	})
	require.NoError(t, err)

	th.Start()
	// idempotent.
	th.Start()
	assert.True(t, th.IsRunning())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&ticks) > 5 }, time.Second, time.Millisecond)
	th.Stop()
	th.Stop()
	assert.False(t, th.IsRunning())
	assert.False(t, th.LastTick().IsZero())
	assert.Equal(t, uint64(atomic.LoadInt32(&ticks)), th.Tic())

	// restart.
	th.Start()
	th.Stop()
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestTree(t *testing.T) {
	r := &recorder{}
	newThread := func(name string) *thread.Thread {
		th, err := thread.New(name, 1000, nil)
		require.NoError(t, err)
		return th
	}
	main := newThread("main")
	audio := newThread("audio")
	task := newThread("task")
	export := newThread("export")
	main.AddChild(audio)
	main.AddChild(task)
	audio.AddChild(export)

	assert.Equal(t, main, export.Toplevel())
	assert.Equal(t, export, main.Find("export"))
	assert.Nil(t, main.Find("none"))
	main.Walk(func(th *thread.Thread) { r.record(th.Name()) })
	assert.Equal(t, []string{"main", "audio", "export", "task"}, r.list())

	main.Start()
	// start barrier: all children are running when Start returns.
	main.Walk(func(th *thread.Thread) {
		assert.True(t, th.IsRunning(), th.Name())
	})
	main.Stop()
	main.Walk(func(th *thread.Thread) {
		assert.False(t, th.IsRunning(), th.Name())
	})
}

func TestStopOrder(t *testing.T) {
	r := &recorder{}
	var childTicks atomic.Int32
	child, err := thread.New("child", 1000, func(ctx context.Context) {
		childTicks.Add(1)
	})
	require.NoError(t, err)
	parent, err := thread.New("parent", 1000, func(context.Context) {
		// parent keeps ticking until all children are stopped.
		if !child.IsRunning() {
			r.record("parent ticks after child stop")
		}
	})
	require.NoError(t, err)
	parent.AddChild(child)
	parent.Start()
	assert.Eventually(t, func() bool { return childTicks.Load() > 2 }, time.Second, time.Millisecond)
	parent.Stop()
	assert.False(t, child.IsRunning())
	assert.False(t, parent.IsRunning())
}

func TestAddChildRunning(t *testing.T) {
	parent, err := thread.New("parent", 1000, nil)
	require.NoError(t, err)
	parent.Start()
	defer parent.Stop()

	var ticks atomic.Int32
	child, err := thread.New("child", 1000, func(context.Context) { ticks.Add(1) })
	require.NoError(t, err)
	parent.AddChild(child)
	// started on the next parent tick.
	assert.Eventually(t, child.IsRunning, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return ticks.Load() > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, parent, child.Parent())

	assert.True(t, parent.RemoveChild(child))
	assert.False(t, parent.RemoveChild(child))
	assert.False(t, child.IsRunning())
	assert.Nil(t, child.Parent())
	assert.Empty(t, parent.Children())
}

func TestOverrun(t *testing.T) {
	m := metric.New("test")
	th, err := thread.New("slow", 1000, func(context.Context) {
		time.Sleep(3 * time.Millisecond)
	}, thread.WithMetric(m))
	require.NoError(t, err)
	th.Start()
	assert.Eventually(t, func() bool { return th.Tic() > 3 }, time.Second, time.Millisecond)
	th.Stop()

	values := m.Snapshot()
	// degraded, not fatal: every tick overruns and ticking continues.
	assert.Equal(t, float64(th.Tic()), values[metric.TickCounter])
	assert.Equal(t, float64(th.Tic()), values[metric.OverrunCounter])
}

func TestHangs(t *testing.T) {
	block := make(chan struct{})
	th, err := thread.New("hanging", 1000, func(context.Context) {
		<-block
	})
	require.NoError(t, err)
	assert.False(t, th.Hangs(1))
	th.Start()
	close(block)
	assert.Eventually(t, func() bool { return th.Tic() > 0 }, time.Second, time.Millisecond)
	th.Stop()
	assert.False(t, th.Hangs(1))
}
