package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/sequencer/internal/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool(t *testing.T) {
	p := worker.New(2)
	var running, peak, done int32
	for i := 0; i < 10; i++ {
		p.Go(func(context.Context) {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&running, -1)
			atomic.AddInt32(&done, 1)
		})
	}
	p.Wait()
	assert.Equal(t, int32(10), done)
	assert.LessOrEqual(t, peak, int32(2))
	p.Close()
}

func TestClose(t *testing.T) {
	p := worker.New(1)
	release := make(chan struct{})
	var started int32
	require.NoError(t, p.Go(func(context.Context) {
		atomic.AddInt32(&started, 1)
		<-release
	}))
	// wait for the first job to hold the only slot.
	for atomic.LoadInt32(&started) == 0 {
		time.Sleep(time.Millisecond)
	}
	var cancelled int32
	require.NoError(t, p.Go(func(ctx context.Context) {
		if ctx.Err() != nil {
			atomic.StoreInt32(&cancelled, 1)
		}
	}))
	go func() {
		time.Sleep(5 * time.Millisecond)
		close(release)
	}()
	p.Close()
	// waiting job is called with cancelled context.
	assert.Equal(t, int32(1), atomic.LoadInt32(&cancelled))

	called := false
	err := p.Go(func(context.Context) { called = true })
	assert.ErrorIs(t, err, worker.ErrClosed)
	p.Wait()
	assert.False(t, called)
}
