package mock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/sequencer/internal/mock"
)

var errTest = errors.New("test error")

func TestUnit(t *testing.T) {
	u := &mock.Unit{Specifier: "gain", Gain: 2}
	buf := []float64{1, 1}
	assert.NoError(t, u.Process(buf))
	assert.Equal(t, []float64{2, 2}, buf)
	calls, samples := u.Count()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, samples)
	assert.Equal(t, "gain", u.Descriptor().Specifier)

	u.ErrorOnCall = errTest
	assert.Equal(t, errTest, u.Process(buf))

	u.ErrorOnCall = nil
	u.PanicOnCall = true
	assert.Panics(t, func() { _ = u.Process(buf) })
}

func TestTask(t *testing.T) {
	r := &mock.Recorder{}
	var called bool
	m := &mock.Task{
		Name:        "first",
		Recorder:    r,
		ErrorOnCall: errTest,
		Fn:          func(context.Context) { called = true },
	}
	assert.Equal(t, errTest, m.Launch(context.Background()))
	assert.True(t, called)
	calls, _ := m.Count()
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"first"}, r.Names())
}
