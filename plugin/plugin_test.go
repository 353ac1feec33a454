package plugin_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/sequencer/internal/mock"
	"pipelined.dev/sequencer/plugin"
)

func TestInstance(t *testing.T) {
	u := &mock.Unit{Specifier: "mock"}
	i := plugin.NewInstance(u)
	require.NoError(t, i.Activate(44100, 512))
	assert.True(t, u.Activated)
	require.NoError(t, i.Close())
	assert.True(t, u.Deactivated)
	assert.True(t, u.Cleaned)

	errActivate := errors.New("activate")
	u = &mock.Unit{Specifier: "mock", Hooks: mock.Hooks{ErrorOnActivate: errActivate}}
	i = plugin.NewInstance(u)
	assert.ErrorIs(t, i.Activate(44100, 512), errActivate)
	// not active, so only cleanup is called.
	require.NoError(t, i.Close())
	assert.False(t, u.Deactivated)
	assert.True(t, u.Cleaned)
}

func TestRegistry(t *testing.T) {
	var r plugin.Registry
	_, err := r.Load("none")
	assert.ErrorIs(t, err, plugin.ErrNotFound)

	r.Register("b", func() plugin.Unit { return &mock.Unit{Specifier: "b"} })
	r.Register("a", func() plugin.Unit { return &mock.Unit{Specifier: "a"} })
	u, err := r.Load("a")
	require.NoError(t, err)
	assert.Equal(t, "a", u.Descriptor().Specifier)
	assert.Equal(t, []string{"a", "b"}, r.Specifiers())
}

func TestPort(t *testing.T) {
	p := plugin.Port{Name: "gain", Min: 0, Max: 2, Default: 1}
	assert.Equal(t, 2.0, p.Clamp(5))
	assert.Equal(t, 0.0, p.Clamp(-1))
	assert.Equal(t, 1.0, p.Clamp(math.NaN()))
	assert.Equal(t, 10.0, plugin.Port{}.Clamp(10))

	d := (&mock.Unit{}).Descriptor()
	_, ok := d.Port("gain")
	assert.True(t, ok)
	_, ok = d.Port("none")
	assert.False(t, ok)
}
