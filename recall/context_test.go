package recall_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/sequencer/audio"
	"pipelined.dev/sequencer/recall"
)

func TestContext(t *testing.T) {
	a, err := audio.New("test", format, 1, 3)
	require.NoError(t, err)
	chain := a.Output(0).Recyclings()

	root := recall.NewContext(nil, chain)
	child := recall.NewContext(root, chain[:1])
	grandchild := recall.NewContext(child, chain[:1])

	assert.Nil(t, root.Parent())
	assert.Equal(t, root, child.Parent())
	assert.Equal(t, []*recall.RecyclingContext{grandchild, child, root}, grandchild.Lineage())
	assert.Equal(t, 2, grandchild.Depth())
	assert.Equal(t, root, grandchild.Toplevel())
	assert.Equal(t, []*recall.RecyclingContext{child}, root.Children())

	assert.True(t, child.Contains(chain[0]))
	assert.False(t, child.Contains(chain[1]))
	assert.True(t, child.Intersects(chain))
	assert.False(t, child.Intersects(chain[1:]))

	assert.True(t, root.RemoveChild(child))
	assert.False(t, root.RemoveChild(child))
	assert.Nil(t, child.Parent())
	assert.Equal(t, child, grandchild.Toplevel())
}

func TestContextReplace(t *testing.T) {
	a, err := audio.New("test", format, 1, 4)
	require.NoError(t, err)
	chain := a.Output(0).Recyclings()

	tests := []struct {
		name     string
		initial  []*audio.Recycling
		old      []*audio.Recycling
		next     []*audio.Recycling
		expected []*audio.Recycling
	}{
		{
			name:     "grow",
			initial:  chain[:1],
			old:      chain[:1],
			next:     chain,
			expected: chain,
		},
		{
			name:     "shrink",
			initial:  chain,
			old:      chain,
			next:     chain[:2],
			expected: chain[:2],
		},
		{
			name:     "from empty",
			initial:  nil,
			old:      nil,
			next:     chain[2:],
			expected: chain[2:],
		},
		{
			name:     "unrelated kept",
			initial:  chain[:2],
			old:      chain[1:2],
			next:     nil,
			expected: chain[:1],
		},
		{
			name:     "remove all",
			initial:  chain[3:],
			old:      chain,
			next:     nil,
			expected: []*audio.Recycling{},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx := recall.NewContext(nil, test.initial)
			ctx.Replace(test.old, test.next)
			assert.Equal(t, test.expected, ctx.Recyclings())
		})
	}
}

func TestRecallID(t *testing.T) {
	ctx := recall.NewContext(nil, nil)
	parent := recall.NewRecallID(audio.NotationScope, ctx, nil)
	child := recall.NewRecallID(audio.NotationScope, recall.NewContext(ctx, nil), parent)
	assert.True(t, parent.IsToplevel())
	assert.False(t, child.IsToplevel())
	assert.Equal(t, parent.String(), child.Invocation())
	assert.NotEqual(t, parent.String(), child.String())
	assert.Equal(t, audio.NotationScope, child.Scope())
	assert.Equal(t, parent, child.Parent())

	assert.Equal(t, uint64(0), parent.Advance())
	assert.Equal(t, uint64(1), parent.Advance())
	assert.Equal(t, uint64(2), parent.Buffer())
	assert.False(t, parent.Started())
}
