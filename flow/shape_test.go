package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeElementsAndScalar(t *testing.T) {
	assert.Equal(t, 24, NewShape(2, 3, 4).Elements())
	assert.True(t, NewShape(1, 1).Scalar())
	assert.False(t, NewShape(2).Scalar())
}

func TestShapeEqual(t *testing.T) {
	assert.True(t, NewShape(2, 3).Equal(NewShape(2, 3)))
	assert.False(t, NewShape(2, 3).Equal(NewShape(3, 2)))
	assert.False(t, NewShape(2, 3).Equal(NewShape(2)))
}

func TestBroadcastCompatible(t *testing.T) {
	assert.True(t, NewShape(4, 4).BroadcastCompatible(NewShape(4)))
	assert.True(t, NewShape(4, 4).BroadcastCompatible(NewShape(1)))
	assert.False(t, NewShape(4, 4).BroadcastCompatible(NewShape(3)))
}

func TestCommonSize(t *testing.T) {
	n, err := CommonSize(NewShape(4, 4), NewShape(1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = CommonSize(NewShape(4, 4), NewShape(4))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = CommonSize(NewShape(4, 4), NewShape(3))
	assert.Error(t, err)
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "[2,3]", NewShape(2, 3).String())
	assert.Equal(t, "[?,4]", NewShape(Unbounded, 4).String())
}
