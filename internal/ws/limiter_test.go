package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionLimiter(t *testing.T) {
	l := NewConnectionLimiter(2)

	require.NoError(t, l.Acquire())
	require.NoError(t, l.Acquire())
	assert.Equal(t, int32(2), l.CurrentCount())
	assert.Equal(t, int32(0), l.Available())

	assert.ErrorIs(t, l.Acquire(), ErrConnectionLimitExceeded)

	l.Release()
	assert.Equal(t, int32(1), l.CurrentCount())
	require.NoError(t, l.Acquire())
}

func TestConnectionLimiterDoubleRelease(t *testing.T) {
	l := NewConnectionLimiter(1)

	require.NoError(t, l.Acquire())
	l.Release()
	l.Release() // must not underflow

	assert.Equal(t, int32(0), l.CurrentCount())
	require.NoError(t, l.Acquire())
}

func TestConnectionLimiterDefaultCap(t *testing.T) {
	l := NewConnectionLimiter(0)
	assert.Equal(t, int32(DefaultMaxConnections), l.Available())
}
