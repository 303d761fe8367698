package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitFor(t *testing.T) {
	require.NoError(t, WaitFor(50*time.Millisecond, 10*time.Millisecond, func() bool {
		return true
	}))

	var polls int
	require.NoError(t, WaitFor(time.Second, time.Millisecond, func() bool {
		polls++
		return polls == 3
	}))
	assert.Equal(t, 3, polls)

	start := time.Now()
	require.Error(t, WaitFor(50*time.Millisecond, 10*time.Millisecond, func() bool {
		return false
	}))
	assert.True(t, time.Since(start) >= 50*time.Millisecond)

	require.Error(t, WaitFor(10*time.Millisecond, 100*time.Millisecond, func() bool {
		return true
	}))
}
