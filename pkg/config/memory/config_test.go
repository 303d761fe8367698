package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokadapt-server/pkg/config"
)

func TestConfig(t *testing.T) {
	ctx := context.Background()

	c := NewConfig(nil)
	_, err := c.Get(ctx)
	assert.Equal(t, config.ErrNoValue, err)

	c.SetValue("postgres")
	val, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "postgres", val)

	c.InduceError(nil)
	_, err = c.Get(ctx)
	assert.Equal(t, ErrDeveloperInduced, err)

	custom := errors.New("source unavailable")
	c.InduceError(custom)
	_, err = c.Get(ctx)
	assert.Equal(t, custom, err)

	c.StopInducingErrors()
	c.ClearValue()
	_, err = c.Get(ctx)
	assert.Equal(t, config.ErrNoValue, err)

	c.Shutdown()
	_, err = c.Get(ctx)
	assert.Equal(t, config.ErrShutdown, err)

	assert.Equal(t, 6, c.Reads())
}
