package wrapper

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/mr-tron/base58/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/tokadapt-server/pkg/config"
	"github.com/code-payments/tokadapt-server/pkg/config/memory"
)

// testLifecycle exercises the default, override, error and cleared states
// shared by every typed wrapper.
func testLifecycle[T any](t *testing.T, wrapper config.Typed[T], mock *memory.Config, defaultValue, overridenValue T) {
	ctx := context.Background()

	// Return the default value when no override is set
	val, err := wrapper.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaultValue, val)
	assert.Equal(t, defaultValue, wrapper.Get(ctx))

	// The overriden value is returned when set
	mock.SetValue(overridenValue)
	val, err = wrapper.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, overridenValue, val)
	assert.Equal(t, overridenValue, wrapper.Get(ctx))

	// The last observed config value is returned on error
	mock.InduceError(nil)
	val, err = wrapper.GetSafe(ctx)
	require.Error(t, err)
	assert.Equal(t, overridenValue, val)
	assert.Equal(t, overridenValue, wrapper.Get(ctx))

	// The default value is returned when the override no longer has a value
	mock.StopInducingErrors()
	mock.ClearValue()
	val, err = wrapper.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaultValue, val)
	assert.Equal(t, defaultValue, wrapper.Get(ctx))

	// Return an unsupported source value type
	mock.SetValue(struct{}{})
	val, err = wrapper.GetSafe(ctx)
	assert.Equal(t, ErrUnsuportedConversion, err)
	assert.Equal(t, defaultValue, val)

	mock.ClearValue()
}

func TestBoolConfig(t *testing.T) {
	mock := memory.NewConfig(nil)
	wrapper := NewBoolConfig(mock, true)
	testLifecycle(t, wrapper, mock, true, false)

	mock.SetValue([]byte(strconv.FormatBool(false)))
	assert.False(t, wrapper.Get(context.Background()))

	// Invalid text keeps the last value
	mock.SetValue([]byte("cannot convert"))
	val, err := wrapper.GetSafe(context.Background())
	require.Error(t, err)
	assert.False(t, val)

	// Shutdown the config via the wrapper
	wrapper.Shutdown()
	_, err = wrapper.GetSafe(context.Background())
	assert.Equal(t, config.ErrShutdown, err)
}

func TestUint64Config(t *testing.T) {
	mock := memory.NewConfig(nil)
	wrapper := NewUint64Config(mock, 1024)
	testLifecycle(t, wrapper, mock, uint64(1024), uint64(math.MaxUint64))

	mock.SetValue([]byte(strconv.FormatUint(math.MaxUint64, 10)))
	assert.EqualValues(t, uint64(math.MaxUint64), wrapper.Get(context.Background()))

	mock.SetValue(uint(7))
	assert.EqualValues(t, 7, wrapper.Get(context.Background()))

	mock.SetValue([]byte("-1"))
	val, err := wrapper.GetSafe(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 7, val)
}

func TestFloat64Config(t *testing.T) {
	mock := memory.NewConfig(nil)
	wrapper := NewFloat64Config(mock, 5.0)
	testLifecycle(t, wrapper, mock, 5.0, 0.25)

	mock.SetValue([]byte("2.5"))
	assert.Equal(t, 2.5, wrapper.Get(context.Background()))

	mock.SetValue(float32(0.5))
	assert.Equal(t, 0.5, wrapper.Get(context.Background()))

	mock.SetValue([]byte("fast"))
	_, err := wrapper.GetSafe(context.Background())
	assert.Error(t, err)
}

func TestStringConfig(t *testing.T) {
	mock := memory.NewConfig(nil)
	wrapper := NewStringConfig(mock, "memory")
	testLifecycle(t, wrapper, mock, "memory", "postgres")

	mock.SetValue([]byte("postgres"))
	assert.Equal(t, "postgres", wrapper.Get(context.Background()))
}

func TestDurationConfig(t *testing.T) {
	mock := memory.NewConfig(nil)
	wrapper := NewDurationConfig(mock, time.Second)
	testLifecycle(t, wrapper, mock, time.Second, time.Minute)

	mock.SetValue([]byte("1500ms"))
	assert.Equal(t, 1500*time.Millisecond, wrapper.Get(context.Background()))

	mock.SetValue([]byte("soon"))
	val, err := wrapper.GetSafe(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1500*time.Millisecond, val)
}

func TestPublicKeyConfig(t *testing.T) {
	defaultValue, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	overridenValue, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	mock := memory.NewConfig(nil)
	wrapper := NewPublicKeyConfig(mock, defaultValue)
	testLifecycle(t, wrapper, mock, defaultValue, overridenValue)

	mock.SetValue([]byte(base58.Encode(overridenValue)))
	assert.Equal(t, overridenValue, wrapper.Get(context.Background()))

	mock.SetValue(base58.Encode(defaultValue))
	assert.Equal(t, defaultValue, wrapper.Get(context.Background()))

	// Not base58
	mock.SetValue([]byte("0OIl"))
	val, err := wrapper.GetSafe(context.Background())
	require.Error(t, err)
	assert.Equal(t, defaultValue, val)

	// Wrong length
	mock.SetValue([]byte(base58.Encode([]byte{1, 2, 3})))
	_, err = wrapper.GetSafe(context.Background())
	assert.Error(t, err)
}
