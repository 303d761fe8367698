package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/code-payments/tokadapt-server/pkg/config"
)

// ErrDeveloperInduced is the error returned by InduceError(nil)
var ErrDeveloperInduced = errors.New("in memory config: developer induced error")

// Config is an in memory config source used to drive typed configs from tests.
// A nil value means no value is set.
type Config struct {
	mu       sync.RWMutex
	value    interface{}
	err      error
	reads    int
	shutdown bool
}

func NewConfig(value interface{}) *Config {
	return &Config{value: value}
}

// Get implements config.Config.Get
func (c *Config) Get(_ context.Context) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reads++

	switch {
	case c.shutdown:
		return nil, config.ErrShutdown
	case c.err != nil:
		return nil, c.err
	case c.value == nil:
		return nil, config.ErrNoValue
	}
	return c.value, nil
}

// Shutdown implements config.Config.Shutdown
func (c *Config) Shutdown() {
	c.mu.Lock()
	c.shutdown = true
	c.mu.Unlock()
}

func (c *Config) SetValue(value interface{}) {
	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
}

// ClearValue results in config.ErrNoValue on subsequent reads
func (c *Config) ClearValue() {
	c.SetValue(nil)
}

// InduceError makes subsequent reads fail with err, or ErrDeveloperInduced
// when err is nil.
func (c *Config) InduceError(err error) {
	if err == nil {
		err = ErrDeveloperInduced
	}

	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Config) StopInducingErrors() {
	c.mu.Lock()
	c.err = nil
	c.mu.Unlock()
}

// Reads returns the number of times the value has been read
func (c *Config) Reads() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reads
}
