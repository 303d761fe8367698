package env

import (
	"context"
	"crypto/ed25519"
	"os"
	"strings"
	"time"

	"github.com/code-payments/tokadapt-server/pkg/config"
	"github.com/code-payments/tokadapt-server/pkg/config/wrapper"
)

// variable reads an environment variable on every Get, so a value exported
// after startup is picked up by the next read. Keys are upper cased.
type variable string

// NewConfig returns a config backed by the environment variable named key.
func NewConfig(key string) config.Config {
	return variable(strings.ToUpper(key))
}

func (v variable) Get(_ context.Context) (interface{}, error) {
	raw, ok := os.LookupEnv(string(v))
	raw = strings.TrimSpace(raw)
	if !ok || len(raw) == 0 {
		return nil, config.ErrNoValue
	}
	return []byte(raw), nil
}

func (v variable) Shutdown() {
}

// Typed constructors. Unset or blank variables yield the default, and values
// that fail to parse keep the last good value.

func NewUint64Config(key string, defaultValue uint64) config.Uint64 {
	return wrapper.NewUint64Config(NewConfig(key), defaultValue)
}

func NewFloat64Config(key string, defaultValue float64) config.Float64 {
	return wrapper.NewFloat64Config(NewConfig(key), defaultValue)
}

func NewStringConfig(key string, defaultValue string) config.String {
	return wrapper.NewStringConfig(NewConfig(key), defaultValue)
}

func NewBoolConfig(key string, defaultValue bool) config.Bool {
	return wrapper.NewBoolConfig(NewConfig(key), defaultValue)
}

func NewDurationConfig(key string, defaultValue time.Duration) config.Duration {
	return wrapper.NewDurationConfig(NewConfig(key), defaultValue)
}

// NewPublicKeyConfig expects a base58 encoded key.
func NewPublicKeyConfig(key string, defaultValue ed25519.PublicKey) config.PublicKey {
	return wrapper.NewPublicKeyConfig(NewConfig(key), defaultValue)
}
