package pg

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	config := &Config{
		User:     "tokadapt",
		Password: "p@ss/w:rd",
		Host:     "db.internal",
		Port:     6432,
		DbName:   "ledger",
	}

	dsn := config.DSN()

	parsed, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "postgres", parsed.Scheme)
	assert.Equal(t, "tokadapt", parsed.User.Username())
	password, ok := parsed.User.Password()
	require.True(t, ok)
	assert.Equal(t, "p@ss/w:rd", password)
	assert.Equal(t, "db.internal:6432", parsed.Host)
	assert.Equal(t, "/ledger", parsed.Path)
	assert.Equal(t, "disable", parsed.Query().Get("sslmode"))
}

func TestConfig_DSNWithIPv6Host(t *testing.T) {
	config := &Config{User: "u", Host: "::1", Port: 5432, DbName: "db"}

	parsed, err := url.Parse(config.DSN())
	require.NoError(t, err)
	assert.Equal(t, "::1", parsed.Hostname())
	assert.Equal(t, "5432", parsed.Port())
}
