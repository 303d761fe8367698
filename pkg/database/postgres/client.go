package pg

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	_ "github.com/newrelic/go-agent/v3/integrations/nrpgx"
)

// Queries are traced through New Relic by opening pools with the nrpgx driver.
const driverName = "nrpgx"

const defaultConnectTimeout = 10 * time.Second

type Config struct {
	User               string
	Host               string
	Password           string
	Port               int
	DbName             string
	MaxOpenConnections int
	MaxIdleConnections int

	// ConnectTimeout bounds the initial ping. Zero uses a 10s default.
	ConnectTimeout time.Duration
}

// DSN returns the connection URL for the config. Credentials are escaped.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.DbName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// NewFromConfig opens a connection pool, applies the pool limits and verifies
// the database is reachable.
func NewFromConfig(ctx context.Context, config *Config) (*sql.DB, error) {
	db, err := sql.Open(driverName, config.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "error opening connection pool")
	}

	if config.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(config.MaxOpenConnections)
	}
	if config.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(config.MaxIdleConnections)
	}

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "error connecting to %s", config.Host)
	}
	return db, nil
}
