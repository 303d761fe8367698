package server

import (
	"time"

	"github.com/mr-tron/base58/base58"

	"github.com/code-payments/tokadapt-server/pkg/config"
	"github.com/code-payments/tokadapt-server/pkg/config/env"
	"github.com/code-payments/tokadapt-server/pkg/config/memory"
	"github.com/code-payments/tokadapt-server/pkg/config/wrapper"
	"github.com/code-payments/tokadapt-server/pkg/executor"
	"github.com/code-payments/tokadapt-server/pkg/solana/tokadapt"
)

const (
	envConfigPrefix = "TOKADAPT_SERVER_"

	ProgramIdConfigEnvName = envConfigPrefix + "PROGRAM_ID"
	defaultProgramId       = tokadapt.DefaultProgramAddress

	HttpListenAddressConfigEnvName = envConfigPrefix + "HTTP_LISTEN_ADDRESS"
	defaultHttpListenAddress       = ":8080"

	HttpShutdownTimeoutConfigEnvName = envConfigPrefix + "HTTP_SHUTDOWN_TIMEOUT"
	defaultHttpShutdownTimeout       = 10 * time.Second

	StoreTypeConfigEnvName = envConfigPrefix + "STORE_TYPE"
	defaultStoreType       = storeTypeMemory

	PostgresUserConfigEnvName = envConfigPrefix + "POSTGRES_USER"
	defaultPostgresUser       = "postgres"

	PostgresPasswordConfigEnvName = envConfigPrefix + "POSTGRES_PASSWORD"
	defaultPostgresPassword       = ""

	PostgresHostConfigEnvName = envConfigPrefix + "POSTGRES_HOST"
	defaultPostgresHost       = "localhost"

	PostgresPortConfigEnvName = envConfigPrefix + "POSTGRES_PORT"
	defaultPostgresPort       = 5432

	PostgresDbNameConfigEnvName = envConfigPrefix + "POSTGRES_DB_NAME"
	defaultPostgresDbName       = "tokadapt"

	PostgresMaxOpenConnectionsConfigEnvName = envConfigPrefix + "POSTGRES_MAX_OPEN_CONNECTIONS"
	defaultPostgresMaxOpenConnections       = 32

	PostgresMaxIdleConnectionsConfigEnvName = envConfigPrefix + "POSTGRES_MAX_IDLE_CONNECTIONS"
	defaultPostgresMaxIdleConnections       = 8

	SubmitRateLimitConfigEnvName = envConfigPrefix + "SUBMIT_RATE_LIMIT"
	defaultSubmitRateLimit       = 5.0

	AccountLockStripesConfigEnvName = envConfigPrefix + "ACCOUNT_LOCK_STRIPES"
	defaultAccountLockStripes       = executor.DefaultLockStripes

	DisableSubmissionsConfigEnvName = envConfigPrefix + "DISABLE_SUBMISSIONS"
	defaultDisableSubmissions       = false
)

const (
	storeTypeMemory   = "memory"
	storeTypePostgres = "postgres"
)

type conf struct {
	programId           config.PublicKey
	httpListenAddress   config.String
	httpShutdownTimeout config.Duration

	storeType                  config.String
	postgresUser               config.String
	postgresPassword           config.String
	postgresHost               config.String
	postgresPort               config.Uint64
	postgresDbName             config.String
	postgresMaxOpenConnections config.Uint64
	postgresMaxIdleConnections config.Uint64

	// Per fee payer, per second. Zero disables limiting.
	submitRateLimit    config.Float64
	accountLockStripes config.Uint64
	disableSubmissions config.Bool
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			programId:           env.NewPublicKeyConfig(ProgramIdConfigEnvName, mustDecodeKey(defaultProgramId)),
			httpListenAddress:   env.NewStringConfig(HttpListenAddressConfigEnvName, defaultHttpListenAddress),
			httpShutdownTimeout: env.NewDurationConfig(HttpShutdownTimeoutConfigEnvName, defaultHttpShutdownTimeout),

			storeType:                  env.NewStringConfig(StoreTypeConfigEnvName, defaultStoreType),
			postgresUser:               env.NewStringConfig(PostgresUserConfigEnvName, defaultPostgresUser),
			postgresPassword:           env.NewStringConfig(PostgresPasswordConfigEnvName, defaultPostgresPassword),
			postgresHost:               env.NewStringConfig(PostgresHostConfigEnvName, defaultPostgresHost),
			postgresPort:               env.NewUint64Config(PostgresPortConfigEnvName, defaultPostgresPort),
			postgresDbName:             env.NewStringConfig(PostgresDbNameConfigEnvName, defaultPostgresDbName),
			postgresMaxOpenConnections: env.NewUint64Config(PostgresMaxOpenConnectionsConfigEnvName, defaultPostgresMaxOpenConnections),
			postgresMaxIdleConnections: env.NewUint64Config(PostgresMaxIdleConnectionsConfigEnvName, defaultPostgresMaxIdleConnections),

			submitRateLimit:    env.NewFloat64Config(SubmitRateLimitConfigEnvName, defaultSubmitRateLimit),
			accountLockStripes: env.NewUint64Config(AccountLockStripesConfigEnvName, defaultAccountLockStripes),
			disableSubmissions: env.NewBoolConfig(DisableSubmissionsConfigEnvName, defaultDisableSubmissions),
		}
	}
}

type testOverrides struct {
	storeType          string
	submitRateLimit    float64
	disableSubmissions bool
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	storeType := overrides.storeType
	if len(storeType) == 0 {
		storeType = storeTypeMemory
	}

	return func() *conf {
		return &conf{
			programId:           wrapper.NewPublicKeyConfig(memory.NewConfig(nil), mustDecodeKey(defaultProgramId)),
			httpListenAddress:   wrapper.NewStringConfig(memory.NewConfig("localhost:0"), defaultHttpListenAddress),
			httpShutdownTimeout: wrapper.NewDurationConfig(memory.NewConfig(time.Second), defaultHttpShutdownTimeout),

			storeType:                  wrapper.NewStringConfig(memory.NewConfig(storeType), defaultStoreType),
			postgresUser:               wrapper.NewStringConfig(memory.NewConfig(nil), defaultPostgresUser),
			postgresPassword:           wrapper.NewStringConfig(memory.NewConfig(nil), defaultPostgresPassword),
			postgresHost:               wrapper.NewStringConfig(memory.NewConfig(nil), defaultPostgresHost),
			postgresPort:               wrapper.NewUint64Config(memory.NewConfig(nil), defaultPostgresPort),
			postgresDbName:             wrapper.NewStringConfig(memory.NewConfig(nil), defaultPostgresDbName),
			postgresMaxOpenConnections: wrapper.NewUint64Config(memory.NewConfig(nil), defaultPostgresMaxOpenConnections),
			postgresMaxIdleConnections: wrapper.NewUint64Config(memory.NewConfig(nil), defaultPostgresMaxIdleConnections),

			submitRateLimit:    wrapper.NewFloat64Config(memory.NewConfig(overrides.submitRateLimit), defaultSubmitRateLimit),
			accountLockStripes: wrapper.NewUint64Config(memory.NewConfig(uint64(16)), defaultAccountLockStripes),
			disableSubmissions: wrapper.NewBoolConfig(memory.NewConfig(overrides.disableSubmissions), defaultDisableSubmissions),
		}
	}
}

func mustDecodeKey(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}
