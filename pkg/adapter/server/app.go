package server

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"sync"

	"github.com/mr-tron/base58/base58"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/code-payments/tokadapt-server/pkg/adapter"
	"github.com/code-payments/tokadapt-server/pkg/bank"
	bank_memory "github.com/code-payments/tokadapt-server/pkg/bank/memory"
	bank_postgres "github.com/code-payments/tokadapt-server/pkg/bank/postgres"
	pg "github.com/code-payments/tokadapt-server/pkg/database/postgres"
	"github.com/code-payments/tokadapt-server/pkg/executor"
	"github.com/code-payments/tokadapt-server/pkg/grpc/app"
	"github.com/code-payments/tokadapt-server/pkg/metrics"
	"github.com/code-payments/tokadapt-server/pkg/solana/tokadapt"
	"github.com/code-payments/tokadapt-server/pkg/tokenledger"
)

// App runs the JSON API over HTTP alongside the gRPC health service provided
// by app.Run.
type App struct {
	log            *logrus.Entry
	configProvider ConfigProvider
	conf           *conf

	db         *sql.DB
	httpServer *http.Server
	listener   net.Listener

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	stopOnce     sync.Once
}

var _ app.App = (*App)(nil)

func NewApp(configProvider ConfigProvider) *App {
	return &App{
		log:            logrus.StandardLogger().WithField("type", "adapter/server/app"),
		configProvider: configProvider,
		shutdownCh:     make(chan struct{}),
	}
}

// Init implements app.App.Init
func (a *App) Init(_ app.Config, metricsProvider *newrelic.Application) error {
	ctx := context.Background()

	a.conf = a.configProvider()

	programId, err := a.conf.programId.GetSafe(ctx)
	if err != nil {
		return errors.Wrap(err, "invalid program id")
	}
	if err := tokadapt.InitProgramID(programId); err != nil {
		return errors.Wrap(err, "error setting program id")
	}

	store, err := a.newStore(ctx)
	if err != nil {
		return err
	}

	ledger := tokenledger.New(store)
	processor := adapter.NewProcessor(store, ledger)
	exec := executor.New(store, ledger, processor, uint(a.conf.accountLockStripes.Get(ctx)))
	server := NewServer(store, ledger, processor, exec, func() *conf { return a.conf })

	mux := http.NewServeMux()
	for path, handler := range server.GetHandlers() {
		mux.HandleFunc(instrument(metricsProvider, path, handler))
	}

	a.listener, err = net.Listen("tcp", a.conf.httpListenAddress.Get(ctx))
	if err != nil {
		return errors.Wrapf(err, "error listening on %s", a.conf.httpListenAddress.Get(ctx))
	}
	a.httpServer = &http.Server{Handler: mux}

	go func() {
		err := a.httpServer.Serve(a.listener)
		if err != nil && err != http.ErrServerClosed {
			a.log.WithError(err).Warn("http server stopped unexpectedly")
		}
		a.shutdownOnce.Do(func() { close(a.shutdownCh) })
	}()

	a.log.WithFields(logrus.Fields{
		"program_id": base58.Encode(tokadapt.ProgramID()),
		"address":    a.listener.Addr().String(),
		"store":      a.conf.storeType.Get(ctx),
	}).Info("serving http api")

	return nil
}

func (a *App) newStore(ctx context.Context) (bank.Store, error) {
	switch storeType := a.conf.storeType.Get(ctx); storeType {
	case storeTypeMemory:
		return bank_memory.New(), nil
	case storeTypePostgres:
		db, err := pg.NewFromConfig(ctx, a.postgresConfig(ctx))
		if err != nil {
			return nil, errors.Wrap(err, "error connecting to postgres")
		}

		if _, err := db.ExecContext(ctx, bank_postgres.Schema); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "error applying schema")
		}

		a.db = db
		return bank_postgres.New(db), nil
	default:
		return nil, errors.Errorf("unsupported store type %q", storeType)
	}
}

func (a *App) postgresConfig(ctx context.Context) *pg.Config {
	return &pg.Config{
		User:               a.conf.postgresUser.Get(ctx),
		Password:           a.conf.postgresPassword.Get(ctx),
		Host:               a.conf.postgresHost.Get(ctx),
		Port:               int(a.conf.postgresPort.Get(ctx)),
		DbName:             a.conf.postgresDbName.Get(ctx),
		MaxOpenConnections: int(a.conf.postgresMaxOpenConnections.Get(ctx)),
		MaxIdleConnections: int(a.conf.postgresMaxIdleConnections.Get(ctx)),
	}
}

// instrument wraps a handler in a New Relic transaction, when configured, so
// that method traces and custom events reach the agent.
func instrument(metricsProvider *newrelic.Application, path string, handler http.HandlerFunc) (string, func(http.ResponseWriter, *http.Request)) {
	if metricsProvider == nil {
		return path, handler
	}

	return newrelic.WrapHandleFunc(metricsProvider, path, func(w http.ResponseWriter, r *http.Request) {
		handler(w, r.WithContext(metrics.WithNewRelic(r.Context(), metricsProvider)))
	})
}

// RegisterWithGRPC implements app.App.RegisterWithGRPC. The API is served over
// HTTP only.
func (a *App) RegisterWithGRPC(_ *grpc.Server) {
}

// ShutdownChan implements app.App.ShutdownChan
func (a *App) ShutdownChan() <-chan struct{} {
	return a.shutdownCh
}

// Stop implements app.App.Stop
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		if a.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), a.conf.httpShutdownTimeout.Get(context.Background()))
			defer cancel()

			if err := a.httpServer.Shutdown(ctx); err != nil {
				a.log.WithError(err).Warn("failed to gracefully stop http server")
			}
		}

		if a.db != nil {
			if err := a.db.Close(); err != nil {
				a.log.WithError(err).Warn("failed to close database")
			}
		}

		a.shutdownOnce.Do(func() { close(a.shutdownCh) })
	})
}

// Addr returns the address the HTTP API is listening on, once initialized.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}
