package app

import (
	"crypto/tls"
	"expvar"
	"flag"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_logrus "github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	grpc_metrics "github.com/code-payments/tokadapt-server/pkg/grpc/metrics"
	metrics_util "github.com/code-payments/tokadapt-server/pkg/metrics"
	"github.com/code-payments/tokadapt-server/pkg/osutil"
)

// App is a long lived application that services network requests.
// Apps may serve HTTP from Init and register gRPC services. The process always
// serves the gRPC health service.
//
// The lifecycle of the App is tied to the process. The app gets initialized
// before the gRPC server runs, and gets stopped after the gRPC server has stopped
// serving.
type App interface {
	// Init initializes the application in a blocking fashion. When Init returns, it
	// is expected that the application is ready to start receiving requests (provided
	// there are gRPC handlers installed).
	//
	// The New Relic application is nil when no license key is configured.
	Init(config Config, metricsProvider *newrelic.Application) error

	// RegisterWithGRPC provides a mechanism for the application to register gRPC services
	// with the gRPC server.
	RegisterWithGRPC(server *grpc.Server)

	// ShutdownChan returns a channel that is closed when the application is shutdown.
	//
	// If the channel is closed, the gRPC server will initiate a shutdown if it has
	// not already done so.
	ShutdownChan() <-chan struct{}

	// Stop stops the service, allowing for it to clean up any resources. When Stop()
	// returns, the process exits.
	//
	// Stop should be idempotent.
	Stop()
}

var (
	configPath = flag.String("config", "config.yaml", "configuration file path")

	osSigCh = make(chan os.Signal, 1)
)

func init() {
	signal.Notify(osSigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
}

// Run loads the base configuration, initializes app and serves gRPC until a
// shutdown condition is reached. Setup failures terminate the process.
func Run(app App) error {
	flag.Parse()

	logger := logrus.StandardLogger().WithField("type", "grpc/app")
	fatal := func(err error, msg string) {
		logger.WithError(err).Error(msg)
		os.Exit(1)
	}

	config, err := loadBaseConfig(*configPath)
	if err != nil {
		fatal(err, "failed to load config")
	}

	metricsProvider, err := newMetricsProvider(config)
	if err != nil {
		fatal(err, "error connecting to new relic")
	}
	configureLogger(config, metricsProvider)

	// pprof and expvar install themselves on the default mux, which apps use
	// for their own handlers from Init. Those must only be reachable through
	// the debug listener.
	http.DefaultServeMux = http.NewServeMux()
	startDebugServer(logger, config)

	ballast := allocateBallast(config)

	memoryLeakCh, err := startMemoryLeakCron(config)
	if err != nil {
		fatal(err, "failed to initialize memory leak cron")
	}

	listeners, err := listen(config)
	if err != nil {
		fatal(err, "failed to set up grpc listeners")
	}

	if err := app.Init(config.AppConfig, metricsProvider); err != nil {
		fatal(err, "failed to initialize application")
	}

	servers := make([]*grpc.Server, len(listeners))
	stoppedCh := make(chan string, len(listeners))
	for i, l := range listeners {
		servers[i] = newServer(metricsProvider, l.creds)
		app.RegisterWithGRPC(servers[i])
		healthgrpc.RegisterHealthServer(servers[i], health.NewServer())

		go func(name string, serv *grpc.Server, lis net.Listener) {
			if err := serv.Serve(lis); err != nil {
				logger.WithError(err).WithField("listener", name).Error("grpc serve stopped")
			} else {
				logger.WithField("listener", name).Info("grpc server stopped")
			}
			stoppedCh <- name
		}(l.name, servers[i], l.lis)
	}

	select {
	case <-osSigCh:
		logger.Info("interrupt received, shutting down")
	case name := <-stoppedCh:
		logger.WithField("listener", name).Info("grpc server shutdown")
	case <-memoryLeakCh:
		logger.Info("shutdown to deal with memory leak")
	case <-app.ShutdownChan():
		logger.Info("app shutdown")
	}

	doneCh := make(chan struct{})
	go func() {
		// GracefulStop and App.Stop are idempotent, so they are invoked
		// regardless of which condition triggered the shutdown.
		for _, serv := range servers {
			serv.GracefulStop()
		}
		app.Stop()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		runtime.KeepAlive(ballast)
		return nil
	case <-time.After(config.ShutdownGracePeriod):
		return errors.Errorf("failed to stop the application within %v", config.ShutdownGracePeriod)
	}
}

// loadBaseConfig reads path when it exists and falls back to defaults and
// environment variables otherwise.
func loadBaseConfig(path string) (BaseConfig, error) {
	// viper only reports a missing file when it searched for one itself, so an
	// explicitly configured path has to be checked here.
	_, err := os.Stat(path)
	switch {
	case err == nil:
		viper.SetConfigFile(path)
	case !os.IsNotExist(err):
		return BaseConfig{}, errors.Wrap(err, "failed to check if config exists")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return BaseConfig{}, errors.Wrap(err, "failed to read config")
		}
	}

	config := defaultConfig
	if err := viper.Unmarshal(&config); err != nil {
		return BaseConfig{}, errors.Wrap(err, "failed to unmarshal config")
	}
	if len(config.AppName) == 0 {
		return BaseConfig{}, errors.New("must specify an application name")
	}
	return config, nil
}

// newMetricsProvider returns a nil application when no license key is set.
func newMetricsProvider(config BaseConfig) (*newrelic.Application, error) {
	if len(config.NewRelicLicenseKey) == 0 {
		return nil, nil
	}

	return newrelic.NewApplication(
		newrelic.ConfigFromEnvironment(),
		newrelic.ConfigAppName(config.AppName),
		newrelic.ConfigLicense(config.NewRelicLicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
}

func startDebugServer(logger *logrus.Entry, config BaseConfig) {
	if !config.EnableExpvar && !config.EnablePprof {
		return
	}

	mux := http.NewServeMux()
	if config.EnableExpvar {
		mux.Handle("/debug/vars", expvar.Handler())
	}
	if config.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	go func() {
		for {
			err := http.ListenAndServe(config.DebugListenAddress, mux)
			logger.WithError(err).Warn("debug http server failed, retrying in 5s")
			time.Sleep(5 * time.Second)
		}
	}()
}

// allocateBallast reserves a share of system memory, capped at half, to
// reduce GC frequency.
func allocateBallast(config BaseConfig) []byte {
	if !config.EnableBallast {
		return nil
	}

	capacity := config.BallastCapacity
	if capacity > 0.5 {
		capacity = 0.5
	}
	return make([]byte, uint64(capacity*float32(osutil.GetTotalMemory())))
}

// startMemoryLeakCron returns a channel closed on the configured schedule. A
// nil channel is returned when the cron is disabled.
func startMemoryLeakCron(config BaseConfig) (<-chan struct{}, error) {
	if !config.EnableMemoryLeakCron {
		return nil, nil
	}

	ch := make(chan struct{})
	var once sync.Once
	c := cron.New(cron.WithLocation(time.Local))
	if _, err := c.AddFunc(config.MemoryLeakCronSchedule, func() {
		once.Do(func() { close(ch) })
	}); err != nil {
		return nil, err
	}
	c.Start()
	return ch, nil
}

type listener struct {
	name  string
	lis   net.Listener
	creds credentials.TransportCredentials
}

// listen always opens the insecure listener. The secure listener is only
// opened when a TLS certificate is configured.
func listen(config BaseConfig) ([]listener, error) {
	insecureLis, err := net.Listen("tcp", config.InsecureListenAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", config.InsecureListenAddress)
	}
	listeners := []listener{{name: "insecure", lis: insecureLis}}

	if config.TLSCertificate == "" {
		return listeners, nil
	}

	creds, err := loadTransportCredentials(config)
	if err != nil {
		insecureLis.Close()
		return nil, err
	}

	secureLis, err := net.Listen("tcp", config.ListenAddress)
	if err != nil {
		insecureLis.Close()
		return nil, errors.Wrapf(err, "failed to listen on %s", config.ListenAddress)
	}
	return append(listeners, listener{name: "secure", lis: secureLis, creds: creds}), nil
}

func loadTransportCredentials(config BaseConfig) (credentials.TransportCredentials, error) {
	if config.TLSKey == "" {
		return nil, errors.New("tls key must be provided if certificate is specified")
	}

	certBytes, err := LoadFile(config.TLSCertificate)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load tls certificate")
	}
	keyBytes, err := LoadFile(config.TLSKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load tls key")
	}

	cert, err := tls.X509KeyPair(certBytes, keyBytes)
	if err != nil {
		return nil, errors.Wrap(err, "invalid certificate/private key")
	}
	return credentials.NewServerTLSFromCert(&cert), nil
}

// newServer builds a gRPC server with the standard interceptor chain. Creds
// may be nil for plaintext servers.
func newServer(metricsProvider *newrelic.Application, creds credentials.TransportCredentials) *grpc.Server {
	log := logrus.StandardLogger().WithField("type", "grpc/server")

	opts := []grpc.ServerOption{
		grpc_middleware.WithUnaryServerChain(
			grpc_ctxtags.UnaryServerInterceptor(),
			grpc_logrus.UnaryServerInterceptor(log),
			grpc_metrics.CustomNewRelicUnaryServerInterceptor(metricsProvider),
			grpc_recovery.UnaryServerInterceptor(),
		),
		grpc_middleware.WithStreamServerChain(
			grpc_ctxtags.StreamServerInterceptor(),
			grpc_logrus.StreamServerInterceptor(log),
			grpc_metrics.CustomNewRelicStreamServerInterceptor(metricsProvider),
			grpc_recovery.StreamServerInterceptor(),
		),
	}
	if creds != nil {
		opts = append(opts, grpc.Creds(creds))
	}
	return grpc.NewServer(opts...)
}

func configureLogger(config BaseConfig, metricsProvider *newrelic.Application) {
	var formatter logrus.Formatter = &logrus.JSONFormatter{}
	if metricsProvider != nil {
		formatter = metrics_util.NewCustomNewRelicLogFormatter(metricsProvider, formatter)
	}
	logrus.SetFormatter(formatter)
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
		return
	}
	logrus.SetLevel(level)
}
