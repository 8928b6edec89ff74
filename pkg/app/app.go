package app

import (
	"context"
	"crypto/tls"
	"expvar"
	"flag"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/bagel-payroll/bagel-server/pkg/metrics"
	"github.com/bagel-payroll/bagel-server/pkg/osutil"
)

// App is a long lived application that serves the JSON-RPC API and
// optionally gRPC services.
//
// The lifecycle of the App is tied to the process. The app is initialized
// before any server runs, and is stopped after the servers stop serving.
type App interface {
	// Init initializes the application in a blocking fashion. When Init
	// returns, the application must be ready to serve requests.
	//
	// ctx carries the New Relic application, when one is configured, and is
	// cancelled once the process starts shutting down.
	Init(ctx context.Context, config Config, metricsProvider *newrelic.Application) error

	// RegisterWithGRPC registers the application's gRPC services.
	RegisterWithGRPC(server *grpc.Server)

	// HTTPHandler returns the handler served on the RPC listen address, or
	// nil if the application doesn't serve HTTP.
	HTTPHandler() http.Handler

	// ShutdownChan returns a channel that is closed when the application
	// shuts down on its own. The servers are then stopped too.
	ShutdownChan() <-chan struct{}

	// Stop stops the application and releases its resources. When Stop
	// returns, the process exits.
	//
	// Stop must be idempotent.
	Stop()
}

var (
	configPath = flag.String("config", "config.yaml", "configuration file path")

	osSigCh = make(chan os.Signal, 1)
)

func init() {
	signal.Notify(osSigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
}

func Run(app App, options ...Option) error {
	flag.Parse()

	logger := logrus.StandardLogger().WithField("type", "app")

	config, err := LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Error("failed to load config")
		os.Exit(1)
	}

	var metricsProvider *newrelic.Application
	if len(config.NewRelicLicenseKey) > 0 {
		nr, err := newrelic.NewApplication(
			newrelic.ConfigFromEnvironment(),
			newrelic.ConfigAppName(config.AppName),
			newrelic.ConfigLicense(config.NewRelicLicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.WithError(err).Error("error connecting to new relic")
			os.Exit(1)
		}

		metricsProvider = nr
	}

	configureLogger(config, metricsProvider)

	// pprof and expvar install themselves on the default mux, which must not
	// be exposed publicly.
	http.DefaultServeMux = http.NewServeMux()

	if config.EnableExpvar || config.EnablePprof {
		go serveDebug(logger, config)
	}

	var ballast []byte
	if config.EnableBallast {
		ballast = make([]byte, ballastSize(config.BallastCapacity, osutil.GetTotalMemory()))
	}

	memoryLeakShutdownCh := make(chan struct{})
	if config.EnableMemoryLeakCron {
		cronJob := cron.New(cron.WithLocation(time.Local))
		_, err = cronJob.AddFunc(config.MemoryLeakCronSchedule, func() {
			close(memoryLeakShutdownCh)
		})
		if err != nil {
			logger.WithError(err).Error("failed to initialize memory leak cron")
			os.Exit(1)
		}
		cronJob.Start()
		defer cronJob.Stop()
	}

	insecureLis, err := net.Listen("tcp", config.InsecureListenAddress)
	if err != nil {
		logger.WithError(err).Errorf("failed to listen on %s", config.InsecureListenAddress)
		os.Exit(1)
	}

	var secureLis net.Listener
	var transportCreds credentials.TransportCredentials
	if config.TLSCertificate != "" {
		cert, err := loadCertificate(config)
		if err != nil {
			logger.WithError(err).Error("failed to load tls certificate")
			os.Exit(1)
		}

		transportCreds = credentials.NewServerTLSFromCert(cert)
		secureLis, err = net.Listen("tcp", config.ListenAddress)
		if err != nil {
			logger.WithError(err).Errorf("failed to listen on %s", config.ListenAddress)
			os.Exit(1)
		}
	}

	opts := opts{
		unaryServerInterceptors:  defaultUnaryServerInterceptors(logger, metricsProvider),
		streamServerInterceptors: defaultStreamServerInterceptors(logger, metricsProvider),
	}
	for _, o := range options {
		o(&opts)
	}

	appCtx, cancelApp := context.WithCancel(metrics.WithApplication(context.Background(), metricsProvider))
	defer cancelApp()

	if err := app.Init(appCtx, config.AppConfig, metricsProvider); err != nil {
		logger.WithError(err).Error("failed to initialize application")
		os.Exit(1)
	}

	serverOpts := []grpc.ServerOption{
		grpc_middleware.WithUnaryServerChain(opts.unaryServerInterceptors...),
		grpc_middleware.WithStreamServerChain(opts.streamServerInterceptors...),
	}
	insecureServ := grpc.NewServer(serverOpts...)
	secureServ := grpc.NewServer(append(serverOpts, grpc.Creds(transportCreds))...)

	for _, serv := range []*grpc.Server{secureServ, insecureServ} {
		app.RegisterWithGRPC(serv)
		healthgrpc.RegisterHealthServer(serv, health.NewServer())
	}

	secureServShutdownCh := make(chan struct{})
	insecureServShutdownCh := make(chan struct{})
	rpcServShutdownCh := make(chan struct{})

	if secureLis != nil {
		go serveGRPC(logger, secureServ, secureLis, secureServShutdownCh)
	}
	go serveGRPC(logger, insecureServ, insecureLis, insecureServShutdownCh)

	var rpcServ *http.Server
	if handler := app.HTTPHandler(); handler != nil {
		if metricsProvider != nil {
			_, handler = newrelic.WrapHandle(metricsProvider, "/", handler)
		}

		rpcServ = &http.Server{
			Addr:    config.RPCListenAddress,
			Handler: handler,
		}
		go func() {
			if err := rpcServ.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("rpc server stopped")
			} else {
				logger.Info("rpc server stopped")
			}

			close(rpcServShutdownCh)
		}()
	}

	select {
	case <-osSigCh:
		logger.Info("interrupt received, shutting down")
	case <-secureServShutdownCh:
		logger.Info("secure grpc server shutdown")
	case <-insecureServShutdownCh:
		logger.Info("insecure grpc server shutdown")
	case <-rpcServShutdownCh:
		logger.Info("rpc server shutdown")
	case <-memoryLeakShutdownCh:
		logger.Info("shutdown to deal with memory leak")
	case <-app.ShutdownChan():
		logger.Info("app shutdown")
	}

	shutdownCh := make(chan struct{})
	go func() {
		// Servers and the application have idempotent shutdowns, so every
		// one is stopped regardless of which triggered the shutdown.
		if rpcServ != nil {
			ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownGracePeriod)
			if err := rpcServ.Shutdown(ctx); err != nil {
				logger.WithError(err).Warn("failed to gracefully stop rpc server")
			}
			cancel()
		}
		secureServ.GracefulStop()
		insecureServ.GracefulStop()

		cancelApp()
		app.Stop()

		close(shutdownCh)
	}()

	select {
	case <-shutdownCh:
		// Keep the ballast reachable until the very end
		if len(ballast) > 0 {
			ballast[0] = 1
		}

		return nil
	case <-time.After(config.ShutdownGracePeriod):
		return errors.Errorf("failed to stop the application within %v", config.ShutdownGracePeriod)
	}
}

func serveGRPC(logger *logrus.Entry, serv *grpc.Server, lis net.Listener, doneCh chan struct{}) {
	if err := serv.Serve(lis); err != nil {
		logger.WithError(err).Error("grpc serve stopped")
	} else {
		logger.Info("grpc server stopped")
	}

	close(doneCh)
}

func serveDebug(logger *logrus.Entry, config BaseConfig) {
	debugHTTPMux := http.NewServeMux()
	if config.EnableExpvar {
		debugHTTPMux.Handle("/debug/vars", expvar.Handler())
	}
	if config.EnablePprof {
		debugHTTPMux.HandleFunc("/debug/pprof/", pprof.Index)
		debugHTTPMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		debugHTTPMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		debugHTTPMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		debugHTTPMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	for {
		if err := http.ListenAndServe(config.DebugListenAddress, debugHTTPMux); err != nil {
			logger.WithError(err).Warn("Debug HTTP server failed. Retrying in 5s...")
		}
		time.Sleep(5 * time.Second)
	}
}

// ballastSize caps the ballast at half of the total memory.
func ballastSize(capacity float32, totalMemory uint64) uint64 {
	if capacity > 0.5 {
		capacity = 0.5
	}
	if capacity <= 0 {
		return 0
	}
	return uint64(capacity * float32(totalMemory))
}

func loadCertificate(config BaseConfig) (*tls.Certificate, error) {
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
	return &cert, nil
}

func configureLogger(config BaseConfig, metricsProvider *newrelic.Application) {
	if metricsProvider != nil {
		logrus.SetFormatter(metrics.NewLogFormatter(metricsProvider, &logrus.JSONFormatter{}))
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	logrus.SetOutput(os.Stdout)
}
