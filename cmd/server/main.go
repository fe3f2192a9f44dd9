// Package main initializes and starts the NoPass server, setting up
// configuration, logging, the identity provider, record services,
// handlers, and optional TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/NoPass/internal/config"
	"github.com/atinyakov/NoPass/internal/db"
	"github.com/atinyakov/NoPass/internal/logger"
	"github.com/atinyakov/NoPass/internal/middleware"
	"github.com/atinyakov/NoPass/internal/provider"
	"github.com/atinyakov/NoPass/internal/repository"
	"github.com/atinyakov/NoPass/internal/seal"
	"github.com/atinyakov/NoPass/internal/server/handler/http"
	"github.com/atinyakov/NoPass/internal/service"
	"github.com/atinyakov/NoPass/internal/store"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line, config file and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	// Select the identity provider holding the record metadata.
	var users store.UserProvider
	switch options.Provider {
	case config.ProviderHTTP:
		users = provider.New(options.ProviderURL, options.ProviderSecretKey, time.Duration(options.ProviderTimeout))
		zapLogger.Info("using http identity provider", zap.String("url", options.ProviderURL))
	default:
		openCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		postgresDB, err := db.Open(openCtx, options.DatabaseDSN)
		cancel()
		if err != nil {
			zapLogger.Fatal("cannot init database", zap.Error(err))
		}
		defer postgresDB.Close()
		users = repository.NewPostgresUserRepository(postgresDB)
		zapLogger.Info("using postgres identity provider")
	}

	// Secret record fields are sealed when a data key is configured.
	var sealer seal.Sealer = seal.Plaintext{}
	if options.DataKey != "" {
		ageSealer, err := seal.NewAgeSealer(options.DataKey)
		if err != nil {
			zapLogger.Fatal("invalid data key", zap.Error(err))
		}
		sealer = ageSealer
	} else {
		zapLogger.Warn("no data key configured, secret fields are stored in plaintext")
	}

	if options.SessionSecret == "" {
		zapLogger.Warn("no session secret configured, bearer tokens are disabled")
	}

	recordService := service.NewRecordService(
		middleware.ContextGate{},
		store.NewRecordStore(users),
		sealer,
		service.WithLogger(zapLogger),
	)
	recordHandler := &http.RecordHandler{RecordService: recordService}
	auth := middleware.NewAuthenticator([]byte(options.SessionSecret), options.SessionIssuer)

	// Build the router with middleware and routes.
	router := http.NewRouter(recordHandler, auth, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if options.TLSCert != "" {
		tlsConfig, err := serverTLSConfig(options)
		if err != nil {
			zapLogger.Fatal("failed to configure TLS", zap.Error(err))
		}
		server.TLSConfig = tlsConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	var err error
	if server.TLSConfig != nil {
		zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port))
		err = server.ListenAndServeTLS("", "")
	} else {
		zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server failed", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}

// serverTLSConfig loads the server key pair and, when a client CA is set,
// verifies client certificates that are presented.
func serverTLSConfig(options *config.Options) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(options.TLSCert, options.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("load server TLS cert/key: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if options.ClientCA != "" {
		caCert, err := os.ReadFile(options.ClientCA)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if ok := caCertPool.AppendCertsFromPEM(caCert); !ok {
			return nil, errors.New("append CA cert to pool")
		}
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
		tlsConfig.ClientCAs = caCertPool
	}
	return tlsConfig, nil
}
