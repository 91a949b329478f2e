package cmd

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/auth"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/config"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/db/bunx"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/logging"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/migrations"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/repository"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/server"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/services/iam"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/telemetry"
)

var skipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the nymph API server",
	Long:  `Starts the HTTP server. When tls.cert_file, tls.key_file and tls.client_ca_file are set the server speaks TLS and accepts client certificates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		shutdownTelemetry, err := telemetry.Init(ctx, cfg.Observability, logger)
		if err != nil {
			return fmt.Errorf("initialize telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(ctx); err != nil {
				logger.Warn("telemetry shutdown failed", logging.Error(err))
			}
		}()

		db, err := bunx.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer bunx.Close(db)

		if !skipMigrations {
			group, err := migrations.Apply(ctx, db)
			if err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			if group.ID != 0 {
				logger.Info("applied migrations", logging.Int64("group", group.ID))
			}
		}

		key, err := loadSigningKey(cfg, logger)
		if err != nil {
			return err
		}
		codec := auth.NewCodec(key)

		userRepo := repository.NewBunUserRepository(db)
		keyRepo := repository.NewBunAPIKeyRepository(db)
		identityRepo := repository.NewBunIdentityRepository(db)

		metrics := telemetry.NewMetrics()

		// Order matters: a presented credential that fails is never retried
		// against a later scheme.
		resolver := iam.NewResolver(logger, metrics,
			iam.NewAPIKeyAuthenticator(keyRepo),
			iam.NewTokenAuthenticator(codec, userRepo),
			iam.NewMTLSAuthenticator(identityRepo, metrics),
		)
		issuer := iam.NewIssuer(userRepo, identityRepo, codec,
			iam.WithIssuerMetrics(metrics),
			iam.WithIssuerLogger(logger),
		)

		r, err := server.NewRouter(server.RouterOptions{
			Resolver: resolver,
			Issuer:   issuer,
			Logger:   logger,
			Metrics:  metrics,
			Gatherer: prometheus.DefaultGatherer,
			HealthHandler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				if err := db.PingContext(r.Context()); err != nil {
					w.WriteHeader(http.StatusServiceUnavailable)
					fmt.Fprint(w, `{"status":"unavailable"}`)
					return
				}
				w.WriteHeader(http.StatusOK)
				fmt.Fprintf(w, `{"status":"ok","mtls_enabled":%t}`, cfg.TLS.Enabled())
			},
		})
		if err != nil {
			return fmt.Errorf("build router: %w", err)
		}

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		if cfg.TLS.Enabled() {
			tlsConfig, err := serverTLSConfig(cfg.TLS)
			if err != nil {
				return err
			}
			srv.TLSConfig = tlsConfig
		}

		// Start server in goroutine
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting server",
				logging.String("addr", cfg.ServerAddr),
				logging.Bool("tls", cfg.TLS.Enabled()),
			)
			if cfg.TLS.Enabled() {
				serverErrors <- srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
				return
			}
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down gracefully", logging.String("signal", sig.String()))

			// Graceful shutdown with timeout
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			logger.Info("server stopped")
			return nil
		}
	},
}

// loadSigningKey returns the configured key, or a random one that lives only
// as long as this process.
func loadSigningKey(cfg *config.Config, logger logging.Logger) (*auth.SigningKey, error) {
	if cfg.SigningKey != "" {
		key, err := auth.NewSigningKey(cfg.SigningKey)
		if err != nil {
			return nil, fmt.Errorf("invalid signing_key: %w", err)
		}
		return key, nil
	}

	key, err := auth.RandomSigningKey()
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	logger.Warn("no signing key configured, using a random key for this process; " +
		"tokens will not survive a restart (set NYMPH_SIGNING_KEY to a base64 secret)")
	return key, nil
}

// serverTLSConfig accepts client certificates signed by the configured CA.
// Certificates are optional at the handshake so API key and bearer callers
// can share the listener; an absent certificate simply skips the mTLS scheme.
func serverTLSConfig(c config.TLSConfig) (*tls.Config, error) {
	caPEM, err := os.ReadFile(c.ClientCAFile)
	if err != nil {
		return nil, fmt.Errorf("read client CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("client CA file %s contains no certificates", c.ClientCAFile)
	}

	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		ClientAuth: tls.VerifyClientCertIfGiven,
		ClientCAs:  pool,
	}, nil
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply pending migrations on startup")
	rootCmd.AddCommand(serveCmd)
}
