package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"viewql/internal/compiler"
	"viewql/internal/config"
	"viewql/internal/dbexec"
	"viewql/internal/httpapi"
	"viewql/internal/logging"
	"viewql/internal/observability"
	"viewql/internal/runtime"
	"viewql/internal/schema"
	"viewql/internal/subscription"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the compiled artifact over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cfg.Observability.ServiceVersion == "" {
			cfg.Observability.ServiceVersion = Version
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	otelCfg := observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLP: observability.OTLPExporterConfig{
			Endpoint: cfg.Observability.OTLP.Endpoint,
			Protocol: cfg.Observability.OTLP.Protocol,
			Insecure: cfg.Observability.OTLP.Insecure,
			Timeout:  cfg.Observability.OTLP.Timeout,
		},
	}

	logOpts := logging.Options{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	var loggerProvider *observability.LoggerProvider
	if cfg.Observability.Logging.ExportsEnabled {
		lp, err := observability.InitLoggerProvider(otelCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize log export: %w", err)
		}
		loggerProvider = lp
		logOpts.LoggerProvider = lp.Provider()
	}
	logger := logging.New(logOpts)
	defer func() {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
	}()

	var meterProvider *observability.MeterProvider
	var metrics *observability.OperationMetrics
	if cfg.Observability.MetricsEnabled {
		mp, err := observability.InitMeterProvider(otelCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		meterProvider = mp
		defer func() { _ = meterProvider.Shutdown(context.Background(), logger.Logger) }()

		metrics, err = observability.InitOperationMetrics()
		if err != nil {
			return fmt.Errorf("failed to initialize operation metrics: %w", err)
		}
	}

	if cfg.Observability.TracingEnabled {
		tp, err := observability.InitTracerProvider(otelCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() { _ = tp.Shutdown(context.Background(), logger.Logger) }()
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectionTimeout)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	var dispatcher *subscription.Dispatcher
	if cfg.Subscriptions.Enabled {
		dispatcher = subscription.New(cfg.Subscriptions.BufferSize, logger.Logger)
		if metrics != nil {
			dispatcher.OnDrop(metrics.SubscriptionDropHandler())
		}
	}

	var rtMetrics runtime.Metrics
	if metrics != nil {
		rtMetrics = metrics
	}
	exec := dbexec.NewStandardExecutor(db)
	rt := runtime.New(exec, dispatcher, logger.Logger, rtMetrics, runtime.Options{
		RequestTimeout: cfg.Runtime.RequestTimeout,
		AuditLog:       cfg.Runtime.AuditLog,
	})

	loadArtifact := artifactLoader(cfg)
	art, err := loadArtifact(ctx)
	if err != nil {
		return fmt.Errorf("failed to load artifact: %w", err)
	}
	rt.Swap(art)

	router, err := httpapi.NewRouter(httpapi.RouterOptions{
		Runtime:  rt,
		Executor: exec,
		Logger:   logger,
		Config:   cfg,
		Reload:   loadArtifact,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.Int("port", cfg.Server.Port))
		serverErrors <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("shutting down", slog.String("reason", "context canceled"))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped gracefully")
	return nil
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	var db *sql.DB
	var err error
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		db, err = otelsql.Open("pgx", cfg.Database.DSN,
			otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		)
		if err == nil && cfg.Observability.MetricsEnabled {
			_, _ = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemPostgreSQL))
		}
	} else {
		db, err = sql.Open("pgx", cfg.Database.DSN)
	}
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)
	return db, nil
}

// artifactLoader returns the loader used both at startup and by the admin
// reload endpoint. A configured artifact file wins over recompiling the
// schema document.
func artifactLoader(cfg *config.Config) func(ctx context.Context) (*compiler.Artifact, error) {
	return func(ctx context.Context) (*compiler.Artifact, error) {
		if cfg.Schema.ArtifactFile != "" {
			return compiler.LoadArtifact(cfg.Schema.ArtifactFile)
		}
		if cfg.Schema.SchemaFile == "" {
			return nil, fmt.Errorf("no schema source: set schema.artifact_file or schema.schema_file")
		}
		model, err := schema.Load(cfg.Schema.SchemaFile)
		if err != nil {
			return nil, err
		}
		return compiler.Compile(model, compiler.Options{
			DefaultLimit:      cfg.Schema.DefaultLimit,
			MaxLimit:          cfg.Schema.MaxLimit,
			KnownCapabilities: cfg.Schema.KnownCapabilities,
		})
	}
}
