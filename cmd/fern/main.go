package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/costwise/fern/config"
	batchrunrepo "github.com/costwise/fern/internal/repositories/batchrun"
	priceentryrepo "github.com/costwise/fern/internal/repositories/priceentry"
	proposalrepo "github.com/costwise/fern/internal/repositories/proposal"
	scheduleitemrepo "github.com/costwise/fern/internal/repositories/scheduleitem"
	"github.com/costwise/fern/pkg/database"
	"github.com/costwise/fern/pkg/events"
	"github.com/costwise/fern/pkg/ingest"
	"github.com/costwise/fern/pkg/kafka"
	"github.com/costwise/fern/pkg/matching"
	"github.com/costwise/fern/pkg/metrics"
	"github.com/costwise/fern/pkg/middleware"
	"github.com/costwise/fern/pkg/review"
	"github.com/costwise/fern/pkg/routes/batch"
	"github.com/costwise/fern/pkg/routes/health"
	metricsroutes "github.com/costwise/fern/pkg/routes/metrics"
	priceentryroutes "github.com/costwise/fern/pkg/routes/priceentry"
	proposalroutes "github.com/costwise/fern/pkg/routes/proposal"
	scheduleitemroutes "github.com/costwise/fern/pkg/routes/scheduleitem"
	taxonomyroutes "github.com/costwise/fern/pkg/routes/taxonomy"
	"github.com/costwise/fern/pkg/startup"
	"github.com/costwise/fern/pkg/taxonomy"
	"github.com/costwise/fern/pkg/tracing"
	"github.com/costwise/fern/pkg/tracing/exporters"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	zlog := buildZapLogger(cfg)
	defer func() { _ = zlog.Sync() }()
	logger := newLogger(zlog, cfg.LogLevel)

	ctx := context.Background()

	if cfg.TracingEnabled {
		shutdown, err := setupTracing(ctx, cfg)
		if err != nil {
			logger.WithError(err).Error("Failed to set up tracing")
		} else {
			defer shutdown(ctx)
		}
	}

	// PostgreSQL
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)
	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	db := database.NewDatabaseInstance(sqlxDB, logger)

	// Migrations
	migrationService := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	migrationDriver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		logger.WithError(err).Error("Failed to create migration driver")
		os.Exit(1)
	}
	if err := migrationService.Migrate(cfg.DatabaseName, migrationDriver); err != nil {
		logger.WithError(err).Error("Failed to run database migrations")
		os.Exit(1)
	}

	// Category taxonomy graph
	graphClient, err := taxonomy.NewClient(taxonomy.Config{
		Host:     cfg.GraphDBHost,
		Port:     cfg.GraphDBPort,
		Username: cfg.GraphDBUser,
		Password: cfg.GraphDBPassword,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create graph client")
		os.Exit(1)
	}
	taxonomyStore := taxonomy.NewStore(graphClient, logger)

	// Repositories
	itemRepo := scheduleitemrepo.NewRepository(db, logger)
	entryRepo := priceentryrepo.NewRepository(db, logger)
	propRepo := proposalrepo.NewRepository(db, logger)
	runRepo := batchrunrepo.NewRepository(db, logger)

	// Kafka producer and event emitter
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)
	emitter := events.NewEmitter(producer, logger)

	// Services
	engine := matching.NewEngine(logger, itemRepo, entryRepo, propRepo, runRepo, taxonomyStore, emitter, matching.EngineConfig{
		Workers:        cfg.MatchWorkerCount,
		CandidateLimit: cfg.MatchCandidateLimit,
		Weights: matching.Weights{
			TokenOverlap:     cfg.WeightTokenOverlap,
			NumericCloseness: cfg.WeightNumeric,
			Category:         cfg.WeightCategory,
			UnitCompat:       cfg.WeightUnitCompat,
		},
	})
	reviewService := review.NewService(logger, propRepo, emitter)
	aggregator := metrics.NewAggregator(logger, propRepo)
	ingestService := ingest.NewService(logger, itemRepo, runRepo, engine)

	// Dependency injection
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		logger.WithError(err).Error("Failed to create DI container")
		os.Exit(1)
	}
	mustRegister(logger, ectoinject.RegisterInstance[ectologger.Logger](container, logger))
	mustRegister(logger, ectoinject.RegisterInstance[database.DB](container, db))
	mustRegister(logger, ectoinject.RegisterInstance[*scheduleitemrepo.Repository](container, itemRepo))
	mustRegister(logger, ectoinject.RegisterInstance[*priceentryrepo.Repository](container, entryRepo))
	mustRegister(logger, ectoinject.RegisterInstance[*proposalrepo.Repository](container, propRepo))
	mustRegister(logger, ectoinject.RegisterInstance[*batchrunrepo.Repository](container, runRepo))
	mustRegister(logger, ectoinject.RegisterInstance[*taxonomy.Store](container, taxonomyStore))
	mustRegister(logger, ectoinject.RegisterInstance[*matching.Engine](container, engine))
	mustRegister(logger, ectoinject.RegisterInstance[*review.Service](container, reviewService))
	mustRegister(logger, ectoinject.RegisterInstance[*metrics.Aggregator](container, aggregator))
	mustRegister(logger, ectoinject.RegisterInstance[*ingest.Service](container, ingestService))

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	checker := health.NewChecker(sqlxDB, graphClient, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	proposalroutes.Register(api.Group("/proposals"))
	batch.Register(api.Group("/batches"))
	metricsroutes.Register(api.Group("/metrics"))
	scheduleitemroutes.Register(api.Group("/schedule-items"))
	priceentryroutes.Register(api.Group("/price-entries"))
	taxonomyroutes.Register(api.Group("/taxonomy"))

	// Kafka consumer: ingestion commit messages trigger a commit and a
	// matching run over the committed scope.
	var consumer *kafka.Consumer
	if cfg.KafkaConsumerEnabled {
		consumer = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaInputTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		}, logger, ingestCommitHandler(ingestService))
	}

	manager := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	manager.AddDependency(&dependency{
		name:  "database",
		start: func(ctx context.Context) error { return sqlxDB.PingContext(ctx) },
		stop:  func(context.Context) error { return sqlxDB.Close() },
	})
	manager.AddDependency(&dependency{
		name:  "graph",
		start: func(ctx context.Context) error { return graphClient.VerifyConnectivity(ctx) },
		stop:  func(ctx context.Context) error { return graphClient.Close(ctx) },
	})
	manager.AddDependency(&dependency{
		name:  "producer",
		deps:  []string{"database"},
		start: func(context.Context) error { return nil },
		stop:  func(context.Context) error { return producer.Close() },
	})
	if consumer != nil {
		manager.AddDependency(&dependency{
			name:  "consumer",
			deps:  []string{"database", "producer"},
			start: func(ctx context.Context) error { return consumer.Start(ctx) },
			stop:  func(context.Context) error { return consumer.Stop() },
		})
	}
	manager.AddDependency(&dependency{
		name: "http",
		deps: []string{"database"},
		start: func(context.Context) error {
			go func() {
				if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
					logger.WithError(err).Info("HTTP server stopped")
				}
			}()
			return nil
		},
		stop: func(ctx context.Context) error { return e.Shutdown(ctx) },
	})

	if err := manager.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}
	checker.SetReady(true)
	logger.WithFields(map[string]any{"port": cfg.Port, "app": cfg.AppName}).Info("Service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
	logger.Info("Service stopped")
}

// ingestCommitHandler commits the incoming item batch and runs matching
// over the committed scope at the commit's reference date. Redelivered
// commits resume the interrupted run instead of starting over.
func ingestCommitHandler(ingestService *ingest.Service) kafka.MessageHandler {
	return func(ctx context.Context, msg *kafka.IncomingMessage) error {
		commit := msg.IngestCommit
		_, err := ingestService.HandleCommit(ctx, commit.Scope(), commit)
		return err
	}
}

// dependency adapts closures to the startup manager's interface
type dependency struct {
	name  string
	deps  []string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (d *dependency) GetName() string                 { return d.name }
func (d *dependency) DependsOn() []string             { return d.deps }
func (d *dependency) Start(ctx context.Context) error { return d.start(ctx) }
func (d *dependency) Stop(ctx context.Context) error  { return d.stop(ctx) }

func mustRegister(logger ectologger.Logger, err error) {
	if err != nil {
		logger.WithError(err).Error("Failed to register dependency")
		os.Exit(1)
	}
}

func buildZapLogger(cfg config.Config) *zap.Logger {
	if cfg.PrettyLogs {
		zlog, _ := zap.NewDevelopment()
		return zlog
	}
	zlog, _ := zap.NewProduction()
	return zlog
}

// newLogger adapts zap as the structured log sink. Messages arrive as
// generic structs, so they are flattened to fields rather than bound to a
// fixed schema.
func newLogger(zlog *zap.Logger, level string) ectologger.Logger {
	minLevel := logLevelRank(level)

	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			zlog.Error("unserializable log message")
			return
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			zlog.Error(string(data))
			return
		}

		msgLevel, _ := m["level"].(string)
		text, _ := m["message"].(string)
		fields := make([]zap.Field, 0, len(m))
		for k, v := range m {
			if k == "level" || k == "message" || v == nil {
				continue
			}
			fields = append(fields, zap.Any(k, v))
		}

		rank := logLevelRank(msgLevel)
		if rank < minLevel {
			return
		}
		switch rank {
		case 0:
			zlog.Debug(text, fields...)
		case 1:
			zlog.Info(text, fields...)
		case 2:
			zlog.Warn(text, fields...)
		default:
			zlog.Error(text, fields...)
		}
	})
}

func logLevelRank(level string) int {
	switch strings.ToLower(level) {
	case "debug":
		return 0
	case "", "info":
		return 1
	case "warn", "warning":
		return 2
	default:
		return 3
	}
}

func setupTracing(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.TracingExporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		exporter, err = exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  10 * time.Second,
		})
	}
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return provider.Shutdown, nil
}
