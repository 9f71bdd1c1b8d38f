package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/multistore/variants/config"
	grouprepo "github.com/multistore/variants/internal/repositories/group"
	pricehistoryrepo "github.com/multistore/variants/internal/repositories/pricehistory"
	productrepo "github.com/multistore/variants/internal/repositories/product"
	relationrepo "github.com/multistore/variants/internal/repositories/relation"
	settingsrepo "github.com/multistore/variants/internal/repositories/settings"
	"github.com/multistore/variants/pkg/audit"
	"github.com/multistore/variants/pkg/catalogsync"
	"github.com/multistore/variants/pkg/database"
	"github.com/multistore/variants/pkg/grouping"
	"github.com/multistore/variants/pkg/identity"
	"github.com/multistore/variants/pkg/kafka"
	"github.com/multistore/variants/pkg/logging"
	"github.com/multistore/variants/pkg/middleware"
	"github.com/multistore/variants/pkg/relations"
	auditroutes "github.com/multistore/variants/pkg/routes/audit"
	grouproutes "github.com/multistore/variants/pkg/routes/group"
	"github.com/multistore/variants/pkg/routes/health"
	productroutes "github.com/multistore/variants/pkg/routes/products"
	relationroutes "github.com/multistore/variants/pkg/routes/relations"
	variantroutes "github.com/multistore/variants/pkg/routes/variants"
	"github.com/multistore/variants/pkg/startup"
	"github.com/multistore/variants/pkg/tracing"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, flushLogs, err := logging.New(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer flushLogs()

	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)
	tracing.SetTracer(tracerProvider.Tracer(cfg.AppName))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("service exited with error")
		flushLogs()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger ectologger.Logger) error {
	db, err := database.Connect(ctx, database.ConnectConfig{
		Driver:          cfg.DatabaseDriver,
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		UserName:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate(cfg, logger, db); err != nil {
		return err
	}

	groupRepo := grouprepo.NewRepository(db, logger)
	relationRepo := relationrepo.NewRepository(db, logger)
	settingsRepo := settingsrepo.NewRepository(db, logger)
	productRepo := productrepo.NewRepository(db, logger)
	priceRepo := pricehistoryrepo.NewRepository(db, logger)

	resolver := identity.NewResolver(productRepo, logger, cfg.IdentityCacheTTL)

	var producer *kafka.Producer
	var emitter relations.Emitter
	if cfg.KafkaProducerEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		emitter = producer
	}

	relationsService := relations.NewService(db, logger, relationRepo, settingsRepo, groupRepo, resolver, emitter, relations.Config{
		ReconcileStaleEdges: cfg.ReconcileStaleEdges,
		CacheTTL:            cfg.RelationsCacheTTL,
	})

	groupingService := grouping.NewService(logger, relationRepo, productRepo, priceRepo, resolver, grouping.Config{
		LowestPriceWindow: cfg.LowestPriceWindow,
	})

	auditor := audit.NewAuditor(logger, relationRepo, settingsRepo)

	var consumer *kafka.Consumer
	if cfg.KafkaConsumerEnabled {
		handler := catalogsync.NewHandler(logger, productRepo, priceRepo, resolver, relationsService)
		consumer = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaCatalogTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		}, logger, handler.Handle)
	}

	if err := buildContainer(logger, db, groupRepo, productRepo, priceRepo, relationsService, groupingService, auditor); err != nil {
		return err
	}

	var kafkaCheck health.KafkaChecker
	if consumer != nil {
		kafkaCheck = consumer
	}
	checker := health.NewChecker(db, kafkaCheck, cfg.AppName)
	server := buildServer(cfg, logger, checker)

	orchestrator := startup.New(logger, cfg.StartupMaxAttempts)
	if consumer != nil {
		orchestrator.AddDependency(&startup.Func{
			Name:    "kafka-consumer",
			StartFn: consumer.Start,
			StopFn:  func(ctx context.Context) error { return consumer.Stop() },
		})
	}
	orchestrator.AddDependency(&startup.Func{
		Name: "http-server",
		StartFn: func(ctx context.Context) error {
			go func() {
				if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("http server stopped")
				}
			}()
			return nil
		},
		StopFn: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})

	if err := orchestrator.Start(ctx); err != nil {
		return err
	}
	checker.SetReady(true)

	<-ctx.Done()
	logger.Info("shutdown signal received")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return orchestrator.Stop(shutdownCtx)
}

func migrate(cfg config.Config, logger ectologger.Logger, db database.DB) error {
	instance, ok := db.(*database.DatabaseInstance)
	if !ok {
		return fmt.Errorf("database does not support migrations")
	}

	driver, err := migratepg.WithInstance(instance.DB.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	service := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})

	return service.Migrate(cfg.DatabaseName, driver)
}

const containerID = "variants-api"

func buildContainer(
	logger ectologger.Logger,
	db database.DB,
	groupRepo *grouprepo.Repository,
	productRepo *productrepo.Repository,
	priceRepo *pricehistoryrepo.Repository,
	relationsService *relations.Service,
	groupingService *grouping.Service,
	auditor *audit.Auditor,
) error {
	container, err := ectoinject.NewDIContainer(ectocontainer.DIContainerConfig{
		ID: containerID,
	})
	if err != nil {
		return err
	}

	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[database.DB](container, db); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*grouprepo.Repository](container, groupRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*productrepo.Repository](container, productRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*pricehistoryrepo.Repository](container, priceRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*relations.Service](container, relationsService); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*grouping.Service](container, groupingService); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*audit.Auditor](container, auditor); err != nil {
		return err
	}

	return nil
}

func buildServer(cfg config.Config, logger ectologger.Logger, checker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = false

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, err := ectoinject.SetActiveContainer(c.Request().Context(), containerID)
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})

	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	grouproutes.Register(api.Group("/groups"))
	productroutes.Register(api.Group("/products"))
	relationroutes.Register(api.Group("/relations"))
	variantroutes.Register(api.Group("/variants"))
	auditroutes.Register(api.Group("/audit"))

	return e
}
