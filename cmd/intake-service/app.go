package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"leadintake/internal/batch"
	"leadintake/internal/broker"
	"leadintake/internal/config"
	"leadintake/internal/constants"
	"leadintake/internal/credential"
	"leadintake/internal/dedup"
	"leadintake/internal/enrichment"
	"leadintake/internal/ingest"
	"leadintake/internal/lead"
	"leadintake/internal/logger"
	"leadintake/internal/notify"
	"leadintake/internal/schema"
	"leadintake/internal/writer"
	"leadintake/migrations"
	"leadintake/pkg/bootstrap"
	"leadintake/pkg/cel"
	"leadintake/pkg/health"
	"leadintake/pkg/logging"
	"leadintake/pkg/metrics"
	"leadintake/pkg/middleware"
	"leadintake/pkg/ratelimit"
	"leadintake/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redis          *redis.Client
	leads          *lead.CircuitBreakerRepository
	applier        *enrichment.Applier
	scheduler      *enrichment.Scheduler
	hub            *notify.Hub
	broadcaster    *notify.Broadcaster
	relay          notify.Relay
	natsRelay      *notify.NATSRelay
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceIntake)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	ctx = logging.WithServiceName(ctx, constants.ServiceIntake)

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initRedis(ctx); err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}

	if err := a.initEnrichment(ctx); err != nil {
		return fmt.Errorf("failed to initialize enrichment: %w", err)
	}

	if err := a.initNotifications(ctx); err != nil {
		return fmt.Errorf("failed to initialize notifications: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceIntake)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterIntakeMetrics()
	metrics.RegisterEnrichmentMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}
	if a.Producer != nil || a.Consumer != nil {
		metrics.RegisterBrokerMetrics()
	}

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.Config.Database.RunMigrations {
		if err := migrations.Up(db); err != nil {
			return err
		}
		version, _, err := migrations.Version(db)
		if err != nil {
			return err
		}
		a.Logger.InfowCtx(ctx, "Migrations applied", "version", version)
	}

	a.leads = lead.NewCircuitBreakerRepository(lead.NewPostgresRepository(db), a.Config.CircuitBreaker)
	return nil
}

func (a *App) initRedis(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb
	return nil
}

// initEnrichment wires the deferred full-field write. In kafka mode tasks go
// to the enrichment topic; the embedded worker, when enabled, consumes them
// in this process.
func (a *App) initEnrichment(ctx context.Context) error {
	a.applier = enrichment.NewApplier(a.leads, a.Logger.Named("enrichment"))

	var opts []enrichment.Option
	if a.Config.Enrichment.Mode == constants.EnrichmentModeKafka {
		if err := a.InitProducer(constants.ServiceIntake); err != nil {
			return err
		}
		opts = append(opts, enrichment.WithProducer(a.Producer, a.Config.Broker.Kafka.EnrichmentTopic, constants.ServiceIntake))

		if a.Config.Enrichment.EmbeddedWorker {
			if err := a.InitConsumer(constants.ServiceIntake); err != nil {
				return err
			}
		}
	}

	a.scheduler = enrichment.NewScheduler(a.applier, a.Config.Enrichment, a.Logger.Named("enrichment"), opts...)
	a.Logger.InfowCtx(ctx, "Enrichment scheduler ready",
		"mode", a.scheduler.Mode(),
		"embedded_worker", a.Consumer != nil,
	)
	return nil
}

func (a *App) initNotifications(ctx context.Context) error {
	n := a.Config.Notifications

	switch n.Relay {
	case constants.RelayRedis:
		a.relay = notify.NewRedisRelay(a.redis, n.Channel)
	case constants.RelayNATS:
		r, err := notify.NewNATSRelay(n)
		if err != nil {
			return err
		}
		a.natsRelay = r
		a.relay = r
	}

	a.hub = notify.NewHub(n.ClientBuffer, a.Logger.Named("notify"))
	a.broadcaster = notify.NewBroadcaster(a.hub, a.relay, a.Logger.Named("notify"))
	a.Logger.InfowCtx(ctx, "Notifications ready", "relay", n.Relay)
	return nil
}

func (a *App) initRouter(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceIntake))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	var credentials credential.Repository = credential.NewPostgresRepository(a.db)
	if a.redis != nil {
		credentials = credential.NewCachedRepository(credentials, a.redis, a.Config.Credentials.CacheTTLSeconds, a.Logger)
	}
	validator := credential.NewValidator(credentials, a.Config.Credentials.Legacy, a.Logger)
	sessions := credential.NewSessionVerifier(a.Config.Session)

	var locker writer.Locker
	if a.Config.Ingest.Lock.Enabled && a.redis != nil {
		locker = writer.NewRedisLocker(a.redis, a.Config.Ingest, a.Logger)
	}
	resolver := dedup.NewResolver()
	w := writer.New(a.leads, resolver, locker, a.scheduler, a.Logger.Named("writer"))

	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create CEL evaluator: %w", err)
	}
	detectors, err := batch.NewDetectors(a.Config.Batch.Detectors, evaluator)
	if err != nil {
		return err
	}
	importer := batch.NewImporter(w, resolver, detectors, a.broadcaster, a.Config.Batch, a.Logger.Named("batch"))

	payloadSchema, err := schema.NewValidator()
	if err != nil {
		return fmt.Errorf("failed to compile payload schema: %w", err)
	}
	pipeline := ingest.NewPipeline(payloadSchema, w, a.broadcaster, a.Logger.Named("ingest"),
		ingest.WithStubNotify(a.Config.Ingest.StubNotify),
	)

	var limits []gin.HandlerFunc
	if rl := a.Config.Ingest.RateLimit; rl.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             rl.RPS,
			Burst:           rl.Burst,
			CleanupInterval: time.Duration(rl.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(rl.MaxAge) * time.Second,
			Key:             ratelimit.HeaderKey(constants.HeaderSID),
		}
		limits = append(limits, ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	handler := ingest.NewHandler(pipeline, importer, a.hub, a.Config.Ingest.MaxBodyBytes, a.Config.Batch.MaxFileBytes, a.Logger)
	handler.RegisterRoutes(router,
		credential.VendorAuth(validator, a.Logger),
		credential.SessionAuth(sessions, a.Logger),
		limits...,
	)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redis != nil {
		healthRegistry.RegisterOptional(health.NewRedisChecker(a.redis))
	}
	if a.natsRelay != nil {
		healthRegistry.RegisterOptional(health.NewNATSChecker(a.natsRelay.Conn()))
	}
	if p, ok := a.Producer.(broker.Pinger); ok {
		healthRegistry.RegisterOptional(health.NewFuncChecker("kafka", p.Ping))
	}
	healthRegistry.RegisterOptional(health.NewFuncChecker("lead_store_breaker", func(context.Context) error {
		if a.leads.IsOpen() {
			return fmt.Errorf("circuit breaker %s", a.leads.State())
		}
		return nil
	}))

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "Server listening", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.broadcaster.Run(gCtx)
	})

	if a.Consumer != nil {
		topic := a.Config.Broker.Kafka.EnrichmentTopic
		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Starting embedded enrichment worker", "topic", topic)
			if err := a.Consumer.Consume(gCtx, topic, a.applier.Handler()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	additionalShutdown := func(context.Context) []error {
		var errs []error

		if a.server != nil {
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}

		if a.scheduler != nil {
			if err := a.scheduler.Close(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}

		if a.relay != nil {
			if err := a.relay.Close(); err != nil {
				errs = append(errs, fmt.Errorf("relay close error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return errs
	}

	err := a.Base.Shutdown(shutdownCtx, additionalShutdown)
	// The broker is closed by now; nothing writes to the stores anymore.
	if dbErrs := a.dbConnector.ShutdownDatabases(a.redis, a.db); len(dbErrs) > 0 {
		return errors.Join(append([]error{err}, dbErrs...)...)
	}
	return err
}
