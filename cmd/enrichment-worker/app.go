package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"leadintake/internal/broker"
	"leadintake/internal/config"
	"leadintake/internal/constants"
	"leadintake/internal/enrichment"
	"leadintake/internal/lead"
	"leadintake/internal/logger"
	"leadintake/pkg/bootstrap"
	"leadintake/pkg/health"
	"leadintake/pkg/logging"
	"leadintake/pkg/metrics"
	"leadintake/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	postgresDB     *sql.DB
	leads          *lead.CircuitBreakerRepository
	applier        *enrichment.Applier
	healthProducer broker.Producer
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceEnrichmentWorker)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	a.postgresDB = db
	a.leads = lead.NewCircuitBreakerRepository(lead.NewPostgresRepository(db), a.Config.CircuitBreaker)
	a.applier = enrichment.NewApplier(a.leads, a.Logger)

	if err := a.InitConsumer(constants.ServiceEnrichmentWorker); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceEnrichmentWorker)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterEnrichmentMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	a.initHTTPServer()
	return nil
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.postgresDB))
	if hp, err := broker.NewProducer(a.Config.Broker, a.Logger); err == nil {
		a.healthProducer = hp
		if p, ok := hp.(broker.Pinger); ok {
			healthRegistry.RegisterOptional(health.NewFuncChecker("kafka", p.Ping))
		}
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	topic := a.Config.Broker.Kafka.EnrichmentTopic
	g.Go(func() error {
		consumeCtx := logging.WithServiceName(gCtx, constants.ServiceEnrichmentWorker)
		a.Logger.InfowCtx(consumeCtx, "Consuming enrichment tasks", "topic", topic)
		return a.Consumer.Consume(gCtx, topic, a.applier.Handler())
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceEnrichmentWorker)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down enrichment worker")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error
		if a.healthProducer != nil {
			if err := a.healthProducer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("health producer close error: %w", err))
			}
		}
		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}
		return errs
	}

	err := a.Base.Shutdown(shutdownCtx, additionalShutdown)
	if dbErrs := a.dbConnector.ShutdownDatabases(nil, a.postgresDB); len(dbErrs) > 0 && err == nil {
		return fmt.Errorf("shutdown errors: %v", dbErrs)
	}
	return err
}
