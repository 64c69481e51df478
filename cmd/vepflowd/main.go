// Command vepflowd serves the workflow orchestration API: intake,
// dedupe, asynchronous portal workflows, event publishing and grid
// autoscaling.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vepflow/vepflow/api"
	"github.com/vepflow/vepflow/core"
	"github.com/vepflow/vepflow/events"
	"github.com/vepflow/vepflow/orchestration"
	"github.com/vepflow/vepflow/portal"
	"github.com/vepflow/vepflow/scaler"
	"github.com/vepflow/vepflow/telemetry"
	"github.com/vepflow/vepflow/transaction"
	"github.com/vepflow/vepflow/workflow"
)

func main() {
	cfg, err := core.LoadConfig()
	if err != nil {
		core.NewJSONLogger("ERROR").Error("configuration invalid", map[string]interface{}{"error": err})
		os.Exit(1)
	}
	logger := core.NewJSONLogger(cfg.LogLevel)

	store := buildStore(cfg, logger)
	defer store.Close()

	metrics := telemetry.New()

	// The simulated provider is the in-tree portal backend; a grid-backed
	// driver plugs in behind portal.Provider.
	provider := portal.NewSimulatedProvider()
	registry := workflow.DefaultRegistry(provider)
	engine := workflow.NewEngine(logger, metrics)

	var publisher events.Publisher
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(events.KafkaPublisherOptions{
			BootstrapServers: cfg.Kafka.BootstrapServers,
			Topic:            cfg.Kafka.Topic,
			Logger:           logger,
		})
	} else {
		publisher = events.NewLogPublisher(logger)
	}
	defer publisher.Close()

	orchestrator := orchestration.New(registry, engine, store, publisher, metrics, logger)

	gridScaler := scaler.New(cfg.Scaler, nil, metrics, logger)
	orchestrator.UseScaler(gridScaler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Scaler.Enabled {
		idleMonitor := scaler.NewMonitor(gridScaler, cfg.Scaler, logger)
		go idleMonitor.Run(ctx)
	}

	var resolver core.CredentialResolver
	if cfg.Secrets.PasswordFile != "" {
		fileStore, err := core.NewFileCredentialStore(cfg.Secrets.PasswordFile)
		if err != nil {
			logger.Error("credential store unavailable", map[string]interface{}{"error": err})
			os.Exit(1)
		}
		resolver = fileStore
	}

	sweeper := orchestration.NewRetrySweeper(store, orchestrator, metrics, logger, cfg.Retry.MaxAttempts)

	service := api.NewService(api.ServiceOptions{
		Store:        store,
		Orchestrator: orchestrator,
		Sweeper:      sweeper,
		Resolver:     resolver,
		Capacity:     gridScaler,
		Metrics:      metrics,
		Logger:       logger,
	})

	server := api.NewServer(api.ServerOptions{
		Config:         cfg,
		Handler:        api.NewHandler(service, cfg.Environment, logger),
		MetricsHandler: metrics.Handler(),
		HTTPMetrics:    metrics,
		Logger:         logger,
	})

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received", nil)
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", map[string]interface{}{"error": err})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", map[string]interface{}{"error": err})
	}
	orchestrator.Wait()
	service.Wait()
	logger.Info("service stopped", nil)
}

// buildStore prefers Redis and degrades to the in-memory backend when
// Redis is disabled or unreachable. Degraded mode loses cross-process
// dedupe, which is acceptable for single-node development only.
func buildStore(cfg *core.Config, logger core.Logger) transaction.Store {
	if !cfg.Redis.Enabled {
		logger.Info("using in-memory transaction store", nil)
		return transaction.NewMemoryStore()
	}
	client, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL: cfg.Redis.URL,
		Logger:   logger,
	})
	if err != nil {
		logger.Warn("redis unreachable, falling back to in-memory store", map[string]interface{}{
			"url":   cfg.Redis.URL,
			"error": err,
		})
		return transaction.NewMemoryStore()
	}
	return transaction.NewRedisStore(client, logger)
}
