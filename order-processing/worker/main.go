package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"go-fulfillment-saga/order-processing/activities"
	"go-fulfillment-saga/order-processing/config"
	"go-fulfillment-saga/order-processing/ingress"
	"go-fulfillment-saga/order-processing/logging"
	"go-fulfillment-saga/order-processing/metrics"
	"go-fulfillment-saga/order-processing/orders"
	"go-fulfillment-saga/order-processing/payments"
	"go-fulfillment-saga/order-processing/records"
	"go-fulfillment-saga/order-processing/scheduler"
	"go-fulfillment-saga/order-processing/storage"
	"go-fulfillment-saga/order-processing/workflows"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalln("Unable to load config", err)
	}
	logger, err := logging.New(cfg.IsDevelopment())
	if err != nil {
		log.Fatalln("Unable to create logger", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Document store
	docs, err := storage.Open(ctx, cfg.Store.Backend, cfg.Store.PebbleDir, cfg.Store.DatabaseURL)
	if err != nil {
		logger.Fatal("Unable to open document store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer docs.Close()
	orderRepo := storage.NewOrderRepository(docs)
	recordRepo := storage.NewPurchaseRecordRepository(docs)
	txnRepo := storage.NewTransactionRepository(docs)
	instrumentRepo := storage.NewInstrumentRepository(docs)

	// Payment providers
	registry, err := newRegistry(cfg, logger)
	if err != nil {
		logger.Fatal("Unable to build provider registry", zap.Error(err))
	}
	m := metrics.NewRegistry()
	processor := payments.NewProcessor(txnRepo, instrumentRepo, registry, m, logger)

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort: cfg.TemporalHost,
		Logger:   logging.NewTemporalLogger(logger),
	})
	if err != nil {
		logger.Fatal("Unable to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	recordSvc := records.NewService(recordRepo, cfg.SLA, logger)
	orderSvc := orders.NewService(orders.Deps{
		Orders:       orderRepo,
		Transactions: txnRepo,
		Records:      recordSvc,
		Payments:     processor,
		Scheduler:    scheduler.NewTemporalScheduler(c, cfg.TaskQueue, cfg.Schedule.TransientRetryBackoff, logger),
		Metrics:      m,
		Logger:       logger,
	}, cfg.SLA, cfg.Schedule, orders.WithEntities(cfg.Entities))

	// Create worker with options
	identity := "fulfillment-worker-" + hostname()
	w := worker.New(c, cfg.TaskQueue, worker.Options{
		Identity:                               identity,
		MaxConcurrentActivityExecutionSize:     100,
		MaxConcurrentWorkflowTaskExecutionSize: 50,
	})
	w.RegisterWorkflowWithOptions(workflows.FulfillOrderWorkflow, workflow.RegisterOptions{Name: scheduler.FulfillOrderWorkflowName})
	w.RegisterWorkflowWithOptions(workflows.ForceFailPurchaseRecordWorkflow, workflow.RegisterOptions{Name: scheduler.ForceFailRecordWorkflowName})
	w.RegisterActivity(&activities.FulfillmentActivities{Orders: orderSvc, Records: recordSvc})

	// Provider events and operator API
	events := ingress.NewEventHandler(registry, newDeduper(ctx, cfg, logger), orderSvc, m, logger)
	api := ingress.NewServer(ingress.Deps{
		Events:      events,
		Orders:      orderSvc,
		Records:     recordSvc,
		Instruments: instrumentRepo,
		Metrics:     m,
		Logger:      logger,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := ingress.NewKafkaConsumer(ingress.NewKafkaReader(cfg.Kafka), events, logger)
		go func() {
			logger.Info("Consuming provider events", zap.String("topic", cfg.Kafka.WebhookTopic))
			if err := consumer.Run(ctx); err != nil {
				logger.Error("Kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("Worker starting",
		zap.String("task_queue", cfg.TaskQueue),
		zap.String("identity", identity),
		zap.Strings("providers", registry.Names()))

	// Start worker
	err = w.Run(worker.InterruptCh())
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("HTTP server shutdown", zap.Error(shutdownErr))
	}
	if err != nil {
		logger.Fatal("Unable to start worker", zap.Error(err))
	}
}

// newRegistry always offers the sandbox and adds Stripe when a key is set
func newRegistry(cfg *config.Config, logger *zap.Logger) (*payments.Registry, error) {
	adapters := []payments.Adapter{payments.NewSandboxAdapter("sandbox")}
	defaultProvider := cfg.Payments.DefaultProvider
	if cfg.Payments.StripeAPIKey != "" {
		adapters = append(adapters, payments.NewStripeAdapter(cfg.Payments.StripeAPIKey))
	} else if defaultProvider == payments.StripeProvider {
		logger.Warn("STRIPE_API_KEY not set, routing payments to the sandbox")
		defaultProvider = "sandbox"
	}
	return payments.NewRegistry(defaultProvider, adapters...)
}

func newDeduper(ctx context.Context, cfg *config.Config, logger *zap.Logger) ingress.Deduper {
	if cfg.Redis.Addr == "" {
		logger.Info("REDIS_ADDR not set, de-duplicating provider events in memory")
		return ingress.NewMemoryDeduper(cfg.WebhookDedupTTL)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Unable to reach Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	return ingress.NewRedisDeduper(rdb, cfg.WebhookDedupTTL)
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
