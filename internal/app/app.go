package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/FulfillmentGo/internal/cache"
	"github.com/utafrali/FulfillmentGo/internal/config"
	"github.com/utafrali/FulfillmentGo/internal/event"
	handler "github.com/utafrali/FulfillmentGo/internal/handler/http"
	"github.com/utafrali/FulfillmentGo/internal/notifier"
	"github.com/utafrali/FulfillmentGo/internal/payment"
	"github.com/utafrali/FulfillmentGo/internal/queue"
	"github.com/utafrali/FulfillmentGo/internal/repository/postgres"
	"github.com/utafrali/FulfillmentGo/internal/service"
	"github.com/utafrali/FulfillmentGo/migrations"
	"github.com/utafrali/FulfillmentGo/pkg/database"
	"github.com/utafrali/FulfillmentGo/pkg/health"
	pkgkafka "github.com/utafrali/FulfillmentGo/pkg/kafka"
)

// App wires together all dependencies and runs the fulfillment service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	redis      *redis.Client
	producer   *pkgkafka.Producer
	httpServer *http.Server
	workers    []*queue.Worker
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// PostgreSQL connection pool with startup retry.
	pool, err := database.NewPostgresPoolWithLogger(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	database.RegisterPoolMetrics(pool, "fulfillment")
	database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)

	// Redis is a cache, not a dependency; run degraded without it.
	redisClient, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", slog.String("error", err.Error()))
		redisClient = nil
	} else {
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))
	}

	// Kafka producer for external order updates. Unreachable brokers degrade
	// the push channel, not the saga.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := producer.Ping(ctx); err != nil {
		logger.Warn("kafka unreachable, order updates will retry per publish",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Durable queue on Postgres.
	store := queue.NewStore(pool, logger, cfg.QueueRetryBase, cfg.QueueRetryMax, cfg.QueueJobLease)

	// Repositories.
	orderRepo := postgres.NewOrderRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	stockRepo := postgres.NewStockRepository(pool)

	// Event plumbing: durable bus feeding the in-process emitter.
	emitter := event.NewEmitter(logger)
	bus := event.NewBus(store, emitter, cfg.EventMaxAttempts, logger)

	invalidator := cache.NewInvalidator(redisClient, logger)

	// Payment provider behind a circuit breaker.
	var provider payment.Provider = payment.NewSimulator(cfg.PaymentDuration, cfg.PaymentFailedProbability)
	provider = payment.NewBreakerProvider(provider, payment.DefaultBreakerConfig(), logger)

	// Services.
	paymentService := service.NewPaymentService(store, provider, bus, cfg.PaymentMaxAttempts, logger)
	orderService := service.NewOrderService(orderRepo, bus, logger)
	stockService := service.NewStockService(stockRepo, bus, invalidator, redisClient, logger)
	saga := service.NewSaga(orderRepo, paymentRepo, paymentService, bus, invalidator, logger)
	orderUpdates := notifier.NewOrderUpdates(producer, cfg.OrderUpdatesTopic, logger)

	// Explicit handler registry: every saga event and the handlers it fans
	// out to, in one place.
	emitter.Subscribe(event.OrderCreated, saga.HandleOrderCreated)
	emitter.Subscribe(event.OrderReserved, saga.HandleOrderReserved)
	emitter.Subscribe(event.OrderCompleted, saga.HandleOrderCompleted)
	emitter.Subscribe(event.OrderRejected, saga.HandleOrderRejected)
	emitter.Subscribe(event.PaymentSuccess, saga.HandlePaymentSuccess)
	emitter.Subscribe(event.PaymentFailed, saga.HandlePaymentFailed)
	emitter.Subscribe(event.StockReserve, stockService.HandleReserve)
	emitter.Subscribe(event.StockSell, stockService.HandleSell)
	emitter.Subscribe(event.StockRelease, stockService.HandleRelease)
	emitter.Subscribe(event.OrderUpdated, orderUpdates.Handle)

	// Queue workers: one pool relays saga events, one runs charges.
	eventWorker := queue.NewWorker(store, queue.WorkerConfig{
		Queue:        event.QueueEvents,
		Concurrency:  cfg.EventWorkers,
		PollInterval: cfg.QueuePollInterval,
		JobTimeout:   30 * time.Second,
	}, bus.RelayHandler(), nil, logger)

	paymentWorker := queue.NewWorker(store, queue.WorkerConfig{
		Queue:        service.QueuePayments,
		Concurrency:  cfg.PaymentWorkers,
		PollInterval: cfg.QueuePollInterval,
		JobTimeout:   cfg.PaymentDuration + 30*time.Second,
	}, paymentService.ChargeHandler(), paymentService.DeadLetter(), logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.Register("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	router := handler.NewRouter(orderService, stockService, healthHandler, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		redis:      redisClient,
		producer:   producer,
		httpServer: httpServer,
		workers:    []*queue.Worker{eventWorker, paymentWorker},
	}, nil
}

// Run starts the HTTP server and queue workers, blocking until the context is
// canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, w := range a.workers {
		wg.Add(1)
		go func(w *queue.Worker) {
			defer wg.Done()
			w.Run(workerCtx)
		}(w)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		runErr = err
	}

	if err := a.shutdown(stopWorkers, &wg); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown stops components in order: drain HTTP, stop workers, close the
// producer, the cache, and finally the pool.
func (a *App) shutdown(stopWorkers context.CancelFunc, wg *sync.WaitGroup) error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	stopWorkers()
	wg.Wait()

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return nil
}
