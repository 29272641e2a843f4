package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/catalogsearch/internal/cache"
	rediscache "github.com/utafrali/catalogsearch/internal/cache/redis"
	"github.com/utafrali/catalogsearch/internal/catalog"
	"github.com/utafrali/catalogsearch/internal/category"
	"github.com/utafrali/catalogsearch/internal/config"
	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	esengine "github.com/utafrali/catalogsearch/internal/engine/elasticsearch"
	"github.com/utafrali/catalogsearch/internal/engine/memory"
	"github.com/utafrali/catalogsearch/internal/event"
	handler "github.com/utafrali/catalogsearch/internal/handler/http"
	"github.com/utafrali/catalogsearch/internal/query"
	memstore "github.com/utafrali/catalogsearch/internal/repository/memory"
	"github.com/utafrali/catalogsearch/internal/repository/postgres"
	"github.com/utafrali/catalogsearch/internal/service"
	"github.com/utafrali/catalogsearch/internal/syncer"
	"github.com/utafrali/catalogsearch/pkg/database"
	"github.com/utafrali/catalogsearch/pkg/health"
	pkgkafka "github.com/utafrali/catalogsearch/pkg/kafka"
	"github.com/utafrali/catalogsearch/pkg/tracing"
)

// idempotencyPrefix namespaces processed Kafka event ids in Redis.
const idempotencyPrefix = "search:events:"

// App wires together all dependencies and runs the search service.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  engine.SearchEngine
	syncer  *syncer.Syncer
	service *service.SearchService
	health  *health.Handler

	consumers  []*pkgkafka.Consumer
	dlq        *pkgkafka.DLQProducer
	httpServer *http.Server

	pool           *pgxpool.Pool
	redis          *redis.Client
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// Connections that were opened before a failure are closed again.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger, health: health.NewHandler()}
	defer func() {
		if err != nil {
			_ = a.closeConnections()
			if a.tracerShutdown != nil {
				_ = a.tracerShutdown(context.Background())
			}
		}
	}()

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	if err := a.initEngine(ctx); err != nil {
		return nil, err
	}

	store, err := a.initCategoryStore(ctx)
	if err != nil {
		return nil, err
	}

	c, err := a.initCache(ctx)
	if err != nil {
		return nil, err
	}

	// Catalog export and index synchronization.
	catalogClient := catalog.NewClient(catalog.Config{
		BaseURL: cfg.CatalogAPIURL,
		Timeout: cfg.CatalogTimeout,
	}, logger)
	a.health.RegisterOptional("catalog", catalogClient.Ping)

	a.syncer = syncer.New(a.engine, catalogClient, syncer.Config{
		WriteTimeout:    cfg.IndexWriteTimeout,
		ExportPageSize:  cfg.ExportPageSize,
		ExportPageDelay: cfg.ExportPageDelay,
		BulkBatchSize:   cfg.BulkBatchSize,
	}, logger)
	a.syncer.OnMutation(func(ctx context.Context) { cache.InvalidateAll(ctx, c) })

	// Build the service layer.
	a.service = service.NewSearchService(
		a.engine,
		category.NewResolver(store, cfg.CategoryQueryTimeout, logger),
		query.NewBuilder(query.Config{
			DefaultSize:      cfg.DefaultPageSize,
			MaxSize:          cfg.MaxPageSize,
			MaxWindow:        cfg.MaxResultWindow,
			PriceBreakpoints: cfg.PriceBreakpoints,
		}),
		c,
		a.syncer,
		service.Config{
			SearchTimeout: cfg.SearchTimeout,
			SearchTTL:     cfg.SearchCacheTTL,
			AggregateTTL:  cfg.AggregateCacheTTL,
		},
		logger,
	)

	if cfg.KafkaEnabled {
		a.initConsumers()
	}

	return a, nil
}

func (a *App) initEngine(ctx context.Context) error {
	switch a.cfg.SearchEngine {
	case config.EngineElasticsearch:
		esEng, err := esengine.New(ctx, a.cfg.ElasticsearchURL, a.cfg.ElasticsearchIndex, a.logger)
		if err != nil {
			return fmt.Errorf("init elasticsearch engine: %w", err)
		}
		a.engine = esEng
		a.health.Register("elasticsearch", esEng.Ping)
		a.logger.Info("elasticsearch search engine initialized",
			slog.String("url", a.cfg.ElasticsearchURL),
			slog.String("index", a.cfg.ElasticsearchIndex),
		)
	default:
		a.engine = memory.New()
		a.logger.Info("in-memory search engine initialized")
	}
	return nil
}

func (a *App) initCategoryStore(ctx context.Context) (category.Store, error) {
	if a.cfg.CategoryStore == config.StoreMemory {
		if a.cfg.CategorySeedFile == "" {
			a.logger.Warn("in-memory category store has no seed file; category scopes will be empty")
			return memstore.NewCategoryStore(), nil
		}
		store, err := memstore.LoadCategoryFile(a.cfg.CategorySeedFile)
		if err != nil {
			return nil, fmt.Errorf("load category seed file: %w", err)
		}
		a.logger.Info("in-memory category store loaded",
			slog.String("file", a.cfg.CategorySeedFile),
			slog.Int("categories", store.Len()),
		)
		return store, nil
	}

	database.SetSlowQueryLogging(a.cfg.SlowQueryThreshold, a.logger)
	pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect category store: %w", err)
	}
	a.pool = pool
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, "search"); err != nil {
		a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}
	a.health.Register("postgres", pool.Ping)
	return postgres.NewCategoryRepository(pool), nil
}

// initCache connects Redis when enabled. A cache outage never fails reads,
// so Redis is an optional readiness dependency.
func (a *App) initCache(ctx context.Context) (cache.Cache, error) {
	if !a.cfg.RedisEnabled {
		a.logger.Info("redis disabled; using in-process cache")
		return cache.NewMemory(), nil
	}

	client, err := database.NewRedisClient(ctx, a.cfg.Redis())
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.redis = client

	c := rediscache.New(client, a.cfg.RedisOpTimeout, a.logger)
	a.health.RegisterOptional("redis", c.Ping)
	return c, nil
}

// initConsumers subscribes one consumer per product topic. Redeliveries are
// deduplicated by event id and poison messages go to the DLQ.
func (a *App) initConsumers() {
	var store pkgkafka.IdempotencyStore
	if a.redis != nil {
		store = pkgkafka.NewRedisIdempotencyStore(a.redis, idempotencyPrefix, a.cfg.KafkaDedupTTL)
	} else {
		store = pkgkafka.NewMemoryIdempotencyStore(a.cfg.KafkaDedupTTL)
	}

	eventConsumer := event.NewConsumer(a.syncer, a.cfg.IndexWriteTimeout, a.logger)
	handle := pkgkafka.IdempotentHandler(store, eventConsumer.Handle, a.logger)

	if a.cfg.KafkaDLQ {
		a.dlq = pkgkafka.NewDLQProducer(a.cfg.KafkaBrokers, a.logger)
	}

	for _, topic := range event.Topics() {
		c := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:      a.cfg.KafkaBrokers,
			GroupID:      a.cfg.KafkaGroupID,
			Topic:        topic,
			MinBytes:     1,
			MaxBytes:     10e6, // 10 MB
			RetryBackoff: 500 * time.Millisecond,
		}, handle, a.logger)
		if a.dlq != nil {
			c = c.WithDLQ(a.dlq)
		}
		a.consumers = append(a.consumers, c)
	}

	brokers := a.cfg.KafkaBrokers
	a.health.RegisterOptional("kafka", func(ctx context.Context) error {
		return pkgkafka.PingBrokers(ctx, brokers)
	})
	a.logger.Info("kafka consumers initialized",
		slog.Any("brokers", brokers),
		slog.Int("topic_count", len(a.consumers)),
	)
}

// Service exposes the search gateway.
func (a *App) Service() *service.SearchService {
	return a.service
}

// Resync runs a full catalog resync in the foreground.
func (a *App) Resync(ctx context.Context, opts syncer.ResyncOptions) (*domain.ResyncReport, error) {
	return a.syncer.Resync(ctx, opts)
}

// Run starts the HTTP server, Kafka consumers and the periodic resync,
// blocking until the context is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	router := handler.NewRouter(a.service, a.syncer, a.health, handler.RouterConfig{
		CORSOrigins:       a.cfg.CORSOrigins,
		RateLimitRPS:      a.cfg.RateLimitRPS,
		RateLimitBurst:    a.cfg.RateLimitBurst,
		WebhookSecret:     a.cfg.WebhookSecret,
		PprofAllowedCIDRs: a.cfg.PprofAllowedCIDRs,
		CacheMaxAge:       int(a.cfg.SearchCacheTTL / time.Second),
		RequestTimeout:    a.cfg.RequestTimeout,
	}, gctx, a.logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	for _, c := range a.consumers {
		g.Go(func() error {
			if err := c.Start(gctx); err != nil {
				return fmt.Errorf("kafka consumer: %w", err)
			}
			return nil
		})
	}

	if a.cfg.ResyncInterval > 0 {
		g.Go(func() error {
			a.resyncLoop(gctx, a.cfg.ResyncInterval)
			return nil
		})
	}

	g.Go(func() error {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received")
		return a.Shutdown()
	})

	return g.Wait()
}

// resyncLoop triggers a resync every interval. A tick that finds a run in
// progress is skipped.
func (a *App) resyncLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.syncer.Resync(ctx, syncer.ResyncOptions{}); err != nil {
				if errors.Is(err, domain.ErrResyncInProgress) {
					a.logger.Info("scheduled resync skipped; a run is in progress")
					continue
				}
				a.logger.Warn("scheduled resync failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.closeConnections())

	if a.tracerShutdown != nil {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracerShutdown(tctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeConnections() error {
	var err error
	if a.redis != nil {
		err = a.redis.Close()
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return err
}
