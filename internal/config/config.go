package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	pkgconfig "github.com/utafrali/catalogsearch/pkg/config"
	"github.com/utafrali/catalogsearch/pkg/database"
	"github.com/utafrali/catalogsearch/pkg/tracing"
)

// Engine and category store selections.
const (
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"

	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all configuration for the search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"SEARCH_HTTP_PORT" envDefault:"8010"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// Search engine
	SearchEngine       string        `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
	ElasticsearchURL   string        `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex string        `env:"ELASTICSEARCH_INDEX" envDefault:"catalog_products"`
	SearchTimeout      time.Duration `env:"SEARCH_TIMEOUT" envDefault:"5s"`
	IndexWriteTimeout  time.Duration `env:"INDEX_WRITE_TIMEOUT" envDefault:"5s"`

	// Category store
	CategoryStore        string        `env:"CATEGORY_STORE" envDefault:"postgres"`
	CategoryQueryTimeout time.Duration `env:"CATEGORY_QUERY_TIMEOUT" envDefault:"2s"`
	CategorySeedFile     string        `env:"CATEGORY_SEED_FILE"`
	PostgresHost         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser         string        `env:"POSTGRES_USER" envDefault:"catalog"`
	PostgresPassword     string        `env:"POSTGRES_PASSWORD" envDefault:"catalog"`
	PostgresDB           string        `env:"POSTGRES_DB" envDefault:"catalog"`
	PostgresSSLMode      string        `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	PostgresMaxConns     int32         `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	SlowQueryThreshold   time.Duration `env:"POSTGRES_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Cache
	RedisEnabled      bool          `env:"REDIS_ENABLED" envDefault:"true"`
	RedisAddr         string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB           int           `env:"REDIS_DB" envDefault:"0"`
	RedisOpTimeout    time.Duration `env:"REDIS_OP_TIMEOUT" envDefault:"250ms"`
	SearchCacheTTL    time.Duration `env:"SEARCH_CACHE_TTL" envDefault:"30s"`
	AggregateCacheTTL time.Duration `env:"AGGREGATE_CACHE_TTL" envDefault:"15m"`

	// Query building
	DefaultPageSize  int     `env:"SEARCH_DEFAULT_PAGE_SIZE" envDefault:"20"`
	MaxPageSize      int     `env:"SEARCH_MAX_PAGE_SIZE" envDefault:"100"`
	MaxResultWindow  int     `env:"SEARCH_MAX_RESULT_WINDOW" envDefault:"10000"`
	PriceBreakpoints []int64 `env:"PRICE_BREAKPOINTS" envDefault:"0,50000,100000,250000,500000,1000000" envSeparator:","`

	// Catalog export and resync
	CatalogAPIURL   string        `env:"CATALOG_API_URL" envDefault:"http://localhost:8001"`
	CatalogTimeout  time.Duration `env:"CATALOG_TIMEOUT" envDefault:"10s"`
	ExportPageSize  int           `env:"EXPORT_PAGE_SIZE" envDefault:"100"`
	ExportPageDelay time.Duration `env:"EXPORT_PAGE_DELAY" envDefault:"200ms"`
	BulkBatchSize   int           `env:"BULK_BATCH_SIZE" envDefault:"100"`
	ResyncInterval  time.Duration `env:"RESYNC_INTERVAL" envDefault:"0s"`

	// Webhook
	WebhookSecret string `env:"WEBHOOK_SECRET" envDefault:""`

	// Kafka
	KafkaEnabled  bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers  []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID  string        `env:"KAFKA_GROUP_ID" envDefault:"catalogsearch"`
	KafkaDLQ      bool          `env:"KAFKA_DLQ_ENABLED" envDefault:"true"`
	KafkaDedupTTL time.Duration `env:"KAFKA_IDEMPOTENCY_TTL" envDefault:"24h"`

	// Edge
	RateLimitRPS      float64  `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst    int      `env:"RATE_LIMIT_BURST" envDefault:"100"`
	CORSOrigins       []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	Tracing tracing.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromMap is Load over an explicit variable set.
func LoadFromMap(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFromMap(cfg, vars); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	switch c.SearchEngine {
	case EngineElasticsearch:
		if _, err := url.ParseRequestURI(c.ElasticsearchURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid ELASTICSEARCH_URL: %w", err))
		}
		if c.ElasticsearchIndex == "" {
			errs = append(errs, errors.New("ELASTICSEARCH_INDEX is required"))
		}
	case EngineMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown SEARCH_ENGINE %q", c.SearchEngine))
	}
	if c.CategoryStore != StorePostgres && c.CategoryStore != StoreMemory {
		errs = append(errs, fmt.Errorf("unknown CATEGORY_STORE %q", c.CategoryStore))
	}
	if _, err := url.ParseRequestURI(c.CatalogAPIURL); err != nil {
		errs = append(errs, fmt.Errorf("invalid CATALOG_API_URL: %w", err))
	}

	positive := map[string]int{
		"SEARCH_DEFAULT_PAGE_SIZE": c.DefaultPageSize,
		"SEARCH_MAX_PAGE_SIZE":     c.MaxPageSize,
		"SEARCH_MAX_RESULT_WINDOW": c.MaxResultWindow,
		"EXPORT_PAGE_SIZE":         c.ExportPageSize,
		"BULK_BATCH_SIZE":          c.BulkBatchSize,
	}
	for _, name := range sortedKeys(positive) {
		if positive[name] < 1 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, positive[name]))
		}
	}
	if c.DefaultPageSize > c.MaxPageSize {
		errs = append(errs, fmt.Errorf("SEARCH_DEFAULT_PAGE_SIZE %d exceeds SEARCH_MAX_PAGE_SIZE %d", c.DefaultPageSize, c.MaxPageSize))
	}
	if c.MaxPageSize > c.MaxResultWindow {
		errs = append(errs, fmt.Errorf("SEARCH_MAX_PAGE_SIZE %d exceeds SEARCH_MAX_RESULT_WINDOW %d", c.MaxPageSize, c.MaxResultWindow))
	}

	if c.SearchCacheTTL <= 0 || c.AggregateCacheTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}
	if c.ExportPageDelay < 0 || c.ResyncInterval < 0 {
		errs = append(errs, errors.New("EXPORT_PAGE_DELAY and RESYNC_INTERVAL must not be negative"))
	}
	if !sort.SliceIsSorted(c.PriceBreakpoints, func(i, j int) bool { return c.PriceBreakpoints[i] < c.PriceBreakpoints[j] }) || len(c.PriceBreakpoints) < 2 {
		errs = append(errs, errors.New("PRICE_BREAKPOINTS must hold at least two ascending values"))
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0,1], got %v", c.Tracing.SampleRate))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limit settings must not be negative"))
	}

	return errors.Join(errs...)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Postgres returns the connection settings for the category store.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPassword,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSLMode,
		MaxConns:        c.PostgresMaxConns,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Redis returns the cache connection settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Addr:        c.RedisAddr,
		Password:    c.RedisPassword,
		DB:          c.RedisDB,
		DialTimeout: 2 * time.Second,
		PoolSize:    20,
	}
}
