package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utafrali/catalogsearch/internal/catalog"
	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	"github.com/utafrali/catalogsearch/pkg/logger"
)

// Catalog is the export API the resync reads from.
type Catalog interface {
	ListPublished(ctx context.Context, page, perPage int) (*catalog.Page, error)
	Ping(ctx context.Context) error
}

// Config tunes index writes and resync pacing.
type Config struct {
	WriteTimeout    time.Duration
	ExportPageSize  int
	ExportPageDelay time.Duration
	BulkBatchSize   int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    5 * time.Second,
		ExportPageSize:  100,
		ExportPageDelay: 200 * time.Millisecond,
		BulkBatchSize:   100,
	}
}

// Syncer keeps the search index in line with the catalog. Single-document
// writes come from webhooks and events; Resync rebuilds from the export.
type Syncer struct {
	engine     engine.SearchEngine
	catalog    Catalog
	cfg        Config
	logger     *slog.Logger
	onMutation func(ctx context.Context)
	now        func() time.Time

	running atomic.Bool
	mu      sync.RWMutex
	last    *domain.ResyncReport
}

// New creates a syncer. Zero config values fall back to DefaultConfig.
func New(eng engine.SearchEngine, cat Catalog, cfg Config, logger *slog.Logger) *Syncer {
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ExportPageSize <= 0 {
		cfg.ExportPageSize = def.ExportPageSize
	}
	if cfg.ExportPageDelay < 0 {
		cfg.ExportPageDelay = 0
	}
	if cfg.BulkBatchSize <= 0 {
		cfg.BulkBatchSize = def.BulkBatchSize
	}
	return &Syncer{
		engine:     eng,
		catalog:    cat,
		cfg:        cfg,
		logger:     logger,
		onMutation: func(context.Context) {},
		now:        time.Now,
	}
}

// OnMutation registers the hook run after every successful index change,
// typically cache invalidation. Call it before the syncer is used.
func (s *Syncer) OnMutation(hook func(ctx context.Context)) {
	if hook == nil {
		hook = func(context.Context) {}
	}
	s.onMutation = hook
}

// Apply mirrors one catalog mutation into the index. Created and updated
// products are upserted while searchable and removed otherwise.
func (s *Syncer) Apply(ctx context.Context, action domain.Action, product *domain.CatalogProduct) (domain.Outcome, error) {
	if product == nil || product.ID == "" {
		return domain.OutcomeFailed, domain.ErrMissingProductID
	}

	var (
		outcome domain.Outcome
		err     error
	)
	switch action {
	case domain.ActionCreated, domain.ActionUpdated:
		if product.Searchable() {
			doc := domain.Project(*product)
			outcome, err = domain.OutcomeIndexed, s.engine.Upsert(ctx, &doc)
		} else {
			outcome, err = domain.OutcomeRemoved, s.engine.Delete(ctx, product.ID)
		}
	case domain.ActionDeleted:
		outcome, err = domain.OutcomeRemoved, s.engine.Delete(ctx, product.ID)
	default:
		return domain.OutcomeFailed, domain.ErrInvalidAction
	}

	if err != nil {
		SyncOutcomes.WithLabelValues(string(action), string(domain.OutcomeFailed)).Inc()
		return domain.OutcomeFailed, fmt.Errorf("sync product %s (%s): %w", product.ID, action, err)
	}

	SyncOutcomes.WithLabelValues(string(action), string(outcome)).Inc()
	s.onMutation(ctx)
	return outcome, nil
}

// Notify is the best-effort form of Apply used by the webhook: the write
// runs under the index write timeout and a failure is logged, not returned.
// The next resync repairs whatever was missed.
func (s *Syncer) Notify(ctx context.Context, action domain.Action, product *domain.CatalogProduct) domain.Outcome {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	outcome, err := s.Apply(ctx, action, product)
	if err != nil {
		logger.WithContext(ctx, s.logger).WarnContext(ctx, "index sync failed, waiting for resync",
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
		return domain.OutcomeFailed
	}

	logger.WithContext(ctx, s.logger).DebugContext(ctx, "index synced",
		slog.String("action", string(action)),
		slog.String("product_id", product.ID),
		slog.String("outcome", string(outcome)),
	)
	return outcome
}

// LastReport returns a copy of the most recent resync report, or nil.
func (s *Syncer) LastReport() *domain.ResyncReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	cp.Batches = slices.Clone(s.last.Batches)
	return &cp
}

// Running reports whether a resync is in progress.
func (s *Syncer) Running() bool {
	return s.running.Load()
}

func (s *Syncer) setLast(r *domain.ResyncReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = r
}
