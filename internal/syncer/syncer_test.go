package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogsearch/internal/catalog"
	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	"github.com/utafrali/catalogsearch/internal/engine/memory"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newProduct(id string, stock int) domain.CatalogProduct {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return domain.CatalogProduct{
		ID:        id,
		Name:      "Product " + id,
		Slug:      "product-" + id,
		Brand:     domain.BrandRef{ID: "b1", Name: "Acme"},
		Category:  domain.CategoryRef{ID: "c1", Name: "Phones"},
		BasePrice: 10000,
		Currency:  "TRY",
		Stock:     stock,
		Status:    domain.StatusPublished,
		IsActive:  true,
		Specifications: map[string]any{
			"Color": "Black",
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func newProducts(n int) []domain.CatalogProduct {
	out := make([]domain.CatalogProduct, n)
	for i := range out {
		out[i] = newProduct(fmt.Sprintf("p%03d", i), 5)
	}
	return out
}

// fakeCatalog pages over a fixed product list.
type fakeCatalog struct {
	mu       sync.Mutex
	products []domain.CatalogProduct
	pingErr  error
	failPage int
	block    chan struct{}
	pages    []int
}

func (c *fakeCatalog) Ping(context.Context) error {
	return c.pingErr
}

func (c *fakeCatalog) ListPublished(ctx context.Context, page, perPage int) (*catalog.Page, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = append(c.pages, page)

	if page == c.failPage {
		return nil, errors.New("catalog: unexpected status 500")
	}
	total := len(c.products)
	totalPages := (total + perPage - 1) / perPage
	start := (page - 1) * perPage
	if start >= total {
		return &catalog.Page{Items: []domain.CatalogProduct{}, Total: total, TotalPages: totalPages}, nil
	}
	end := min(start+perPage, total)
	items := append([]domain.CatalogProduct(nil), c.products[start:end]...)
	return &catalog.Page{Items: items, Total: total, TotalPages: totalPages}, nil
}

// rejectingEngine is a memory engine whose bulk writes reject chosen ids
// or fail outright.
type rejectingEngine struct {
	*memory.Engine
	reject    map[string]bool
	bulkErr   error
	deleteErr error
	upsertErr error
}

func (e *rejectingEngine) BulkUpsert(ctx context.Context, docs []domain.SearchDocument) (*engine.BulkResult, error) {
	if e.bulkErr != nil {
		return nil, e.bulkErr
	}
	var accepted []domain.SearchDocument
	res := &engine.BulkResult{}
	for _, d := range docs {
		if e.reject[d.ID] {
			res.Failed = append(res.Failed, engine.BulkFailure{ID: d.ID, Reason: "mapper_parsing_exception"})
			continue
		}
		accepted = append(accepted, d)
	}
	ok, err := e.Engine.BulkUpsert(ctx, accepted)
	if err != nil {
		return nil, err
	}
	res.Succeeded = ok.Succeeded
	return res, nil
}

func (e *rejectingEngine) Upsert(ctx context.Context, doc *domain.SearchDocument) error {
	if e.upsertErr != nil {
		return e.upsertErr
	}
	return e.Engine.Upsert(ctx, doc)
}

func (e *rejectingEngine) Delete(ctx context.Context, id string) error {
	if e.deleteErr != nil {
		return e.deleteErr
	}
	return e.Engine.Delete(ctx, id)
}

func fastConfig() Config {
	return Config{
		WriteTimeout:   time.Second,
		ExportPageSize: 50,
		BulkBatchSize:  100,
	}
}

func newTestSyncer(eng engine.SearchEngine, cat Catalog) (*Syncer, *atomic.Int32) {
	s := New(eng, cat, fastConfig(), newTestLogger())
	var invalidations atomic.Int32
	s.OnMutation(func(context.Context) { invalidations.Add(1) })
	return s, &invalidations
}

func TestApply_CreatedSearchableIsIndexed(t *testing.T) {
	eng := memory.New()
	s, inv := newTestSyncer(eng, &fakeCatalog{})

	p := newProduct("p1", 1)
	outcome, err := s.Apply(context.Background(), domain.ActionCreated, &p)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIndexed, outcome)

	doc, ok := eng.Get("p1")
	require.True(t, ok)
	assert.Equal(t, domain.Project(p), doc)
	assert.EqualValues(t, 1, inv.Load())
}

func TestApply_UpdatedUnsearchableIsRemoved(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *domain.CatalogProduct)
	}{
		{"out of stock", func(p *domain.CatalogProduct) { p.Stock = 0 }},
		{"fully reserved", func(p *domain.CatalogProduct) { p.ReservedStock = p.Stock }},
		{"draft", func(p *domain.CatalogProduct) { p.Status = domain.StatusDraft }},
		{"discontinued", func(p *domain.CatalogProduct) { p.Status = domain.StatusDiscontinued }},
		{"inactive", func(p *domain.CatalogProduct) { p.IsActive = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := memory.New()
			s, _ := newTestSyncer(eng, &fakeCatalog{})

			p := newProduct("p1", 3)
			_, err := s.Apply(context.Background(), domain.ActionCreated, &p)
			require.NoError(t, err)

			tt.mutate(&p)
			outcome, err := s.Apply(context.Background(), domain.ActionUpdated, &p)
			require.NoError(t, err)
			assert.Equal(t, domain.OutcomeRemoved, outcome)
			assert.Equal(t, 0, eng.Len())
		})
	}
}

func TestApply_DeletedMissingDocumentIsNotAnError(t *testing.T) {
	eng := memory.New()
	s, inv := newTestSyncer(eng, &fakeCatalog{})

	p := newProduct("ghost", 1)
	outcome, err := s.Apply(context.Background(), domain.ActionDeleted, &p)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRemoved, outcome)
	assert.EqualValues(t, 1, inv.Load())
}

func TestApply_RejectsBadInput(t *testing.T) {
	s, inv := newTestSyncer(memory.New(), &fakeCatalog{})

	p := newProduct("p1", 1)
	_, err := s.Apply(context.Background(), domain.Action("archived"), &p)
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	_, err = s.Apply(context.Background(), domain.ActionCreated, nil)
	assert.ErrorIs(t, err, domain.ErrMissingProductID)

	noID := newProduct("", 1)
	_, err = s.Apply(context.Background(), domain.ActionCreated, &noID)
	assert.ErrorIs(t, err, domain.ErrMissingProductID)

	assert.EqualValues(t, 0, inv.Load())
}

func TestNotify_SwallowsEngineFailure(t *testing.T) {
	eng := &rejectingEngine{Engine: memory.New(), upsertErr: errors.New("connection refused")}
	s, inv := newTestSyncer(eng, &fakeCatalog{})

	before := testutil.ToFloat64(SyncOutcomes.WithLabelValues("updated", "failed"))

	p := newProduct("p1", 1)
	outcome := s.Notify(context.Background(), domain.ActionUpdated, &p)
	assert.Equal(t, domain.OutcomeFailed, outcome)
	assert.EqualValues(t, 0, inv.Load())
	assert.Equal(t, before+1, testutil.ToFloat64(SyncOutcomes.WithLabelValues("updated", "failed")))
}

func TestNotify_StockBoundary(t *testing.T) {
	eng := memory.New()
	s, _ := newTestSyncer(eng, &fakeCatalog{})

	one := newProduct("p1", 1)
	zero := newProduct("p0", 0)
	assert.Equal(t, domain.OutcomeIndexed, s.Notify(context.Background(), domain.ActionCreated, &one))
	assert.Equal(t, domain.OutcomeRemoved, s.Notify(context.Background(), domain.ActionCreated, &zero))

	_, ok := eng.Get("p1")
	assert.True(t, ok)
	_, ok = eng.Get("p0")
	assert.False(t, ok)
}

func TestNotify_AppliesWriteTimeout(t *testing.T) {
	var deadline time.Time
	eng := &deadlineEngine{Engine: memory.New(), seen: &deadline}
	s := New(eng, &fakeCatalog{}, Config{WriteTimeout: 50 * time.Millisecond}, newTestLogger())

	p := newProduct("p1", 1)
	s.Notify(context.Background(), domain.ActionCreated, &p)
	require.False(t, deadline.IsZero())
	assert.WithinDuration(t, time.Now(), deadline, time.Second)
}

type deadlineEngine struct {
	*memory.Engine
	seen *time.Time
}

func (e *deadlineEngine) Upsert(ctx context.Context, doc *domain.SearchDocument) error {
	*e.seen, _ = ctx.Deadline()
	return e.Engine.Upsert(ctx, doc)
}
