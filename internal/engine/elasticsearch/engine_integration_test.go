package elasticsearch_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	esengine "github.com/utafrali/catalogsearch/internal/engine/elasticsearch"
	memengine "github.com/utafrali/catalogsearch/internal/engine/memory"
	"github.com/utafrali/catalogsearch/internal/query"
)

// newIntegrationEngine creates an engine against a real cluster. It skips
// the test if ELASTICSEARCH_URL is not set.
func newIntegrationEngine(t *testing.T) *esengine.Engine {
	t.Helper()

	esURL := os.Getenv("ELASTICSEARCH_URL")
	if esURL == "" {
		t.Skip("ELASTICSEARCH_URL not set, skipping Elasticsearch integration tests")
	}

	indexName := fmt.Sprintf("test_catalog_products_%d", time.Now().UnixNano())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eng, err := esengine.New(context.Background(), esURL, indexName, logger)
	require.NoError(t, err, "failed to create Elasticsearch engine")

	t.Cleanup(func() {
		_ = eng.Reset(context.Background())
	})
	return eng
}

func product(name string, price int64, stock int) domain.CatalogProduct {
	now := time.Now().UTC()
	return domain.CatalogProduct{
		ID:             uuid.New().String(),
		Name:           name,
		Slug:           "slug-" + uuid.New().String(),
		Description:    "integration test product",
		Brand:          domain.BrandRef{ID: "brand-1", Name: "Acme"},
		Category:       domain.CategoryRef{ID: "cat-1", Name: "Electronics"},
		BasePrice:      price,
		Currency:       "TRY",
		Stock:          stock,
		Status:         domain.StatusPublished,
		IsActive:       true,
		Specifications: map[string]any{"color": "Black", "ram_gb": 8},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestES_UpsertSearchDelete(t *testing.T) {
	eng := newIntegrationEngine(t)
	ctx := context.Background()

	doc := domain.Project(product("Wireless Headphones", 9999, 3))
	require.NoError(t, eng.Upsert(ctx, &doc))

	q, err := query.NewBuilder(query.Config{}).Build(query.Params{Text: "headphones"})
	require.NoError(t, err)

	res, err := eng.Search(ctx, q)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Total)
	assert.Equal(t, doc.ID, res.Documents[0].ID)
	assert.Equal(t, int64(1), res.Facets.PriceStats.Count)

	require.NoError(t, eng.Delete(ctx, doc.ID))
	res, err = eng.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Total)
}

func TestES_BulkAndSpecFilter(t *testing.T) {
	eng := newIntegrationEngine(t)
	ctx := context.Background()

	black := domain.Project(product("Phone Black", 1000, 1))
	white := product("Phone White", 2000, 1)
	white.Specifications = map[string]any{"color": "White"}
	docs := []domain.SearchDocument{black, domain.Project(white)}

	res, err := eng.BulkUpsert(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)

	q, err := query.NewBuilder(query.Config{}).Build(query.Params{SpecFilters: map[string][]string{"color": {"black"}}})
	require.NoError(t, err)

	found, err := eng.Search(ctx, q)
	require.NoError(t, err)
	require.Equal(t, int64(1), found.Total)
	assert.Equal(t, black.ID, found.Documents[0].ID)

	suggestions, err := eng.Suggest(ctx, "pho", 5)
	require.NoError(t, err)
	assert.Contains(t, suggestions, "Phone Black")
}

func TestES_TermsMatchAcrossFields(t *testing.T) {
	eng := newIntegrationEngine(t)
	ctx := context.Background()

	phone := domain.Project(product("Phone One", 1500, 2))
	laptop := domain.Project(product("Laptop Pro", 4500, 2))
	laptop.Brand = domain.BrandRef{ID: "brand-2", Name: "Dell"}
	_, err := eng.BulkUpsert(ctx, []domain.SearchDocument{phone, laptop})
	require.NoError(t, err)

	mem := memengine.New()
	for _, doc := range []domain.SearchDocument{phone, laptop} {
		require.NoError(t, mem.Upsert(ctx, &doc))
	}

	tests := []struct {
		text string
		want []string
	}{
		{"acme phone", []string{phone.ID}},
		{"dell laptop", []string{laptop.ID}},
		{"acme laptop", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			q, err := query.NewBuilder(query.Config{}).Build(query.Params{Text: tt.text})
			require.NoError(t, err)

			for name, searcher := range map[string]interface {
				Search(context.Context, *query.Query) (*engine.Result, error)
			}{"elasticsearch": eng, "memory": mem} {
				res, err := searcher.Search(ctx, q)
				require.NoError(t, err, name)
				ids := []string{}
				for _, d := range res.Documents {
					ids = append(ids, d.ID)
				}
				assert.ElementsMatch(t, tt.want, ids, name)
			}
		})
	}
}
