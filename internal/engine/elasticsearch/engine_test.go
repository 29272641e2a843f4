package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/query"
)

const testIndex = "test_catalog"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeES answers the Elasticsearch REST calls the engine makes. Routes are
// keyed by "METHOD /path"; every request is recorded.
type fakeES struct {
	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []string
	bodies   map[string]string
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	key := r.Method + " " + r.URL.Path

	f.mu.Lock()
	f.requests = append(f.requests, key)
	f.bodies[key] = string(body)
	h, ok := f.routes[key]
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"no_route","reason":"` + key + `"},"status":404}`))
		return
	}
	h(w, r)
}

func (f *fakeES) body(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func (f *fakeES) seen(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r == key {
			return true
		}
	}
	return false
}

func jsonReply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newTestEngine(t *testing.T, routes map[string]http.HandlerFunc) (*Engine, *fakeES) {
	t.Helper()
	fake := &fakeES{routes: map[string]http.HandlerFunc{
		"HEAD /" + testIndex: jsonReply(http.StatusOK, ""),
		"HEAD /":             jsonReply(http.StatusOK, ""),
	}, bodies: map[string]string{}}
	for k, v := range routes {
		fake.routes[k] = v
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	eng, err := New(context.Background(), srv.URL, testIndex, testLogger())
	require.NoError(t, err)
	return eng, fake
}

func TestNew_CreatesMissingIndex(t *testing.T) {
	fake := &fakeES{routes: map[string]http.HandlerFunc{
		"HEAD /" + testIndex: jsonReply(http.StatusNotFound, ""),
		"PUT /" + testIndex:  jsonReply(http.StatusOK, `{"acknowledged":true}`),
	}, bodies: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := New(context.Background(), srv.URL, testIndex, testLogger())
	require.NoError(t, err)
	assert.True(t, fake.seen("PUT /"+testIndex))
	assert.Contains(t, fake.body("PUT /"+testIndex), `"specs_as_keywords"`)
}

func TestNew_CreateIndexError(t *testing.T) {
	fake := &fakeES{routes: map[string]http.HandlerFunc{
		"HEAD /" + testIndex: jsonReply(http.StatusNotFound, ""),
		"PUT /" + testIndex:  jsonReply(http.StatusBadRequest, `{"error":{"type":"mapper_parsing_exception","reason":"bad mapping"},"status":400}`),
	}, bodies: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := New(context.Background(), srv.URL, testIndex, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestEngine_Ping(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	assert.NoError(t, eng.Ping(context.Background()))
}

func TestEngine_Upsert(t *testing.T) {
	eng, fake := newTestEngine(t, map[string]http.HandlerFunc{
		"PUT /" + testIndex + "/_doc/p1": jsonReply(http.StatusCreated, `{"result":"created"}`),
	})

	doc := domain.SearchDocument{ID: "p1", Name: "Phone", InStock: true}
	require.NoError(t, eng.Upsert(context.Background(), &doc))

	var sent domain.SearchDocument
	require.NoError(t, json.Unmarshal([]byte(fake.body("PUT /"+testIndex+"/_doc/p1")), &sent))
	assert.Equal(t, "Phone", sent.Name)
}

func TestEngine_DeleteIgnoresMissing(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]http.HandlerFunc{
		"DELETE /" + testIndex + "/_doc/gone": jsonReply(http.StatusNotFound, `{"result":"not_found"}`),
	})
	assert.NoError(t, eng.Delete(context.Background(), "gone"))
}

func TestEngine_DeleteError(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]http.HandlerFunc{
		"DELETE /" + testIndex + "/_doc/p1": jsonReply(http.StatusInternalServerError, `{"error":{"type":"shard_failure","reason":"boom"},"status":500}`),
	})
	err := eng.Delete(context.Background(), "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shard_failure")
}

func TestEngine_BulkUpsertItemizesFailures(t *testing.T) {
	eng, fake := newTestEngine(t, map[string]http.HandlerFunc{
		"POST /" + testIndex + "/_bulk": jsonReply(http.StatusOK, `{
			"errors": true,
			"items": [
				{"index": {"_id": "a", "status": 201}},
				{"index": {"_id": "b", "status": 400, "error": {"type": "mapper_parsing_exception", "reason": "failed to parse [price]"}}},
				{"index": {"_id": "c", "status": 200}}
			]}`),
	})

	docs := []domain.SearchDocument{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	res, err := eng.BulkUpsert(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "b", res.Failed[0].ID)
	assert.Contains(t, res.Failed[0].Reason, "mapper_parsing_exception")

	lines := strings.Split(strings.TrimSpace(fake.body("POST /"+testIndex+"/_bulk")), "\n")
	assert.Len(t, lines, 6)
	assert.Contains(t, lines[0], `"_id":"a"`)
}

func TestEngine_BulkUpsertRequestFailure(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]http.HandlerFunc{
		"POST /" + testIndex + "/_bulk": jsonReply(http.StatusServiceUnavailable, `{"error":{"type":"cluster_block_exception","reason":"read-only"},"status":503}`),
	})
	_, err := eng.BulkUpsert(context.Background(), []domain.SearchDocument{{ID: "a"}})
	require.Error(t, err)
}

func TestEngine_BulkUpsertEmpty(t *testing.T) {
	eng, fake := newTestEngine(t, nil)
	res, err := eng.BulkUpsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Succeeded)
	assert.False(t, fake.seen("POST /"+testIndex+"/_bulk"))
}

const searchReply = `{
  "took": 3,
  "hits": {
    "total": {"value": 2},
    "hits": [
      {"_source": {"id": "p1", "name": "Phone One", "price": 1000, "in_stock": true, "brand": {"id": "b1", "name": "Acme"}}},
      {"_source": {"id": "p2", "name": "Phone Two", "price": 6000, "in_stock": true, "brand": {"id": "b1", "name": "Acme"}}}
    ]
  },
  "aggregations": {
    "categories": {"buckets": [{"key": "c1", "doc_count": 2, "label": {"buckets": [{"key": "Phones", "doc_count": 2}]}}]},
    "brands": {"buckets": [{"key": "b1", "doc_count": 2, "label": {"buckets": [{"key": "Acme", "doc_count": 2}]}}]},
    "price_ranges": {"buckets": [
      {"key": "0.0-5000.0", "from": 0.0, "to": 5000.0, "doc_count": 1},
      {"key": "5000.0-*", "from": 5000.0, "doc_count": 1}
    ]},
    "price_stats": {"count": 2, "min": 1000.0, "max": 6000.0, "avg": 3500.0, "sum": 7000.0}
  }
}`

func TestEngine_Search(t *testing.T) {
	eng, fake := newTestEngine(t, map[string]http.HandlerFunc{
		"POST /" + testIndex + "/_search": jsonReply(http.StatusOK, searchReply),
	})

	q, err := query.NewBuilder(query.Config{PriceBreakpoints: []int64{0, 5000}}).Build(query.Params{Text: "phone"})
	require.NoError(t, err)

	res, err := eng.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, "p1", res.Documents[0].ID)

	assert.Equal(t, []domain.FacetBucket{{Key: "c1", Label: "Phones", Count: 2}}, res.Facets.Categories)
	assert.Equal(t, "Acme", res.Facets.Brands[0].Label)
	require.Len(t, res.Facets.PriceRanges, 2)
	require.NotNil(t, res.Facets.PriceRanges[0].To)
	assert.Equal(t, int64(5000), *res.Facets.PriceRanges[0].To)
	assert.Nil(t, res.Facets.PriceRanges[1].To)
	assert.Equal(t, domain.PriceStats{Min: 1000, Max: 6000, Avg: 3500, Count: 2}, res.Facets.PriceStats)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(fake.body("POST /"+testIndex+"/_search")), &sent))
	assert.Contains(t, sent, "aggs")
	assert.Contains(t, sent["query"], "function_score")
}

func TestEngine_SearchError(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]http.HandlerFunc{
		"POST /" + testIndex + "/_search": jsonReply(http.StatusBadRequest, `{"error":{"type":"search_phase_execution_exception","reason":"all shards failed"},"status":400}`),
	})

	q, err := query.NewBuilder(query.Config{}).Build(query.Params{})
	require.NoError(t, err)

	_, err = eng.Search(context.Background(), q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search_phase_execution_exception")
}

func TestEngine_Suggest(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]http.HandlerFunc{
		"POST /" + testIndex + "/_search": jsonReply(http.StatusOK, `{"hits":{"hits":[
			{"_source": {"name": "iPhone 15", "suggest": ["iPhone 15", "Apple", "Phones"]}},
			{"_source": {"name": "iPhone 15 Pro", "suggest": ["iPhone 15 Pro", "Apple", "Phones", "iphone"]}},
			{"_source": {"name": "iPhone 15", "suggest": ["iPhone 15", "Apple"]}}
		]}}`),
	})

	got, err := eng.Suggest(context.Background(), "iph", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"iPhone 15", "iPhone 15 Pro", "iphone"}, got)
}

func TestEngine_FilterOptions(t *testing.T) {
	eng, fake := newTestEngine(t, map[string]http.HandlerFunc{
		"POST /" + testIndex + "/_search": jsonReply(http.StatusOK, `{"hits":{"hits":[]},"aggregations":{
			"spec_color": {"buckets": [{"key": "black", "doc_count": 3}, {"key": "white", "doc_count": 1}]},
			"spec_ram_gb": {"buckets": []},
			"brands": {"buckets": [{"key": "b1", "doc_count": 4, "label": {"buckets": [{"key": "Acme"}]}}]},
			"price_stats": {"count": 4, "min": 100.0, "max": 900.0, "avg": 450.0}
		}}`),
	})

	agg, err := eng.FilterOptions(context.Background(), []string{"c1", "c2"}, []string{"color", "ram_gb"})
	require.NoError(t, err)
	assert.Equal(t, []string{"black", "white"}, agg.SpecValues["color"])
	assert.Empty(t, agg.SpecValues["ram_gb"])
	assert.Equal(t, int64(900), agg.PriceStats.Max)
	assert.Equal(t, "Acme", agg.Brands[0].Label)

	assert.Contains(t, fake.body("POST /"+testIndex+"/_search"), `"size":0`)
}

func TestEngine_Reset(t *testing.T) {
	eng, fake := newTestEngine(t, map[string]http.HandlerFunc{
		"DELETE /" + testIndex: jsonReply(http.StatusNotFound, `{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`),
		"PUT /" + testIndex:    jsonReply(http.StatusOK, `{"acknowledged":true}`),
	})

	require.NoError(t, eng.Reset(context.Background()))
	assert.True(t, fake.seen("DELETE /"+testIndex))
	assert.True(t, fake.seen("PUT /"+testIndex))
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "abc", keyString("abc"))
	assert.Equal(t, "256", keyString(float64(256)))
	assert.Equal(t, "1.5", keyString(1.5))
	assert.Equal(t, "", keyString(nil))
}
