package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/query"
)

// SearchEngine indexes search documents and answers queries built by
// query.Builder. Implementations may use Elasticsearch or in-memory storage.
type SearchEngine interface {
	// Upsert adds or replaces a single document, keyed by its ID.
	Upsert(ctx context.Context, doc *domain.SearchDocument) error

	// Delete removes a document by ID. A missing document is not an error.
	Delete(ctx context.Context, id string) error

	// BulkUpsert writes many documents at once. A rejected document is
	// reported in the result and does not fail the call; the error is for
	// failures of the whole request.
	BulkUpsert(ctx context.Context, docs []domain.SearchDocument) (*BulkResult, error)

	// Search runs a built query and computes facets over the filtered set.
	Search(ctx context.Context, q *query.Query) (*Result, error)

	// Suggest returns completions for prefix from searchable documents.
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)

	// FilterOptions aggregates the values present in a set of categories.
	FilterOptions(ctx context.Context, categoryIDs, specKeys []string) (*FilterAggregates, error)

	// Reset drops every document and recreates the index.
	Reset(ctx context.Context) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// Result is one page of hits plus facets over all matching documents.
type Result struct {
	Documents []domain.SearchDocument
	Total     int64
	Facets    domain.Facets
}

// BulkFailure is a document rejected by a bulk write.
type BulkFailure struct {
	ID     string
	Reason string
}

// BulkResult itemizes a bulk write.
type BulkResult struct {
	Succeeded int
	Failed    []BulkFailure
}

// FilterAggregates are the values present in a category subtree.
type FilterAggregates struct {
	SpecValues map[string][]string
	Brands     []domain.FacetBucket
	PriceStats domain.PriceStats
}

// EmptyFacets returns facets with non-nil, empty bucket lists.
func EmptyFacets() domain.Facets {
	return domain.Facets{
		Categories:  []domain.FacetBucket{},
		Brands:      []domain.FacetBucket{},
		PriceRanges: []domain.PriceRangeBucket{},
	}
}

// MatchSuggestions picks the tokens completing prefix: a token qualifies
// when it or one of its words starts with prefix, case-insensitively.
func MatchSuggestions(prefix string, tokens []string) []string {
	p := strings.ToLower(strings.TrimSpace(prefix))
	if p == "" {
		return nil
	}
	var out []string
	for _, tok := range tokens {
		lower := strings.ToLower(tok)
		if strings.HasPrefix(lower, p) {
			out = append(out, tok)
			continue
		}
		for _, word := range strings.Fields(lower) {
			if strings.HasPrefix(word, p) {
				out = append(out, tok)
				break
			}
		}
	}
	return out
}

// SuggestionSet collects suggestions in rank order, case-insensitively
// unique, up to a limit.
type SuggestionSet struct {
	limit int
	seen  map[string]struct{}
	items []string
}

// NewSuggestionSet creates a set holding at most limit suggestions.
func NewSuggestionSet(limit int) *SuggestionSet {
	return &SuggestionSet{limit: limit, seen: make(map[string]struct{})}
}

// Add appends each value that is new while the set has room. It reports
// whether the set still has room.
func (s *SuggestionSet) Add(values ...string) bool {
	for _, v := range values {
		if len(s.items) >= s.limit {
			return false
		}
		key := strings.ToLower(v)
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.items = append(s.items, v)
	}
	return len(s.items) < s.limit
}

// Items returns the collected suggestions.
func (s *SuggestionSet) Items() []string {
	if s.items == nil {
		return []string{}
	}
	return s.items
}

// SortBuckets orders facet buckets the way Elasticsearch terms
// aggregations do: count descending, then key ascending.
func SortBuckets(b []domain.FacetBucket) {
	sort.Slice(b, func(i, j int) bool {
		if b[i].Count != b[j].Count {
			return b[i].Count > b[j].Count
		}
		return b[i].Key < b[j].Key
	})
}
