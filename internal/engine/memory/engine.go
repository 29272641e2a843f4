package memory

import (
	"cmp"
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	"github.com/utafrali/catalogsearch/internal/query"
)

// Engine is an in-memory implementation of engine.SearchEngine. It
// evaluates query.Query directly with the same fields, weights and boosts
// the Elasticsearch engine renders. Thread-safe via sync.RWMutex.
type Engine struct {
	mu   sync.RWMutex
	docs map[string]domain.SearchDocument
}

// New creates a new in-memory search engine.
func New() *Engine {
	return &Engine{docs: make(map[string]domain.SearchDocument)}
}

// Upsert adds or replaces a document.
func (e *Engine) Upsert(_ context.Context, doc *domain.SearchDocument) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.docs[doc.ID] = *doc
	return nil
}

// Delete removes a document by ID.
func (e *Engine) Delete(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.docs, id)
	return nil
}

// BulkUpsert adds or replaces many documents.
func (e *Engine) BulkUpsert(ctx context.Context, docs []domain.SearchDocument) (*engine.BulkResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range docs {
		e.docs[docs[i].ID] = docs[i]
	}
	return &engine.BulkResult{Succeeded: len(docs)}, nil
}

// Reset drops every document.
func (e *Engine) Reset(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.docs = make(map[string]domain.SearchDocument)
	return nil
}

// Ping always succeeds.
func (e *Engine) Ping(_ context.Context) error {
	return nil
}

// Len returns the number of indexed documents.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

// Get returns an indexed document.
func (e *Engine) Get(id string) (domain.SearchDocument, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	doc, ok := e.docs[id]
	return doc, ok
}

type scored struct {
	doc   domain.SearchDocument
	score float64
}

// Search evaluates q against the stored documents.
func (e *Engine) Search(ctx context.Context, q *query.Query) (*engine.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.MatchesNothing() {
		return &engine.Result{Documents: []domain.SearchDocument{}, Facets: engine.EmptyFacets()}, nil
	}

	terms := q.Terms()

	e.mu.RLock()
	matched := make([]scored, 0)
	for _, doc := range e.docs {
		if !passesFilters(&doc, q.Filters) {
			continue
		}
		score, ok := textScore(&doc, terms)
		if !ok {
			continue
		}
		matched = append(matched, scored{doc: doc, score: score * boost(&doc)})
	}
	e.mu.RUnlock()

	sortHits(matched, q.Sort)

	total := len(matched)
	start := min(max(q.From, 0), total)
	end := start + min(max(q.Size, 0), total-start)

	page := make([]domain.SearchDocument, 0, end-start)
	for _, h := range matched[start:end] {
		page = append(page, h.doc)
	}

	return &engine.Result{
		Documents: page,
		Total:     int64(total),
		Facets:    facets(matched, q.PriceBreakpoints),
	}, nil
}

func passesFilters(doc *domain.SearchDocument, f query.Filters) bool {
	if doc.Status != domain.StatusPublished || !doc.InStock {
		return false
	}
	if f.CategoryScoped && !slices.Contains(f.CategoryIDs, doc.Category.ID) {
		return false
	}
	if len(f.BrandIDs) > 0 && !slices.Contains(f.BrandIDs, doc.Brand.ID) {
		return false
	}
	if f.MinPrice != nil && doc.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && doc.Price > *f.MaxPrice {
		return false
	}
	for key, values := range f.Specs {
		if !intersects(doc.Specs[key], values) {
			return false
		}
	}
	return true
}

// textScore requires every term to match some text field and sums the best
// field weight per term. Empty text matches with a neutral score.
func textScore(doc *domain.SearchDocument, terms []string) (float64, bool) {
	if len(terms) == 0 {
		return 1, true
	}

	fields := fieldTokens(doc)
	var total float64
	for _, term := range terms {
		best := 0.0
		for i, f := range query.TextFields {
			if f.Weight > best && anyTokenMatches(fields[i], term) {
				best = f.Weight
			}
		}
		if best == 0 {
			return 0, false
		}
		total += best
	}
	return total, true
}

// fieldTokens tokenizes the text fields in query.TextFields order.
func fieldTokens(doc *domain.SearchDocument) [][]string {
	out := make([][]string, len(query.TextFields))
	for i, f := range query.TextFields {
		var text string
		switch f.Name {
		case "name":
			text = doc.Name
		case "brand.name":
			text = doc.Brand.Name
		case "specs_text":
			text = doc.SpecsText
		case "description":
			text = doc.Description
		case "category.name":
			text = doc.Category.Name
		}
		out[i] = strings.Fields(strings.ToLower(text))
	}
	return out
}

// anyTokenMatches mirrors a fuzzy match with prefix_length 1: the first rune
// must agree and the edit distance stays within query.Fuzziness(term).
func anyTokenMatches(tokens []string, term string) bool {
	maxEdits := query.Fuzziness(term)
	tr := []rune(term)
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,;:!?()\"'")
		if tok == term {
			return true
		}
		if maxEdits == 0 {
			continue
		}
		kr := []rune(tok)
		if len(kr) == 0 || kr[0] != tr[0] {
			continue
		}
		if levenshtein(kr, tr, maxEdits) <= maxEdits {
			return true
		}
	}
	return false
}

// levenshtein computes the edit distance of a and b, giving up early once
// every cell of a row exceeds limit.
func levenshtein(a, b []rune, limit int) int {
	if d := len(a) - len(b); d > limit || -d > limit {
		return limit + 1
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			rowMin = min(rowMin, cur[j])
		}
		if rowMin > limit {
			return limit + 1
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func boost(doc *domain.SearchDocument) float64 {
	b := 1.0
	if doc.InStock {
		b *= query.InStockBoost
	}
	if doc.Popularity > 0 {
		b *= query.PopularityBoost
	}
	return b
}

// sortHits orders hits by the query's sort criteria. Criteria always end on
// id, so the order is total.
func sortHits(hits []scored, criteria []query.SortField) {
	sort.SliceStable(hits, func(i, j int) bool {
		for _, c := range criteria {
			cmp := compareField(&hits[i], &hits[j], c.Field)
			if cmp == 0 {
				continue
			}
			if c.Order == domain.SortDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareField(a, b *scored, field string) int {
	switch field {
	case "_score":
		return cmp.Compare(a.score, b.score)
	case "price":
		return cmp.Compare(a.doc.Price, b.doc.Price)
	case "popularity":
		return cmp.Compare(a.doc.Popularity, b.doc.Popularity)
	case "rating":
		return cmp.Compare(a.doc.Rating, b.doc.Rating)
	case "name.keyword":
		return strings.Compare(a.doc.Name, b.doc.Name)
	case "created_at":
		return a.doc.CreatedAt.Compare(b.doc.CreatedAt)
	case "id":
		return strings.Compare(a.doc.ID, b.doc.ID)
	default:
		return 0
	}
}

func facets(hits []scored, breakpoints []int64) domain.Facets {
	out := engine.EmptyFacets()

	categories := newBucketCounter()
	brands := newBucketCounter()
	ranges := query.PriceRanges(breakpoints)
	rangeCounts := make([]int64, len(ranges))
	var sum int64

	for i, h := range hits {
		d := &h.doc
		categories.add(d.Category.ID, d.Category.Name)
		brands.add(d.Brand.ID, d.Brand.Name)

		for r, pr := range ranges {
			if d.Price >= pr.From && (pr.To == nil || d.Price < *pr.To) {
				rangeCounts[r]++
			}
		}

		if i == 0 || d.Price < out.PriceStats.Min {
			out.PriceStats.Min = d.Price
		}
		if i == 0 || d.Price > out.PriceStats.Max {
			out.PriceStats.Max = d.Price
		}
		sum += d.Price
	}

	out.Categories = categories.buckets()
	out.Brands = brands.buckets()
	for r, pr := range ranges {
		out.PriceRanges = append(out.PriceRanges, domain.PriceRangeBucket{From: pr.From, To: pr.To, Count: rangeCounts[r]})
	}
	out.PriceStats.Count = int64(len(hits))
	if len(hits) > 0 {
		out.PriceStats.Avg = float64(sum) / float64(len(hits))
	}
	return out
}

// bucketCounter counts documents per id, remembering the first label seen.
type bucketCounter struct {
	counts map[string]int64
	labels map[string]string
}

func newBucketCounter() *bucketCounter {
	return &bucketCounter{counts: make(map[string]int64), labels: make(map[string]string)}
}

func (b *bucketCounter) add(id, label string) {
	if id == "" {
		return
	}
	b.counts[id]++
	if _, ok := b.labels[id]; !ok {
		b.labels[id] = label
	}
}

func (b *bucketCounter) buckets() []domain.FacetBucket {
	out := make([]domain.FacetBucket, 0, len(b.counts))
	for id, n := range b.counts {
		out = append(out, domain.FacetBucket{Key: id, Label: b.labels[id], Count: n})
	}
	engine.SortBuckets(out)
	return out
}

// Suggest returns suggestion tokens completing prefix, taken from
// searchable documents ranked by popularity.
func (e *Engine) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	e.mu.RLock()
	candidates := make([]domain.SearchDocument, 0)
	for _, doc := range e.docs {
		if doc.Status == domain.StatusPublished && doc.InStock {
			candidates = append(candidates, doc)
		}
	}
	e.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Popularity != candidates[j].Popularity {
			return candidates[i].Popularity > candidates[j].Popularity
		}
		return candidates[i].ID < candidates[j].ID
	})

	set := engine.NewSuggestionSet(limit)
	for _, doc := range candidates {
		if !set.Add(engine.MatchSuggestions(prefix, doc.Suggest)...) {
			break
		}
	}
	return set.Items(), nil
}

// FilterOptions aggregates spec values, brands and prices of the
// searchable documents in categoryIDs.
func (e *Engine) FilterOptions(ctx context.Context, categoryIDs, specKeys []string) (*engine.FilterAggregates, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	var hits []scored
	for _, doc := range e.docs {
		if doc.Status == domain.StatusPublished && doc.InStock && slices.Contains(categoryIDs, doc.Category.ID) {
			hits = append(hits, scored{doc: doc})
		}
	}
	e.mu.RUnlock()

	values := make(map[string]map[string]struct{}, len(specKeys))
	for _, key := range specKeys {
		values[key] = make(map[string]struct{})
	}
	for _, h := range hits {
		for _, key := range specKeys {
			for _, v := range h.doc.Specs[key] {
				values[key][v] = struct{}{}
			}
		}
	}

	out := &engine.FilterAggregates{SpecValues: make(map[string][]string, len(specKeys))}
	for key, set := range values {
		list := make([]string, 0, len(set))
		for v := range set {
			list = append(list, v)
		}
		sort.Strings(list)
		out.SpecValues[key] = list
	}

	f := facets(hits, nil)
	out.Brands = f.Brands
	out.PriceStats = f.PriceStats
	return out, nil
}

func intersects(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

var _ engine.SearchEngine = (*Engine)(nil)
