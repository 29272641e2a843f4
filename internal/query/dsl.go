package query

import (
	"strconv"

	"github.com/utafrali/catalogsearch/internal/domain"
)

// Aggregation names shared by the engines.
const (
	AggCategories  = "categories"
	AggBrands      = "brands"
	AggPriceRanges = "price_ranges"
	AggPriceStats  = "price_stats"
	AggLabel       = "label"

	facetSize = 50
)

// PriceRange is one bucket boundary pair. A nil To is open-ended.
type PriceRange struct {
	From int64
	To   *int64
}

// PriceRanges turns ascending breakpoints into consecutive ranges, the last
// one open.
func PriceRanges(breakpoints []int64) []PriceRange {
	out := make([]PriceRange, 0, len(breakpoints))
	for i, from := range breakpoints {
		r := PriceRange{From: from}
		if i+1 < len(breakpoints) {
			to := breakpoints[i+1]
			r.To = &to
		}
		out = append(out, r)
	}
	return out
}

// DSL renders the Elasticsearch request body.
func (q *Query) DSL() map[string]any {
	body := map[string]any{
		"from":             q.From,
		"size":             q.Size,
		"track_total_hits": true,
		"query": map[string]any{
			"function_score": map[string]any{
				"query": map[string]any{
					"bool": map[string]any{
						"must":   []any{q.textClause()},
						"filter": q.filterClauses(),
					},
				},
				"functions":  boostFunctions(),
				"score_mode": "multiply",
				"boost_mode": "multiply",
			},
		},
		"sort": q.sortClause(),
		"aggs": facetAggs(q.PriceBreakpoints),
	}
	return body
}

// textClause requires every term to match in some text field, not
// necessarily the same one. Each term scores by its best field.
func (q *Query) textClause() map[string]any {
	terms := q.Terms()
	if len(terms) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}
	fields := make([]string, 0, len(TextFields))
	for _, f := range TextFields {
		fields = append(fields, f.Name+"^"+strconv.FormatFloat(f.Weight, 'f', -1, 64))
	}
	perTerm := make([]any, 0, len(terms))
	for _, term := range terms {
		perTerm = append(perTerm, map[string]any{
			"multi_match": map[string]any{
				"query":         term,
				"fields":        fields,
				"type":          "best_fields",
				"operator":      "and",
				"fuzziness":     autoFuzziness,
				"prefix_length": 1,
			},
		})
	}
	return map[string]any{"bool": map[string]any{"must": perTerm}}
}

func boostFunctions() []any {
	return []any{
		map[string]any{
			"filter": map[string]any{"term": map[string]any{"in_stock": true}},
			"weight": InStockBoost,
		},
		map[string]any{
			"filter": map[string]any{"range": map[string]any{"popularity": map[string]any{"gt": 0}}},
			"weight": PopularityBoost,
		},
	}
}

// filterClauses renders the hard filters. Published and in-stock are always
// required on top of the caller's filters.
func (q *Query) filterClauses() []any {
	f := q.Filters
	filters := []any{
		term("status", string(domain.StatusPublished)),
		term("in_stock", true),
	}

	if f.CategoryScoped {
		ids := f.CategoryIDs
		if ids == nil {
			ids = []string{}
		}
		filters = append(filters, map[string]any{"terms": map[string]any{"category.id": ids}})
	}

	if len(f.BrandIDs) > 0 {
		filters = append(filters, termOrTerms("brand.id", f.BrandIDs))
	}

	if f.MinPrice != nil || f.MaxPrice != nil {
		bounds := map[string]any{}
		if f.MinPrice != nil {
			bounds["gte"] = *f.MinPrice
		}
		if f.MaxPrice != nil {
			bounds["lte"] = *f.MaxPrice
		}
		filters = append(filters, map[string]any{"range": map[string]any{"price": bounds}})
	}

	for _, key := range sortedSpecKeys(f.Specs) {
		filters = append(filters, termOrTerms("specs."+key, f.Specs[key]))
	}

	return filters
}

func (q *Query) sortClause() []any {
	out := make([]any, 0, len(q.Sort))
	for _, s := range q.Sort {
		out = append(out, map[string]any{s.Field: map[string]any{"order": s.Order}})
	}
	return out
}

func facetAggs(breakpoints []int64) map[string]any {
	ranges := make([]any, 0, len(breakpoints))
	for _, r := range PriceRanges(breakpoints) {
		bucket := map[string]any{"from": r.From}
		if r.To != nil {
			bucket["to"] = *r.To
		}
		ranges = append(ranges, bucket)
	}

	return map[string]any{
		AggCategories: labelledTerms("category.id", "category.name.keyword"),
		AggBrands:     labelledTerms("brand.id", "brand.name.keyword"),
		AggPriceRanges: map[string]any{
			"range": map[string]any{"field": "price", "ranges": ranges},
		},
		AggPriceStats: map[string]any{
			"stats": map[string]any{"field": "price"},
		},
	}
}

// labelledTerms buckets by id and carries the display name as a one-bucket
// sub-aggregation.
func labelledTerms(idField, labelField string) map[string]any {
	return map[string]any{
		"terms": map[string]any{"field": idField, "size": facetSize},
		"aggs": map[string]any{
			AggLabel: map[string]any{"terms": map[string]any{"field": labelField, "size": 1}},
		},
	}
}

// SuggestDSL renders an autocomplete lookup over published, in-stock
// documents.
func SuggestDSL(prefix string, limit int) map[string]any {
	return map[string]any{
		"size":    limit * 3,
		"_source": []string{"name", "suggest"},
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{"match": map[string]any{
						"suggest.autocomplete": map[string]any{"query": prefix, "operator": "and"},
					}},
				},
				"filter": []any{
					term("status", string(domain.StatusPublished)),
					term("in_stock", true),
				},
			},
		},
		"sort": []any{
			map[string]any{"_score": map[string]any{"order": domain.SortDesc}},
			map[string]any{"popularity": map[string]any{"order": domain.SortDesc}},
		},
	}
}

// SpecValuesAgg is the aggregation name carrying the values of spec key.
func SpecValuesAgg(key string) string {
	return "spec_" + key
}

// FilterOptionsDSL renders a hits-free aggregation over the searchable
// documents of a category subtree: spec values per key, brands and price
// statistics.
func FilterOptionsDSL(categoryIDs []string, specKeys []string) map[string]any {
	if categoryIDs == nil {
		categoryIDs = []string{}
	}
	aggs := map[string]any{
		AggBrands:     labelledTerms("brand.id", "brand.name.keyword"),
		AggPriceStats: map[string]any{"stats": map[string]any{"field": "price"}},
	}
	for _, key := range specKeys {
		aggs[SpecValuesAgg(key)] = map[string]any{
			"terms": map[string]any{"field": "specs." + key, "size": facetSize, "order": map[string]any{"_key": domain.SortAsc}},
		}
	}

	return map[string]any{
		"size": 0,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					term("status", string(domain.StatusPublished)),
					term("in_stock", true),
					map[string]any{"terms": map[string]any{"category.id": categoryIDs}},
				},
			},
		},
		"aggs": aggs,
	}
}

func term(field string, value any) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

// termOrTerms is an exact match for one value and set membership for
// several.
func termOrTerms(field string, values []string) map[string]any {
	if len(values) == 1 {
		return term(field, values[0])
	}
	return map[string]any{"terms": map[string]any{field: values}}
}

func sortedSpecKeys(specs map[string][]string) []string {
	keys := make([]string, 0, len(specs))
	for k := range specs {
		keys = append(keys, k)
	}
	return uniqueSorted(keys)
}
