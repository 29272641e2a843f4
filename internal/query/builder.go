package query

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/utafrali/catalogsearch/internal/domain"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
	"github.com/utafrali/catalogsearch/pkg/pagination"
	"github.com/utafrali/catalogsearch/pkg/slug"
)

// Default query limits. DefaultMaxWindow matches Elasticsearch's
// index.max_result_window.
const (
	DefaultSize      = 20
	DefaultMax       = 100
	DefaultMaxWindow = 10000
)

// DefaultPriceBreakpoints are the price facet boundaries in minor units.
var DefaultPriceBreakpoints = []int64{0, 50000, 100000, 250000, 500000, 1000000}

// WeightedField is a text field and its relevance weight.
type WeightedField struct {
	Name   string
	Weight float64
}

// TextFields are the fields searched by free text, with their weights.
var TextFields = []WeightedField{
	{Name: "name", Weight: 3},
	{Name: "brand.name", Weight: 2},
	{Name: "specs_text", Weight: 1.5},
	{Name: "description", Weight: 1},
	{Name: "category.name", Weight: 2},
}

// Ranking boosts. They only reorder hits and never exclude any.
const (
	InStockBoost    = 2.0
	PopularityBoost = 1.5
)

// Params are the inputs of a product search.
type Params struct {
	Text string
	Page int
	Size int
	// CategoryScoped reports that a category was requested. CategoryIDs is
	// its closure; scoped with an empty closure matches nothing.
	CategoryScoped bool
	CategoryIDs    []string
	BrandIDs       []string
	MinPrice       *int64
	MaxPrice       *int64
	SpecFilters    map[string][]string
	SortKey        string
	SortDir        string
}

// Filters are the hard constraints of a query. They never affect scoring.
type Filters struct {
	CategoryScoped bool
	CategoryIDs    []string
	BrandIDs       []string
	MinPrice       *int64
	MaxPrice       *int64
	Specs          map[string][]string
}

// SortField is one sort criterion.
type SortField struct {
	Field string
	Order string
}

// Query is a built search. The Elasticsearch engine renders it with DSL; the
// memory engine evaluates it directly.
type Query struct {
	Text             string
	Page             int
	From             int
	Size             int
	SortKey          string
	SortDir          string
	Sort             []SortField
	Filters          Filters
	PriceBreakpoints []int64
}

// Terms splits the text into lowercase whitespace-separated terms.
func (q *Query) Terms() []string {
	return strings.Fields(strings.ToLower(q.Text))
}

// MatchesNothing reports a category scope whose closure is empty.
func (q *Query) MatchesNothing() bool {
	return q.Filters.CategoryScoped && len(q.Filters.CategoryIDs) == 0
}

// Config tunes a Builder.
type Config struct {
	DefaultSize      int
	MaxSize          int
	MaxWindow        int
	PriceBreakpoints []int64
}

// Builder turns search parameters into queries.
type Builder struct {
	defaultSize int
	maxSize     int
	maxWindow   int
	breakpoints []int64
}

// NewBuilder creates a builder, filling unset config with defaults.
func NewBuilder(cfg Config) *Builder {
	b := &Builder{
		defaultSize: cfg.DefaultSize,
		maxSize:     cfg.MaxSize,
		maxWindow:   cfg.MaxWindow,
		breakpoints: cfg.PriceBreakpoints,
	}
	if b.defaultSize <= 0 {
		b.defaultSize = DefaultSize
	}
	if b.maxSize <= 0 {
		b.maxSize = DefaultMax
	}
	if b.maxWindow <= 0 {
		b.maxWindow = DefaultMaxWindow
	}
	if len(b.breakpoints) == 0 {
		b.breakpoints = DefaultPriceBreakpoints
	}
	return b
}

// Build validates params and produces a query. Text of one rune (after
// trimming) yields domain.ErrQueryTooShort; unknown spec keys yield a
// 400 error matching domain.ErrUnknownSpecFilter.
func (b *Builder) Build(params Params) (*Query, error) {
	text := strings.TrimSpace(params.Text)
	if text != "" && utf8.RuneCountInString(text) < domain.MinQueryRunes {
		return nil, domain.ErrQueryTooShort
	}

	if params.MinPrice != nil && *params.MinPrice < 0 {
		return nil, apperrors.InvalidInput("min_price must not be negative")
	}
	if params.MaxPrice != nil && *params.MaxPrice < 0 {
		return nil, apperrors.InvalidInput("max_price must not be negative")
	}
	if params.MinPrice != nil && params.MaxPrice != nil && *params.MinPrice > *params.MaxPrice {
		return nil, apperrors.InvalidInput("min_price must not exceed max_price")
	}

	specs, err := normalizeSpecFilters(params.SpecFilters)
	if err != nil {
		return nil, err
	}

	sortKey, sortDir, err := resolveSort(params.SortKey, params.SortDir)
	if err != nil {
		return nil, err
	}

	page, err := b.Paging(params.Page, params.Size)
	if err != nil {
		return nil, err
	}

	var categoryIDs []string
	if params.CategoryScoped {
		categoryIDs = uniqueSorted(params.CategoryIDs)
	}

	return &Query{
		Text:    text,
		Page:    page.Page,
		From:    page.Offset,
		Size:    page.Size,
		SortKey: sortKey,
		SortDir: sortDir,
		Sort:    sortFields(sortKey, sortDir),
		Filters: Filters{
			CategoryScoped: params.CategoryScoped,
			CategoryIDs:    categoryIDs,
			BrandIDs:       uniqueSorted(params.BrandIDs),
			MinPrice:       params.MinPrice,
			MaxPrice:       params.MaxPrice,
			Specs:          specs,
		},
		PriceBreakpoints: b.breakpoints,
	}, nil
}

// PriceBreakpoints returns the configured price facet boundaries.
func (b *Builder) PriceBreakpoints() []int64 {
	return b.breakpoints
}

// Paging normalizes page and size with the builder's limits. A page ending
// past the result window is rejected as invalid input.
func (b *Builder) Paging(page, size int) (pagination.Params, error) {
	p := pagination.Normalize(page, size, b.defaultSize, b.maxSize)
	if !p.WithinWindow(b.maxWindow) {
		return pagination.Params{}, apperrors.InvalidInputf(
			"page %d with size %d is past the first %d results", p.Page, p.Size, b.maxWindow)
	}
	return p, nil
}

// UnknownSpecFilterError reports a spec filter key absent from the registry.
func UnknownSpecFilterError(key string) *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "UNKNOWN_SPEC_FILTER",
		Message: fmt.Sprintf("unknown specification filter %q", key),
		Status:  http.StatusBadRequest,
		Err:     domain.ErrUnknownSpecFilter,
	}
}

// normalizeSpecFilters brings keys and values into the form the projection
// indexes them in and rejects unregistered keys.
func normalizeSpecFilters(in map[string][]string) (map[string][]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(in))
	for rawKey, rawValues := range in {
		key := slug.Key(rawKey)
		if _, ok := domain.LookupSpecField(key); !ok {
			return nil, UnknownSpecFilterError(rawKey)
		}
		var values []string
		for _, v := range rawValues {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		out[key] = uniqueSorted(append(out[key], values...))
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// defaultDirection is desc for "higher is better" keys and asc otherwise.
func defaultDirection(key string) string {
	switch key {
	case domain.SortPrice, domain.SortName:
		return domain.SortAsc
	default:
		return domain.SortDesc
	}
}

func resolveSort(key, dir string) (string, string, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		key = domain.SortRelevance
	}
	if !domain.IsValidSort(key) {
		return "", "", apperrors.InvalidInputf("sort must be one of: %s", strings.Join(domain.ValidSortKeys(), ", "))
	}

	dir = strings.ToLower(strings.TrimSpace(dir))
	switch dir {
	case "":
		dir = defaultDirection(key)
	case domain.SortAsc, domain.SortDesc:
	default:
		return "", "", apperrors.InvalidInput("order must be asc or desc")
	}
	return key, dir, nil
}

var sortFieldNames = map[string]string{
	domain.SortPrice:      "price",
	domain.SortPopularity: "popularity",
	domain.SortRating:     "rating",
	domain.SortName:       "name.keyword",
	domain.SortCreatedAt:  "created_at",
}

// sortFields renders the sort criteria. Every sort ends on id so equal
// scores paginate stably.
func sortFields(key, dir string) []SortField {
	if key == domain.SortRelevance {
		return []SortField{
			{Field: "_score", Order: dir},
			{Field: "id", Order: domain.SortAsc},
		}
	}
	return []SortField{
		{Field: sortFieldNames[key], Order: dir},
		{Field: "_score", Order: domain.SortDesc},
		{Field: "id", Order: domain.SortAsc},
	}
}

func uniqueSorted(in []string) []string {
	if in == nil {
		return nil
	}
	set := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := set[s]; ok {
			continue
		}
		set[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
