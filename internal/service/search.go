package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/utafrali/catalogsearch/internal/cache"
	"github.com/utafrali/catalogsearch/internal/category"
	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	"github.com/utafrali/catalogsearch/internal/query"
	"github.com/utafrali/catalogsearch/internal/syncer"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
	"github.com/utafrali/catalogsearch/pkg/logger"
	"github.com/utafrali/catalogsearch/pkg/pagination"
	"github.com/utafrali/catalogsearch/pkg/validator"
)

// Autocomplete limits.
const (
	DefaultSuggestLimit = 10
	MaxSuggestLimit     = 20
)

// maxKeywordSuggestions bounds the keywords returned with a search.
const maxKeywordSuggestions = 5

// maxCategoryDepth bounds the parent walk when looking up spec fields.
const maxCategoryDepth = 16

const unavailableMessage = "search is temporarily unavailable"

// Config holds the gateway timeouts and cache lifetimes.
type Config struct {
	SearchTimeout time.Duration
	SearchTTL     time.Duration
	AggregateTTL  time.Duration
}

// SearchService serves storefront reads and applies catalog change
// notifications.
type SearchService struct {
	engine   engine.SearchEngine
	resolver *category.Resolver
	builder  *query.Builder
	cache    cache.Cache
	syncer   *syncer.Syncer
	cfg      Config
	logger   *slog.Logger
}

// NewSearchService creates a new search service. A nil cache disables
// caching.
func NewSearchService(
	eng engine.SearchEngine,
	resolver *category.Resolver,
	builder *query.Builder,
	c cache.Cache,
	idx *syncer.Syncer,
	cfg Config,
	logger *slog.Logger,
) *SearchService {
	if c == nil {
		c = cache.Noop{}
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 5 * time.Second
	}
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = 30 * time.Second
	}
	if cfg.AggregateTTL <= 0 {
		cfg.AggregateTTL = 15 * time.Minute
	}
	return &SearchService{
		engine:   eng,
		resolver: resolver,
		builder:  builder,
		cache:    c,
		syncer:   idx,
		cfg:      cfg,
		logger:   logger,
	}
}

// Search runs a storefront search. Text of a single character returns an
// empty result without touching any backend.
func (s *SearchService) Search(ctx context.Context, req *domain.SearchRequest) (*domain.SearchResponse, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(req.Text)
	paging, err := s.builder.Paging(req.Page, req.Size)
	if err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(text); n > 0 && n < domain.MinQueryRunes {
		return emptyResponse(paging), nil
	}

	key := cache.Key(cache.OpSearch, map[string]any{
		"q":         text,
		"category":  req.CategoryID,
		"brand":     req.BrandIDs,
		"min_price": req.MinPrice,
		"max_price": req.MaxPrice,
		"spec":      req.SpecFilters,
		"sort":      req.SortKey,
		"order":     req.SortDir,
		"page":      paging.Page,
		"size":      paging.Size,
	})
	var cached domain.SearchResponse
	if cache.GetJSON(ctx, s.cache, key, &cached) {
		return &cached, nil
	}

	scope, degraded := s.resolver.ScopeIDs(ctx, req.CategoryID)

	q, err := s.builder.Build(query.Params{
		Text:           text,
		Page:           paging.Page,
		Size:           paging.Size,
		CategoryScoped: req.CategoryID != "",
		CategoryIDs:    scope,
		BrandIDs:       req.BrandIDs,
		MinPrice:       req.MinPrice,
		MaxPrice:       req.MaxPrice,
		SpecFilters:    req.SpecFilters,
		SortKey:        req.SortKey,
		SortDir:        req.SortDir,
	})
	if err != nil {
		if errors.Is(err, domain.ErrQueryTooShort) {
			return emptyResponse(paging), nil
		}
		return nil, err
	}

	resp := emptyResponse(paging)
	if !q.MatchesNothing() {
		searchCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
		result, err := s.engine.Search(searchCtx, q)
		cancel()
		if err != nil {
			return nil, s.unavailable(ctx, "search", err)
		}
		resp = shape(result, q, paging)
	}

	logger.WithContext(ctx, s.logger).DebugContext(ctx, "search executed",
		slog.String("query", text),
		slog.Int64("total", resp.Total),
		slog.Int("page", resp.Page),
	)

	// A degraded scope is served but not cached.
	if !degraded {
		cache.SetJSON(ctx, s.cache, key, resp, s.cfg.SearchTTL, s.logger)
	}
	return resp, nil
}

// Autocomplete completes prefix from searchable documents. Prefixes shorter
// than two characters yield no suggestions.
func (s *SearchService) Autocomplete(ctx context.Context, prefix string, limit int) (*domain.AutocompleteResponse, error) {
	prefix = strings.TrimSpace(prefix)
	if utf8.RuneCountInString(prefix) < domain.MinQueryRunes {
		return &domain.AutocompleteResponse{Suggestions: []string{}}, nil
	}
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	limit = min(limit, MaxSuggestLimit)

	key := cache.Key(cache.OpAutocomplete, map[string]any{"prefix": prefix, "limit": limit})
	var cached domain.AutocompleteResponse
	if cache.GetJSON(ctx, s.cache, key, &cached) {
		return &cached, nil
	}

	suggestCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
	defer cancel()
	suggestions, err := s.engine.Suggest(suggestCtx, prefix, limit)
	if err != nil {
		return nil, s.unavailable(ctx, "autocomplete", err)
	}
	if suggestions == nil {
		suggestions = []string{}
	}

	resp := &domain.AutocompleteResponse{Suggestions: suggestions}
	cache.SetJSON(ctx, s.cache, key, resp, s.cfg.SearchTTL, s.logger)
	return resp, nil
}

// FilterOptions lists the spec fields a category can be filtered by, with
// the values present in its subtree, plus brands and price statistics.
// Fields come from the nearest ancestor registered as a component type.
func (s *SearchService) FilterOptions(ctx context.Context, categoryID string) (*domain.FilterOptions, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return nil, apperrors.InvalidInput("category_id is required")
	}

	key := cache.Key(cache.OpFilterOptions, map[string]any{"category": categoryID})
	var cached domain.FilterOptions
	if cache.GetJSON(ctx, s.cache, key, &cached) {
		return &cached, nil
	}

	fields, err := s.specFields(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	resp := &domain.FilterOptions{
		CategoryID: categoryID,
		Fields:     make([]domain.FilterField, 0, len(fields)),
		Brands:     []domain.FacetBucket{},
	}

	scope, degraded := s.resolver.ScopeIDs(ctx, categoryID)
	values := map[string][]string{}
	if len(scope) > 0 {
		keys := make([]string, 0, len(fields))
		for _, f := range fields {
			keys = append(keys, f.Key)
		}

		aggCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
		agg, err := s.engine.FilterOptions(aggCtx, scope, keys)
		cancel()
		if err != nil {
			return nil, s.unavailable(ctx, "filter options", err)
		}
		values = agg.SpecValues
		if agg.Brands != nil {
			resp.Brands = agg.Brands
		}
		resp.PriceStats = agg.PriceStats
	}

	for _, f := range fields {
		v := values[f.Key]
		if v == nil {
			v = []string{}
		}
		resp.Fields = append(resp.Fields, domain.FilterField{SpecField: f, Values: v})
	}

	if !degraded {
		cache.SetJSON(ctx, s.cache, key, resp, s.cfg.AggregateTTL, s.logger)
	}
	return resp, nil
}

// specFields walks from the category up its ancestors until a slug with
// registered spec fields is found.
func (s *SearchService) specFields(ctx context.Context, categoryID string) ([]domain.SpecField, error) {
	id := categoryID
	for depth := 0; depth < maxCategoryDepth && id != ""; depth++ {
		c, err := s.resolver.Category(ctx, id)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				if depth == 0 {
					return nil, err
				}
				return []domain.SpecField{}, nil
			}
			return nil, apperrors.ServiceUnavailable("CATEGORY_UNAVAILABLE", "category lookup is temporarily unavailable", err)
		}
		if fields := domain.SpecFieldsFor(c.Slug); fields != nil {
			return fields, nil
		}
		if c.IsRoot() {
			break
		}
		id = *c.ParentID
	}
	return []domain.SpecField{}, nil
}

// Notify applies a catalog change notification to the index. Index write
// failures are absorbed; the acknowledgment reports outcome "failed".
func (s *SearchService) Notify(ctx context.Context, n *domain.ChangeNotification) (*domain.NotifyAck, error) {
	if n == nil {
		return nil, apperrors.InvalidInput("notification body is required")
	}
	if n.Product != nil && strings.TrimSpace(n.Product.ID) == "" {
		return nil, missingProductID()
	}
	if err := validator.Validate(n); err != nil {
		return nil, err
	}
	action, err := domain.ParseAction(n.Action)
	if err != nil {
		return nil, &apperrors.AppError{
			Code:    "INVALID_ACTION",
			Message: err.Error(),
			Status:  http.StatusBadRequest,
			Err:     fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err),
		}
	}

	outcome := s.syncer.Notify(ctx, action, n.Product)

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "change notification applied",
		slog.String("action", string(action)),
		slog.String("product_id", n.Product.ID),
		slog.String("outcome", string(outcome)),
	)

	return &domain.NotifyAck{Action: action, ID: n.Product.ID, Outcome: outcome}, nil
}

func missingProductID() *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "MISSING_PRODUCT_ID",
		Message: domain.ErrMissingProductID.Error(),
		Status:  http.StatusBadRequest,
		Err:     fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, domain.ErrMissingProductID),
	}
}

// unavailable logs an engine failure and converts it to a 503. Reads fail
// closed: an engine error is never served as an empty result.
func (s *SearchService) unavailable(ctx context.Context, op string, err error) error {
	logger.WithContext(ctx, s.logger).ErrorContext(ctx, op+" failed",
		slog.String("error", err.Error()),
	)
	return apperrors.ServiceUnavailable("SEARCH_UNAVAILABLE", unavailableMessage,
		fmt.Errorf("%w: %s: %w", domain.ErrSearchUnavailable, op, err))
}

func emptyResponse(p pagination.Params) *domain.SearchResponse {
	return &domain.SearchResponse{
		Products:    []domain.ProductSummary{},
		Facets:      engine.EmptyFacets(),
		Page:        p.Page,
		Size:        p.Size,
		Suggestions: []string{},
	}
}

func shape(result *engine.Result, q *query.Query, p pagination.Params) *domain.SearchResponse {
	resp := emptyResponse(p)
	resp.Total = result.Total
	resp.TotalPages = pagination.TotalPages(result.Total, p.Size)
	resp.Facets = result.Facets
	if resp.Facets.Categories == nil {
		resp.Facets.Categories = []domain.FacetBucket{}
	}
	if resp.Facets.Brands == nil {
		resp.Facets.Brands = []domain.FacetBucket{}
	}
	if resp.Facets.PriceRanges == nil {
		resp.Facets.PriceRanges = []domain.PriceRangeBucket{}
	}

	for i := range result.Documents {
		d := &result.Documents[i]
		resp.Products = append(resp.Products, domain.ProductSummary{
			ID:        d.ID,
			Name:      d.Name,
			Slug:      d.Slug,
			Price:     d.Price,
			BasePrice: d.BasePrice,
			Currency:  d.Currency,
			ImageURL:  d.ImageURL,
			Brand:     d.Brand,
			Category:  d.Category,
			Rating:    d.Rating,
			InStock:   d.InStock,
		})
	}
	resp.Suggestions = keywordSuggestions(q.Text, result.Documents)
	return resp
}

// keywordSuggestions extracts frequent words from matched product names,
// excluding the words already searched for.
func keywordSuggestions(text string, docs []domain.SearchDocument) []string {
	searched := make(map[string]struct{})
	for _, w := range words(text) {
		searched[w] = struct{}{}
	}

	counts := make(map[string]int)
	for i := range docs {
		seen := make(map[string]struct{})
		for _, w := range words(docs[i].Name) {
			if _, ok := searched[w]; ok {
				continue
			}
			if utf8.RuneCountInString(w) < 3 || isNumeric(w) {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			counts[w]++
		}
	}

	out := make([]string, 0, len(counts))
	for w := range counts {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > maxKeywordSuggestions {
		out = out[:maxKeywordSuggestions]
	}
	return out
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
