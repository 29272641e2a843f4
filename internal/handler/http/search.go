package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/service"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
	"github.com/utafrali/catalogsearch/pkg/httputil"
	"github.com/utafrali/catalogsearch/pkg/pagination"
)

// specParamPrefix marks spec filters in the query string: spec.color=red,blue.
const specParamPrefix = "spec."

// SearchHandler handles HTTP requests for the storefront read endpoints.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// Search handles GET /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.Search(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

// Autocomplete handles GET /api/v1/search/autocomplete
func (h *SearchHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	limit, err := optionalInt(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.Autocomplete(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

// Filters handles GET /api/v1/search/filters
func (h *SearchHandler) Filters(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.FilterOptions(r.Context(), r.URL.Query().Get("category_id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

// parseSearchRequest maps the query string to a SearchRequest. Repeated
// and comma-separated list values are both accepted.
func parseSearchRequest(r *http.Request) (*domain.SearchRequest, error) {
	q := r.URL.Query()

	paging, err := pagination.FromRequest(r, 0, 0)
	if err != nil {
		return nil, err
	}

	req := &domain.SearchRequest{
		Text:       q.Get("q"),
		CategoryID: strings.TrimSpace(q.Get("category_id")),
		BrandIDs:   splitList(q["brand_id"]),
		SortKey:    strings.ToLower(strings.TrimSpace(q.Get("sort"))),
		SortDir:    strings.ToLower(strings.TrimSpace(q.Get("order"))),
		Page:       paging.Page,
		Size:       paging.Size,
	}

	if req.MinPrice, err = optionalPrice(q.Get("min_price"), "min_price"); err != nil {
		return nil, err
	}
	if req.MaxPrice, err = optionalPrice(q.Get("max_price"), "max_price"); err != nil {
		return nil, err
	}

	for key, values := range q {
		if !strings.HasPrefix(key, specParamPrefix) {
			continue
		}
		name := strings.TrimPrefix(key, specParamPrefix)
		if name == "" {
			return nil, apperrors.InvalidInput("spec filter name must not be empty")
		}
		list := splitList(values)
		if len(list) == 0 {
			continue
		}
		if req.SpecFilters == nil {
			req.SpecFilters = make(map[string][]string)
		}
		req.SpecFilters[name] = append(req.SpecFilters[name], list...)
	}

	return req, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func optionalPrice(raw, name string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apperrors.InvalidInputf("%s must be a whole number of minor units", name)
	}
	if v < 0 {
		return nil, apperrors.InvalidInputf("%s must not be negative", name)
	}
	return &v, nil
}

func optionalInt(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidInputf("%s must be an integer", name)
	}
	return v, nil
}
