package domain

import "time"

// MinQueryRunes is the shortest search text worth sending to the index.
const MinQueryRunes = 2

// Sort keys accepted by search.
const (
	SortRelevance  = "relevance"
	SortPrice      = "price"
	SortPopularity = "popularity"
	SortRating     = "rating"
	SortName       = "name"
	SortCreatedAt  = "created_at"
)

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ValidSortKeys lists accepted sort keys.
func ValidSortKeys() []string {
	return []string{SortRelevance, SortPrice, SortPopularity, SortRating, SortName, SortCreatedAt}
}

// IsValidSort checks whether key is an accepted sort key.
func IsValidSort(key string) bool {
	for _, s := range ValidSortKeys() {
		if s == key {
			return true
		}
	}
	return false
}

// SearchRequest is a storefront search as received by the gateway.
type SearchRequest struct {
	Text        string              `json:"q,omitempty"`
	CategoryID  string              `json:"category_id,omitempty" validate:"omitempty,max=64"`
	BrandIDs    []string            `json:"brand_id,omitempty" validate:"max=50,dive,notblank"`
	MinPrice    *int64              `json:"min_price,omitempty" validate:"omitempty,gte=0"`
	MaxPrice    *int64              `json:"max_price,omitempty" validate:"omitempty,gte=0"`
	SpecFilters map[string][]string `json:"spec,omitempty"`
	SortKey     string              `json:"sort,omitempty" validate:"omitempty,oneof=relevance price popularity rating name created_at"`
	SortDir     string              `json:"order,omitempty" validate:"omitempty,oneof=asc desc"`
	Page        int                 `json:"page,omitempty"`
	Size        int                 `json:"size,omitempty"`
}

// ProductSummary is one search hit as returned to clients.
type ProductSummary struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Slug      string      `json:"slug"`
	Price     int64       `json:"price"`
	BasePrice int64       `json:"base_price"`
	Currency  string      `json:"currency"`
	ImageURL  string      `json:"image_url,omitempty"`
	Brand     BrandRef    `json:"brand"`
	Category  CategoryRef `json:"category"`
	Rating    float64     `json:"rating"`
	InStock   bool        `json:"in_stock"`
}

// FacetBucket is one value of a terms facet.
type FacetBucket struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Count int64  `json:"count"`
}

// PriceRangeBucket counts hits with From <= price < To. A nil To is open.
type PriceRangeBucket struct {
	From  int64  `json:"from"`
	To    *int64 `json:"to,omitempty"`
	Count int64  `json:"count"`
}

// PriceStats summarizes prices of the filtered set.
type PriceStats struct {
	Min   int64   `json:"min"`
	Max   int64   `json:"max"`
	Avg   float64 `json:"avg"`
	Count int64   `json:"count"`
}

// Facets are computed over the filtered result set.
type Facets struct {
	Categories  []FacetBucket      `json:"categories"`
	Brands      []FacetBucket      `json:"brands"`
	PriceRanges []PriceRangeBucket `json:"price_ranges"`
	PriceStats  PriceStats         `json:"price_stats"`
}

// SearchResponse is the shaped search result.
type SearchResponse struct {
	Products    []ProductSummary `json:"products"`
	Facets      Facets           `json:"facets"`
	Total       int64            `json:"total"`
	Page        int              `json:"page"`
	Size        int              `json:"size"`
	TotalPages  int              `json:"total_pages"`
	Suggestions []string         `json:"suggestions"`
}

// AutocompleteResponse lists completions for a prefix.
type AutocompleteResponse struct {
	Suggestions []string `json:"suggestions"`
}

// FilterField is a spec field with the values present in a subtree.
type FilterField struct {
	SpecField
	Values []string `json:"values"`
}

// FilterOptions describes what a storefront can filter a category by.
type FilterOptions struct {
	CategoryID string        `json:"category_id"`
	Fields     []FilterField `json:"fields"`
	Brands     []FacetBucket `json:"brands"`
	PriceStats PriceStats    `json:"price_stats"`
}

// Action is a catalog mutation kind.
type Action string

// Catalog mutation kinds.
const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// ParseAction validates a raw action.
func ParseAction(raw string) (Action, error) {
	switch a := Action(raw); a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return a, nil
	default:
		return "", ErrInvalidAction
	}
}

// ChangeNotification is the webhook payload sent by the catalog.
type ChangeNotification struct {
	Action  string          `json:"action" validate:"required,oneof=created updated deleted"`
	Product *CatalogProduct `json:"product" validate:"required"`
}

// Outcome is what a single-document sync did.
type Outcome string

// Sync outcomes.
const (
	OutcomeIndexed Outcome = "indexed"
	OutcomeRemoved Outcome = "removed"
	OutcomeFailed  Outcome = "failed"
)

// NotifyAck acknowledges a change notification.
type NotifyAck struct {
	Action  Action  `json:"action"`
	ID      string  `json:"id"`
	Outcome Outcome `json:"outcome"`
}

// BatchReport summarizes one bulk write of a resync.
type BatchReport struct {
	Index     int      `json:"index"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// ResyncReport summarizes a resync run.
type ResyncReport struct {
	RunID       string        `json:"run_id"`
	ReplaceAll  bool          `json:"replace_all"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	Pages       int           `json:"pages"`
	Total       int           `json:"total"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Removed     int           `json:"removed"`
	SuccessRate float64       `json:"success_rate"`
	Batches     []BatchReport `json:"batches"`
	Error       string        `json:"error,omitempty"`
}

// Finalize fills derived fields once the run has ended.
func (r *ResyncReport) Finalize(end time.Time) {
	r.Duration = end.Sub(r.StartedAt)
	attempted := r.Succeeded + r.Failed
	if attempted == 0 {
		r.SuccessRate = 1
		return
	}
	r.SuccessRate = float64(r.Succeeded) / float64(attempted)
}
