package domain

import "time"

// ProductStatus is the catalog lifecycle state of a product.
type ProductStatus string

// Product statuses.
const (
	StatusDraft        ProductStatus = "draft"
	StatusPublished    ProductStatus = "published"
	StatusDiscontinued ProductStatus = "discontinued"
	StatusComingSoon   ProductStatus = "coming_soon"
)

// BrandRef is the denormalized brand carried by products and documents.
type BrandRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CategoryRef is the denormalized category carried by products and documents.
type CategoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProductImage references an image of a product.
type ProductImage struct {
	URL       string `json:"url"`
	IsPrimary bool   `json:"is_primary"`
	SortOrder int    `json:"sort_order"`
}

// CatalogProduct is a product as owned by the catalog. Prices are in minor
// currency units.
type CatalogProduct struct {
	ID             string         `json:"id" validate:"notblank"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	Description    string         `json:"description"`
	Brand          BrandRef       `json:"brand"`
	Category       CategoryRef    `json:"category"`
	BasePrice      int64          `json:"base_price"`
	SalePrice      *int64         `json:"sale_price,omitempty"`
	Currency       string         `json:"currency"`
	Stock          int            `json:"stock"`
	ReservedStock  int            `json:"reserved_stock"`
	Status         ProductStatus  `json:"status"`
	IsActive       bool           `json:"is_active"`
	Specifications map[string]any `json:"specifications,omitempty"`
	Images         []ProductImage `json:"images,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Popularity     float64        `json:"popularity"`
	Rating         float64        `json:"rating"`
	RatingCount    int            `json:"rating_count"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// AvailableStock is stock not held by reservations.
func (p *CatalogProduct) AvailableStock() int {
	return p.Stock - p.ReservedStock
}

// Searchable reports whether the product belongs in the search index.
func (p *CatalogProduct) Searchable() bool {
	return p.IsActive && p.Status == StatusPublished && p.AvailableStock() > 0
}

// EffectivePrice is the sale price when it undercuts the base price.
func (p *CatalogProduct) EffectivePrice() int64 {
	if p.SalePrice != nil && *p.SalePrice > 0 && *p.SalePrice < p.BasePrice {
		return *p.SalePrice
	}
	return p.BasePrice
}
