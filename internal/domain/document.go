package domain

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/utafrali/catalogsearch/pkg/slug"
)

// SearchDocument is the index projection of a CatalogProduct.
type SearchDocument struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Slug           string              `json:"slug"`
	Description    string              `json:"description"`
	Brand          BrandRef            `json:"brand"`
	Category       CategoryRef         `json:"category"`
	Price          int64               `json:"price"`
	BasePrice      int64               `json:"base_price"`
	Currency       string              `json:"currency"`
	InStock        bool                `json:"in_stock"`
	AvailableStock int                 `json:"available_stock"`
	Popularity     float64             `json:"popularity"`
	Rating         float64             `json:"rating"`
	RatingCount    int                 `json:"rating_count"`
	Specs          map[string][]string `json:"specs,omitempty"`
	SpecsText      string              `json:"specs_text"`
	Suggest        []string            `json:"suggest"`
	Status         ProductStatus       `json:"status"`
	Tags           []string            `json:"tags"`
	ImageURL       string              `json:"image_url,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Project derives the search document for p. It reads nothing but p, so
// projecting the same product twice yields equal documents.
func Project(p CatalogProduct) SearchDocument {
	specs := normalizeSpecs(p.Specifications)
	available := p.AvailableStock()

	return SearchDocument{
		ID:             p.ID,
		Name:           strings.TrimSpace(p.Name),
		Slug:           productSlug(p),
		Description:    p.Description,
		Brand:          p.Brand,
		Category:       p.Category,
		Price:          p.EffectivePrice(),
		BasePrice:      p.BasePrice,
		Currency:       p.Currency,
		InStock:        available > 0,
		AvailableStock: available,
		Popularity:     p.Popularity,
		Rating:         p.Rating,
		RatingCount:    p.RatingCount,
		Specs:          specs,
		SpecsText:      specsText(specs),
		Suggest:        suggestTokens(p),
		Status:         p.Status,
		Tags:           sortedUnique(p.Tags),
		ImageURL:       primaryImage(p.Images),
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}

// productSlug falls back to a slug of the name for records exported without
// one.
func productSlug(p CatalogProduct) string {
	if s := strings.TrimSpace(p.Slug); s != "" {
		return s
	}
	return slug.Generate(p.Name)
}

// IsIndexableImageURL accepts absolute http(s) URLs only. Inline data: URIs
// carry whole base64 payloads and must never reach the index.
func IsIndexableImageURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(strings.ToLower(raw), "data:") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// primaryImage picks the primary indexable image, falling back to the
// lowest sort order.
func primaryImage(images []ProductImage) string {
	best := -1
	for i, img := range images {
		if !IsIndexableImageURL(img.URL) {
			continue
		}
		switch {
		case best < 0:
			best = i
		case img.IsPrimary && !images[best].IsPrimary:
			best = i
		case img.IsPrimary == images[best].IsPrimary && img.SortOrder < images[best].SortOrder:
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return strings.TrimSpace(images[best].URL)
}

// normalizeSpecs lower-cases keys into registry form and renders every
// value as sorted keyword strings.
func normalizeSpecs(in map[string]any) map[string][]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		key := slug.Key(k)
		if key == "" {
			continue
		}
		values := specValues(v)
		if len(values) == 0 {
			continue
		}
		out[key] = sortedUnique(append(out[key], values...))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func specValues(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		if s == "" {
			return nil
		}
		return []string{s}
	case bool:
		return []string{strconv.FormatBool(val)}
	case float64:
		return []string{strconv.FormatFloat(val, 'f', -1, 64)}
	case float32:
		return []string{strconv.FormatFloat(float64(val), 'f', -1, 32)}
	case int:
		return []string{strconv.Itoa(val)}
	case int64:
		return []string{strconv.FormatInt(val, 10)}
	case []string:
		var out []string
		for _, s := range val {
			out = append(out, specValues(s)...)
		}
		return out
	case []any:
		var out []string
		for _, item := range val {
			out = append(out, specValues(item)...)
		}
		return out
	default:
		return specValues(fmt.Sprint(val))
	}
}

// specsText renders "key value" pairs in key order for full-text matching.
func specsText(specs map[string][]string) string {
	if len(specs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(specs))
	for k := range specs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.ReplaceAll(k, "_", " "))
		for _, v := range specs[k] {
			b.WriteByte(' ')
			b.WriteString(v)
		}
	}
	return b.String()
}

// suggestTokens lists autocomplete inputs: the name first, then brand,
// category and tags.
func suggestTokens(p CatalogProduct) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}

	add(p.Name)
	add(p.Brand.Name)
	add(p.Category.Name)
	for _, t := range sortedUnique(p.Tags) {
		add(t)
	}
	return out
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return []string{}
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
