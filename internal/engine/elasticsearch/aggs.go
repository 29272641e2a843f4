package elasticsearch

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	"github.com/utafrali/catalogsearch/internal/query"
)

type esTermsAgg struct {
	Buckets []struct {
		Key      any   `json:"key"`
		DocCount int64 `json:"doc_count"`
		Label    *struct {
			Buckets []struct {
				Key any `json:"key"`
			} `json:"buckets"`
		} `json:"label"`
	} `json:"buckets"`
}

type esRangeAgg struct {
	Buckets []struct {
		From     *float64 `json:"from"`
		To       *float64 `json:"to"`
		DocCount int64    `json:"doc_count"`
	} `json:"buckets"`
}

type esStatsAgg struct {
	Count int64    `json:"count"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Avg   *float64 `json:"avg"`
}

func decodeFacets(aggs map[string]json.RawMessage) (domain.Facets, error) {
	facets := engine.EmptyFacets()
	var err error

	if facets.Categories, err = decodeTerms(aggs, query.AggCategories); err != nil {
		return facets, err
	}
	if facets.Brands, err = decodeTerms(aggs, query.AggBrands); err != nil {
		return facets, err
	}

	if raw, ok := aggs[query.AggPriceRanges]; ok {
		var ranges esRangeAgg
		if err := json.Unmarshal(raw, &ranges); err != nil {
			return facets, fmt.Errorf("decode %s aggregation: %w", query.AggPriceRanges, err)
		}
		for _, b := range ranges.Buckets {
			bucket := domain.PriceRangeBucket{Count: b.DocCount}
			if b.From != nil {
				bucket.From = int64(math.Round(*b.From))
			}
			if b.To != nil {
				to := int64(math.Round(*b.To))
				bucket.To = &to
			}
			facets.PriceRanges = append(facets.PriceRanges, bucket)
		}
	}

	if facets.PriceStats, err = decodeStats(aggs, query.AggPriceStats); err != nil {
		return facets, err
	}
	return facets, nil
}

// decodeTerms reads a terms aggregation, taking each bucket's label from
// its one-bucket "label" sub-aggregation when present.
func decodeTerms(aggs map[string]json.RawMessage, name string) ([]domain.FacetBucket, error) {
	out := []domain.FacetBucket{}
	raw, ok := aggs[name]
	if !ok {
		return out, nil
	}

	var terms esTermsAgg
	if err := json.Unmarshal(raw, &terms); err != nil {
		return nil, fmt.Errorf("decode %s aggregation: %w", name, err)
	}
	for _, b := range terms.Buckets {
		bucket := domain.FacetBucket{Key: keyString(b.Key), Count: b.DocCount}
		if b.Label != nil && len(b.Label.Buckets) > 0 {
			bucket.Label = keyString(b.Label.Buckets[0].Key)
		}
		out = append(out, bucket)
	}
	return out, nil
}

func decodeStats(aggs map[string]json.RawMessage, name string) (domain.PriceStats, error) {
	var stats domain.PriceStats
	raw, ok := aggs[name]
	if !ok {
		return stats, nil
	}

	var s esStatsAgg
	if err := json.Unmarshal(raw, &s); err != nil {
		return stats, fmt.Errorf("decode %s aggregation: %w", name, err)
	}
	stats.Count = s.Count
	if s.Min != nil {
		stats.Min = int64(math.Round(*s.Min))
	}
	if s.Max != nil {
		stats.Max = int64(math.Round(*s.Max))
	}
	if s.Avg != nil {
		stats.Avg = *s.Avg
	}
	return stats, nil
}

// keyString renders a bucket key. Keyword keys arrive as strings; numeric
// and boolean keys as JSON numbers.
func keyString(k any) string {
	switch v := k.(type) {
	case string:
		return v
	case float64:
		if v == math.Trunc(v) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
