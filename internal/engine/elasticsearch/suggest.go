package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/utafrali/catalogsearch/internal/engine"
	"github.com/utafrali/catalogsearch/internal/query"
)

// esSuggestResponse is the structure used to decode autocomplete lookups.
type esSuggestResponse struct {
	Hits struct {
		Hits []struct {
			Source struct {
				Name    string   `json:"name"`
				Suggest []string `json:"suggest"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// filterOptionsResponse decodes the aggregation-only filter lookup.
type filterOptionsResponse struct {
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

// Suggest returns autocomplete suggestions for prefix. It matches the
// edge n-gram suggest field of published, in-stock documents and keeps the
// tokens of each hit that complete the prefix, in rank order.
func (e *Engine) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	var esResp esSuggestResponse
	if err := e.search(ctx, "elasticsearch suggest", query.SuggestDSL(prefix, limit), &esResp); err != nil {
		return nil, err
	}

	set := engine.NewSuggestionSet(limit)
	for _, hit := range esResp.Hits.Hits {
		tokens := hit.Source.Suggest
		if len(tokens) == 0 {
			tokens = []string{hit.Source.Name}
		}
		if !set.Add(engine.MatchSuggestions(prefix, tokens)...) {
			break
		}
	}
	return set.Items(), nil
}

// FilterOptions aggregates spec values, brands and price statistics of the
// searchable documents in categoryIDs.
func (e *Engine) FilterOptions(ctx context.Context, categoryIDs, specKeys []string) (*engine.FilterAggregates, error) {
	var esResp filterOptionsResponse
	if err := e.search(ctx, "elasticsearch filter options", query.FilterOptionsDSL(categoryIDs, specKeys), &esResp); err != nil {
		return nil, err
	}

	out := &engine.FilterAggregates{SpecValues: make(map[string][]string, len(specKeys))}
	for _, key := range specKeys {
		buckets, err := decodeTerms(esResp.Aggregations, query.SpecValuesAgg(key))
		if err != nil {
			return nil, fmt.Errorf("elasticsearch filter options: %w", err)
		}
		values := make([]string, 0, len(buckets))
		for _, b := range buckets {
			values = append(values, b.Key)
		}
		out.SpecValues[key] = values
	}

	var err error
	if out.Brands, err = decodeTerms(esResp.Aggregations, query.AggBrands); err != nil {
		return nil, fmt.Errorf("elasticsearch filter options: %w", err)
	}
	if out.PriceStats, err = decodeStats(esResp.Aggregations, query.AggPriceStats); err != nil {
		return nil, fmt.Errorf("elasticsearch filter options: %w", err)
	}
	return out, nil
}
