package elasticsearch

// DefaultIndexName is the default Elasticsearch index for search documents.
const DefaultIndexName = "catalog_products"

// buildIndexMapping returns the index settings and mapping, including the
// Turkish analyzer and the edge n-gram autocomplete analyzer. Spec values
// are mapped as keywords through a dynamic template.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "turkish_analyzer": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "turkish_stop", "turkish_stemmer"]
        },
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase"]
        },
        "autocomplete_search": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      },
      "filter": {
        "turkish_stop": {
          "type": "stop",
          "stopwords": "_turkish_"
        },
        "turkish_stemmer": {
          "type": "stemmer",
          "language": "turkish"
        }
      }
    }
  },
  "mappings": {
    "dynamic_templates": [
      { "specs_as_keywords": { "path_match": "specs.*", "mapping": { "type": "keyword" } } }
    ],
    "properties": {
      "id":              { "type": "keyword" },
      "name":            { "type": "text", "analyzer": "turkish_analyzer", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
      "slug":            { "type": "keyword" },
      "description":     { "type": "text", "analyzer": "turkish_analyzer" },
      "brand": {
        "properties": {
          "id":   { "type": "keyword" },
          "name": { "type": "text", "analyzer": "turkish_analyzer", "fields": { "keyword": { "type": "keyword" } } }
        }
      },
      "category": {
        "properties": {
          "id":   { "type": "keyword" },
          "name": { "type": "text", "analyzer": "turkish_analyzer", "fields": { "keyword": { "type": "keyword" } } }
        }
      },
      "price":           { "type": "long" },
      "base_price":      { "type": "long" },
      "currency":        { "type": "keyword" },
      "in_stock":        { "type": "boolean" },
      "available_stock": { "type": "integer" },
      "popularity":      { "type": "float" },
      "rating":          { "type": "float" },
      "rating_count":    { "type": "integer" },
      "specs":           { "type": "object" },
      "specs_text":      { "type": "text", "analyzer": "turkish_analyzer" },
      "suggest":         { "type": "text", "fields": { "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "status":          { "type": "keyword" },
      "tags":            { "type": "keyword" },
      "image_url":       { "type": "keyword", "index": false },
      "created_at":      { "type": "date" },
      "updated_at":      { "type": "date" }
    }
  }
}`
}
