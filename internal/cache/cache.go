package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"time"
)

// KeyPrefix namespaces every search cache entry.
const KeyPrefix = "search:"

// AllKeys matches every entry written under KeyPrefix.
const AllKeys = KeyPrefix + "*"

// Cache operations.
const (
	OpSearch        = "search"
	OpAutocomplete  = "autocomplete"
	OpFilterOptions = "filters"
)

// textParams are free-text parameters compared case-insensitively.
var textParams = map[string]bool{"q": true, "prefix": true}

// Cache stores serialized responses. Implementations swallow their own
// failures: a broken cache behaves like an empty one.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, pattern string)
}

// Key derives the cache key of op for params. Parameters are canonicalized
// first (empty values dropped, lists sorted, text trimmed and lower-cased)
// so equivalent requests share an entry.
func Key(op string, params map[string]any) string {
	canonical, err := json.Marshal(canonicalize(params))
	if err != nil {
		canonical = []byte(err.Error())
	}
	sum := sha256.Sum256(canonical)
	return KeyPrefix + op + ":" + hex.EncodeToString(sum[:])
}

func canonicalize(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		cv, ok := canonicalValue(v)
		if !ok {
			continue
		}
		if s, isString := cv.(string); isString && textParams[k] {
			cv = strings.ToLower(s)
		}
		out[k] = cv
	}
	return out
}

// canonicalValue normalizes v and reports whether it carries information.
func canonicalValue(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case string:
		val = strings.TrimSpace(val)
		return val, val != ""
	case []string:
		list := make([]string, 0, len(val))
		for _, s := range val {
			if s = strings.TrimSpace(s); s != "" {
				list = append(list, s)
			}
		}
		if len(list) == 0 {
			return nil, false
		}
		sort.Strings(list)
		return list, true
	case map[string][]string:
		m := make(map[string]any, len(val))
		for k, list := range val {
			if cv, ok := canonicalValue(list); ok {
				m[strings.ToLower(strings.TrimSpace(k))] = cv
			}
		}
		return m, len(m) > 0
	case map[string]any:
		m := canonicalize(val)
		return m, len(m) > 0
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		return canonicalValue(rv.Elem().Interface())
	}
	return v, true
}

// InvalidateAll drops every search cache entry.
func InvalidateAll(ctx context.Context, c Cache) {
	c.Invalidate(ctx, AllKeys)
}

// GetJSON decodes a cached entry into dst. Undecodable entries count as a
// miss.
func GetJSON(ctx context.Context, c Cache, key string, dst any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// SetJSON encodes v and stores it. Encoding failures are logged and dropped.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration, logger *slog.Logger) {
	raw, err := json.Marshal(v)
	if err != nil {
		logger.WarnContext(ctx, "cache encode failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	c.Set(ctx, key, raw, ttl)
}

// Noop is the cache used when caching is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (Noop) Set(context.Context, string, []byte, time.Duration) {}
func (Noop) Invalidate(context.Context, string)                 {}
