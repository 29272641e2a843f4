package category

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/utafrali/catalogsearch/internal/domain"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
	"github.com/utafrali/catalogsearch/pkg/logger"
)

// Store is the category lookup surface of the catalog database.
// GetByID returns an error matching apperrors.ErrNotFound for unknown ids.
// ListChildren returns the active direct children of any of parentIDs.
type Store interface {
	GetByID(ctx context.Context, id string) (*domain.Category, error)
	ListChildren(ctx context.Context, parentIDs []string) ([]domain.Category, error)
}

// RecursiveStore computes the active closure of a category natively.
// Unknown or inactive roots yield an empty result.
type RecursiveStore interface {
	Store
	DescendantIDs(ctx context.Context, id string) ([]string, error)
}

// Resolver expands a category into itself plus all active descendants.
type Resolver struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
}

// NewResolver creates a resolver. A positive timeout bounds each resolution.
func NewResolver(store Store, timeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, timeout: timeout, logger: logger}
}

// DescendantIDs returns categoryID and every category reachable from it
// through active children, sorted. An unknown or inactive category yields
// an empty slice and no error.
func (r *Resolver) DescendantIDs(ctx context.Context, categoryID string) ([]string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if rs, ok := r.store.(RecursiveStore); ok {
		ids, err := rs.DescendantIDs(ctx, categoryID)
		if err == nil {
			sort.Strings(ids)
			return ids, nil
		}
		logger.WithContext(ctx, r.logger).Warn("recursive category query failed, falling back to traversal",
			slog.String("category_id", categoryID),
			slog.String("error", err.Error()),
		)
	}

	return r.traverse(ctx, categoryID)
}

// traverse expands the frontier level by level until no unseen children
// remain. The visited set guards against cycles in malformed data.
func (r *Resolver) traverse(ctx context.Context, rootID string) ([]string, error) {
	root, err := r.store.GetByID(ctx, rootID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("get category %s: %w", rootID, err)
	}
	if !root.IsActive {
		return []string{}, nil
	}

	visited := map[string]struct{}{root.ID: {}}
	result := []string{root.ID}
	frontier := []string{root.ID}

	for len(frontier) > 0 {
		children, err := r.store.ListChildren(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("list children of %d categories: %w", len(frontier), err)
		}

		next := make([]string, 0, len(children))
		for _, c := range children {
			if !c.IsActive {
				continue
			}
			if _, seen := visited[c.ID]; seen {
				continue
			}
			visited[c.ID] = struct{}{}
			result = append(result, c.ID)
			next = append(next, c.ID)
		}
		frontier = next
	}

	sort.Strings(result)
	return result, nil
}

// ScopeIDs is DescendantIDs for request paths: a store failure degrades to
// the single category instead of failing the request, and degraded is true.
// An empty id means no category scope and yields nil.
func (r *Resolver) ScopeIDs(ctx context.Context, categoryID string) (ids []string, degraded bool) {
	if categoryID == "" {
		return nil, false
	}
	ids, err := r.DescendantIDs(ctx, categoryID)
	if err != nil {
		logger.WithContext(ctx, r.logger).Warn("category closure unavailable, scoping to the category itself",
			slog.String("category_id", categoryID),
			slog.String("error", err.Error()),
		)
		return []string{categoryID}, true
	}
	return ids, false
}

// Category looks up a single category.
func (r *Resolver) Category(ctx context.Context, id string) (*domain.Category, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.store.GetByID(ctx, id)
}
