package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/utafrali/catalogsearch/internal/domain"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
)

// CategoryStore keeps the category forest in memory. It is safe for
// concurrent use.
type CategoryStore struct {
	mu       sync.RWMutex
	byID     map[string]domain.Category
	children map[string][]string
}

// NewCategoryStore creates a store holding categories.
func NewCategoryStore(categories ...domain.Category) *CategoryStore {
	s := &CategoryStore{
		byID:     make(map[string]domain.Category),
		children: make(map[string][]string),
	}
	for _, c := range categories {
		s.Upsert(c)
	}
	return s
}

// LoadCategoryFile reads a JSON array of categories.
func LoadCategoryFile(path string) (*CategoryStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category file: %w", err)
	}
	var categories []domain.Category
	if err := json.Unmarshal(raw, &categories); err != nil {
		return nil, fmt.Errorf("decode category file %s: %w", path, err)
	}
	return NewCategoryStore(categories...), nil
}

// Upsert adds or replaces a category, re-linking it under its parent.
func (s *CategoryStore) Upsert(c domain.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byID[c.ID]; ok && old.ParentID != nil {
		s.unlink(*old.ParentID, c.ID)
	}
	s.byID[c.ID] = c
	if c.ParentID != nil {
		s.children[*c.ParentID] = append(s.children[*c.ParentID], c.ID)
	}
}

func (s *CategoryStore) unlink(parentID, childID string) {
	kids := s.children[parentID]
	for i, id := range kids {
		if id == childID {
			s.children[parentID] = append(kids[:i:i], kids[i+1:]...)
			return
		}
	}
}

// GetByID returns a copy of the category.
func (s *CategoryStore) GetByID(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, apperrors.NotFound("category", id)
	}
	return &c, nil
}

// ListChildren returns the active direct children of parentIDs, ordered
// by id.
func (s *CategoryStore) ListChildren(ctx context.Context, parentIDs []string) ([]domain.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Category{}
	for _, pid := range parentIDs {
		for _, id := range s.children[pid] {
			if c := s.byID[id]; c.IsActive {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len returns the number of stored categories.
func (s *CategoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
