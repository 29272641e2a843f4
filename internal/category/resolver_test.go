package category

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/repository/memory"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func cat(id, parent string, active bool) domain.Category {
	c := domain.Category{ID: id, Name: id, Slug: id, IsActive: active}
	if parent != "" {
		c.ParentID = strPtr(parent)
	}
	return c
}

// deepTree is a five-level chain with a side branch whose middle node is
// inactive:
//
//	root -> l1 -> l2 -> l3 -> l4 -> l5
//	         \-> off (inactive) -> below
//	root -> other
func deepTree() *memory.CategoryStore {
	return memory.NewCategoryStore(
		cat("root", "", true),
		cat("l1", "root", true),
		cat("l2", "l1", true),
		cat("l3", "l2", true),
		cat("l4", "l3", true),
		cat("l5", "l4", true),
		cat("off", "l1", false),
		cat("below", "off", true),
		cat("other", "root", true),
	)
}

func TestResolver_DeepTreeSkipsInactiveSubtree(t *testing.T) {
	r := NewResolver(deepTree(), 0, newTestLogger())

	ids, err := r.DescendantIDs(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "l2", "l3", "l4", "l5", "other", "root"}, ids)
}

func TestResolver_Subtree(t *testing.T) {
	r := NewResolver(deepTree(), 0, newTestLogger())

	ids, err := r.DescendantIDs(context.Background(), "l3")
	require.NoError(t, err)
	assert.Equal(t, []string{"l3", "l4", "l5"}, ids)
}

func TestResolver_BranchingExample(t *testing.T) {
	store := memory.NewCategoryStore(
		cat("A", "", true),
		cat("B", "A", true),
		cat("C", "B", true),
		cat("D", "B", true),
	)
	r := NewResolver(store, 0, newTestLogger())

	ids, err := r.DescendantIDs(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, ids)

	leaf, err := r.DescendantIDs(context.Background(), "C")
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, leaf)
}

func TestResolver_UnknownCategoryIsEmpty(t *testing.T) {
	r := NewResolver(deepTree(), 0, newTestLogger())

	ids, err := r.DescendantIDs(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestResolver_InactiveCategoryIsEmpty(t *testing.T) {
	r := NewResolver(deepTree(), 0, newTestLogger())

	ids, err := r.DescendantIDs(context.Background(), "off")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestResolver_CycleTerminates(t *testing.T) {
	store := memory.NewCategoryStore(
		cat("x", "z", true),
		cat("y", "x", true),
		cat("z", "y", true),
	)
	r := NewResolver(store, 0, newTestLogger())

	ids, err := r.DescendantIDs(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, ids)
}

// failingStore fails every call.
type failingStore struct{}

func (failingStore) GetByID(context.Context, string) (*domain.Category, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) ListChildren(context.Context, []string) ([]domain.Category, error) {
	return nil, errors.New("connection refused")
}

func TestResolver_StoreFailure(t *testing.T) {
	r := NewResolver(failingStore{}, 0, newTestLogger())

	_, err := r.DescendantIDs(context.Background(), "root")
	require.Error(t, err)

	ids, degraded := r.ScopeIDs(context.Background(), "root")
	assert.Equal(t, []string{"root"}, ids)
	assert.True(t, degraded)
}

func TestResolver_ScopeIDsWithoutCategory(t *testing.T) {
	r := NewResolver(deepTree(), 0, newTestLogger())
	ids, degraded := r.ScopeIDs(context.Background(), "")
	assert.Nil(t, ids)
	assert.False(t, degraded)
}

func TestResolver_ScopeIDsComplete(t *testing.T) {
	r := NewResolver(deepTree(), 0, newTestLogger())
	ids, degraded := r.ScopeIDs(context.Background(), "root")
	assert.NotEmpty(t, ids)
	assert.Contains(t, ids, "root")
	assert.False(t, degraded)
}

// recursiveStore answers DescendantIDs natively, or fails it.
type recursiveStore struct {
	*memory.CategoryStore
	ids   []string
	err   error
	calls int
}

func (s *recursiveStore) DescendantIDs(context.Context, string) ([]string, error) {
	s.calls++
	return s.ids, s.err
}

func TestResolver_PrefersRecursiveStore(t *testing.T) {
	store := &recursiveStore{CategoryStore: deepTree(), ids: []string{"l2", "l1"}}
	r := NewResolver(store, 0, newTestLogger())

	ids, err := r.DescendantIDs(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, []string{"l1", "l2"}, ids)
}

func TestResolver_RecursiveFailureFallsBackToTraversal(t *testing.T) {
	store := &recursiveStore{CategoryStore: deepTree(), err: errors.New("syntax error")}
	r := NewResolver(store, 0, newTestLogger())

	ids, err := r.DescendantIDs(context.Background(), "l3")
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, []string{"l3", "l4", "l5"}, ids)
}

func TestResolver_Category(t *testing.T) {
	r := NewResolver(deepTree(), 0, newTestLogger())

	c, err := r.Category(context.Background(), "l2")
	require.NoError(t, err)
	assert.Equal(t, "l2", c.Slug)
}
