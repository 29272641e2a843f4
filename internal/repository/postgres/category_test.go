package postgres

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogsearch/pkg/database"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return mock
}

func strPtr(s string) *string { return &s }

var categoryCols = []string{"id", "name", "slug", "parent_id", "level", "is_active"}

func TestCategoryRepository_GetByID(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	mock.ExpectQuery(`FROM categories WHERE id = \$1`).
		WithArgs("cat-2").
		WillReturnRows(pgxmock.NewRows(categoryCols).
			AddRow("cat-2", "Phones", "phones", strPtr("cat-1"), 1, true))

	repo := NewCategoryRepository(mock)
	c, err := repo.GetByID(context.Background(), "cat-2")
	require.NoError(t, err)
	assert.Equal(t, "Phones", c.Name)
	require.NotNil(t, c.ParentID)
	assert.Equal(t, "cat-1", *c.ParentID)
	assert.True(t, c.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	mock.ExpectQuery(`FROM categories WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(categoryCols))

	repo := NewCategoryRepository(mock)
	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_GetByID_DBError(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	mock.ExpectQuery(`FROM categories WHERE id = \$1`).
		WithArgs("cat-1").
		WillReturnError(errors.New("connection reset"))

	repo := NewCategoryRepository(mock)
	_, err := repo.GetByID(context.Background(), "cat-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "get category")
}

func TestCategoryRepository_ListChildren(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	parents := []string{"cat-1", "cat-2"}
	mock.ExpectQuery(`parent_id = ANY\(\$1\) AND is_active = true`).
		WithArgs(parents).
		WillReturnRows(pgxmock.NewRows(categoryCols).
			AddRow("cat-3", "Android", "android", strPtr("cat-2"), 2, true).
			AddRow("cat-4", "Tablets", "tablets", strPtr("cat-1"), 1, true))

	repo := NewCategoryRepository(mock)
	kids, err := repo.ListChildren(context.Background(), parents)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, "cat-3", kids[0].ID)
	assert.Equal(t, 2, kids[0].Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_ListChildren_NoParents(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	repo := NewCategoryRepository(mock)
	kids, err := repo.ListChildren(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, kids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_DescendantIDs(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	mock.ExpectQuery(`WITH RECURSIVE tree`).
		WithArgs("A").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).
			AddRow("A").AddRow("B").AddRow("C").AddRow("D"))

	repo := NewCategoryRepository(mock)
	ids, err := repo.DescendantIDs(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_DescendantIDs_InactiveRoot(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	mock.ExpectQuery(`WITH RECURSIVE tree`).
		WithArgs("off").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	repo := NewCategoryRepository(mock)
	ids, err := repo.DescendantIDs(context.Background(), "off")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCategoryRepository_DescendantIDs_Error(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	mock.ExpectQuery(`WITH RECURSIVE tree`).
		WithArgs("A").
		WillReturnError(errors.New("statement timeout"))

	repo := NewCategoryRepository(mock)
	_, err := repo.DescendantIDs(context.Background(), "A")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category descendants")
}
