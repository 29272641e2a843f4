package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/pkg/database"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
)

// categoryColumns is the SELECT column list for categories.
const categoryColumns = `id, name, slug, parent_id, level, is_active`

const (
	getCategoryQuery = `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`

	listChildrenQuery = `SELECT ` + categoryColumns + `
		FROM categories
		WHERE parent_id = ANY($1) AND is_active = true
		ORDER BY id`

	// UNION (not UNION ALL) drops rows already in the working table, so a
	// cycle in bad data terminates.
	descendantsQuery = `
		WITH RECURSIVE tree AS (
			SELECT id FROM categories WHERE id = $1 AND is_active = true
			UNION
			SELECT c.id FROM categories c
			JOIN tree t ON c.parent_id = t.id
			WHERE c.is_active = true
		)
		SELECT id FROM tree ORDER BY id`
)

// CategoryRepository reads the catalog's categories table.
type CategoryRepository struct {
	pool database.DBTX
}

// NewCategoryRepository creates a PostgreSQL-backed category repository.
func NewCategoryRepository(pool database.DBTX) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// GetByID retrieves a category by id.
func (r *CategoryRepository) GetByID(ctx context.Context, id string) (c *domain.Category, err error) {
	ctx, end := database.TraceQuery(ctx, "GetCategory", getCategoryQuery)
	defer func() { end(err) }()

	var cat domain.Category
	err = r.pool.QueryRow(ctx, getCategoryQuery, id).Scan(
		&cat.ID, &cat.Name, &cat.Slug, &cat.ParentID, &cat.Level, &cat.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("category", id)
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &cat, nil
}

// ListChildren returns the active direct children of parentIDs.
func (r *CategoryRepository) ListChildren(ctx context.Context, parentIDs []string) (out []domain.Category, err error) {
	if len(parentIDs) == 0 {
		return []domain.Category{}, nil
	}

	ctx, end := database.TraceQuery(ctx, "ListChildCategories", listChildrenQuery)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, listChildrenQuery, parentIDs)
	if err != nil {
		return nil, fmt.Errorf("list child categories: %w", err)
	}
	defer rows.Close()

	out = []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err = rows.Scan(&c.ID, &c.Name, &c.Slug, &c.ParentID, &c.Level, &c.IsActive); err != nil {
			return nil, fmt.Errorf("scan child category: %w", err)
		}
		out = append(out, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate child categories: %w", err)
	}
	return out, nil
}

// DescendantIDs returns the active closure of id with a recursive CTE.
func (r *CategoryRepository) DescendantIDs(ctx context.Context, id string) (ids []string, err error) {
	ctx, end := database.TraceQuery(ctx, "CategoryDescendants", descendantsQuery)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, descendantsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("query category descendants: %w", err)
	}
	defer rows.Close()

	ids = []string{}
	for rows.Next() {
		var cid string
		if err = rows.Scan(&cid); err != nil {
			return nil, fmt.Errorf("scan category descendant: %w", err)
		}
		ids = append(ids, cid)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category descendants: %w", err)
	}
	return ids, nil
}
