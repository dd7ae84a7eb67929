package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

// Categories реализует domain.CategoryRepo.
type Categories struct {
	pool *pgxpool.Pool
}

var _ domain.CategoryRepo = (*Categories)(nil)

// NewCategories создаёт репозиторий рубрик.
func NewCategories(pool *pgxpool.Pool) *Categories {
	return &Categories{pool: pool}
}

const categoryColumns = `id, project_id, name, keywords, description, prices, image_count, published_count, created_at, updated_at`

// Create реализует domain.CategoryRepo.
func (r *Categories) Create(ctx context.Context, category domain.Category) (domain.Category, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	err := r.pool.QueryRow(ctx, `
INSERT INTO categories (project_id, name, keywords, description, prices, image_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now(), now())
RETURNING id, created_at, updated_at
`, category.ProjectID, category.Name, category.Keywords, category.Description, category.PricesJSON, category.ImageCount).
		Scan(&category.ID, &category.CreatedAt, &category.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "categories_insert", "categories", start, err)
	return category, err
}

// Get реализует domain.CategoryRepo.
func (r *Categories) Get(ctx context.Context, id int64) (domain.Category, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := r.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	category, err := scanCategory(row)
	metrics.ObserveNetworkRequest("postgres", "categories_get", "categories", start, err)
	return category, mapNoRows(err)
}

// ListByProject реализует domain.CategoryRepo.
func (r *Categories) ListByProject(ctx context.Context, projectID int64) ([]domain.Category, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.pool.Query(ctx, `SELECT `+categoryColumns+` FROM categories WHERE project_id = $1 ORDER BY id`, projectID)
	metrics.ObserveNetworkRequest("postgres", "categories_list", "categories", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// UpdateKeywords реализует domain.CategoryRepo.
func (r *Categories) UpdateKeywords(ctx context.Context, id int64, keywords []string) error {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := r.pool.Exec(ctx, `UPDATE categories SET keywords = $2, updated_at = now() WHERE id = $1`, id, keywords)
	metrics.ObserveNetworkRequest("postgres", "categories_keywords", "categories", start, err)
	return err
}

// UpdateDescription реализует domain.CategoryRepo.
func (r *Categories) UpdateDescription(ctx context.Context, id int64, description string) error {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := r.pool.Exec(ctx, `UPDATE categories SET description = $2, updated_at = now() WHERE id = $1`, id, description)
	metrics.ObserveNetworkRequest("postgres", "categories_description", "categories", start, err)
	return err
}

// IncrementPublished реализует domain.CategoryRepo.
func (r *Categories) IncrementPublished(ctx context.Context, id int64) error {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := r.pool.Exec(ctx, `UPDATE categories SET published_count = published_count + 1, updated_at = now() WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "categories_published", "categories", start, err)
	return err
}

func scanCategory(row pgx.Row) (domain.Category, error) {
	var category domain.Category
	err := row.Scan(&category.ID, &category.ProjectID, &category.Name, &category.Keywords,
		&category.Description, &category.PricesJSON, &category.ImageCount,
		&category.PublishedCount, &category.CreatedAt, &category.UpdatedAt)
	return category, err
}
