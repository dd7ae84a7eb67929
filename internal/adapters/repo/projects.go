package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

// Projects реализует domain.ProjectRepo.
type Projects struct {
	pool *pgxpool.Pool
}

var _ domain.ProjectRepo = (*Projects)(nil)

// NewProjects создаёт репозиторий проектов.
func NewProjects(pool *pgxpool.Pool) *Projects {
	return &Projects{pool: pool}
}

// Create реализует domain.ProjectRepo.
func (r *Projects) Create(ctx context.Context, project domain.Project) (domain.Project, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	err := r.pool.QueryRow(ctx, `
INSERT INTO projects (user_id, name, site_url, created_at)
VALUES ($1, $2, $3, now())
RETURNING id, created_at
`, project.UserID, project.Name, project.SiteURL).Scan(&project.ID, &project.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "projects_insert", "projects", start, err)
	return project, err
}

// Get реализует domain.ProjectRepo.
func (r *Projects) Get(ctx context.Context, id int64) (domain.Project, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	var project domain.Project
	err := r.pool.QueryRow(ctx, `
SELECT id, user_id, name, site_url, created_at FROM projects WHERE id = $1
`, id).Scan(&project.ID, &project.UserID, &project.Name, &project.SiteURL, &project.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "projects_get", "projects", start, err)
	return project, mapNoRows(err)
}

// ListByUser реализует domain.ProjectRepo.
func (r *Projects) ListByUser(ctx context.Context, userID int64) ([]domain.Project, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, name, site_url, created_at FROM projects WHERE user_id = $1 ORDER BY id
`, userID)
	metrics.ObserveNetworkRequest("postgres", "projects_list", "projects", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		var project domain.Project
		if err := rows.Scan(&project.ID, &project.UserID, &project.Name, &project.SiteURL, &project.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}
