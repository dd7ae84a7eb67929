package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

// Connections реализует domain.ConnectionRepo.
type Connections struct {
	pool *pgxpool.Pool
}

var _ domain.ConnectionRepo = (*Connections)(nil)

// NewConnections создаёт репозиторий подключений.
func NewConnections(pool *pgxpool.Pool) *Connections {
	return &Connections{pool: pool}
}

// Create реализует domain.ConnectionRepo.
func (r *Connections) Create(ctx context.Context, conn domain.Connection) (domain.Connection, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	err := r.pool.QueryRow(ctx, `
INSERT INTO connections (project_id, platform, site_url, login, secret, channel_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
RETURNING id, created_at
`, conn.ProjectID, conn.Platform, conn.SiteURL, conn.Login, conn.Secret, conn.ChannelID).
		Scan(&conn.ID, &conn.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "connections_insert", "connections", start, err)
	return conn, err
}

// Get реализует domain.ConnectionRepo.
func (r *Connections) Get(ctx context.Context, id int64) (domain.Connection, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	var conn domain.Connection
	err := r.pool.QueryRow(ctx, `
SELECT id, project_id, platform, site_url, login, secret, channel_id, created_at
FROM connections WHERE id = $1
`, id).Scan(&conn.ID, &conn.ProjectID, &conn.Platform, &conn.SiteURL, &conn.Login, &conn.Secret, &conn.ChannelID, &conn.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "connections_get", "connections", start, err)
	return conn, mapNoRows(err)
}

// ListByProject реализует domain.ConnectionRepo.
func (r *Connections) ListByProject(ctx context.Context, projectID int64) ([]domain.Connection, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.pool.Query(ctx, `
SELECT id, project_id, platform, site_url, login, secret, channel_id, created_at
FROM connections WHERE project_id = $1 ORDER BY id
`, projectID)
	metrics.ObserveNetworkRequest("postgres", "connections_list", "connections", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []domain.Connection
	for rows.Next() {
		var conn domain.Connection
		if err := rows.Scan(&conn.ID, &conn.ProjectID, &conn.Platform, &conn.SiteURL, &conn.Login, &conn.Secret, &conn.ChannelID, &conn.CreatedAt); err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}
