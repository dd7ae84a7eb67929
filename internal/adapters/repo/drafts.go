package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

// Drafts реализует domain.DraftRepo.
type Drafts struct {
	pool *pgxpool.Pool
}

var _ domain.DraftRepo = (*Drafts)(nil)

// NewDrafts создаёт репозиторий черновиков.
func NewDrafts(pool *pgxpool.Pool) *Drafts {
	return &Drafts{pool: pool}
}

const draftColumns = `id, user_id, project_id, category_id, connection_id, pipeline, title, body,
images_requested, images_produced, tokens_charged, regen_count, status, preview_url, created_at, updated_at`

// Create реализует domain.DraftRepo.
func (r *Drafts) Create(ctx context.Context, draft domain.Draft) error {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := r.pool.Exec(ctx, `
INSERT INTO drafts (id, user_id, project_id, category_id, connection_id, pipeline, title, body,
	images_requested, images_produced, tokens_charged, regen_count, status, preview_url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
`, draft.ID, draft.UserID, draft.ProjectID, draft.CategoryID, draft.ConnectionID, draft.Pipeline,
		draft.Title, draft.Body, draft.ImagesRequested, draft.ImagesProduced, draft.TokensCharged,
		draft.RegenCount, draft.Status, draft.PreviewURL)
	metrics.ObserveNetworkRequest("postgres", "drafts_insert", "drafts", start, err)
	return err
}

// Get реализует domain.DraftRepo.
func (r *Drafts) Get(ctx context.Context, id string) (domain.Draft, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := r.pool.QueryRow(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = $1`, id)
	draft, err := scanDraft(row)
	metrics.ObserveNetworkRequest("postgres", "drafts_get", "drafts", start, err)
	return draft, mapNoRows(err)
}

// UpdateContent реализует domain.DraftRepo.
func (r *Drafts) UpdateContent(ctx context.Context, id, title, body string, imagesProduced int, tokensCharged int64) error {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := r.pool.Exec(ctx, `
UPDATE drafts SET title = $2, body = $3, images_produced = $4, tokens_charged = $5, updated_at = now()
WHERE id = $1
`, id, title, body, imagesProduced, tokensCharged)
	metrics.ObserveNetworkRequest("postgres", "drafts_content", "drafts", start, err)
	return err
}

// IncrementRegen реализует domain.DraftRepo.
func (r *Drafts) IncrementRegen(ctx context.Context, id string) (int, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	var count int
	err := r.pool.QueryRow(ctx, `
UPDATE drafts SET regen_count = regen_count + 1, updated_at = now()
WHERE id = $1
RETURNING regen_count
`, id).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "drafts_regen", "drafts", start, err)
	return count, mapNoRows(err)
}

// TransitionStatus выполняет CAS-переход статуса: строка меняется, только если
// статус всё ещё from. Ровно один из гонящихся вызовов получает true.
func (r *Drafts) TransitionStatus(ctx context.Context, id string, from, to domain.DraftStatus) (bool, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := r.pool.Exec(ctx, `
UPDATE drafts SET status = $3, updated_at = now()
WHERE id = $1 AND status = $2
`, id, from, to)
	metrics.ObserveNetworkRequest("postgres", "drafts_transition", "drafts", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListStale возвращает черновики в статусе draft старше порога.
func (r *Drafts) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]domain.Draft, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.pool.Query(ctx, `
SELECT `+draftColumns+` FROM drafts
WHERE status = 'draft' AND created_at < $1
ORDER BY created_at
LIMIT $2
`, olderThan, limit)
	metrics.ObserveNetworkRequest("postgres", "drafts_stale", "drafts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []domain.Draft
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	return drafts, rows.Err()
}

func scanDraft(row pgx.Row) (domain.Draft, error) {
	var draft domain.Draft
	err := row.Scan(&draft.ID, &draft.UserID, &draft.ProjectID, &draft.CategoryID, &draft.ConnectionID,
		&draft.Pipeline, &draft.Title, &draft.Body, &draft.ImagesRequested, &draft.ImagesProduced,
		&draft.TokensCharged, &draft.RegenCount, &draft.Status, &draft.PreviewURL,
		&draft.CreatedAt, &draft.UpdatedAt)
	return draft, err
}
