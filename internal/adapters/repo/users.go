package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

// Users реализует domain.UserRepo.
type Users struct {
	pool *pgxpool.Pool
}

var _ domain.UserRepo = (*Users)(nil)

// NewUsers создаёт репозиторий пользователей.
func NewUsers(pool *pgxpool.Pool) *Users {
	return &Users{pool: pool}
}

const userColumns = `id, balance, role, referrer_id, notify_low_balance, notify_weekly_stats, last_active_at, created_at, updated_at`

// EnsureUser создаёт пользователя при первом контакте. Реферер записывается
// только при создании строки и никогда не перезаписывается.
func (r *Users) EnsureUser(ctx context.Context, id int64, referrerID *int64) (domain.User, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := r.pool.QueryRow(ctx, `
INSERT INTO users (id, referrer_id, created_at, updated_at, last_active_at)
VALUES ($1, $2, now(), now(), now())
ON CONFLICT (id) DO UPDATE SET last_active_at = now(), updated_at = now()
RETURNING `+userColumns, id, referrerID)
	user, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "users_ensure", "users", start, err)
	return user, mapNoRows(err)
}

// Get реализует domain.UserRepo.
func (r *Users) Get(ctx context.Context, id int64) (domain.User, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
	return user, mapNoRows(err)
}

// TouchActivity реализует domain.UserRepo.
func (r *Users) TouchActivity(ctx context.Context, id int64) error {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_active_at = now() WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "users_touch", "users", start, err)
	return err
}

// ListLowBalance возвращает пользователей с включённым уведомлением о низком
// балансе. Порог тарифа применяется выше, в сервисе рассылок.
func (r *Users) ListLowBalance(ctx context.Context) ([]domain.User, error) {
	return r.list(ctx, "users_low_balance", `SELECT `+userColumns+` FROM users WHERE notify_low_balance`)
}

// ListWeeklyStats реализует domain.UserRepo.
func (r *Users) ListWeeklyStats(ctx context.Context) ([]domain.User, error) {
	return r.list(ctx, "users_weekly", `SELECT `+userColumns+` FROM users WHERE notify_weekly_stats`)
}

// ListInactiveSince реализует domain.UserRepo.
func (r *Users) ListInactiveSince(ctx context.Context, cutoff time.Time) ([]domain.User, error) {
	return r.list(ctx, "users_inactive", `SELECT `+userColumns+` FROM users WHERE last_active_at < $1`, cutoff)
}

func (r *Users) list(ctx context.Context, op, query string, args ...any) ([]domain.User, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", op, "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	err := row.Scan(&user.ID, &user.Balance, &user.Role, &user.ReferrerID,
		&user.NotifyLowBalance, &user.NotifyWeeklyStats, &user.LastActiveAt,
		&user.CreatedAt, &user.UpdatedAt)
	return user, err
}
