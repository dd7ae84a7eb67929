package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

// Ledger реализует domain.LedgerRepo. Баланс меняется либо хранимыми
// процедурами charge_balance/credit_balance, либо условной записью
// UpdateBalanceCAS; прямых UPDATE без предиката здесь нет.
type Ledger struct {
	pool *pgxpool.Pool
}

var _ domain.LedgerRepo = (*Ledger)(nil)

// NewLedger создаёт репозиторий баланса.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// GetBalance реализует domain.LedgerRepo.
func (r *Ledger) GetBalance(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1`, userID).Scan(&balance)
	metrics.ObserveNetworkRequest("postgres", "balance_get", "users", start, err)
	return balance, mapNoRows(err)
}

// CallChargeProc вызывает атомарную процедуру charge_balance. Нехватка средств
// приходит как ошибка процедуры и отображается в ErrInsufficientBalance.
func (r *Ledger) CallChargeProc(ctx context.Context, userID, amount int64) (int64, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT charge_balance($1, $2)`, userID, amount).Scan(&balance)
	metrics.ObserveNetworkRequest("postgres", "balance_charge_proc", "users", start, err)
	return balance, mapProcError(err)
}

// CallCreditProc вызывает атомарную процедуру credit_balance.
func (r *Ledger) CallCreditProc(ctx context.Context, userID, amount int64) (int64, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT credit_balance($1, $2)`, userID, amount).Scan(&balance)
	metrics.ObserveNetworkRequest("postgres", "balance_credit_proc", "users", start, err)
	return balance, mapProcError(err)
}

// UpdateBalanceCAS выполняет условную запись: баланс меняется, только если он
// всё ещё равен observed.
func (r *Ledger) UpdateBalanceCAS(ctx context.Context, userID, observed, next int64) (bool, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := r.pool.Exec(ctx, `
UPDATE users SET balance = $3, updated_at = now()
WHERE id = $1 AND balance = $2
`, userID, observed, next)
	metrics.ObserveNetworkRequest("postgres", "balance_cas", "users", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// HasBalanceProcs проверяет, развёрнуты ли хранимые процедуры баланса.
func (r *Ledger) HasBalanceProcs(ctx context.Context) (bool, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	var count int
	err := r.pool.QueryRow(ctx, `
SELECT count(*) FROM pg_proc WHERE proname IN ('charge_balance', 'credit_balance')
`).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "balance_probe", "pg_proc", start, err)
	if err != nil {
		return false, err
	}
	return count == 2, nil
}

// AppendEntry реализует domain.LedgerRepo.
func (r *Ledger) AppendEntry(ctx context.Context, entry domain.LedgerEntry) error {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	start := time.Now()
	_, err := r.pool.Exec(ctx, `
INSERT INTO ledger_entries (user_id, op, amount, balance_after, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, entry.UserID, entry.Op, entry.Amount, entry.BalanceAfter, entry.Reason, entry.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "ledger_append", "ledger_entries", start, err)
	return err
}

// DeleteEntriesBefore реализует domain.LedgerRepo.
func (r *Ledger) DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, cancel := connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := r.pool.Exec(ctx, `DELETE FROM ledger_entries WHERE created_at < $1`, cutoff)
	metrics.ObserveNetworkRequest("postgres", "ledger_prune", "ledger_entries", start, err)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// mapProcError распознаёт отказ процедуры по нехватке средств.
func mapProcError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.Contains(pgErr.Message, "insufficient_balance") {
		return domain.ErrInsufficientBalance
	}
	return mapNoRows(err)
}
