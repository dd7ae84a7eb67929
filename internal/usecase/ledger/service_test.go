package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
)

// stubLedgerRepo — потокобезопасное хранилище балансов в памяти.
// conflictWriter позволяет вклинить конкурентную запись между чтением и CAS.
type stubLedgerRepo struct {
	mu             sync.Mutex
	balances       map[int64]int64
	entries        []domain.LedgerEntry
	hasProcs       bool
	procErr        error
	conflictWriter func(balances map[int64]int64)
	conflictsLeft  int
}

func newStubLedgerRepo(hasProcs bool) *stubLedgerRepo {
	return &stubLedgerRepo{balances: make(map[int64]int64), hasProcs: hasProcs}
}

func (r *stubLedgerRepo) GetBalance(ctx context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[userID], nil
}

func (r *stubLedgerRepo) CallChargeProc(ctx context.Context, userID, amount int64) (int64, error) {
	if r.procErr != nil {
		return 0, r.procErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balances[userID] < amount {
		return 0, domain.ErrInsufficientBalance
	}
	r.balances[userID] -= amount
	return r.balances[userID], nil
}

func (r *stubLedgerRepo) CallCreditProc(ctx context.Context, userID, amount int64) (int64, error) {
	if r.procErr != nil {
		return 0, r.procErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[userID] += amount
	return r.balances[userID], nil
}

func (r *stubLedgerRepo) UpdateBalanceCAS(ctx context.Context, userID, observed, next int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictWriter != nil && r.conflictsLeft != 0 {
		r.conflictWriter(r.balances)
		if r.conflictsLeft > 0 {
			r.conflictsLeft--
		}
	}
	if r.balances[userID] != observed {
		return false, nil
	}
	r.balances[userID] = next
	return true, nil
}

func (r *stubLedgerRepo) HasBalanceProcs(ctx context.Context) (bool, error) {
	return r.hasProcs, nil
}

func (r *stubLedgerRepo) AppendEntry(ctx context.Context, entry domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *stubLedgerRepo) DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func newTestService(repo *stubLedgerRepo) *Service {
	return NewService(context.Background(), repo, zerolog.Nop())
}

func TestChargeInsufficientDoesNotMutate(t *testing.T) {
	for _, hasProcs := range []bool{true, false} {
		repo := newStubLedgerRepo(hasProcs)
		repo.balances[1] = 100
		svc := newTestService(repo)

		_, err := svc.Charge(context.Background(), 1, 150, "генерация статьи")
		if !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Fatalf("ожидали ErrInsufficientBalance, получили %v", err)
		}
		if repo.balances[1] != 100 {
			t.Fatalf("баланс не должен меняться, получили %d", repo.balances[1])
		}
	}
}

func TestConcurrentOpsNoLostUpdates(t *testing.T) {
	repo := newStubLedgerRepo(false)
	repo.balances[7] = 10000
	svc := newTestService(repo)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := context.Background()
			if i%2 == 0 {
				if _, err := svc.Charge(ctx, 7, 100, "списание"); err != nil && !errors.Is(err, domain.ErrBalanceContention) {
					t.Errorf("не ожидали ошибку списания: %v", err)
				}
			} else {
				if _, err := svc.Credit(ctx, 7, 50, "начисление"); err != nil && !errors.Is(err, domain.ErrBalanceContention) {
					t.Errorf("не ожидали ошибку начисления: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	// Итоговый баланс должен совпасть с суммой применённых операций из журнала.
	var sum int64
	for _, e := range repo.entries {
		sum += e.Amount
	}
	if repo.balances[7] != 10000+sum {
		t.Fatalf("потерянное обновление: баланс %d, ожидали %d", repo.balances[7], 10000+sum)
	}
}

func TestCASRetriesThenSucceeds(t *testing.T) {
	repo := newStubLedgerRepo(false)
	repo.balances[1] = 500
	// Два конфликта подряд, третья попытка проходит.
	repo.conflictsLeft = 2
	repo.conflictWriter = func(balances map[int64]int64) {
		balances[1] += 1
	}
	svc := newTestService(repo)

	balance, err := svc.Charge(context.Background(), 1, 100, "списание")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if balance != 402 {
		t.Fatalf("ожидали баланс 402, получили %d", balance)
	}
}

func TestCASExhaustedReportsContention(t *testing.T) {
	repo := newStubLedgerRepo(false)
	repo.balances[1] = 500
	repo.conflictsLeft = -1 // бесконечные конфликты
	repo.conflictWriter = func(balances map[int64]int64) {
		balances[1] += 1
	}
	svc := newTestService(repo)

	_, err := svc.Charge(context.Background(), 1, 100, "списание")
	if !errors.Is(err, domain.ErrBalanceContention) {
		t.Fatalf("ожидали ErrBalanceContention, получили %v", err)
	}
	if errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatal("конкуренция не должна маскироваться под нехватку средств")
	}
}

func TestProcFallbackToCAS(t *testing.T) {
	repo := newStubLedgerRepo(true)
	repo.balances[1] = 300
	repo.procErr = errors.New("function charge_balance does not exist")
	svc := newTestService(repo)

	balance, err := svc.Charge(context.Background(), 1, 100, "списание")
	if err != nil {
		t.Fatalf("фолбэк должен отработать: %v", err)
	}
	if balance != 200 {
		t.Fatalf("ожидали 200, получили %d", balance)
	}
}

func TestForceDebitGoesNegative(t *testing.T) {
	repo := newStubLedgerRepo(false)
	repo.balances[1] = 50
	svc := newTestService(repo)

	balance, err := svc.ForceDebit(context.Background(), 1, 120, "возврат платежа")
	if err != nil {
		t.Fatalf("force debit должен всегда проходить: %v", err)
	}
	if balance != -70 {
		t.Fatalf("ожидали -70, получили %d", balance)
	}
	if repo.balances[1] != -70 {
		t.Fatalf("баланс в хранилище %d", repo.balances[1])
	}
}

func TestRefundAlwaysSucceeds(t *testing.T) {
	repo := newStubLedgerRepo(true)
	repo.balances[1] = 0
	svc := newTestService(repo)

	balance, err := svc.Refund(context.Background(), 1, 320, "возврат за сбой генерации")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if balance != 320 {
		t.Fatalf("ожидали 320, получили %d", balance)
	}
	if len(repo.entries) != 1 || repo.entries[0].Op != domain.LedgerOpRefund {
		t.Fatalf("ожидали одну строку журнала refund, получили %+v", repo.entries)
	}
}
