package renew

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/idem"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return value, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memKV) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type stubUsers struct {
	domain.UserRepo
}

func (s *stubUsers) Get(_ context.Context, id int64) (domain.User, error) {
	if id != 7 {
		return domain.User{}, domain.ErrNotFound
	}
	return domain.User{ID: 7, Role: domain.UserRoleStart}, nil
}

type stubLedger struct {
	credits int
	debits  int
	balance int64
}

func (s *stubLedger) Credit(_ context.Context, _ int64, amount int64, _ string) (int64, error) {
	s.credits++
	s.balance += amount
	return s.balance, nil
}

func (s *stubLedger) ForceDebit(_ context.Context, _ int64, amount int64, _ string) (int64, error) {
	s.debits++
	s.balance -= amount
	return s.balance, nil
}

type stubPayments struct {
	calls  int
	status string
	err    error
	last   domain.PaymentCharge
}

func (s *stubPayments) ChargeSaved(_ context.Context, charge domain.PaymentCharge) (domain.PaymentResult, error) {
	s.calls++
	s.last = charge
	if s.err != nil {
		return domain.PaymentResult{}, s.err
	}
	return domain.PaymentResult{PaymentID: "pay-1", Status: s.status}, nil
}

type stubNotifier struct{ sent int }

func (s *stubNotifier) Send(_ context.Context, _ int64, _ string) error {
	s.sent++
	return nil
}

func newService(ledger *stubLedger, payments *stubPayments) (*Service, *stubNotifier) {
	notifier := &stubNotifier{}
	locker := idem.NewLocker(&memKV{data: map[string][]byte{}})
	svc := NewService(&stubUsers{}, ledger, payments, locker, notifier, time.Hour, zerolog.Nop())
	return svc, notifier
}

func TestRunChargesOncePerHourWindow(t *testing.T) {
	ledger := &stubLedger{}
	payments := &stubPayments{status: "succeeded"}
	svc, notifier := newService(ledger, payments)

	result, err := svc.Run(context.Background(), 7, "pm-1", "start")
	if err != nil {
		t.Fatalf("продление: %v", err)
	}
	if result.Status != StatusOK || result.Tokens != 2000 {
		t.Fatalf("ожидали ok/2000, получили %+v", result)
	}
	if payments.last.IdempotenceKey == "" {
		t.Fatal("автосписание должно нести ключ идемпотентности")
	}
	if notifier.sent != 1 {
		t.Fatalf("ожидали одно уведомление, отправлено %d", notifier.sent)
	}

	// Повтор в том же часовом окне поглощается замком.
	result, err = svc.Run(context.Background(), 7, "pm-1", "start")
	if err != nil {
		t.Fatalf("повторное продление: %v", err)
	}
	if result.Status != StatusDuplicate {
		t.Fatalf("ожидали duplicate, получили %+v", result)
	}
	if payments.calls != 1 || ledger.credits != 1 {
		t.Fatalf("повтор не должен списывать и зачислять: платежей=%d, зачислений=%d", payments.calls, ledger.credits)
	}
}

func TestRunPaymentFailureKeepsWindowClaimed(t *testing.T) {
	ledger := &stubLedger{}
	payments := &stubPayments{err: errors.New("карта отклонена")}
	svc, _ := newService(ledger, payments)

	result, err := svc.Run(context.Background(), 7, "pm-1", "pro")
	if err != nil {
		t.Fatalf("продление: %v", err)
	}
	if result.Status != StatusError || result.Reason != "payment_failed" {
		t.Fatalf("ожидали error/payment_failed, получили %+v", result)
	}
	if ledger.credits != 0 {
		t.Fatalf("при неуспехе платежа зачислений быть не должно: %d", ledger.credits)
	}

	// Окно занято до конца часа, немедленный повтор не долбит эквайринг.
	result, _ = svc.Run(context.Background(), 7, "pm-1", "pro")
	if result.Status != StatusDuplicate {
		t.Fatalf("ожидали duplicate, получили %+v", result)
	}
	if payments.calls != 1 {
		t.Fatalf("повтор не должен вызывать провайдера: %d", payments.calls)
	}
}

func TestRunUnknownPackageAndUser(t *testing.T) {
	svc, _ := newService(&stubLedger{}, &stubPayments{status: "succeeded"})

	result, err := svc.Run(context.Background(), 7, "pm-1", "enterprise")
	if err != nil || result.Reason != "unknown_package" {
		t.Fatalf("ожидали unknown_package, получили %+v, %v", result, err)
	}
	result, err = svc.Run(context.Background(), 404, "pm-1", "start")
	if err != nil || result.Reason != "unknown_user" {
		t.Fatalf("ожидали unknown_user, получили %+v, %v", result, err)
	}
}

func TestReconcileForceDebits(t *testing.T) {
	ledger := &stubLedger{balance: 100}
	svc, _ := newService(ledger, &stubPayments{status: "succeeded"})

	if err := svc.Reconcile(context.Background(), 7, "start", "pay-1"); err != nil {
		t.Fatalf("сверка: %v", err)
	}
	if ledger.debits != 1 || ledger.balance != 100-2000 {
		t.Fatalf("откат должен увести баланс в минус: debits=%d balance=%d", ledger.debits, ledger.balance)
	}
}
