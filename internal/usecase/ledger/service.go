package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

// casAttempts ограничивает число повторов условной записи. При исчерпании
// операция сдаётся и сообщает о конкуренции, а не крутится бесконечно.
const casAttempts = 3

// balanceMutator — единый контракт над двумя способами изменить баланс:
// хранимая процедура и CAS-цикл. Стратегия выбирается при старте.
type balanceMutator interface {
	charge(ctx context.Context, userID, amount int64) (int64, error)
	credit(ctx context.Context, userID, amount int64) (int64, error)
}

// Service — единственная точка изменения User.Balance.
type Service struct {
	repo domain.LedgerRepo
	mut  balanceMutator
	cas  *casMutator
	log  zerolog.Logger
}

// NewService создаёт леджер. Наличие хранимых процедур проверяется один раз;
// при их отсутствии все операции сразу идут через CAS-цикл.
func NewService(ctx context.Context, repo domain.LedgerRepo, logger zerolog.Logger) *Service {
	cas := &casMutator{repo: repo}
	s := &Service{repo: repo, cas: cas, log: logger}
	ok, err := repo.HasBalanceProcs(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("ledger: проба процедур не удалась, работаем через CAS")
	}
	if ok {
		s.mut = &procMutator{repo: repo, fallback: cas}
		logger.Info().Msg("ledger: используются хранимые процедуры")
	} else {
		s.mut = cas
		logger.Info().Msg("ledger: хранимые процедуры недоступны, используется CAS")
	}
	return s
}

// Charge списывает amount токенов. Возвращает новый баланс или
// domain.ErrInsufficientBalance / domain.ErrBalanceContention.
func (s *Service) Charge(ctx context.Context, userID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("сумма списания должна быть положительной: %d", amount)
	}
	balance, err := s.mut.charge(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	metrics.TokensCharged.Add(float64(amount))
	s.appendEntry(ctx, userID, domain.LedgerOpCharge, -amount, balance, reason)
	return balance, nil
}

// Refund возвращает amount токенов. Проверка достаточности не выполняется.
func (s *Service) Refund(ctx context.Context, userID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("сумма возврата должна быть положительной: %d", amount)
	}
	balance, err := s.mut.credit(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	metrics.TokensRefunded.Add(float64(amount))
	s.appendEntry(ctx, userID, domain.LedgerOpRefund, amount, balance, reason)
	return balance, nil
}

// Credit начисляет amount токенов (покупка пакета, ежемесячное пополнение).
func (s *Service) Credit(ctx context.Context, userID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("сумма начисления должна быть положительной: %d", amount)
	}
	balance, err := s.mut.credit(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	s.appendEntry(ctx, userID, domain.LedgerOpCredit, amount, balance, reason)
	return balance, nil
}

// ForceDebit списывает amount, позволяя балансу уйти в минус. Используется
// только для сверки возвратов платёжного провайдера.
func (s *Service) ForceDebit(ctx context.Context, userID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("сумма списания должна быть положительной: %d", amount)
	}
	balance, err := s.mut.charge(ctx, userID, amount)
	if err != nil {
		if !errors.Is(err, domain.ErrInsufficientBalance) {
			return 0, err
		}
		balance, err = s.cas.forceDebit(ctx, userID, amount)
		if err != nil {
			return 0, err
		}
	}
	s.appendEntry(ctx, userID, domain.LedgerOpForceDebit, -amount, balance, reason)
	return balance, nil
}

// appendEntry дописывает строку журнала. Журнал — наблюдаемость; его сбой
// не откатывает уже выполненную операцию над балансом.
func (s *Service) appendEntry(ctx context.Context, userID int64, op domain.LedgerOp, amount, balanceAfter int64, reason string) {
	entry := domain.LedgerEntry{
		UserID:       userID,
		Op:           op,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Reason:       reason,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.AppendEntry(ctx, entry); err != nil {
		s.log.Error().Err(err).Int64("user", userID).Str("op", string(op)).Msg("ledger: не удалось записать строку журнала")
	}
}

// procMutator вызывает атомарные процедуры; при их недоступности на
// конкретном вызове уходит в CAS-фолбэк.
type procMutator struct {
	repo     domain.LedgerRepo
	fallback *casMutator
}

func (m *procMutator) charge(ctx context.Context, userID, amount int64) (int64, error) {
	balance, err := m.repo.CallChargeProc(ctx, userID, amount)
	if err == nil {
		return balance, nil
	}
	if errors.Is(err, domain.ErrInsufficientBalance) {
		return 0, err
	}
	metrics.BalanceFallbackCalls.Inc()
	return m.fallback.charge(ctx, userID, amount)
}

func (m *procMutator) credit(ctx context.Context, userID, amount int64) (int64, error) {
	balance, err := m.repo.CallCreditProc(ctx, userID, amount)
	if err == nil {
		return balance, nil
	}
	metrics.BalanceFallbackCalls.Inc()
	return m.fallback.credit(ctx, userID, amount)
}

// casMutator выполняет чтение-проверку-условную запись с ограниченным числом
// повторов.
type casMutator struct {
	repo domain.LedgerRepo
}

func (m *casMutator) charge(ctx context.Context, userID, amount int64) (int64, error) {
	var observed int64
	for attempt := 0; attempt < casAttempts; attempt++ {
		balance, err := m.repo.GetBalance(ctx, userID)
		if err != nil {
			return 0, err
		}
		observed = balance
		if balance < amount {
			return 0, fmt.Errorf("баланс %d, требуется %d: %w", balance, amount, domain.ErrInsufficientBalance)
		}
		ok, err := m.repo.UpdateBalanceCAS(ctx, userID, balance, balance-amount)
		if err != nil {
			return 0, err
		}
		if ok {
			return balance - amount, nil
		}
		metrics.BalanceCASConflicts.Inc()
	}
	return 0, fmt.Errorf("баланс %d, требуется %d, попытки исчерпаны: %w", observed, amount, domain.ErrBalanceContention)
}

func (m *casMutator) credit(ctx context.Context, userID, amount int64) (int64, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		balance, err := m.repo.GetBalance(ctx, userID)
		if err != nil {
			return 0, err
		}
		ok, err := m.repo.UpdateBalanceCAS(ctx, userID, balance, balance+amount)
		if err != nil {
			return 0, err
		}
		if ok {
			return balance + amount, nil
		}
		metrics.BalanceCASConflicts.Inc()
	}
	return 0, fmt.Errorf("начисление %d: попытки исчерпаны: %w", amount, domain.ErrBalanceContention)
}

// forceDebit — тот же цикл, что и charge, но без проверки достаточности.
func (m *casMutator) forceDebit(ctx context.Context, userID, amount int64) (int64, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		balance, err := m.repo.GetBalance(ctx, userID)
		if err != nil {
			return 0, err
		}
		ok, err := m.repo.UpdateBalanceCAS(ctx, userID, balance, balance-amount)
		if err != nil {
			return 0, err
		}
		if ok {
			return balance - amount, nil
		}
		metrics.BalanceCASConflicts.Inc()
	}
	return 0, fmt.Errorf("принудительное списание %d: попытки исчерпаны: %w", amount, domain.ErrBalanceContention)
}
