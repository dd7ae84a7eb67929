// Package renew продлевает подписку автосписанием по сохранённому способу
// оплаты. Окно идемпотентности — одна попытка на пользователя в час; замок
// окна никогда не снимается досрочно.
package renew

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/idem"
)

// Package описывает продлеваемый тариф.
type Package struct {
	Name        string
	Role        domain.UserRole
	PriceMinor  int64
	Tokens      int64
	Description string
}

var packages = map[string]Package{
	"start": {Name: "start", Role: domain.UserRoleStart, PriceMinor: 99000, Tokens: 2000, Description: "Подписка Start"},
	"pro":   {Name: "pro", Role: domain.UserRolePro, PriceMinor: 299000, Tokens: 8000, Description: "Подписка Pro"},
}

// Статусы результата продления.
const (
	StatusOK        = "ok"
	StatusDuplicate = "duplicate"
	StatusError     = "error"
)

// Result — итог одной попытки продления.
type Result struct {
	Status string
	Reason string
	Tokens int64
}

// Ledger — операции баланса, нужные продлению.
type Ledger interface {
	Credit(ctx context.Context, userID, amount int64, reason string) (int64, error)
	ForceDebit(ctx context.Context, userID, amount int64, reason string) (int64, error)
}

// Service выполняет продление подписки.
type Service struct {
	users    domain.UserRepo
	ledger   Ledger
	payments domain.PaymentProvider
	locks    *idem.Locker
	notifier domain.Notifier
	lockTTL  time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис продления.
func NewService(
	users domain.UserRepo,
	ledger Ledger,
	payments domain.PaymentProvider,
	locks *idem.Locker,
	notifier domain.Notifier,
	lockTTL time.Duration,
	logger zerolog.Logger,
) *Service {
	if lockTTL <= 0 {
		lockTTL = time.Hour
	}
	return &Service{
		users:    users,
		ledger:   ledger,
		payments: payments,
		locks:    locks,
		notifier: notifier,
		lockTTL:  lockTTL,
		log:      logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run выполняет одну попытку продления. Повтор в пределах часа поглощается
// замком окна и возвращает duplicate.
func (s *Service) Run(ctx context.Context, userID int64, paymentMethodID, packageName string) (Result, error) {
	pkg, ok := packages[packageName]
	if !ok {
		return Result{Status: StatusError, Reason: "unknown_package"}, nil
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		return Result{Status: StatusError, Reason: "unknown_user"}, nil
	}

	key := idem.RenewalKey(userID, s.now())
	claimed, err := s.locks.TryClaim(ctx, key, s.lockTTL)
	if err != nil {
		return Result{}, fmt.Errorf("замок окна продления: %w", err)
	}
	if !claimed {
		return Result{Status: StatusDuplicate}, nil
	}

	payment, err := s.payments.ChargeSaved(ctx, domain.PaymentCharge{
		UserID:          userID,
		PaymentMethodID: paymentMethodID,
		AmountMinor:     pkg.PriceMinor,
		Currency:        "RUB",
		Description:     pkg.Description,
		IdempotenceKey:  key,
	})
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Str("package", pkg.Name).
			Msg("продление: автосписание не прошло")
		return Result{Status: StatusError, Reason: "payment_failed"}, nil
	}
	if payment.Status != "succeeded" {
		return Result{Status: StatusError, Reason: "payment_" + payment.Status}, nil
	}

	if _, err := s.ledger.Credit(ctx, userID, pkg.Tokens, fmt.Sprintf("renewal:%s:payment:%s", pkg.Name, payment.PaymentID)); err != nil {
		// Деньги списаны, токены не зачислены. Логируем с полным контекстом,
		// зачисление доделывается вручную по payment id.
		s.log.Error().Err(err).Int64("user_id", userID).Str("payment_id", payment.PaymentID).
			Int64("tokens", pkg.Tokens).Msg("продление: зачисление токенов не прошло")
		return Result{}, fmt.Errorf("зачисление токенов: %w", err)
	}

	text := fmt.Sprintf("Подписка %s продлена, зачислено %d токенов.", pkg.Description, pkg.Tokens)
	if err := s.notifier.Send(ctx, userID, text); err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("продление: уведомление не доставлено")
	}
	return Result{Status: StatusOK, Tokens: pkg.Tokens}, nil
}

// Reconcile откатывает зачисление после возврата платежа провайдером.
// Входящего вебхука возвратов нет, вызов предназначен для операторского
// скрипта сверки по выписке провайдера.
// Баланс может уйти в минус, это осознанно: долг гасится следующим пополнением.
func (s *Service) Reconcile(ctx context.Context, userID int64, packageName, paymentID string) error {
	pkg, ok := packages[packageName]
	if !ok {
		return fmt.Errorf("неизвестный пакет %q", packageName)
	}
	if _, err := s.ledger.ForceDebit(ctx, userID, pkg.Tokens, fmt.Sprintf("renewal_revert:%s:payment:%s", pkg.Name, paymentID)); err != nil {
		return fmt.Errorf("откат зачисления: %w", err)
	}
	return nil
}
