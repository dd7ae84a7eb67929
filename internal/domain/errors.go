package domain

import "errors"

var (
	// ErrInsufficientBalance возвращается, когда токенов на балансе не хватает.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBalanceContention возвращается, когда CAS-обновление баланса исчерпало
	// попытки из-за конкурентных писателей, а не из-за нехватки средств.
	ErrBalanceContention = errors.New("balance update contention")

	// ErrDraftConflict возвращается, когда переход статуса черновика проиграл
	// конкурентному переходу (публикация против уборки, двойной клик).
	ErrDraftConflict = errors.New("draft status conflict")

	// ErrDuplicate означает, что триггер уже был обработан. Это не сбой.
	ErrDuplicate = errors.New("duplicate trigger")

	// ErrShuttingDown возвращается, когда процесс завершает работу и новая
	// генерация не принимается.
	ErrShuttingDown = errors.New("shutting down")

	// ErrBusy возвращается, когда все слоты генерации заняты.
	ErrBusy = errors.New("generation slots busy")

	// ErrNotFound возвращается при отсутствии запрошенной записи.
	ErrNotFound = errors.New("not found")
)
