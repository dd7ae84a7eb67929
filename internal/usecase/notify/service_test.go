package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
)

type stubUsers struct {
	domain.UserRepo
	lowBalance []domain.User
	weekly     []domain.User
	inactive   []domain.User
	cutoff     time.Time
}

func (s *stubUsers) ListLowBalance(_ context.Context) ([]domain.User, error) {
	return s.lowBalance, nil
}

func (s *stubUsers) ListWeeklyStats(_ context.Context) ([]domain.User, error) {
	return s.weekly, nil
}

func (s *stubUsers) ListInactiveSince(_ context.Context, cutoff time.Time) ([]domain.User, error) {
	s.cutoff = cutoff
	return s.inactive, nil
}

type stubQueue struct {
	jobs []domain.NotifyJob
	err  error
}

func (s *stubQueue) Enqueue(_ context.Context, job domain.NotifyJob) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *stubQueue) Receive(ctx context.Context) (domain.NotifyJob, domain.NotifyAckFunc, error) {
	if len(s.jobs) == 0 {
		return domain.NotifyJob{}, nil, context.Canceled
	}
	job := s.jobs[0]
	s.jobs = s.jobs[1:]
	return job, func(bool) error { return nil }, ctx.Err()
}

func TestRunBatchLowBalanceRespectsThresholdAndOptOut(t *testing.T) {
	users := &stubUsers{lowBalance: []domain.User{
		{ID: 1, Balance: 50, Role: domain.UserRoleFree, NotifyLowBalance: true},
		{ID: 2, Balance: 50, Role: domain.UserRoleFree, NotifyLowBalance: false},
		{ID: 3, Balance: 400, Role: domain.UserRoleFree, NotifyLowBalance: true},
	}}
	queue := &stubQueue{}
	svc := NewService(users, queue, Options{}, zerolog.Nop())

	report, err := svc.RunBatch(context.Background(), domain.NotifyLowBalanceKind)
	if err != nil {
		t.Fatalf("рассылка: %v", err)
	}
	if report.Sent != 1 || report.Failed != 0 {
		t.Fatalf("ожидали sent=1 failed=0, получили %+v", report)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].UserID != 1 {
		t.Fatalf("в очереди должно быть одно сообщение пользователю 1: %+v", queue.jobs)
	}
}

func TestRunBatchReactivationUsesCutoff(t *testing.T) {
	users := &stubUsers{inactive: []domain.User{{ID: 5}}}
	queue := &stubQueue{}
	svc := NewService(users, queue, Options{ReactivationAfter: 7 * 24 * time.Hour}, zerolog.Nop())

	if _, err := svc.RunBatch(context.Background(), domain.NotifyReactivation); err != nil {
		t.Fatalf("рассылка: %v", err)
	}
	age := time.Since(users.cutoff)
	if age < 7*24*time.Hour-time.Minute || age > 7*24*time.Hour+time.Minute {
		t.Fatalf("порог неактивности должен быть около недели, получили %v", age)
	}
}

func TestRunBatchCountsQueueFailures(t *testing.T) {
	users := &stubUsers{weekly: []domain.User{{ID: 1, NotifyWeeklyStats: true}}}
	queue := &stubQueue{err: errors.New("очередь недоступна")}
	svc := NewService(users, queue, Options{}, zerolog.Nop())

	report, err := svc.RunBatch(context.Background(), domain.NotifyWeeklyDigest)
	if err != nil {
		t.Fatalf("рассылка: %v", err)
	}
	if report.Sent != 0 || report.Failed != 1 {
		t.Fatalf("ожидали sent=0 failed=1, получили %+v", report)
	}
}

func TestRunBatchUnknownKind(t *testing.T) {
	svc := NewService(&stubUsers{}, &stubQueue{}, Options{}, zerolog.Nop())
	if _, err := svc.RunBatch(context.Background(), domain.NotifyKind("spam")); err == nil {
		t.Fatal("неизвестный тип рассылки должен быть ошибкой")
	}
}

type stubNotifier struct {
	sent []int64
	err  error
}

func (s *stubNotifier) Send(_ context.Context, userID int64, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, userID)
	return nil
}

func TestWorkerDeliversUntilQueueDrained(t *testing.T) {
	queue := &stubQueue{jobs: []domain.NotifyJob{
		{ID: "j1", UserID: 1, Kind: domain.NotifyLowBalanceKind, Text: "t"},
		{ID: "j2", UserID: 2, Kind: domain.NotifyLowBalanceKind, Text: "t"},
	}}
	notifier := &stubNotifier{}
	worker := NewWorker(queue, notifier, zerolog.Nop())

	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("воркер: %v", err)
	}
	if len(notifier.sent) != 2 {
		t.Fatalf("ожидали 2 доставки, выполнено %d", len(notifier.sent))
	}
}
