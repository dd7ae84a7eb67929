package generate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
)

// blockingGenerator отдаёт результат только после закрытия release.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *blockingGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GeneratedContent, error) {
	g.calls.Add(1)
	g.started <- struct{}{}
	<-g.release
	return domain.GeneratedContent{Title: "готово", ImagesProduced: req.ImagesRequested}, nil
}

func TestBusyWhenSlotsExhausted(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}, 10), release: make(chan struct{})}
	exec := NewExecutor(gen, context.Background(), Options{Slots: 1, AcquireTimeout: 50 * time.Millisecond}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := exec.Generate(context.Background(), domain.GenerationRequest{})
		done <- err
	}()
	<-gen.started

	_, err := exec.Generate(context.Background(), domain.GenerationRequest{})
	if !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("ожидали ErrBusy, получили %v", err)
	}

	close(gen.release)
	if err := <-done; err != nil {
		t.Fatalf("первая генерация должна завершиться: %v", err)
	}
}

func TestShutdownRejectsNewWork(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}, 10), release: make(chan struct{})}
	shutdown, stop := context.WithCancel(context.Background())
	exec := NewExecutor(gen, shutdown, Options{Slots: 2}, zerolog.Nop())

	stop()
	_, err := exec.Generate(context.Background(), domain.GenerationRequest{})
	if !errors.Is(err, domain.ErrShuttingDown) {
		t.Fatalf("ожидали ErrShuttingDown, получили %v", err)
	}
	if gen.calls.Load() != 0 {
		t.Fatal("после остановки генератор не должен вызываться")
	}
}

func TestDrainWaitsForInFlight(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}, 10), release: make(chan struct{})}
	shutdown, stop := context.WithCancel(context.Background())
	exec := NewExecutor(gen, shutdown, Options{Slots: 3, DrainTimeout: 5 * time.Second}, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := exec.Generate(context.Background(), domain.GenerationRequest{}); err != nil {
				t.Errorf("не ожидали ошибку: %v", err)
			}
		}()
	}
	for i := 0; i < 3; i++ {
		<-gen.started
	}

	// Остановка объявлена при трёх генерациях в полёте.
	stop()

	drained := make(chan error, 1)
	go func() { drained <- exec.Drain(context.Background()) }()

	select {
	case <-drained:
		t.Fatal("дренаж не должен завершиться, пока генерации в полёте")
	case <-time.After(100 * time.Millisecond):
	}

	close(gen.release)
	wg.Wait()
	if err := <-drained; err != nil {
		t.Fatalf("дренаж должен завершиться успешно: %v", err)
	}

	// Новая работа после остановки не принимается.
	_, err := exec.Generate(context.Background(), domain.GenerationRequest{})
	if !errors.Is(err, domain.ErrShuttingDown) {
		t.Fatalf("ожидали ErrShuttingDown, получили %v", err)
	}
}

func TestDrainTimeout(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}, 10), release: make(chan struct{})}
	exec := NewExecutor(gen, context.Background(), Options{Slots: 1, DrainTimeout: 50 * time.Millisecond}, zerolog.Nop())

	go func() {
		_, _ = exec.Generate(context.Background(), domain.GenerationRequest{})
	}()
	<-gen.started

	err := exec.Drain(context.Background())
	if err == nil {
		t.Fatal("дренаж обязан вернуть ошибку по таймауту")
	}
	close(gen.release)
}

func TestCallerCancelWhileWaitingIsNotBusy(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}, 10), release: make(chan struct{})}
	exec := NewExecutor(gen, context.Background(), Options{Slots: 1, AcquireTimeout: 5 * time.Second}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := exec.Generate(context.Background(), domain.GenerationRequest{})
		done <- err
	}()
	<-gen.started

	ctx, cancel := context.WithCancel(context.Background())
	waiting := make(chan error, 1)
	go func() {
		_, err := exec.Generate(ctx, domain.GenerationRequest{})
		waiting <- err
	}()
	cancel()

	err := <-waiting
	if errors.Is(err, domain.ErrBusy) {
		t.Fatal("отмена вызывающего не должна выглядеть как занятость слотов")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидали context.Canceled, получили %v", err)
	}

	close(gen.release)
	if err := <-done; err != nil {
		t.Fatalf("первая генерация должна завершиться: %v", err)
	}
}
