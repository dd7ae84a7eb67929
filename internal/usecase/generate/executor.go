package generate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
)

// Options настраивают исполнитель генерации.
type Options struct {
	Slots          int
	AcquireTimeout time.Duration
	CallTimeout    time.Duration
	DrainTimeout   time.Duration
}

// Executor ограничивает число одновременных генераций глобальным семафором и
// координирует остановку процесса: новые работы отклоняются, текущие
// дорабатывают до конца.
type Executor struct {
	generator domain.Generator
	sem       chan struct{}
	shutdown  context.Context
	opts      Options
	log       zerolog.Logger
}

// NewExecutor создаёт исполнитель. shutdown — контекст корня процесса,
// отменяемый на SIGTERM; передаётся явно, а не берётся из глобали.
func NewExecutor(generator domain.Generator, shutdown context.Context, opts Options, logger zerolog.Logger) *Executor {
	if opts.Slots <= 0 {
		opts.Slots = 10
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 5 * time.Minute
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Minute
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Minute
	}
	return &Executor{
		generator: generator,
		sem:       make(chan struct{}, opts.Slots),
		shutdown:  shutdown,
		opts:      opts,
		log:       logger,
	}
}

// Generate выполняет генерацию под семафором. Возвращает domain.ErrShuttingDown
// при остановке процесса и domain.ErrBusy при исчерпании слотов — оба
// сигнала повторяемые, вызывающий должен освободить свой замок и попросить
// повторить позже.
func (e *Executor) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GeneratedContent, error) {
	// Проверка до захвата слота: не принимать работу после сигнала остановки.
	select {
	case <-e.shutdown.Done():
		metrics.GenerationRejects.WithLabelValues("shutdown").Inc()
		return domain.GeneratedContent{}, domain.ErrShuttingDown
	default:
	}

	acquire, cancel := context.WithTimeout(ctx, e.opts.AcquireTimeout)
	defer cancel()
	select {
	case e.sem <- struct{}{}:
	case <-e.shutdown.Done():
		metrics.GenerationRejects.WithLabelValues("shutdown").Inc()
		return domain.GeneratedContent{}, domain.ErrShuttingDown
	case <-acquire.Done():
		// Отмена своего контекста — не backpressure: ErrBusy здесь заставил
		// бы вызывающего ретраить уже ненужную работу.
		if ctx.Err() != nil {
			metrics.GenerationRejects.WithLabelValues("canceled").Inc()
			return domain.GeneratedContent{}, fmt.Errorf("ожидание слота: %w", ctx.Err())
		}
		metrics.GenerationRejects.WithLabelValues("busy").Inc()
		return domain.GeneratedContent{}, domain.ErrBusy
	}
	defer func() { <-e.sem }()

	// Повторная проверка: остановку могли объявить, пока мы ждали слот.
	select {
	case <-e.shutdown.Done():
		metrics.GenerationRejects.WithLabelValues("shutdown").Inc()
		return domain.GeneratedContent{}, domain.ErrShuttingDown
	default:
	}

	metrics.GenerationInFlight.Inc()
	defer metrics.GenerationInFlight.Dec()

	callCtx, callCancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.CallTimeout)
	defer callCancel()

	start := time.Now()
	content, err := e.generator.Generate(callCtx, req)
	metrics.ObserveGeneration(string(req.Pipeline), start)
	if err != nil {
		return domain.GeneratedContent{}, fmt.Errorf("генерация контента: %w", err)
	}
	return content, nil
}

// Drain дожидается завершения всех текущих генераций, не дольше
// DrainTimeout. Вызывается из последовательности остановки процесса, чтобы
// ни одна генерация не осталась брошенной после списания.
func (e *Executor) Drain(ctx context.Context) error {
	deadline, cancel := context.WithTimeout(ctx, e.opts.DrainTimeout)
	defer cancel()
	for i := 0; i < cap(e.sem); i++ {
		select {
		case e.sem <- struct{}{}:
		case <-deadline.Done():
			e.log.Error().Int("drained", i).Int("slots", cap(e.sem)).Msg("executor: дренаж прерван по таймауту")
			return fmt.Errorf("дренаж генераций: %w", deadline.Err())
		}
	}
	for i := 0; i < cap(e.sem); i++ {
		<-e.sem
	}
	e.log.Info().Msg("executor: все генерации завершены")
	return nil
}
