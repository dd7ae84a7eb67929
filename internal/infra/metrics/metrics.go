package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	GenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "generation_duration_seconds",
		Help:    "Длительность генерации контента",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"pipeline"})

	GenerationRejects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_rejects_total",
		Help: "Отказы генерации по причинам (busy, shutdown)",
	}, []string{"reason"})

	GenerationInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "generation_in_flight",
		Help: "Текущее количество генераций",
	})

	TokensCharged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokens_charged_total",
		Help: "Списанные токены",
	})

	TokensRefunded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokens_refunded_total",
		Help: "Возвращённые токены",
	})

	BalanceCASConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balance_cas_conflicts_total",
		Help: "Промахи CAS при обновлении баланса",
	})

	BalanceFallbackCalls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balance_fallback_calls_total",
		Help: "Обращения к CAS-фолбэку вместо хранимой процедуры",
	})

	WebhookRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_requests_total",
		Help: "Запросы вебхуков по эндпоинту и статусу ответа",
	}, []string{"endpoint", "status"})

	WebhookDuplicates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_duplicates_total",
		Help: "Повторные доставки, поглощённые идемпотентным замком",
	}, []string{"endpoint"})

	PublishResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_results_total",
		Help: "Результаты публикаций по площадке и статусу",
	}, []string{"platform", "status"})

	DraftTransitionLost = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "draft_transition_lost_total",
		Help: "Проигранные CAS-переходы статуса черновика",
	}, []string{"to"})

	NotifySendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_send_errors_total",
		Help: "Ошибки отправки уведомлений",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		GenerationDuration,
		GenerationRejects,
		GenerationInFlight,
		TokensCharged,
		TokensRefunded,
		BalanceCASConflicts,
		BalanceFallbackCalls,
		WebhookRequests,
		WebhookDuplicates,
		PublishResults,
		DraftTransitionLost,
		NotifySendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveGeneration записывает результат одной генерации.
func ObserveGeneration(pipeline string, start time.Time) {
	GenerationDuration.WithLabelValues(pipeline).Observe(time.Since(start).Seconds())
}
