package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/GVMBT/seo-master-sub004/internal/adapters/telegram"
	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/config"
	"github.com/GVMBT/seo-master-sub004/internal/infra/log"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
	"github.com/GVMBT/seo-master-sub004/internal/infra/queue"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/notify"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "notify-worker")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	notifier := telegram.NewNotifier(botAPI)

	var notifyQueue domain.NotifyQueue
	switch cfg.Queues.NotifyBackend {
	case "amqp":
		amqpQueue, err := queue.NewAMQPNotifyQueue(cfg.Queues.AMQPURL, cfg.Queues.NotifyQueue)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к AMQP")
		}
		defer amqpQueue.Close()
		notifyQueue = amqpQueue
	default:
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		notifyQueue = queue.NewRedisNotifyQueue(redisClient, cfg.Queues.NotifyQueue)
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)
	metrics.StartServer(rootCtx, logger, cfg.MetricsAddr)

	worker := notify.NewWorker(notifyQueue, notifier, logger)
	done := make(chan error, 1)
	go func() { done <- worker.Run(rootCtx) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	select {
	case <-stop:
		logger.Info().Msg("остановка воркера уведомлений")
		rootCancel()
		<-done
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("воркер уведомлений завершился с ошибкой")
		}
	}
}
