package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/GVMBT/seo-master-sub004/internal/adapters/generator"
	"github.com/GVMBT/seo-master-sub004/internal/adapters/hooks"
	"github.com/GVMBT/seo-master-sub004/internal/adapters/qstash"
	"github.com/GVMBT/seo-master-sub004/internal/adapters/repo"
	"github.com/GVMBT/seo-master-sub004/internal/adapters/telegram"
	"github.com/GVMBT/seo-master-sub004/internal/adapters/wordpress"
	"github.com/GVMBT/seo-master-sub004/internal/adapters/yookassa"
	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/cache"
	"github.com/GVMBT/seo-master-sub004/internal/infra/config"
	"github.com/GVMBT/seo-master-sub004/internal/infra/db"
	infrahttp "github.com/GVMBT/seo-master-sub004/internal/infra/http"
	"github.com/GVMBT/seo-master-sub004/internal/infra/log"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
	"github.com/GVMBT/seo-master-sub004/internal/infra/openai"
	"github.com/GVMBT/seo-master-sub004/internal/infra/queue"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/autopublish"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/cleanup"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/generate"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/idem"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/ledger"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/notify"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/renew"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "hooks")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	kv := cache.NewRedisKV(redisClient)
	locker := idem.NewLocker(kv)

	users := repo.NewUsers(pool)
	conns := repo.NewConnections(pool)
	categories := repo.NewCategories(pool)
	drafts := repo.NewDrafts(pool)
	ledgerRepo := repo.NewLedger(pool)

	ledgerSvc := ledger.NewService(rootCtx, ledgerRepo, logger)

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	notifier := telegram.NewNotifier(botAPI)

	openaiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	gen := generator.NewOpenAI(openaiClient, cfg.OpenAI.Model, "", logger)
	exec := generate.NewExecutor(gen, rootCtx, generate.Options{
		Slots:          cfg.Generation.Slots,
		AcquireTimeout: cfg.Generation.AcquireTimeout,
		CallTimeout:    cfg.Generation.CallTimeout,
		DrainTimeout:   cfg.Generation.DrainTimeout,
	}, logger)

	wp := wordpress.NewClient(30 * time.Second)
	publishers := map[domain.PlatformType]domain.Publisher{
		domain.PlatformWordPress: wp,
		domain.PlatformTelegram:  telegram.NewChannelPublisher(botAPI),
	}

	autopublishSvc := autopublish.NewService(categories, conns, drafts, ledgerSvc, exec, publishers, logger, uuid.NewString)
	cleanupSvc := cleanup.NewService(drafts, ledgerSvc, ledgerRepo, wp, notifier, cleanup.Options{
		DraftExpiryAge:  cfg.Pipeline.DraftExpiryAge,
		LedgerRetention: cfg.Pipeline.LedgerRetention,
	}, logger)

	notifyQueue, err := buildNotifyQueue(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать очередь уведомлений")
	}
	notifySvc := notify.NewService(users, notifyQueue, notify.Options{}, logger)

	payments := yookassa.NewClient(yookassa.Config{
		BaseURL:   cfg.YooKassa.BaseURL,
		ShopID:    cfg.YooKassa.ShopID,
		SecretKey: cfg.YooKassa.SecretKey,
		Timeout:   cfg.YooKassa.Timeout,
	})
	renewSvc := renew.NewService(users, ledgerSvc, payments, locker, notifier, cfg.Locks.RenewalTTL, logger)

	verifier := qstash.NewVerifier(cfg.QStash.CurrentSigningKey, cfg.QStash.NextSigningKey)
	handler := hooks.NewHandler(verifier, locker, autopublishSvc, cleanupSvc, notifySvc, renewSvc, notifier, cfg.Locks.WebhookTTL, rootCtx, logger)

	r := infrahttp.NewRouter()
	handler.Register(r)

	metrics.MustRegister(prometheus.DefaultRegisterer)
	metrics.StartServer(rootCtx, logger, cfg.MetricsAddr)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("сервер вебхуков запущен")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	// Отмена rootCtx переводит обработчик в режим 503 + Retry-After,
	// после чего дорабатывают уже начатые генерации.
	logger.Info().Msg("остановка: новые доставки получают 503")
	rootCancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Generation.DrainTimeout)
	defer drainCancel()
	if err := exec.Drain(drainCtx); err != nil {
		logger.Error().Err(err).Msg("дренаж генераций не завершился")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func buildNotifyQueue(cfg config.AppConfig, redisClient *redis.Client) (domain.NotifyQueue, error) {
	switch cfg.Queues.NotifyBackend {
	case "amqp":
		return queue.NewAMQPNotifyQueue(cfg.Queues.AMQPURL, cfg.Queues.NotifyQueue)
	default:
		return queue.NewRedisNotifyQueue(redisClient, cfg.Queues.NotifyQueue), nil
	}
}
