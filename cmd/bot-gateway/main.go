package main

import (
	"context"
	"encoding/json"
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

	"github.com/GVMBT/seo-master-sub004/internal/adapters/bot"
	"github.com/GVMBT/seo-master-sub004/internal/adapters/generator"
	"github.com/GVMBT/seo-master-sub004/internal/adapters/repo"
	"github.com/GVMBT/seo-master-sub004/internal/adapters/telegram"
	"github.com/GVMBT/seo-master-sub004/internal/adapters/wordpress"
	"github.com/GVMBT/seo-master-sub004/internal/domain"
	"github.com/GVMBT/seo-master-sub004/internal/infra/cache"
	"github.com/GVMBT/seo-master-sub004/internal/infra/config"
	"github.com/GVMBT/seo-master-sub004/internal/infra/db"
	infrahttp "github.com/GVMBT/seo-master-sub004/internal/infra/http"
	"github.com/GVMBT/seo-master-sub004/internal/infra/log"
	"github.com/GVMBT/seo-master-sub004/internal/infra/metrics"
	"github.com/GVMBT/seo-master-sub004/internal/infra/openai"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/generate"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/idem"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/ledger"
	"github.com/GVMBT/seo-master-sub004/internal/usecase/pipeline"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "bot-gateway")

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

	users := repo.NewUsers(pool)
	projects := repo.NewProjects(pool)
	conns := repo.NewConnections(pool)
	categories := repo.NewCategories(pool)
	drafts := repo.NewDrafts(pool)

	ledgerSvc := ledger.NewService(rootCtx, repo.NewLedger(pool), logger)

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}

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

	store := pipeline.NewStore(kv, cfg.Pipeline.SessionTTL, cfg.Pipeline.CheckpointTTL)
	pipelineSvc := pipeline.NewService(
		projects, conns, categories, drafts,
		ledgerSvc, exec, idem.NewLocker(kv), wp, publishers, store,
		pipeline.Options{FreeRegens: cfg.Pipeline.FreeRegens, ActionTTL: cfg.Locks.ActionTTL},
		logger, uuid.NewString,
	)

	h := bot.NewHandler(botAPI, logger, users, pipelineSvc, store)

	r := infrahttp.NewRouter()
	r.With(infrahttp.BotSecretMiddleware(cfg.Telegram.WebhookSecret, logger)).
		Post("/bot/webhook", func(w http.ResponseWriter, req *http.Request) {
			var update tgbotapi.Update
			if err := json.NewDecoder(req.Body).Decode(&update); err != nil {
				infrahttp.WriteError(w, http.StatusBadRequest, "bad update")
				return
			}
			h.HandleUpdate(req.Context(), update)
			w.WriteHeader(http.StatusOK)
		})

	metrics.MustRegister(prometheus.DefaultRegisterer)
	metrics.StartServer(rootCtx, logger, cfg.MetricsAddr)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("бот-гейтвей запущен")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка: новые генерации отклоняются, текущие дорабатывают")
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
