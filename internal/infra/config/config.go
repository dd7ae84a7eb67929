package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"Europe/Moscow"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Telegram struct {
		Token         string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL    string `envconfig:"TG_WEBHOOK_URL"`
		WebhookSecret string `envconfig:"TG_WEBHOOK_SECRET"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	QStash struct {
		CurrentSigningKey string `envconfig:"QSTASH_CURRENT_SIGNING_KEY"`
		NextSigningKey    string `envconfig:"QSTASH_NEXT_SIGNING_KEY"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"120s"`
	} `envconfig:""`

	YooKassa struct {
		ShopID    string        `envconfig:"YOOKASSA_SHOP_ID"`
		SecretKey string        `envconfig:"YOOKASSA_SECRET_KEY"`
		BaseURL   string        `envconfig:"YOOKASSA_BASE_URL"`
		Timeout   time.Duration `envconfig:"YOOKASSA_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Generation struct {
		Slots          int           `envconfig:"GENERATION_SLOTS" default:"10"`
		AcquireTimeout time.Duration `envconfig:"GENERATION_ACQUIRE_TIMEOUT" default:"5m"`
		CallTimeout    time.Duration `envconfig:"GENERATION_CALL_TIMEOUT" default:"10m"`
		DrainTimeout   time.Duration `envconfig:"GENERATION_DRAIN_TIMEOUT" default:"10m"`
	} `envconfig:""`

	Pipeline struct {
		SessionTTL      time.Duration `envconfig:"PIPELINE_SESSION_TTL" default:"1h"`
		CheckpointTTL   time.Duration `envconfig:"PIPELINE_CHECKPOINT_TTL" default:"24h"`
		FreeRegens      int           `envconfig:"PIPELINE_FREE_REGENS" default:"2"`
		DraftExpiryAge  time.Duration `envconfig:"DRAFT_EXPIRY_AGE" default:"24h"`
		LedgerRetention time.Duration `envconfig:"LEDGER_RETENTION" default:"2160h"`
	} `envconfig:""`

	Locks struct {
		ActionTTL  time.Duration `envconfig:"LOCK_ACTION_TTL" default:"60s"`
		WebhookTTL time.Duration `envconfig:"LOCK_WEBHOOK_TTL" default:"1h"`
		RenewalTTL time.Duration `envconfig:"LOCK_RENEWAL_TTL" default:"1h"`
	} `envconfig:""`

	Queues struct {
		AMQPURL       string `envconfig:"AMQP_URL"`
		NotifyQueue   string `envconfig:"NOTIFY_QUEUE_KEY" default:"notify_jobs"`
		NotifyBackend string `envconfig:"NOTIFY_QUEUE_BACKEND" default:"redis"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
