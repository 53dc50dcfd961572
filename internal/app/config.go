package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
)

const defaultHTTPAddr = ":3000"

// Config — полная конфигурация сервиса. Источники по приоритету: флаги,
// переменные окружения с префиксом SHOPBOT_, shopbot.yaml, значения по умолчанию.
type Config struct {
	HTTP      HTTPConfig
	Metrics   MetricsConfig
	GRPC      GRPCConfig
	Log       LogConfig
	Ledger    LedgerConfig
	Catalog   CatalogConfig
	Inventory InventoryConfig
	Payment   PaymentConfig
	Chat      ChatConfig
	Admin     AdminConfig
	Kafka     KafkaConfig
	Journal   JournalConfig
	Outbox    OutboxConfig
}

// HTTPConfig — публичный HTTP: webhook, админские и чатовые эндпоинты.
type HTTPConfig struct {
	Addr          string `default:":3000" usage:"HTTP listen address (PORT overrides the port)"`
	PublicBaseURL string `default:"" usage:"External base URL used for payment finish redirect" flag:"public-base-url"`
}

// MetricsConfig — отдельный сервер /metrics, /healthz, /livez, /readyz.
type MetricsConfig struct {
	Addr string `default:":9090" usage:"Metrics and health listen address"`
}

// GRPCConfig — gRPC health/reflection сервер. Пустой адрес отключает его.
type GRPCConfig struct {
	Addr string `default:"" usage:"gRPC health server address, empty disables"`
}

// LogConfig — уровень и формат logrus.
type LogConfig struct {
	Level  string `default:"info" usage:"Log level: debug, info, warn, error"`
	Format string `default:"text" usage:"Log format: text or json"`
}

// LedgerConfig — окно оплаты и защита от повторной финализации.
type LedgerConfig struct {
	PaymentTTL        time.Duration `default:"20m" usage:"Payment window before a pending order is released" flag:"payment-ttl"`
	DedupWindow       time.Duration `default:"10m" usage:"How long finalized order ids are remembered"`
	DedupSweep        time.Duration `default:"1m" usage:"Dedup guard sweep interval"`
	SideEffectTimeout time.Duration `default:"30s" usage:"Timeout for inventory and notification calls after a decision"`
}

// CatalogConfig — опубликованные таблицы товаров, промо и способов оплаты.
type CatalogConfig struct {
	ProductsURL string        `default:"" usage:"Published CSV of products" flag:"sheet-url"`
	PromosURL   string        `default:"" usage:"Published CSV of promos" flag:"sheet-url-promo"`
	PaymentURL  string        `default:"" usage:"Published CSV of payment methods" flag:"sheet-url-payment"`
	TTL         time.Duration `default:"5m" usage:"Catalog cache TTL"`
	Timeout     time.Duration `default:"15s" usage:"Sheet download timeout"`
	StaleAfter  time.Duration `default:"30m" usage:"Catalog age reported as degraded by /healthz"`
	QuietMode   bool          `default:"true" usage:"Ignore free-text product queries"`
}

// InventoryConfig — складской скрипт.
type InventoryConfig struct {
	URL     string        `default:"" usage:"Inventory script URL, empty denies every reservation"`
	Secret  string        `default:"" usage:"Shared secret sent to the inventory script"`
	Timeout time.Duration `default:"20s" usage:"Inventory request timeout"`
	Mock    bool          `default:"false" usage:"Use in-process inventory mock"`
}

// PaymentConfig — платёжный шлюз.
type PaymentConfig struct {
	Provider   string        `default:"midtrans" usage:"Payment provider: midtrans or mock"`
	ServerKey  string        `default:"" usage:"Gateway server key"`
	Production bool          `default:"true" usage:"Use gateway production endpoints"`
	Timeout    time.Duration `default:"20s" usage:"Gateway request timeout"`
}

// ChatConfig — мост чата и поведение команд.
type ChatConfig struct {
	BridgeURL    string        `default:"" usage:"Chat bridge base URL, empty logs messages instead"`
	BridgeToken  string        `default:"" usage:"Bearer token for the chat bridge"`
	InboundToken string        `default:"" usage:"Token required on /chat/inbound, empty disables the check"`
	Cooldown     time.Duration `default:"2s" usage:"Per-buyer command cooldown"`
	PageSize     int           `default:"8" usage:"Products per #list page"`
	QRSize       int           `default:"512" usage:"Payment QR image size in pixels"`
}

// AdminConfig — администраторы магазина.
type AdminConfig struct {
	Secret  string   `default:"" usage:"Shared secret for /admin endpoints"`
	Refs    []string `default:"" usage:"Admin chat refs, comma separated"`
	Contact string   `default:"" usage:"Admin phone for #beli links"`
}

// KafkaConfig — публикация событий жизненного цикла заказа.
type KafkaConfig struct {
	Brokers  []string `default:"" usage:"Kafka brokers, empty disables event publishing"`
	Topic    string   `default:"shopbot.order.events" usage:"Order events topic"`
	ClientID string   `default:"shopbot" usage:"Kafka client id"`
	// AckTimeout 0 оставляет значение sarama по умолчанию.
	AckTimeout time.Duration `default:"10s" usage:"Broker acknowledgement timeout"`
}

// JournalConfig — журнал продаж.
type JournalConfig struct {
	Driver      string `default:"memory" usage:"Journal driver: memory or postgres"`
	DSN         string `default:"" usage:"Postgres DSN for the postgres driver"`
	AutoMigrate bool   `default:"true" usage:"Apply embedded migrations on start"`
	MaxConns    int    `default:"10" usage:"Journal connection pool size"`
}

// OutboxConfig — воркер outbox.
type OutboxConfig struct {
	PollInterval time.Duration `default:"1s" usage:"Outbox poll interval"`
	BatchSize    int           `default:"50" usage:"Outbox batch size"`
	MaxAttempts  int           `default:"5" usage:"Publish attempts before the message is parked"`
	RetryDelay   time.Duration `default:"2s" usage:"Base delay between publish attempts"`
	DrainTimeout time.Duration `default:"5s" usage:"How long shutdown waits for pending events to be published"`
	MaxLag       time.Duration `default:"2m" usage:"Pending event age after which health reports degraded"`
}

// DefaultConfig возвращает значения по умолчанию без чтения окружения.
func DefaultConfig() Config {
	return Config{
		HTTP:    HTTPConfig{Addr: defaultHTTPAddr},
		Metrics: MetricsConfig{Addr: ":9090"},
		Log:     LogConfig{Level: "info", Format: "text"},
		Ledger: LedgerConfig{
			PaymentTTL:        20 * time.Minute,
			DedupWindow:       10 * time.Minute,
			DedupSweep:        time.Minute,
			SideEffectTimeout: 30 * time.Second,
		},
		Catalog: CatalogConfig{
			TTL:        5 * time.Minute,
			Timeout:    15 * time.Second,
			StaleAfter: 30 * time.Minute,
			QuietMode:  true,
		},
		Inventory: InventoryConfig{Timeout: 20 * time.Second},
		Payment:   PaymentConfig{Provider: "midtrans", Production: true, Timeout: 20 * time.Second},
		Chat:      ChatConfig{Cooldown: 2 * time.Second, PageSize: 8, QRSize: 512},
		Kafka:     KafkaConfig{Topic: "shopbot.order.events", ClientID: "shopbot", AckTimeout: 10 * time.Second},
		Journal:   JournalConfig{Driver: JournalMemory, AutoMigrate: true, MaxConns: 10},
		Outbox: OutboxConfig{
			PollInterval: time.Second,
			BatchSize:    50,
			MaxAttempts:  5,
			RetryDelay:   2 * time.Second,
			DrainTimeout: 5 * time.Second,
			MaxLag:       2 * time.Minute,
		},
	}
}

const (
	JournalMemory   = "memory"
	JournalPostgres = "postgres"
)

// LoadConfig читает конфигурацию. args — аргументы командной строки без имени программы;
// nil означает os.Args.
func LoadConfig(args []string) (Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        "SHOPBOT",
		AllowUnknownEnvs: true,
		Args:             args,
		Files:            []string{"shopbot.yaml", "/etc/shopbot/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.applyPlatformDefaults()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyPlatformDefaults учитывает PORT, который выставляют PaaS-платформы.
func (c *Config) applyPlatformDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.HTTP.Addr == defaultHTTPAddr {
		c.HTTP.Addr = ":" + port
	}
}

func (c *Config) normalize() {
	c.Admin.Refs = compact(c.Admin.Refs)
	c.Kafka.Brokers = compact(c.Kafka.Brokers)
	c.Journal.Driver = strings.ToLower(strings.TrimSpace(c.Journal.Driver))
	c.Payment.Provider = strings.ToLower(strings.TrimSpace(c.Payment.Provider))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

// Validate проверяет сочетания параметров, которые нельзя выразить значениями по умолчанию.
func (c Config) Validate() error {
	switch c.Journal.Driver {
	case JournalMemory:
	case JournalPostgres:
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal driver %q requires a DSN", JournalPostgres)
		}
	default:
		return fmt.Errorf("unknown journal driver %q", c.Journal.Driver)
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http address is required")
	}
	if c.Ledger.PaymentTTL <= 0 {
		return fmt.Errorf("payment ttl must be positive")
	}
	if c.Chat.PageSize <= 0 {
		return fmt.Errorf("chat page size must be positive")
	}
	return nil
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
