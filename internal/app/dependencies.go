package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/catalog"
	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/ledger"
	"github.com/vladislavdragonenkov/shopbot/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopbot/internal/metrics"
	"github.com/vladislavdragonenkov/shopbot/internal/service/checkout"
	"github.com/vladislavdragonenkov/shopbot/internal/service/command"
	"github.com/vladislavdragonenkov/shopbot/internal/service/inventory"
	"github.com/vladislavdragonenkov/shopbot/internal/service/notify"
	"github.com/vladislavdragonenkov/shopbot/internal/service/payment"
	"github.com/vladislavdragonenkov/shopbot/internal/storage/memory"
	"github.com/vladislavdragonenkov/shopbot/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Catalog   *catalog.Cache
	Inventory domain.InventoryService
	Gateway   domain.PaymentGateway
	Notifier  domain.Notifier
	Admins    *notify.AdminNotifier
	Dedup     domain.DedupGuard
	Journal   domain.JournalRepository
	// Outbox и Kafka заданы только при настроенных брокерах.
	Outbox   domain.OutboxRepository
	Kafka    *kafka.Producer
	Ledger   *ledger.Ledger
	Checkout *checkout.Service
	Commands *command.Router
	Metrics  *metrics.LedgerMetrics
	Store    *postgres.Store
	Logger   *log.Entry
}

// NewDependencies собирает граф зависимостей по конфигурации.
// Ошибка Kafka не фатальна: сервис работает без публикации событий.
func NewDependencies(ctx context.Context, cfg Config, registerer prometheus.Registerer, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		Logger:  logger,
		Metrics: metrics.NewLedgerMetricsWithRegisterer(registerer),
		Dedup:   memory.NewDedupGuard(),
	}

	deps.Catalog = newCatalog(cfg.Catalog, cfg.Admin.Contact, logger)

	gateway, err := payment.New(payment.Config{
		Provider:      cfg.Payment.Provider,
		ServerKey:     cfg.Payment.ServerKey,
		Production:    cfg.Payment.Production,
		PublicBaseURL: cfg.HTTP.PublicBaseURL,
		Timeout:       cfg.Payment.Timeout,
	}, log.WithField("component", "payment"))
	if err != nil {
		return nil, fmt.Errorf("payment gateway: %w", err)
	}
	deps.Gateway = gateway

	deps.Inventory = newInventory(cfg.Inventory, logger)
	deps.Notifier = newNotifier(cfg.Chat, logger)
	deps.Admins = notify.NewAdminNotifier(deps.Notifier, cfg.Admin.Refs, log.WithField("component", "admin-notifier"))

	journal, store, err := initJournal(ctx, cfg.Journal, logger)
	if err != nil {
		return nil, err
	}
	deps.Journal = journal
	deps.Store = store
	if store != nil && registerer != nil {
		if err := registerer.Register(store.Collector()); err != nil {
			logger.WithError(err).Warn("journal pool metrics are not registered")
		}
	}

	if producer, err := initKafkaProducer(cfg.Kafka, logger); err == nil && producer != nil {
		deps.Kafka = producer
		deps.Outbox = initOutbox(store)
	}

	ledgerOpts := []ledger.Option{
		ledger.WithLogger(log.WithField("component", "ledger")),
		ledger.WithPaymentTTL(cfg.Ledger.PaymentTTL),
		ledger.WithDedupWindow(cfg.Ledger.DedupWindow),
		ledger.WithSideEffectTimeout(cfg.Ledger.SideEffectTimeout),
		ledger.WithJournal(deps.Journal),
		ledger.WithMetrics(deps.Metrics),
	}
	if deps.Outbox != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithOutbox(deps.Outbox))
	}
	deps.Ledger = ledger.New(deps.Inventory, deps.Notifier, deps.Catalog, deps.Dedup, ledgerOpts...)

	deps.Checkout = checkout.NewService(deps.Catalog, deps.Ledger, deps.Gateway, deps.Notifier,
		checkout.WithLogger(log.WithField("component", "checkout")),
		checkout.WithMetrics(deps.Metrics),
		checkout.WithQRSize(cfg.Chat.QRSize),
		checkout.WithAfterDecisionTimeout(cfg.Ledger.SideEffectTimeout),
	)
	deps.Ledger.SetExpiryHandler(deps.Checkout.OnExpired)

	deps.Commands = command.NewRouter(deps.Catalog, deps.Checkout, deps.Notifier, deps.Admins,
		command.WithLogger(log.WithField("component", "commands")),
		command.WithCooldown(cfg.Chat.Cooldown),
		command.WithPerPage(cfg.Chat.PageSize),
		command.WithAdminContact(cfg.Admin.Contact),
	)

	return deps, nil
}

// Close освобождает внешние ресурсы. Вызывается после остановки реестра и воркеров.
func (d *Dependencies) Close() {
	closeKafka(d.Kafka, d.Logger)
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close journal store")
		}
	}
}

func newCatalog(cfg CatalogConfig, adminContact string, logger *log.Entry) *catalog.Cache {
	opts := []catalog.Option{
		catalog.WithTTL(cfg.TTL),
		catalog.WithQuietMode(cfg.QuietMode),
		catalog.WithLogger(log.WithField("component", "catalog")),
	}
	if cfg.PromosURL != "" {
		opts = append(opts, catalog.WithPromoSource(catalog.NewHTTPSource(cfg.PromosURL, cfg.Timeout)))
	}
	if cfg.PaymentURL != "" {
		opts = append(opts, catalog.WithPaymentSource(catalog.NewHTTPSource(cfg.PaymentURL, cfg.Timeout)))
	}
	var products catalog.Source = catalog.NewHTTPSource(cfg.ProductsURL, cfg.Timeout)
	if cfg.ProductsURL == "" {
		logger.Warn("products sheet is not configured, serving the sample catalog")
		products = catalog.SampleProducts(adminContact)
	}
	return catalog.New(products, opts...)
}

func newInventory(cfg InventoryConfig, logger *log.Entry) domain.InventoryService {
	if cfg.Mock {
		logger.Warn("using in-process inventory mock with unlimited stock")
		mock := inventory.NewMockService()
		mock.Unlimited = true
		return mock
	}
	if cfg.URL == "" {
		logger.Warn("inventory url is not configured, every reservation will be denied")
	}
	return inventory.NewClient(inventory.Config{
		URL:     cfg.URL,
		Secret:  cfg.Secret,
		Timeout: cfg.Timeout,
	}, log.WithField("component", "inventory-client"))
}

func newNotifier(cfg ChatConfig, logger *log.Entry) domain.Notifier {
	if cfg.BridgeURL == "" {
		logger.Warn("chat bridge is not configured, messages are only logged")
		return notify.NewLogDispatcher(log.WithField("component", "chat-log"))
	}
	return notify.NewBridgeDispatcher(notify.BridgeConfig{
		URL:   cfg.BridgeURL,
		Token: cfg.BridgeToken,
	}, log.WithField("component", "chat-bridge"))
}
