// Package checkout связывает каталог, реестр заказов, платёжный шлюз и чат:
// оформление покупки, разбор уведомлений об оплате и сообщения покупателю.
package checkout

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/ledger"
	"github.com/vladislavdragonenkov/shopbot/internal/metrics"
)

const (
	defaultQRSize           = 512
	defaultAfterDecisionTTL = 30 * time.Second
)

// Catalog — то, что checkout нужно от каталога.
type Catalog interface {
	Ensure(ctx context.Context) error
	ByCode(code string) (domain.Product, bool)
	PromosConfigured() bool
}

// Ledger — операции реестра заказов.
type Ledger interface {
	Create(ctx context.Context, req ledger.CreateRequest) (domain.Order, error)
	AttachNotification(ctx context.Context, orderID string, handle domain.NotificationHandle) error
	Finalize(ctx context.Context, orderID string, settledAmount int64, opts ...ledger.FinalizeOption) (ledger.FinalizeResult, error)
	Release(ctx context.Context, orderID, reason string) (ledger.ReleaseResult, error)
}

// Options настраивает Service.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.LedgerMetrics
	QRSize  int
	Clock   func() time.Time
	// AfterDecisionTimeout ограничивает отправки после финализации или освобождения заказа.
	AfterDecisionTimeout time.Duration
}

// Option изменяет Options.
type Option func(*Options)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithMetrics подключает метрики (ошибки отправки сообщений, webhook).
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithQRSize задаёт размер PNG с QR в пикселях.
func WithQRSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.QRSize = size
		}
	}
}

// WithAfterDecisionTimeout задаёт таймаут сообщений, отправляемых после решения по заказу.
func WithAfterDecisionTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout > 0 {
			o.AfterDecisionTimeout = timeout
		}
	}
}

// WithClock подменяет часы (для тестов).
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Clock = now
		}
	}
}

// Service — сценарии покупки поверх реестра.
type Service struct {
	catalog  Catalog
	ledger   Ledger
	gateway  domain.PaymentGateway
	notifier domain.Notifier
	metrics  *metrics.LedgerMetrics
	logger   *log.Entry
	qrSize   int
	now      func() time.Time
	// afterDecision — таймаут отвязанного контекста для действий после решения.
	afterDecision time.Duration
}

// NewService создаёт сервис оформления заказов.
func NewService(catalog Catalog, l Ledger, gateway domain.PaymentGateway, notifier domain.Notifier, opts ...Option) *Service {
	o := Options{QRSize: defaultQRSize, Clock: time.Now, AfterDecisionTimeout: defaultAfterDecisionTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = log.WithField("component", "checkout")
	}
	return &Service{
		catalog:  catalog,
		ledger:   l,
		gateway:  gateway,
		notifier: notifier,
		metrics:  o.Metrics,
		logger:   o.Logger,
		qrSize:   o.QRSize,
		now:      o.Clock,

		afterDecision: o.AfterDecisionTimeout,
	}
}

// detached отвязывает ctx от отмены вызывающего и ограничивает его afterDecision.
func (s *Service) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.afterDecision)
}

// send отправляет сообщение; ошибка только логируется.
func (s *Service) send(ctx context.Context, buyerRef string, msg domain.Message) (domain.NotificationHandle, bool) {
	h, err := s.notifier.Send(ctx, buyerRef, msg)
	if err != nil {
		s.metrics.RecordNotificationFailure("send")
		s.logger.WithError(err).WithField("buyer_ref", buyerRef).Warn("send notification failed")
		return domain.NotificationHandle{}, false
	}
	return h, true
}
