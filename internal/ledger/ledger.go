// Package ledger хранит заказы, ожидающие оплату, и решает их судьбу.
//
// Все изменения реестра выполняет одна горутина Run. Команды (регистрация,
// прикрепление сообщений, запросы) и терминальные события (finalize, release,
// истечение таймера) приходят через каналы; проверка наличия заказа и смена
// статуса происходят только внутри цикла и никогда не ждут I/O. Побочные
// эффекты победителя (склад, удаление сообщений, журнал) выполняются после
// ответа цикла, в горутине вызывающего.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/metrics"
	"github.com/vladislavdragonenkov/shopbot/internal/promo"
	"github.com/vladislavdragonenkov/shopbot/internal/storage/memory"
)

const (
	defaultPaymentTTL        = 20 * time.Minute
	defaultDedupWindow       = 10 * time.Minute
	defaultSideEffectTimeout = 15 * time.Second
	defaultOrderIDPrefix     = "PBS"
)

// ExpiryHandler вызывается один раз для каждого заказа, который реестр освободил сам
// (истёк таймер оплаты или сервис останавливается).
type ExpiryHandler func(ctx context.Context, res ReleaseResult)

// Options задаёт параметры реестра.
type Options struct {
	Logger            *log.Entry
	PaymentTTL        time.Duration
	DedupWindow       time.Duration
	SideEffectTimeout time.Duration
	OrderIDPrefix     string
	Journal           domain.JournalRepository
	Outbox            domain.OutboxRepository
	Metrics           *metrics.LedgerMetrics
	Clock             func() time.Time
}

// Option настраивает Ledger.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithPaymentTTL задаёт время ожидания оплаты.
func WithPaymentTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.PaymentTTL = ttl
	}
}

// WithDedupWindow задаёт, сколько помнить финализированные заказы.
func WithDedupWindow(window time.Duration) Option {
	return func(opts *Options) {
		opts.DedupWindow = window
	}
}

// WithSideEffectTimeout ограничивает время внешних вызовов после терминального перехода.
func WithSideEffectTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.SideEffectTimeout = timeout
	}
}

// WithOrderIDPrefix задаёт префикс генерируемых order_id.
func WithOrderIDPrefix(prefix string) Option {
	return func(opts *Options) {
		opts.OrderIDPrefix = prefix
	}
}

// WithJournal подключает журнал продаж.
func WithJournal(journal domain.JournalRepository) Option {
	return func(opts *Options) {
		opts.Journal = journal
	}
}

// WithOutbox подключает outbox для событий жизненного цикла.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(opts *Options) {
		opts.Outbox = outbox
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// CreateRequest — данные нового заказа. OrderID генерируется, если пуст.
type CreateRequest struct {
	OrderID     string
	BuyerRef    string
	ProductCode string
	ProductName string
	Quantity    int
	UnitPrice   int64
	PromoCode   string
}

// entry — заказ в реестре. order меняется только в цикле Run.
type entry struct {
	order   domain.Order
	timer   *time.Timer
	stopped atomic.Bool
}

// stop отменяет таймер. Флаг проверяется в колбэке, если таймер уже сработал.
func (e *entry) stop() {
	e.stopped.Store(true)
	if e.timer != nil {
		e.timer.Stop()
	}
}

type controlOp int

const (
	opRegister controlOp = iota + 1
	opAttach
	opGet
	opCount
)

type control struct {
	op      controlOp
	orderID string
	entry   *entry
	handle  domain.NotificationHandle
	reply   chan controlReply
}

type controlReply struct {
	order domain.Order
	found bool
	count int
	err   error
}

// Ledger — реестр заказов в ожидании оплаты.
type Ledger struct {
	inventory domain.InventoryService
	notifier  domain.Notifier
	promos    domain.PromoSource
	dedup     domain.DedupGuard
	journal   domain.JournalRepository
	outbox    domain.OutboxRepository
	metrics   *metrics.LedgerMetrics
	logger    *log.Entry

	ttl               time.Duration
	dedupWindow       time.Duration
	sideEffectTimeout time.Duration
	now               func() time.Time
	ids               *idGenerator

	hookMu   sync.RWMutex
	onExpire ExpiryHandler

	terminal chan TerminalEvent
	control  chan control
	done     chan struct{}
	running  atomic.Bool

	// orders принадлежит горутине Run.
	orders map[string]*entry
}

// New создаёт реестр. Цикл запускается через Run.
func New(
	inventory domain.InventoryService,
	notifier domain.Notifier,
	promos domain.PromoSource,
	dedup domain.DedupGuard,
	options ...Option,
) *Ledger {
	opts := Options{
		PaymentTTL:        defaultPaymentTTL,
		DedupWindow:       defaultDedupWindow,
		SideEffectTimeout: defaultSideEffectTimeout,
		OrderIDPrefix:     defaultOrderIDPrefix,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "ledger")
	}
	if opts.PaymentTTL <= 0 {
		opts.PaymentTTL = defaultPaymentTTL
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = defaultDedupWindow
	}
	if opts.SideEffectTimeout <= 0 {
		opts.SideEffectTimeout = defaultSideEffectTimeout
	}
	if opts.OrderIDPrefix == "" {
		opts.OrderIDPrefix = defaultOrderIDPrefix
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if dedup == nil {
		dedup = memory.NewDedupGuard()
	}

	return &Ledger{
		inventory:         inventory,
		notifier:          notifier,
		promos:            promos,
		dedup:             dedup,
		journal:           opts.Journal,
		outbox:            opts.Outbox,
		metrics:           opts.Metrics,
		logger:            logger,
		ttl:               opts.PaymentTTL,
		dedupWindow:       opts.DedupWindow,
		sideEffectTimeout: opts.SideEffectTimeout,
		now:               opts.Clock,
		ids:               newIDGenerator(opts.OrderIDPrefix, opts.Clock),
		terminal:          make(chan TerminalEvent),
		control:           make(chan control),
		done:              make(chan struct{}),
		orders:            make(map[string]*entry),
	}
}

// SetExpiryHandler задаёт обработчик заказов, освобождённых реестром.
func (l *Ledger) SetExpiryHandler(h ExpiryHandler) {
	l.hookMu.Lock()
	defer l.hookMu.Unlock()
	l.onExpire = h
}

func (l *Ledger) expiryHandler() ExpiryHandler {
	l.hookMu.RLock()
	defer l.hookMu.RUnlock()
	return l.onExpire
}

// Run обслуживает реестр до отмены ctx. После остановки все ожидающие заказы
// освобождаются с причиной shutdown, новые команды получают ErrLedgerClosed.
func (l *Ledger) Run(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		l.logger.Warn("ledger loop is already running")
		return
	}

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return
		case ev := <-l.terminal:
			ev.reply <- l.decide(ev)
		case c := <-l.control:
			c.reply <- l.apply(c)
		}
	}
}

// Done закрывается после остановки цикла.
func (l *Ledger) Done() <-chan struct{} {
	return l.done
}

func (l *Ledger) shutdown() {
	pending := make([]domain.Order, 0, len(l.orders))
	for id, e := range l.orders {
		e.stop()
		order := e.order.Clone()
		order.Status = domain.OrderStatusReleased
		pending = append(pending, order)
		delete(l.orders, id)
	}
	l.metrics.SetPendingOrders(0)
	close(l.done)

	if len(pending) > 0 {
		l.logger.WithField("pending", len(pending)).Info("releasing pending orders on shutdown")
	}
	for _, order := range pending {
		res := l.afterRelease(context.Background(), order, domain.ReleaseReasonShutdown)
		l.runExpiryHandler(res)
	}
}

// apply выполняет управляющую команду внутри цикла.
func (l *Ledger) apply(c control) controlReply {
	switch c.op {
	case opRegister:
		id := c.entry.order.ID
		if _, exists := l.orders[id]; exists {
			return controlReply{err: fmt.Errorf("%w: %s", domain.ErrDuplicateOrder, id)}
		}
		now := l.now()
		c.entry.order.CreatedAt = now
		c.entry.order.ExpiresAt = now.Add(l.ttl)
		e := c.entry
		e.timer = time.AfterFunc(l.ttl, func() { l.expire(id, e) })
		l.orders[id] = e
		l.metrics.SetPendingOrders(len(l.orders))
		return controlReply{order: e.order.Clone(), found: true}
	case opAttach:
		e, ok := l.orders[c.orderID]
		if !ok {
			return controlReply{err: domain.ErrUnknownOrder}
		}
		e.order.Notifications = append(e.order.Notifications, c.handle)
		return controlReply{found: true}
	case opGet:
		e, ok := l.orders[c.orderID]
		if !ok {
			return controlReply{}
		}
		return controlReply{order: e.order.Clone(), found: true}
	case opCount:
		return controlReply{count: len(l.orders)}
	default:
		return controlReply{err: fmt.Errorf("unsupported ledger command %d", c.op)}
	}
}

func (l *Ledger) send(ctx context.Context, c control) (controlReply, error) {
	c.reply = make(chan controlReply, 1)
	select {
	case l.control <- c:
	case <-l.done:
		return controlReply{}, domain.ErrLedgerClosed
	case <-ctx.Done():
		return controlReply{}, ctx.Err()
	}
	// Принятая циклом команда всегда получает ответ.
	return <-c.reply, nil
}

// Create резервирует товар, считает сумму и регистрирует заказ в статусе PENDING
// с таймером оплаты. При отказе склада заказ не создаётся.
func (l *Ledger) Create(ctx context.Context, req CreateRequest) (domain.Order, error) {
	orderID := req.OrderID
	if orderID == "" {
		orderID = l.ids.Next()
	}

	quote := promo.Price(promo.PriceInput{
		ProductCode: req.ProductCode,
		UnitPrice:   req.UnitPrice,
		Quantity:    req.Quantity,
		PromoCode:   req.PromoCode,
		Now:         l.now(),
	}, l.promos)

	order := domain.Order{
		ID:           orderID,
		BuyerRef:     req.BuyerRef,
		ProductCode:  req.ProductCode,
		ProductName:  req.ProductName,
		Quantity:     req.Quantity,
		UnitPrice:    req.UnitPrice,
		PromoCode:    req.PromoCode,
		Subtotal:     quote.Subtotal,
		Discount:     quote.Discount,
		TotalDue:     quote.Total,
		PricingNotes: quote.Notes(),
		Status:       domain.OrderStatusPending,
	}
	if err := order.Validate(); err != nil {
		return domain.Order{}, err
	}

	logger := l.logger.WithFields(log.Fields{
		"order_id":     orderID,
		"buyer_ref":    order.BuyerRef,
		"product_code": order.ProductCode,
		"qty":          order.Quantity,
	})

	ack, err := l.inventory.Reserve(ctx, domain.ReserveRequest{
		OrderID:     orderID,
		ProductCode: order.ProductCode,
		Quantity:    order.Quantity,
		BuyerRef:    order.BuyerRef,
	})
	if err != nil {
		l.metrics.RecordReservationDenied()
		l.metrics.RecordInventoryError("reserve")
		logger.WithError(err).Warn("reservation failed")
		return domain.Order{}, fmt.Errorf("%w: %w", domain.ErrReservationUnavailable, err)
	}
	if !ack.OK {
		l.metrics.RecordReservationDenied()
		logger.WithField("msg", ack.Message).Info("reservation denied")
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrReservationUnavailable, ack.Message)
	}

	reply, err := l.send(ctx, control{op: opRegister, entry: &entry{order: order}})
	if err == nil {
		err = reply.err
	}
	if err != nil {
		logger.WithError(err).Error("register order failed")
		if !errors.Is(err, domain.ErrDuplicateOrder) {
			// Резерв сделан под этот order_id, но заказ никто не будет вести.
			l.releaseOrphan(ctx, orderID)
		}
		return domain.Order{}, err
	}

	created := reply.order
	l.metrics.RecordOrderCreated()
	l.emit(ctx, created, domain.JournalOrderCreated, "")
	logger.WithFields(log.Fields{
		"total_due":  created.TotalDue,
		"expires_at": created.ExpiresAt.Format(time.RFC3339),
	}).Info("order created")

	return created, nil
}

// AttachNotification прикрепляет сообщение к заказу в статусе PENDING.
// Для завершённого заказа это ошибка вызывающего: сообщение сразу отзывается.
func (l *Ledger) AttachNotification(ctx context.Context, orderID string, handle domain.NotificationHandle) error {
	reply, err := l.send(ctx, control{op: opAttach, orderID: orderID, handle: handle})
	if err != nil {
		return err
	}
	if reply.err != nil {
		l.logger.WithFields(log.Fields{
			"order_id":   orderID,
			"message_id": handle.ID,
		}).Error("notification attached to an order that is not pending")
		sideCtx, cancel := l.sideEffectContext(ctx)
		defer cancel()
		l.revokeAll(sideCtx, orderID, []domain.NotificationHandle{handle})
		return reply.err
	}
	return nil
}

// Get возвращает копию заказа в ожидании оплаты.
func (l *Ledger) Get(ctx context.Context, orderID string) (domain.Order, bool, error) {
	reply, err := l.send(ctx, control{op: opGet, orderID: orderID})
	if err != nil {
		return domain.Order{}, false, err
	}
	return reply.order, reply.found, nil
}

// Pending возвращает число заказов в ожидании оплаты.
func (l *Ledger) Pending(ctx context.Context) (int, error) {
	reply, err := l.send(ctx, control{op: opCount})
	if err != nil {
		return 0, err
	}
	return reply.count, nil
}

func (l *Ledger) releaseOrphan(ctx context.Context, orderID string) {
	sideCtx, cancel := l.sideEffectContext(ctx)
	defer cancel()
	if _, err := l.inventory.Release(sideCtx, orderID); err != nil {
		l.metrics.RecordInventoryError("release")
		l.logger.WithError(err).WithField("order_id", orderID).Warn("release of unregistered reservation failed")
	}
}

func (l *Ledger) sideEffectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), l.sideEffectTimeout)
}
