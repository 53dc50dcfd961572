package ledger

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// TerminalKind — источник терминального события.
type TerminalKind int

const (
	// TerminalFinalize — оплата подтверждена.
	TerminalFinalize TerminalKind = iota + 1
	// TerminalRelease — оплата не прошла или заказ отменён.
	TerminalRelease
	// TerminalExpire — истёк таймер оплаты.
	TerminalExpire
)

func (k TerminalKind) String() string {
	switch k {
	case TerminalFinalize:
		return "finalize"
	case TerminalRelease:
		return "release"
	case TerminalExpire:
		return "expire"
	default:
		return "unknown"
	}
}

// TerminalEvent — заявка на перевод заказа в конечный статус.
// Webhook и таймеры создают события одного типа; решает цикл Run.
type TerminalEvent struct {
	Kind    TerminalKind
	OrderID string
	Reason  string

	// expired — запись, чей таймер сработал; событие действует только на неё.
	expired *entry
	reply   chan decision
}

// Outcome — итог терминального запроса. Всегда однозначен.
type Outcome string

const (
	OutcomeFinalized        Outcome = "finalized"
	OutcomeAlreadyFinalized Outcome = "already_finalized"
	OutcomeReleased         Outcome = "released"
	OutcomeUnknownOrder     Outcome = "unknown_order"
)

// FinalizeResult — итог Finalize. Order заполнен только для OutcomeFinalized.
type FinalizeResult struct {
	Outcome     Outcome
	Order       domain.Order
	Fulfillment domain.Fulfillment
	// FulfillmentErr — ошибка списания на складе. Решение о финализации не меняет:
	// оплата уже получена, выдачу делает администратор.
	FulfillmentErr error
}

// ReleaseResult — итог Release. Order заполнен только для OutcomeReleased.
type ReleaseResult struct {
	Outcome      Outcome
	Order        domain.Order
	Reason       string
	InventoryErr error
}

type decision struct {
	outcome Outcome
	order   domain.Order
}

func (d decision) won() bool {
	return d.outcome == OutcomeFinalized || d.outcome == OutcomeReleased
}

// decide выполняется только в цикле Run: проверка наличия, остановка таймера,
// удаление из реестра. Никакого I/O кроме in-memory dedup guard.
func (l *Ledger) decide(ev TerminalEvent) decision {
	e, ok := l.orders[ev.OrderID]
	if ok && ev.Kind == TerminalExpire && e != ev.expired {
		ok = false
	}

	if !ok {
		if ev.Kind == TerminalFinalize {
			seen, err := l.dedup.Contains(ev.OrderID, l.now())
			if err != nil {
				l.logger.WithError(err).WithField("order_id", ev.OrderID).Warn("dedup guard lookup failed")
			}
			if seen {
				return decision{outcome: OutcomeAlreadyFinalized}
			}
		}
		return decision{outcome: OutcomeUnknownOrder}
	}

	e.stop()
	delete(l.orders, ev.OrderID)
	l.metrics.SetPendingOrders(len(l.orders))

	order := e.order.Clone()
	if ev.Kind == TerminalFinalize {
		order.Status = domain.OrderStatusFinalized
		if err := l.dedup.Remember(order.ID, l.now().Add(l.dedupWindow)); err != nil {
			l.logger.WithError(err).WithField("order_id", order.ID).Warn("dedup guard remember failed")
		}
		return decision{outcome: OutcomeFinalized, order: order}
	}

	order.Status = domain.OrderStatusReleased
	return decision{outcome: OutcomeReleased, order: order}
}

func (l *Ledger) submit(ctx context.Context, ev TerminalEvent) (decision, error) {
	ev.reply = make(chan decision, 1)
	select {
	case l.terminal <- ev:
	case <-l.done:
		return decision{}, domain.ErrLedgerClosed
	case <-ctx.Done():
		return decision{}, ctx.Err()
	}
	// После приёма событие всегда получает решение: победитель обязан выполнить побочные эффекты.
	return <-ev.reply, nil
}

// FinalizeOption дополняет один вызов Finalize.
type FinalizeOption func(*finalizeOptions)

type finalizeOptions struct {
	confirm func(ctx context.Context, res FinalizeResult)
}

// WithConfirmation вызывает confirm после списания на складе и до отзыва сообщений
// с приглашением к оплате. ctx в confirm отвязан от отмены вызывающего.
func WithConfirmation(confirm func(ctx context.Context, res FinalizeResult)) FinalizeOption {
	return func(o *finalizeOptions) { o.confirm = confirm }
}

// Finalize переводит заказ PENDING -> FINALIZED ровно один раз.
// Повтор после финализации даёт OutcomeAlreadyFinalized, неизвестный заказ — OutcomeUnknownOrder.
// settledAmount сверяется с total_due только для журнала.
func (l *Ledger) Finalize(ctx context.Context, orderID string, settledAmount int64, opts ...FinalizeOption) (FinalizeResult, error) {
	d, err := l.submit(ctx, TerminalEvent{Kind: TerminalFinalize, OrderID: orderID})
	if err != nil {
		return FinalizeResult{}, err
	}
	if !d.won() {
		l.metrics.RecordTerminalNoop(string(d.outcome))
		l.logger.WithFields(log.Fields{
			"order_id": orderID,
			"outcome":  d.outcome,
		}).Info("finalize ignored")
		return FinalizeResult{Outcome: d.outcome}, nil
	}

	var fo finalizeOptions
	for _, opt := range opts {
		opt(&fo)
	}
	return l.afterFinalize(ctx, d.order, settledAmount, fo.confirm), nil
}

// Release переводит заказ PENDING -> RELEASED ровно один раз и возвращает резерв складу.
// Для отсутствующего заказа возвращает OutcomeUnknownOrder без побочных эффектов.
func (l *Ledger) Release(ctx context.Context, orderID, reason string) (ReleaseResult, error) {
	d, err := l.submit(ctx, TerminalEvent{Kind: TerminalRelease, OrderID: orderID, Reason: reason})
	if err != nil {
		return ReleaseResult{}, err
	}
	if !d.won() {
		l.metrics.RecordTerminalNoop(string(d.outcome))
		l.logger.WithFields(log.Fields{
			"order_id": orderID,
			"reason":   reason,
		}).Debug("release ignored: order is not pending")
		return ReleaseResult{Outcome: d.outcome, Reason: reason}, nil
	}

	return l.afterRelease(ctx, d.order, reason), nil
}

// expire — колбэк таймера оплаты.
func (l *Ledger) expire(orderID string, e *entry) {
	if e.stopped.Load() {
		return
	}

	d, err := l.submit(context.Background(), TerminalEvent{
		Kind:    TerminalExpire,
		OrderID: orderID,
		Reason:  domain.ReleaseReasonTimeout,
		expired: e,
	})
	if err != nil {
		// Реестр остановлен: заказ освобождается в shutdown.
		return
	}
	if !d.won() {
		return
	}

	l.logger.WithField("order_id", orderID).Info("payment window expired")
	res := l.afterRelease(context.Background(), d.order, domain.ReleaseReasonTimeout)
	l.runExpiryHandler(res)
}

func (l *Ledger) runExpiryHandler(res ReleaseResult) {
	h := l.expiryHandler()
	if h == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.sideEffectTimeout)
	defer cancel()
	h(ctx, res)
}

func (l *Ledger) afterFinalize(ctx context.Context, order domain.Order, settledAmount int64, confirm func(context.Context, FinalizeResult)) FinalizeResult {
	ctx, cancel := l.sideEffectContext(ctx)
	defer cancel()

	logger := l.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"buyer_ref": order.BuyerRef,
		"total_due": order.TotalDue,
	})
	if settledAmount > 0 && settledAmount != order.TotalDue {
		logger.WithField("settled_amount", settledAmount).Warn("settled amount differs from total due")
	}

	res := FinalizeResult{Outcome: OutcomeFinalized, Order: order}

	fulfillment, err := l.inventory.Finalize(ctx, order.ID, order.TotalDue)
	switch {
	case err != nil:
		l.metrics.RecordInventoryError("finalize")
		res.FulfillmentErr = err
		logger.WithError(err).Error("inventory finalize failed, manual fulfillment required")
	case !fulfillment.OK:
		res.FulfillmentErr = fmt.Errorf("%w: %s", domain.ErrInventoryRejected, fulfillment.Message)
		logger.WithField("msg", fulfillment.Message).Error("inventory rejected finalize, manual fulfillment required")
	default:
		res.Fulfillment = fulfillment
	}

	if confirm != nil {
		confirm(ctx, res)
	}
	l.revokeAll(ctx, order.ID, order.Notifications)
	l.emit(ctx, order, domain.JournalOrderFinalized, "")

	var sinceCreated time.Duration
	if !order.CreatedAt.IsZero() {
		sinceCreated = l.now().Sub(order.CreatedAt)
	}
	l.metrics.RecordOrderFinalized(sinceCreated)
	logger.WithField("items", len(res.Fulfillment.Items)).Info("order finalized")

	return res
}

func (l *Ledger) afterRelease(ctx context.Context, order domain.Order, reason string) ReleaseResult {
	ctx, cancel := l.sideEffectContext(ctx)
	defer cancel()

	logger := l.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"buyer_ref": order.BuyerRef,
		"reason":    reason,
	})

	res := ReleaseResult{Outcome: OutcomeReleased, Order: order, Reason: reason}

	ack, err := l.inventory.Release(ctx, order.ID)
	switch {
	case err != nil:
		l.metrics.RecordInventoryError("release")
		res.InventoryErr = err
		logger.WithError(err).Warn("inventory release failed, relying on upstream hold timeout")
	case !ack.OK:
		res.InventoryErr = fmt.Errorf("%w: %s", domain.ErrInventoryRejected, ack.Message)
		logger.WithField("msg", ack.Message).Warn("inventory rejected release")
	}

	l.revokeAll(ctx, order.ID, order.Notifications)
	l.emit(ctx, order, domain.JournalOrderReleased, reason)
	l.metrics.RecordOrderReleased(reason)
	logger.Info("order released")

	return res
}

// revokeAll удаляет сообщения заказа. Ошибки только логируются.
func (l *Ledger) revokeAll(ctx context.Context, orderID string, handles []domain.NotificationHandle) {
	if l.notifier == nil {
		return
	}
	for _, h := range handles {
		if err := l.notifier.Revoke(ctx, h); err != nil {
			l.metrics.RecordNotificationFailure("revoke")
			l.logger.WithError(err).WithFields(log.Fields{
				"order_id":   orderID,
				"message_id": h.ID,
			}).Warn("revoke notification failed")
		}
	}
}
