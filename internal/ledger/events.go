package ledger

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/messaging/kafka"
)

// emit пишет событие жизненного цикла в журнал и outbox. Ошибки не влияют на заказ.
func (l *Ledger) emit(ctx context.Context, order domain.Order, eventType, reason string) {
	logger := l.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"event":    eventType,
	})

	if l.journal != nil {
		err := l.journal.Append(ctx, domain.JournalEntry{
			OrderID:     order.ID,
			Type:        eventType,
			Reason:      reason,
			BuyerRef:    order.BuyerRef,
			ProductCode: order.ProductCode,
			Quantity:    order.Quantity,
			Total:       order.TotalDue,
			Occurred:    l.now().UTC(),
		})
		if err != nil {
			logger.WithError(err).Error("journal append failed")
		}
	}

	if l.outbox == nil {
		return
	}

	metadata := map[string]interface{}{
		"product_code": order.ProductCode,
		"qty":          order.Quantity,
		"total_due":    order.TotalDue,
	}
	if reason != "" {
		metadata["reason"] = reason
	}
	if order.PromoCode != "" {
		metadata["promo_code"] = order.PromoCode
		metadata["discount"] = order.Discount
	}

	event := kafka.NewOrderEvent(kafka.EventType(eventType), order.ID, order.BuyerRef, string(order.Status), metadata)
	payload, err := json.Marshal(event)
	if err != nil {
		logger.WithError(err).Error("marshal event failed")
		return
	}

	if _, err := l.outbox.Enqueue(ctx, domain.OutboxMessage{
		OrderID:   order.ID,
		EventType: eventType,
		Payload:   payload,
	}); err != nil {
		logger.WithError(err).Error("enqueue event failed")
	}
}
