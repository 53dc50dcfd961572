package kafka

import (
	"time"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// EventType совпадает с типом записи журнала продаж.
type EventType string

const (
	EventTypeOrderCreated   EventType = domain.JournalOrderCreated
	EventTypeOrderFinalized EventType = domain.JournalOrderFinalized
	EventTypeOrderReleased  EventType = domain.JournalOrderReleased
)

const (
	TopicOrderEvents     = "shopbot.order.events"
	TopicDeadLetterQueue = "shopbot.dlq"
)

// Заголовки сообщений. Первые три ставятся на каждое событие,
// остальные только на копии в DLQ.
const (
	HeaderOutboxID  = "x-outbox-id"
	HeaderEventType = "x-event-type"
	HeaderAttempt   = "x-attempt"

	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent — payload события жизненного цикла заказа.
// BuyerRef — чат покупателя, Status — статус после перехода.
type OrderEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	BuyerRef  string                 `json:"buyer_ref"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func NewOrderEvent(eventType EventType, orderID, buyerRef, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		BuyerRef:  buyerRef,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}
