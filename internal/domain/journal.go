package domain

import "time"

// Типы записей журнала продаж.
const (
	JournalOrderCreated   = "order.created"
	JournalOrderFinalized = "order.finalized"
	JournalOrderReleased  = "order.released"
)

// JournalEntry — событие жизненного цикла заказа для аудита.
// Журнал не используется для восстановления заказов после рестарта.
type JournalEntry struct {
	OrderID     string
	Type        string
	Reason      string
	BuyerRef    string
	ProductCode string
	Quantity    int
	Total       int64
	Occurred    time.Time
}
