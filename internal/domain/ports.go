package domain

import (
	"context"
	"time"
)

// InventoryService описывает взаимодействие со складом.
//
// Резерв обязан истекать на стороне склада сам, если release не пришёл:
// при падении процесса незавершённые заказы теряются, и только этот таймаут
// возвращает товар.
type InventoryService interface {
	// Reserve пытается зарезервировать товар под заказ.
	Reserve(ctx context.Context, req ReserveRequest) (InventoryAck, error)
	// Finalize списывает резерв и возвращает выданные позиции.
	Finalize(ctx context.Context, orderID string, total int64) (Fulfillment, error)
	// Release снимает резерв по заказу.
	Release(ctx context.Context, orderID string) (InventoryAck, error)
}

// PaymentGateway описывает взаимодействие с платёжным шлюзом.
type PaymentGateway interface {
	// CreateCharge создаёт QR-платёж.
	CreateCharge(ctx context.Context, req ChargeRequest) (Checkout, error)
	// CreateInvoice создаёт счёт со ссылкой на страницу оплаты.
	CreateInvoice(ctx context.Context, req ChargeRequest) (Checkout, error)
	// QueryStatus запрашивает текущий статус транзакции.
	QueryStatus(ctx context.Context, orderID string) (TransactionStatus, error)
	// VerifySignature проверяет подпись входящего callback.
	VerifySignature(n WebhookNotification) bool
}

// Notifier отправляет и отзывает сообщения в чате.
type Notifier interface {
	Send(ctx context.Context, buyerRef string, msg Message) (NotificationHandle, error)
	// Revoke удаляет сообщение у всех участников; best effort.
	Revoke(ctx context.Context, handle NotificationHandle) error
}

// PromoSource отдаёт промо по коду.
type PromoSource interface {
	Promo(code string) (Promo, bool)
}

// DedupGuard помнит недавно финализированные заказы, чтобы гасить повторные webhook.
type DedupGuard interface {
	Remember(orderID string, until time.Time) error
	Contains(orderID string, now time.Time) (bool, error)
	DeleteExpired(before time.Time, limit int) (int, error)
}

// JournalRepository хранит события жизненного цикла заказов.
type JournalRepository interface {
	Append(ctx context.Context, entry JournalEntry) error
	List(ctx context.Context, orderID string) ([]JournalEntry, error)
	Recent(ctx context.Context, limit int) ([]JournalEntry, error)
}

// OutboxPublisher доставляет событие заказа в брокер.
// Повторная доставка того же ID допустима: потребители дедуплицируют по нему.
type OutboxPublisher interface {
	Publish(ctx context.Context, msg OutboxMessage) error
}

// OutboxRepository — очередь событий заказов с отложенными повторами.
// Сообщение живёт в pending, пока не будет отправлено (sent) или
// не исчерпает попытки (parked).
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	// Due возвращает до limit pending-сообщений с NextAttemptAt <= now в порядке постановки.
	Due(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error)
	MarkSent(ctx context.Context, id string) error
	// Reschedule увеличивает Attempts и откладывает следующую попытку до next.
	Reschedule(ctx context.Context, id string, next time.Time, lastErr string) error
	// Park снимает сообщение с очереди после последней неудачной попытки.
	Park(ctx context.Context, id string, lastErr string) error
	Stats(ctx context.Context) (OutboxStats, error)
}

// OutboxMessage — событие жизненного цикла заказа, ожидающее публикации.
// OrderID служит ключом партиции: события одного заказа идут по порядку.
type OutboxMessage struct {
	ID            string
	OrderID       string
	EventType     string
	Payload       []byte
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
}

// OutboxStats — размер очереди для метрик.
type OutboxStats struct {
	Pending         int
	Parked          int
	OldestPendingAt time.Time
}
