package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderIDRequired — отсутствует идентификатор заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// ErrBuyerRequired — не указан покупатель (ссылка на чат).
	ErrBuyerRequired = errors.New("buyer_ref is required")
	// ErrProductCodeRequired — не указан код товара.
	ErrProductCodeRequired = errors.New("product_code is required")
	// ErrQuantityInvalid — количество вне допустимого диапазона или сумма переполняется.
	ErrQuantityInvalid = errors.New("quantity is invalid")
	// ErrUnitPriceNegative — цена за единицу не может быть отрицательной.
	ErrUnitPriceNegative = errors.New("unit_price must be non-negative")

	// ErrReservationUnavailable — склад отказал в резерве или недоступен; заказ не создаётся.
	ErrReservationUnavailable = errors.New("reservation unavailable")
	// ErrInventoryNotConfigured — адрес сервиса склада не задан. Резерв в этом случае запрещён.
	ErrInventoryNotConfigured = errors.New("inventory endpoint is not configured")
	// ErrInventoryUnavailable — склад не ответил или ответил ошибкой транспорта/HTTP.
	ErrInventoryUnavailable = errors.New("inventory unavailable")
	// ErrInventoryRejected — склад ответил ok=false на finalize/release.
	ErrInventoryRejected = errors.New("inventory rejected request")
	// ErrUnknownOrder — заказа нет в реестре (уже завершён или никогда не существовал).
	ErrUnknownOrder = errors.New("unknown order")
	// ErrAlreadyFinalized — повторная финализация уже завершённого заказа.
	ErrAlreadyFinalized = errors.New("order already finalized")
	// ErrDuplicateOrder — заказ с таким order_id уже зарегистрирован.
	ErrDuplicateOrder = errors.New("duplicate order id")
	// ErrLedgerClosed — реестр заказов остановлен и не принимает команды.
	ErrLedgerClosed = errors.New("order ledger is closed")

	// ErrSignatureInvalid — подпись webhook не совпала.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	// ErrGatewayUnavailable — платёжный шлюз не создал платёж или не ответил на запрос статуса.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrNotificationFailure — не удалось отправить или удалить сообщение в чате.
	ErrNotificationFailure = errors.New("notification failure")

	// ErrCatalogUnavailable — каталог не удалось загрузить.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrProductNotFound — товар не найден ни по коду, ни по алиасу.
	ErrProductNotFound = errors.New("product not found")

	// ErrJournalEntryInvalid — запись журнала без order_id или типа.
	ErrJournalEntryInvalid = errors.New("journal entry requires order_id and type")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrOutboxMessageNotFound — сообщения нет или оно уже не pending.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
)

// UpstreamError описывает неуспешный ответ внешнего сервиса (склад, шлюз, чат-мост).
// Unwrap возвращает сентинел из таксономии, чтобы вызывающий код мог использовать errors.Is.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
	Kind       error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Service, e.Body)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Service, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Kind
}

// IsReservationUnavailable проверяет отказ склада.
func IsReservationUnavailable(err error) bool {
	return errors.Is(err, ErrReservationUnavailable)
}

// IsGatewayUnavailable проверяет недоступность платёжного шлюза.
func IsGatewayUnavailable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}
