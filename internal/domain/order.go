package domain

import (
	"fmt"
	"math"
	"time"
)

// OrderStatus описывает жизненный цикл заказа в реестре.
type OrderStatus string

const (
	// OrderStatusPending — резерв получен, ждём оплату или истечение таймера.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusFinalized — оплата подтверждена, резерв списан.
	OrderStatusFinalized OrderStatus = "FINALIZED"
	// OrderStatusReleased — заказ отменён, резерв возвращён.
	OrderStatusReleased OrderStatus = "RELEASED"
)

// Terminal сообщает, что статус больше не меняется.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFinalized || s == OrderStatusReleased
}

// Причины освобождения резерва.
const (
	ReleaseReasonTimeout            = "timeout"
	ReleaseReasonGatewayUnavailable = "gateway_unavailable"
	ReleaseReasonShutdown           = "shutdown"
)

// Order — попытка одного покупателя купить количество одного товара по зафиксированной цене.
type Order struct {
	ID          string
	BuyerRef    string
	ProductCode string
	ProductName string
	Quantity    int
	// UnitPrice и суммы ниже — в рупиях без дробной части.
	UnitPrice int64
	PromoCode string
	Subtotal  int64
	Discount  int64
	TotalDue  int64
	// PricingNotes — информационные пометки расчёта (промо неизвестно, отклонено, применено).
	PricingNotes []string
	Status       OrderStatus
	// Notifications — сообщения, отправленные покупателю пока заказ в PENDING.
	Notifications []NotificationHandle
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Validate проверяет входные поля заказа до резервирования.
func (o Order) Validate() error {
	switch {
	case o.ID == "":
		return ErrOrderIDRequired
	case o.BuyerRef == "":
		return ErrBuyerRequired
	case o.ProductCode == "":
		return ErrProductCodeRequired
	case o.Quantity <= 0:
		return ErrQuantityInvalid
	case o.Quantity > MaxOrderQuantity:
		return fmt.Errorf("%w: %d exceeds %d", ErrQuantityInvalid, o.Quantity, MaxOrderQuantity)
	case o.UnitPrice < 0:
		return ErrUnitPriceNegative
	}
	if _, ok := LineTotal(o.UnitPrice, o.Quantity); !ok {
		return fmt.Errorf("%w: %d x %d overflows", ErrQuantityInvalid, o.Quantity, o.UnitPrice)
	}
	return nil
}

// MaxOrderQuantity — верхняя граница количества в одном заказе.
const MaxOrderQuantity = 1000

// LineTotal возвращает unitPrice × quantity. ok=false, если произведение не помещается
// в int64; тогда результат насыщается до math.MaxInt64. Неположительные входы дают 0.
func LineTotal(unitPrice int64, quantity int) (int64, bool) {
	if unitPrice <= 0 || quantity <= 0 {
		return 0, true
	}
	if unitPrice > math.MaxInt64/int64(quantity) {
		return math.MaxInt64, false
	}
	return unitPrice * int64(quantity), true
}

// Clone возвращает копию без общих срезов.
func (o Order) Clone() Order {
	dst := o
	dst.PricingNotes = append([]string(nil), o.PricingNotes...)
	dst.Notifications = append([]NotificationHandle(nil), o.Notifications...)
	return dst
}
