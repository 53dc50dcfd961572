package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product — строка каталога из таблицы товаров.
type Product struct {
	Code        string
	Name        string
	Aliases     []string
	Category    string
	Description string
	Price       int64
	OldPrice    int64
	// Stock и Sold приходят из таблицы как текст ("-", "12", "habis").
	Stock string
	Sold  string
	// Total — колонка total; пусто, если таблица её не ведёт.
	Total   string
	IconURL string
	// ContactRef — контакт продавца для ручного заказа (#beli).
	ContactRef string
}

// PromoKind — тип скидки.
type PromoKind string

const (
	// PromoKindFixed — фиксированная сумма скидки.
	PromoKindFixed PromoKind = "fixed"
	// PromoKindPercent — процент от суммы, опционально с потолком.
	PromoKindPercent PromoKind = "percent"
)

// Promo — именованное правило скидки с условиями применимости.
// Значения неизменяемы после загрузки и проверяются заново для каждого заказа.
type Promo struct {
	Code  string
	Label string
	Kind  PromoKind
	// Value — сумма в рупиях для fixed или процент для percent.
	Value decimal.Decimal
	// MaxDiscount ограничивает процентную скидку; 0 — без ограничения.
	MaxDiscount int64
	MinTotal    int64
	MinQty      int
	// Products — коды товаров, для которых действует промо; пусто — для всех.
	Products   []string
	ValidFrom  time.Time
	ValidUntil time.Time
	Active     bool
}

// DisplayName возвращает подпись промо для сообщений.
func (p Promo) DisplayName() string {
	if p.Label != "" {
		return p.Label
	}
	return p.Code
}
