// Package promo проверяет промо-коды и считает итоговую сумму заказа.
package promo

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// Причины отказа в промо.
const (
	ReasonInactive           = "inactive"
	ReasonNotStarted         = "not_started"
	ReasonExpired            = "expired"
	ReasonProductNotEligible = "product_not_eligible"
	ReasonMinQty             = "min_qty"
	ReasonMinTotal           = "min_total"
	ReasonUnsupportedKind    = "unsupported_kind"
)

var hundred = decimal.NewFromInt(100)

// Context — контекст заказа, по которому проверяется промо.
type Context struct {
	ProductCode string
	Quantity    int
	Total       int64
}

// Validate проверяет применимость промо. Возвращает причину отказа, если промо не подходит.
func Validate(p domain.Promo, c Context, now time.Time) (bool, string) {
	if !p.Active {
		return false, ReasonInactive
	}
	if !p.ValidFrom.IsZero() && now.Before(p.ValidFrom) {
		return false, ReasonNotStarted
	}
	if !p.ValidUntil.IsZero() && now.After(p.ValidUntil) {
		return false, ReasonExpired
	}
	if len(p.Products) > 0 && !containsCode(p.Products, c.ProductCode) {
		return false, ReasonProductNotEligible
	}
	if p.MinQty > 0 && c.Quantity < p.MinQty {
		return false, ReasonMinQty
	}
	if p.MinTotal > 0 && c.Total < p.MinTotal {
		return false, ReasonMinTotal
	}
	if p.Kind != domain.PromoKindFixed && p.Kind != domain.PromoKindPercent {
		return false, ReasonUnsupportedKind
	}
	return true, ""
}

// Discount считает скидку для суммы total. Результат в [0, total].
func Discount(p domain.Promo, total int64) int64 {
	if total <= 0 {
		return 0
	}
	base := decimal.NewFromInt(total)

	var amount decimal.Decimal
	switch p.Kind {
	case domain.PromoKindFixed:
		amount = decimal.Min(p.Value, base)
	case domain.PromoKindPercent:
		amount = base.Mul(p.Value).Div(hundred)
		if p.MaxDiscount > 0 {
			amount = decimal.Min(amount, decimal.NewFromInt(p.MaxDiscount))
		}
	default:
		return 0
	}

	// Рупии без дробной части: округляем скидку вниз.
	amount = floorAtZero(amount).Floor()
	if amount.GreaterThan(base) {
		return total
	}
	return amount.IntPart()
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if strings.EqualFold(strings.TrimSpace(c), code) {
			return true
		}
	}
	return false
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
