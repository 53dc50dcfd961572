package promo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// FlagKind — тип информационной пометки расчёта.
type FlagKind string

const (
	FlagPromoUnknown  FlagKind = "promo_unknown"
	FlagPromoRejected FlagKind = "promo_rejected"
	FlagPromoApplied  FlagKind = "promo_applied"
)

// Flag — пометка расчёта. На ход оформления заказа не влияет.
type Flag struct {
	Kind   FlagKind
	Code   string
	Label  string
	Reason string
	Amount int64
}

func (f Flag) String() string {
	switch f.Kind {
	case FlagPromoRejected:
		return fmt.Sprintf("%s:%s:%s", f.Kind, f.Code, f.Reason)
	case FlagPromoApplied:
		return fmt.Sprintf("%s:%s:%d", f.Kind, f.Label, f.Amount)
	default:
		return fmt.Sprintf("%s:%s", f.Kind, f.Code)
	}
}

// PriceInput — данные для расчёта заказа.
type PriceInput struct {
	ProductCode string
	UnitPrice   int64
	Quantity    int
	PromoCode   string
	Now         time.Time
}

// Quote — результат расчёта.
type Quote struct {
	Subtotal int64
	Discount int64
	Total    int64
	Flags    []Flag
}

// Notes возвращает пометки в строковом виде для сохранения в заказе.
func (q Quote) Notes() []string {
	if len(q.Flags) == 0 {
		return nil
	}
	notes := make([]string, 0, len(q.Flags))
	for _, f := range q.Flags {
		notes = append(notes, f.String())
	}
	return notes
}

// Price считает subtotal = unit × qty и применяет промо, если оно известно и подходит.
// Неизвестное или отклонённое промо не прерывает расчёт: заказ идёт по полной цене с пометкой.
// Переполнение насыщает subtotal до math.MaxInt64; такие входы отсекает Order.Validate.
func Price(in PriceInput, promos domain.PromoSource) Quote {
	subtotal, _ := domain.LineTotal(in.UnitPrice, in.Quantity)
	q := Quote{Subtotal: subtotal, Total: subtotal}

	code := strings.ToUpper(strings.TrimSpace(in.PromoCode))
	if code == "" {
		return q
	}

	var (
		p  domain.Promo
		ok bool
	)
	if promos != nil {
		p, ok = promos.Promo(code)
	}
	if !ok {
		q.Flags = append(q.Flags, Flag{Kind: FlagPromoUnknown, Code: code})
		return q
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	valid, reason := Validate(p, Context{ProductCode: in.ProductCode, Quantity: in.Quantity, Total: subtotal}, now)
	if !valid {
		q.Flags = append(q.Flags, Flag{Kind: FlagPromoRejected, Code: code, Reason: reason})
		return q
	}

	discount := Discount(p, subtotal)
	q.Discount = discount
	q.Total = subtotal - discount
	if q.Total < 0 {
		q.Total = 0
	}
	q.Flags = append(q.Flags, Flag{Kind: FlagPromoApplied, Code: code, Label: p.DisplayName(), Amount: discount})
	return q
}

// ParseNote восстанавливает Flag из строки, сохранённой в заказе.
func ParseNote(note string) (Flag, bool) {
	kind, rest, ok := strings.Cut(note, ":")
	if !ok {
		return Flag{}, false
	}
	switch FlagKind(kind) {
	case FlagPromoUnknown:
		return Flag{Kind: FlagPromoUnknown, Code: rest}, true
	case FlagPromoRejected:
		code, reason, _ := strings.Cut(rest, ":")
		return Flag{Kind: FlagPromoRejected, Code: code, Reason: reason}, true
	case FlagPromoApplied:
		i := strings.LastIndex(rest, ":")
		if i < 0 {
			return Flag{}, false
		}
		amount, err := strconv.ParseInt(rest[i+1:], 10, 64)
		if err != nil {
			return Flag{}, false
		}
		return Flag{Kind: FlagPromoApplied, Label: rest[:i], Amount: amount}, true
	default:
		return Flag{}, false
	}
}
