package payment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// MapStatus сводит статус транзакции шлюза к SETTLED / FAILED / OTHER.
// capture считается оплатой только при fraud_status accept или пустом.
func MapStatus(transactionStatus, fraudStatus string) domain.PaymentOutcome {
	status := strings.ToLower(strings.TrimSpace(transactionStatus))
	fraud := strings.ToLower(strings.TrimSpace(fraudStatus))

	switch status {
	case "settlement":
		return domain.PaymentSettled
	case "capture":
		if fraud == "" || fraud == "accept" {
			return domain.PaymentSettled
		}
		return domain.PaymentOther
	case "expire", "cancel", "deny", "failure":
		return domain.PaymentFailed
	default:
		return domain.PaymentOther
	}
}

// ParseAmount переводит gross_amount ("15000.00") в целые рупии.
func ParseAmount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse gross_amount %q: %w", raw, err)
	}
	return d.Round(0).IntPart(), nil
}
