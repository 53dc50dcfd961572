// Package format собирает тексты сообщений для чата: цены, карточки товаров, чеки.
package format

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.Indonesian)

// Время в сообщениях показывается по WIB.
var displayZone = time.FixedZone("WIB", 7*60*60)

// IDR форматирует сумму в рупиях: 15000 -> "Rp 15.000".
func IDR(amount int64) string {
	if amount < 0 {
		return "-Rp " + printer.Sprintf("%d", -amount)
	}
	return "Rp " + printer.Sprintf("%d", amount)
}

// IDRString форматирует сумму из строки ("15000.00"); нечитаемое значение выводится как есть.
func IDRString(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return IDR(0)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	return IDR(int64(f + 0.5))
}

// Time форматирует момент как "10/03/2026 19.00.00" по WIB; нулевое время — "-".
func Time(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(displayZone).Format("02/01/2006 15.04.05")
}
