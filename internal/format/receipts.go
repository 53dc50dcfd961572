package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/promo"
)

// Тексты уведомлений покупателю.
const (
	TimeoutNotice      = "⚠️ Pembayaran belum diterima dan order dibatalkan otomatis. Silakan #buynow lagi bila masih ingin membeli."
	ManualFulfillment  = "( ACCOUNT DETAIL )\n- Stok akan dikirim manual oleh admin."
	ReservationDenied  = "Maaf, stok tidak mencukupi. Coba kurangi jumlah / pilih produk lain."
	PromoNotConfigured = "( Promo data belum dikonfigurasi )"
)

// PromoInfo превращает пометки расчёта в строку для подписи заказа.
func PromoInfo(notes []string) string {
	var lines []string
	for _, n := range notes {
		f, ok := promo.ParseNote(n)
		if !ok {
			continue
		}
		switch f.Kind {
		case promo.FlagPromoUnknown:
			lines = append(lines, "( Kode promo tidak dikenal )")
		case promo.FlagPromoRejected:
			lines = append(lines, "( Promo tidak valid: "+f.Reason+" )")
		case promo.FlagPromoApplied:
			if f.Amount > 0 {
				lines = append(lines, fmt.Sprintf("( Promo %s: -%s )", f.Label, IDR(f.Amount)))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// OrderCaption — подпись к QR или текст сообщения об оплате.
// promoInfo — готовая строка (PromoInfo или PromoNotConfigured).
func OrderCaption(order domain.Order, promoInfo, payLink string) string {
	lines := []string{
		"🧾 *Order dibuat!*",
		"Order ID: " + order.ID,
		fmt.Sprintf("Produk: %s x %d", order.ProductName, order.Quantity),
		"Subtotal: " + IDR(order.Subtotal),
	}
	if promoInfo != "" {
		lines = append(lines, promoInfo)
	}
	lines = append(lines,
		"Total Bayar: "+IDR(order.TotalDue),
		"",
		"Silakan scan QRIS berikut untuk membayar.",
	)
	if payLink != "" {
		lines = append(lines, "Link Checkout: "+payLink)
	} else {
		lines = append(lines, "(Jika QR tidak muncul, balas: *#buynow* lagi.)")
	}
	return strings.Join(lines, "\n")
}

// InvoiceFallback — сообщение со ссылкой на счёт, когда QRIS не создан.
func InvoiceFallback(redirectURL string) string {
	return "⚠️ QRIS sedang bermasalah, fallback ke link:\n" + redirectURL
}

// PaymentFailed — уведомление о неуспешной оплате.
func PaymentFailed(status string) string {
	return fmt.Sprintf("❌ Pembayaran *%s*. Order dibatalkan dan stok dikembalikan.", status)
}

// PaymentSuccess — чек об успешной оплате.
func PaymentSuccess(order domain.Order, paymentType string, settledAmount int64, at string) string {
	if settledAmount <= 0 {
		settledAmount = order.TotalDue
	}
	method := strings.ToUpper(strings.TrimSpace(paymentType))
	if method == "" {
		method = "-"
	}
	return strings.Join([]string{
		"╭────〔 TRANSAKSI SUKSES 〕─",
		"┊・Order ID: " + order.ID,
		fmt.Sprintf("┊・Produk: %s x %d", order.ProductName, order.Quantity),
		"┊・Total: " + IDR(settledAmount),
		"┊・Metode: " + method,
		"┊・Waktu: " + at,
		cardFooter,
	}, "\n")
}

// AccountDetails — выданные позиции, каждая блоком "#N" с полями по алфавиту.
func AccountDetails(items []domain.FulfillmentItem) string {
	if len(items) == 0 {
		return ManualFulfillment
	}
	blocks := make([]string, 0, len(items)+1)
	blocks = append(blocks, "( ACCOUNT DETAIL )")
	for i, item := range items {
		keys := make([]string, 0, len(item.Fields))
		for k := range item.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		lines := []string{fmt.Sprintf("#%d", i+1)}
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("- %s: %s", k, item.Fields[k]))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// TransactionStatus — ответ на #status.
func TransactionStatus(orderID string, st domain.TransactionStatus) string {
	status := strings.ToUpper(orDash(st.TransactionStatus))
	method := strings.ToUpper(orDash(st.PaymentType))
	created := "- Dibuat: " + Time(st.TransactionTime)
	if !st.SettlementTime.IsZero() {
		created += "\n- Settled: " + Time(st.SettlementTime)
	}
	return strings.Join([]string{
		"📦 *Status Order* " + orderID,
		"- Status: " + status,
		"- Metode: " + method,
		"- Nominal: " + IDRString(st.GrossAmount),
		created,
	}, "\n")
}

// LowStockAlert — сообщение администраторам о заканчивающихся товарах.
func LowStockAlert(items []LowStockItem) string {
	lines := []string{"⚠️ *Low Stock Alert*"}
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("• %s: ready %d", it.Code, it.Ready))
	}
	return strings.Join(lines, "\n")
}

// LowStockItem — строка отчёта об остатках.
type LowStockItem struct {
	Code  string `json:"kode"`
	Ready int    `json:"ready"`
}
