package checkout

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/format"
	"github.com/vladislavdragonenkov/shopbot/internal/ledger"
)

// BuyRequest — команда покупки из чата.
type BuyRequest struct {
	BuyerRef  string
	Code      string
	Quantity  int
	PromoCode string
}

// Receipt — итог оформления.
type Receipt struct {
	Order    domain.Order
	Checkout domain.Checkout
	// Prompt — отправленное сообщение с оплатой; пусто, если отправить не удалось.
	Prompt   domain.NotificationHandle
	Fallback bool
}

// Buy резервирует товар, создаёт платёж и отправляет покупателю приглашение к оплате.
// Если шлюз не создал ни QRIS, ни счёт, заказ освобождается с причиной gateway_unavailable.
func (s *Service) Buy(ctx context.Context, req BuyRequest) (Receipt, error) {
	if err := s.catalog.Ensure(ctx); err != nil {
		return Receipt{}, fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
	}
	product, ok := s.catalog.ByCode(req.Code)
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, req.Code)
	}
	qty := req.Quantity
	if qty < 1 {
		qty = 1
	}
	promoCode := strings.ToUpper(strings.TrimSpace(req.PromoCode))

	order, err := s.ledger.Create(ctx, ledger.CreateRequest{
		BuyerRef:    req.BuyerRef,
		ProductCode: product.Code,
		ProductName: product.Name,
		Quantity:    qty,
		UnitPrice:   product.Price,
		PromoCode:   promoCode,
	})
	if err != nil {
		return Receipt{}, err
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"buyer_ref": order.BuyerRef,
		"total_due": order.TotalDue,
	})

	charge := domain.ChargeRequest{
		OrderID:     order.ID,
		Amount:      order.TotalDue,
		BuyerPhone:  BuyerPhone(order.BuyerRef),
		ProductName: fmt.Sprintf("%s x %d", order.ProductName, order.Quantity),
	}

	receipt := Receipt{Order: order}
	var prompt domain.Message

	checkout, err := s.gateway.CreateCharge(ctx, charge)
	if err == nil {
		receipt.Checkout = checkout
		prompt = s.qrPrompt(order, checkout, s.promoInfo(order, promoCode))
	} else {
		logger.WithError(err).Warn("qris charge failed, falling back to invoice")
		invoice, invErr := s.gateway.CreateInvoice(ctx, charge)
		if invErr != nil {
			logger.WithError(invErr).Error("invoice fallback failed, releasing order")
			relCtx, cancel := s.detached(ctx)
			_, relErr := s.ledger.Release(relCtx, order.ID, domain.ReleaseReasonGatewayUnavailable)
			cancel()
			if relErr != nil {
				logger.WithError(relErr).Warn("release after gateway failure failed")
			}
			return Receipt{}, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, invErr)
		}
		receipt.Checkout = invoice
		receipt.Fallback = true
		prompt = domain.Message{Text: format.InvoiceFallback(invoice.RedirectURL)}
	}

	handle, sent := s.send(ctx, order.BuyerRef, prompt)
	if !sent {
		return receipt, nil
	}
	receipt.Prompt = handle
	if err := s.ledger.AttachNotification(ctx, order.ID, handle); err != nil {
		logger.WithError(err).Warn("attach payment prompt failed")
	}
	return receipt, nil
}

func (s *Service) promoInfo(order domain.Order, promoCode string) string {
	if promoCode != "" && !s.catalog.PromosConfigured() {
		return format.PromoNotConfigured
	}
	return format.PromoInfo(order.PricingNotes)
}

// qrPrompt собирает сообщение с PNG QR-кода. Без QR-строки или при ошибке
// рендера отправляется текст со строкой QR.
func (s *Service) qrPrompt(order domain.Order, checkout domain.Checkout, promoInfo string) domain.Message {
	caption := format.OrderCaption(order, promoInfo, checkout.RedirectURL)
	if checkout.QRString == "" {
		return domain.Message{Text: caption}
	}

	png, err := qrcode.Encode(checkout.QRString, qrcode.Medium, s.qrSize)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("render qr failed")
		return domain.Message{Text: caption + "\n\nQR String:\n" + checkout.QRString}
	}
	return domain.Message{
		Text:          caption,
		Image:         png,
		ImageFilename: "qris-" + order.ID + ".png",
	}
}

// BuyerPhone извлекает номер из ссылки на чат: "62812@c.us" -> "62812".
func BuyerPhone(buyerRef string) string {
	ref, _, _ := strings.Cut(buyerRef, "@")
	var b strings.Builder
	for _, r := range ref {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
