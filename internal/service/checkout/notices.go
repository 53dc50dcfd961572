package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/format"
	"github.com/vladislavdragonenkov/shopbot/internal/ledger"
	"github.com/vladislavdragonenkov/shopbot/internal/service/payment"
)

// ShutdownNotice — сообщение покупателю, чей заказ освобождён при остановке сервиса.
const ShutdownNotice = "⚠️ Bot sedang restart, order dibatalkan dan stok dikembalikan. Silakan #buynow lagi."

// ReconcileResult — итог обработки уведомления об оплате.
type ReconcileResult struct {
	Payment domain.PaymentOutcome
	// Ledger пуст для OTHER: реестр не вызывался.
	Ledger ledger.Outcome
}

// Reconcile проверяет подпись уведомления и переводит заказ в конечный статус.
// Неверная подпись — domain.ErrSignatureInvalid без изменений состояния.
func (s *Service) Reconcile(ctx context.Context, n domain.WebhookNotification) (ReconcileResult, error) {
	if !s.gateway.VerifySignature(n) {
		return ReconcileResult{}, domain.ErrSignatureInvalid
	}
	if strings.TrimSpace(n.OrderID) == "" {
		return ReconcileResult{}, domain.ErrOrderIDRequired
	}

	outcome := payment.MapStatus(n.TransactionStatus, n.FraudStatus)
	res := ReconcileResult{Payment: outcome}
	logger := s.logger.WithFields(log.Fields{
		"order_id":           n.OrderID,
		"transaction_status": n.TransactionStatus,
		"fraud_status":       n.FraudStatus,
	})

	switch outcome {
	case domain.PaymentSettled:
		settled, err := payment.ParseAmount(n.GrossAmount)
		if err != nil {
			logger.WithError(err).Warn("unparsable gross_amount in notification")
		}
		// Чек уходит до отзыва приглашения к оплате.
		fin, err := s.ledger.Finalize(ctx, n.OrderID, settled, ledger.WithConfirmation(
			func(ctx context.Context, fin ledger.FinalizeResult) {
				s.OnFinalized(ctx, fin, n.PaymentType, settled)
			}))
		if err != nil {
			return res, err
		}
		res.Ledger = fin.Outcome
	case domain.PaymentFailed:
		rel, err := s.ledger.Release(ctx, n.OrderID, strings.ToLower(n.TransactionStatus))
		if err != nil {
			return res, err
		}
		res.Ledger = rel.Outcome
		if rel.Outcome == ledger.OutcomeReleased {
			s.OnReleased(ctx, rel, n.TransactionStatus)
		}
	default:
		logger.Info("non-terminal payment status acknowledged")
	}
	return res, nil
}

// OnFinalized отправляет чек, выданные позиции и сообщение склада.
func (s *Service) OnFinalized(ctx context.Context, res ledger.FinalizeResult, paymentType string, settled int64) {
	ctx, cancel := s.detached(ctx)
	defer cancel()

	order := res.Order
	s.send(ctx, order.BuyerRef, domain.Message{Text: format.PaymentSuccess(order, paymentType, settled, format.Time(s.now()))})
	s.send(ctx, order.BuyerRef, domain.Message{Text: format.AccountDetails(res.Fulfillment.Items)})
	if res.Fulfillment.AfterMessage != "" {
		s.send(ctx, order.BuyerRef, domain.Message{Text: res.Fulfillment.AfterMessage})
	}
}

// OnReleased сообщает покупателю о неуспешной оплате.
func (s *Service) OnReleased(ctx context.Context, res ledger.ReleaseResult, status string) {
	ctx, cancel := s.detached(ctx)
	defer cancel()
	s.send(ctx, res.Order.BuyerRef, domain.Message{Text: format.PaymentFailed(status)})
}

// OnExpired — ExpiryHandler реестра: одно уведомление на заказ, освобождённый по таймеру или при остановке.
func (s *Service) OnExpired(ctx context.Context, res ledger.ReleaseResult) {
	if res.Order.BuyerRef == "" {
		return
	}
	text := format.TimeoutNotice
	if res.Reason == domain.ReleaseReasonShutdown {
		text = ShutdownNotice
	}
	s.send(ctx, res.Order.BuyerRef, domain.Message{Text: text})
}

// Status запрашивает у шлюза статус транзакции и форматирует ответ для чата.
func (s *Service) Status(ctx context.Context, orderID string) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", domain.ErrOrderIDRequired
	}
	st, err := s.gateway.QueryStatus(ctx, orderID)
	if err != nil {
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
		}
		return "", err
	}
	return format.TransactionStatus(orderID, st), nil
}
