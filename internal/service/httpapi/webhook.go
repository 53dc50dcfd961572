package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// Метки shopbot_webhook_requests_total{result} помимо исходов реестра.
const (
	webhookBadSignature = "bad_signature"
	webhookMalformed    = "malformed"
	webhookError        = "error"
	webhookIgnored      = "ignored"
)

// handleWebhook принимает уведомление шлюза (JSON или form) и сверяет заказ.
// 200 "ok" подтверждает доставку, в том числе для повторов и неизвестных заказов.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	n, err := decodeNotification(r)
	if err != nil {
		s.metrics.RecordWebhook(webhookMalformed)
		s.logger.WithError(err).Warn("malformed payment notification")
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id":           n.OrderID,
		"transaction_status": n.TransactionStatus,
	})

	res, err := s.deps.Reconciler.Reconcile(r.Context(), n)
	switch {
	case errors.Is(err, domain.ErrSignatureInvalid):
		s.metrics.RecordWebhook(webhookBadSignature)
		logger.WithField("remote_addr", r.RemoteAddr).Warn("webhook signature mismatch, possible tampering")
		writeText(w, http.StatusUnauthorized, "bad signature")
		return
	case errors.Is(err, domain.ErrOrderIDRequired):
		s.metrics.RecordWebhook(webhookMalformed)
		writeText(w, http.StatusBadRequest, "bad request")
		return
	case err != nil:
		s.metrics.RecordWebhook(webhookError)
		logger.WithError(err).Error("payment notification failed")
		writeText(w, http.StatusInternalServerError, "error")
		return
	}

	result := string(res.Ledger)
	if result == "" {
		result = webhookIgnored
	}
	s.metrics.RecordWebhook(result)
	logger.WithFields(log.Fields{
		"payment": res.Payment,
		"ledger":  res.Ledger,
	}).Info("payment notification handled")
	writeText(w, http.StatusOK, "ok")
}

// decodeNotification читает тело как form или JSON. Числовые поля JSON
// сохраняются в исходном виде: подпись считается по строкам шлюза.
func decodeNotification(r *http.Request) (domain.WebhookNotification, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return domain.WebhookNotification{}, fmt.Errorf("read body: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	fields := make(map[string]string)
	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return domain.WebhookNotification{}, fmt.Errorf("parse form: %w", err)
		}
		for k := range values {
			fields[k] = values.Get(k)
		}
	} else {
		var body map[string]any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			return domain.WebhookNotification{}, fmt.Errorf("decode json: %w", err)
		}
		for k, v := range body {
			switch val := v.(type) {
			case string:
				fields[k] = val
			case json.Number:
				fields[k] = val.String()
			case nil:
			default:
				fields[k] = fmt.Sprint(val)
			}
		}
	}

	return domain.WebhookNotification{
		OrderID:           fields["order_id"],
		StatusCode:        fields["status_code"],
		GrossAmount:       fields["gross_amount"],
		SignatureKey:      fields["signature_key"],
		TransactionStatus: fields["transaction_status"],
		FraudStatus:       fields["fraud_status"],
		PaymentType:       fields["payment_type"],
		TransactionID:     fields["transaction_id"],
	}, nil
}
