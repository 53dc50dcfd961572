package payment

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/version"
)

const (
	serviceName = "midtrans"

	productionAPIBase  = "https://api.midtrans.com"
	productionSnapBase = "https://app.midtrans.com"
	sandboxAPIBase     = "https://api.sandbox.midtrans.com"
	sandboxSnapBase    = "https://app.sandbox.midtrans.com"

	defaultTimeout = 20 * time.Second
	maxErrorBody   = 512
	timeLayout     = "2006-01-02 15:04:05"
)

// Время в ответах шлюза — WIB без указания зоны.
var gatewayZone = time.FixedZone("WIB", 7*60*60)

// Midtrans — клиент Core API (QRIS, статус) и Snap (счёт со ссылкой).
type Midtrans struct {
	serverKey     string
	apiBase       string
	snapBase      string
	publicBaseURL string
	auth          string
	http          *http.Client
	logger        *log.Entry
}

// NewMidtrans создаёт клиента. Базовые URL из cfg имеют приоритет над sandbox/production.
func NewMidtrans(cfg Config, logger *log.Entry) *Midtrans {
	apiBase, snapBase := sandboxAPIBase, sandboxSnapBase
	if cfg.Production {
		apiBase, snapBase = productionAPIBase, productionSnapBase
	}
	if cfg.APIBaseURL != "" {
		apiBase = cfg.APIBaseURL
	}
	if cfg.SnapBaseURL != "" {
		snapBase = cfg.SnapBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = log.WithField("component", "midtrans")
	}

	return &Midtrans{
		serverKey:     cfg.ServerKey,
		apiBase:       strings.TrimRight(apiBase, "/"),
		snapBase:      strings.TrimRight(snapBase, "/"),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		auth:          "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.ServerKey+":")),
		http:          &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

type transactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type action struct {
	Name   string `json:"name"`
	Method string `json:"method"`
	URL    string `json:"url"`
}

type chargeResponse struct {
	StatusCode        string   `json:"status_code"`
	StatusMessage     string   `json:"status_message"`
	TransactionStatus string   `json:"transaction_status"`
	QRString          string   `json:"qr_string"`
	QRURL             string   `json:"qr_url"`
	Actions           []action `json:"actions"`
}

// CreateCharge создаёт QRIS-платёж через Core API.
func (m *Midtrans) CreateCharge(ctx context.Context, req domain.ChargeRequest) (domain.Checkout, error) {
	payload := map[string]interface{}{
		"payment_type":        "qris",
		"transaction_details": transactionDetails{OrderID: req.OrderID, GrossAmount: req.Amount},
	}

	var resp chargeResponse
	if err := m.do(ctx, http.MethodPost, m.apiBase+"/v2/charge", payload, &resp); err != nil {
		return domain.Checkout{}, err
	}
	if code, err := strconv.Atoi(resp.StatusCode); err == nil && code >= 300 {
		return domain.Checkout{}, &domain.UpstreamError{Service: serviceName, StatusCode: code, Body: resp.StatusMessage, Kind: domain.ErrGatewayUnavailable}
	}

	return domain.Checkout{
		Kind:        domain.CheckoutQRIS,
		OrderID:     req.OrderID,
		QRString:    resp.QRString,
		QRURL:       qrURL(resp),
		RedirectURL: payLink(resp.Actions),
	}, nil
}

type snapResponse struct {
	Token       string   `json:"token"`
	RedirectURL string   `json:"redirect_url"`
	Errors      []string `json:"error_messages"`
}

// CreateInvoice создаёт счёт Snap со страницей оплаты.
func (m *Midtrans) CreateInvoice(ctx context.Context, req domain.ChargeRequest) (domain.Checkout, error) {
	name := req.ProductName
	if name == "" {
		name = req.OrderID
	}
	payload := map[string]interface{}{
		"transaction_details": transactionDetails{OrderID: req.OrderID, GrossAmount: req.Amount},
		"item_details": []map[string]interface{}{
			{"id": req.OrderID, "price": req.Amount, "quantity": 1, "name": truncateName(name)},
		},
		"customer_details": map[string]string{"phone": req.BuyerPhone},
		"credit_card":      map[string]bool{"secure": true},
	}
	if m.publicBaseURL != "" {
		payload["callbacks"] = map[string]string{"finish": m.publicBaseURL + "/pay/finish"}
	}

	var resp snapResponse
	if err := m.do(ctx, http.MethodPost, m.snapBase+"/snap/v1/transactions", payload, &resp); err != nil {
		return domain.Checkout{}, err
	}
	if resp.RedirectURL == "" {
		return domain.Checkout{}, &domain.UpstreamError{Service: serviceName, Body: "snap response without redirect_url: " + strings.Join(resp.Errors, "; "), Kind: domain.ErrGatewayUnavailable}
	}

	return domain.Checkout{
		Kind:        domain.CheckoutInvoice,
		OrderID:     req.OrderID,
		RedirectURL: resp.RedirectURL,
		Token:       resp.Token,
	}, nil
}

type statusResponse struct {
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message"`
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	GrossAmount       string `json:"gross_amount"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time"`
}

// QueryStatus запрашивает статус транзакции по order_id.
func (m *Midtrans) QueryStatus(ctx context.Context, orderID string) (domain.TransactionStatus, error) {
	var resp statusResponse
	endpoint := fmt.Sprintf("%s/v2/%s/status", m.apiBase, url.PathEscape(orderID))
	if err := m.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return domain.TransactionStatus{}, err
	}
	// Core API отвечает 200 с status_code 404 для неизвестного заказа.
	if code, err := strconv.Atoi(resp.StatusCode); err == nil && code >= 300 {
		return domain.TransactionStatus{}, &domain.UpstreamError{Service: serviceName, StatusCode: code, Body: resp.StatusMessage, Kind: domain.ErrGatewayUnavailable}
	}

	id := resp.OrderID
	if id == "" {
		id = orderID
	}
	return domain.TransactionStatus{
		OrderID:           id,
		TransactionStatus: resp.TransactionStatus,
		FraudStatus:       resp.FraudStatus,
		PaymentType:       resp.PaymentType,
		GrossAmount:       resp.GrossAmount,
		TransactionTime:   parseGatewayTime(resp.TransactionTime),
		SettlementTime:    parseGatewayTime(resp.SettlementTime),
	}, nil
}

// VerifySignature сверяет signature_key: SHA-512 от order_id+status_code+gross_amount+server_key.
// Поля берутся как пришли, без нормализации.
func (m *Midtrans) VerifySignature(n domain.WebhookNotification) bool {
	return verifySignature(n, m.serverKey)
}

// Sign считает подпись уведомления для заданного ключа.
func Sign(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func verifySignature(n domain.WebhookNotification, serverKey string) bool {
	if n.SignatureKey == "" {
		return false
	}
	expected := Sign(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) == 1
}

func (m *Midtrans) do(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal midtrans request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build midtrans request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", m.auth)
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	res, err := m.http.Do(req)
	if err != nil {
		return &domain.UpstreamError{Service: serviceName, Body: err.Error(), Kind: domain.ErrGatewayUnavailable}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	logger := m.logger.WithFields(log.Fields{
		"method":      method,
		"endpoint":    endpoint,
		"status":      res.StatusCode,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	if err != nil {
		return &domain.UpstreamError{Service: serviceName, StatusCode: res.StatusCode, Body: err.Error(), Kind: domain.ErrGatewayUnavailable}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		logger.WithField("body", truncate(raw)).Warn("midtrans request failed")
		return &domain.UpstreamError{Service: serviceName, StatusCode: res.StatusCode, Body: truncate(raw), Kind: domain.ErrGatewayUnavailable}
	}
	logger.Debug("midtrans request completed")

	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.UpstreamError{Service: serviceName, StatusCode: res.StatusCode, Body: "invalid json: " + truncate(raw), Kind: domain.ErrGatewayUnavailable}
	}
	return nil
}

// qrURL выбирает ссылку на картинку QR: v2, затем v1, затем поле qr_url.
func qrURL(resp chargeResponse) string {
	for _, name := range []string{"generate-qr-code-v2", "generate-qr-code", "qr-code"} {
		for _, a := range resp.Actions {
			if a.Name == name && a.URL != "" {
				return a.URL
			}
		}
	}
	return resp.QRURL
}

// payLink выбирает ссылку для оплаты из actions: desktop/web, mobile, deeplink, затем первую.
func payLink(actions []action) string {
	prefer := func(parts ...string) string {
		for _, a := range actions {
			name := strings.ToLower(a.Name)
			for _, p := range parts {
				if strings.Contains(name, p) && a.URL != "" {
					return a.URL
				}
			}
		}
		return ""
	}
	if link := prefer("desktop", "web"); link != "" {
		return link
	}
	if link := prefer("mobile"); link != "" {
		return link
	}
	if link := prefer("deeplink"); link != "" {
		return link
	}
	if len(actions) > 0 {
		return actions[0].URL
	}
	return ""
}

func parseGatewayTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(timeLayout, raw, gatewayZone)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Snap ограничивает имя позиции 50 символами.
func truncateName(name string) string {
	r := []rune(name)
	if len(r) > 50 {
		return string(r[:50])
	}
	return name
}

func truncate(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

var _ domain.PaymentGateway = (*Midtrans)(nil)
