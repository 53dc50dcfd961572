package domain

import "time"

// PaymentOutcome — нормализованный статус платежа из webhook.
type PaymentOutcome string

const (
	// PaymentSettled — оплата прошла (settlement или принятый capture).
	PaymentSettled PaymentOutcome = "SETTLED"
	// PaymentFailed — платёж истёк, отменён или отклонён.
	PaymentFailed PaymentOutcome = "FAILED"
	// PaymentOther — промежуточный статус, подтверждаем без действий.
	PaymentOther PaymentOutcome = "OTHER"
)

// ChargeRequest — параметры создания платежа.
type ChargeRequest struct {
	OrderID     string
	Amount      int64
	BuyerPhone  string
	ProductName string
}

// CheckoutKind различает QR-платёж и счёт со ссылкой.
type CheckoutKind string

const (
	CheckoutQRIS    CheckoutKind = "qris"
	CheckoutInvoice CheckoutKind = "invoice"
)

// Checkout — то, что покупатель использует для оплаты: QR-строка и/или ссылка.
type Checkout struct {
	Kind     CheckoutKind
	OrderID  string
	QRString string
	QRURL    string
	// RedirectURL — ссылка на страницу оплаты (для QRIS — действие из ответа шлюза).
	RedirectURL string
	Token       string
}

// TransactionStatus — ответ шлюза на запрос статуса.
type TransactionStatus struct {
	OrderID           string
	TransactionStatus string
	FraudStatus       string
	PaymentType       string
	// GrossAmount хранится в исходном строковом виде ("15000.00").
	GrossAmount     string
	TransactionTime time.Time
	SettlementTime  time.Time
}

// WebhookNotification — поля входящего callback, участвующие в подписи и маршрутизации.
// Значения не нормализуются: подпись считается по исходным строкам.
type WebhookNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	TransactionID     string `json:"transaction_id"`
}
