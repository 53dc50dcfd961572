package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// MockGateway — шлюз для локального запуска и тестов.
// Платежи хранятся в памяти, статус меняется через SetStatus.
type MockGateway struct {
	mu sync.Mutex

	serverKey    string
	transactions map[string]domain.TransactionStatus

	// ChargeErr и InvoiceErr заставляют соответствующий вызов вернуть ошибку.
	ChargeErr  error
	InvoiceErr error
	StatusErr  error

	chargeCalls  int
	invoiceCalls int
	statusCalls  int
}

// NewMockGateway создаёт mock с ключом подписи serverKey.
func NewMockGateway(serverKey string) *MockGateway {
	return &MockGateway{
		serverKey:    serverKey,
		transactions: make(map[string]domain.TransactionStatus),
	}
}

// CreateCharge регистрирует QR-платёж в статусе pending.
func (m *MockGateway) CreateCharge(_ context.Context, req domain.ChargeRequest) (domain.Checkout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chargeCalls++
	if m.ChargeErr != nil {
		return domain.Checkout{}, m.ChargeErr
	}
	m.register(req, "qris")

	return domain.Checkout{
		Kind:        domain.CheckoutQRIS,
		OrderID:     req.OrderID,
		QRString:    "MOCKQRIS|" + req.OrderID + "|" + fmt.Sprint(req.Amount),
		RedirectURL: "https://pay.mock.local/qris/" + req.OrderID,
	}, nil
}

// CreateInvoice регистрирует счёт со ссылкой.
func (m *MockGateway) CreateInvoice(_ context.Context, req domain.ChargeRequest) (domain.Checkout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.invoiceCalls++
	if m.InvoiceErr != nil {
		return domain.Checkout{}, m.InvoiceErr
	}
	m.register(req, "snap")

	return domain.Checkout{
		Kind:        domain.CheckoutInvoice,
		OrderID:     req.OrderID,
		RedirectURL: "https://pay.mock.local/snap/" + req.OrderID,
		Token:       "tok-" + req.OrderID,
	}, nil
}

func (m *MockGateway) register(req domain.ChargeRequest, paymentType string) {
	m.transactions[req.OrderID] = domain.TransactionStatus{
		OrderID:           req.OrderID,
		TransactionStatus: "pending",
		PaymentType:       paymentType,
		GrossAmount:       fmt.Sprintf("%d.00", req.Amount),
		TransactionTime:   time.Now(),
	}
}

// QueryStatus возвращает сохранённую транзакцию.
func (m *MockGateway) QueryStatus(_ context.Context, orderID string) (domain.TransactionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statusCalls++
	if m.StatusErr != nil {
		return domain.TransactionStatus{}, m.StatusErr
	}
	tx, ok := m.transactions[orderID]
	if !ok {
		return domain.TransactionStatus{}, &domain.UpstreamError{Service: "mock", StatusCode: 404, Body: "transaction not found", Kind: domain.ErrGatewayUnavailable}
	}
	return tx, nil
}

// SetStatus меняет статус транзакции; settlement проставляет время оплаты.
func (m *MockGateway) SetStatus(orderID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.transactions[orderID]
	tx.OrderID = orderID
	tx.TransactionStatus = status
	if status == "settlement" {
		tx.SettlementTime = time.Now()
	}
	m.transactions[orderID] = tx
}

// VerifySignature проверяет подпись тем же алгоритмом, что и боевой шлюз.
func (m *MockGateway) VerifySignature(n domain.WebhookNotification) bool {
	return verifySignature(n, m.serverKey)
}

// Calls возвращает число вызовов charge, invoice и status.
func (m *MockGateway) Calls() (charge, invoice, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chargeCalls, m.invoiceCalls, m.statusCalls
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
