package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// MockService — склад в памяти для локального запуска и тестов.
// Остатки по коду задаются через SetStock; без остатка резерв отклоняется.
type MockService struct {
	mu sync.Mutex

	stock    map[string]int
	reserved map[string]domain.ReserveRequest
	items    map[string][]domain.FulfillmentItem

	ReserveErr  error
	FinalizeErr error
	ReleaseErr  error
	// Unlimited разрешает любой резерв, не трогая остатки.
	Unlimited bool

	reserveCalls  int
	finalizeCalls int
	releaseCalls  int
}

// NewMockService возвращает склад без остатков.
func NewMockService() *MockService {
	return &MockService{
		stock:    make(map[string]int),
		reserved: make(map[string]domain.ReserveRequest),
		items:    make(map[string][]domain.FulfillmentItem),
	}
}

// SetStock задаёт доступный остаток товара.
func (m *MockService) SetStock(code string, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[code] = qty
}

// SetItems задаёт позиции, которые выдаст finalize для товара.
func (m *MockService) SetItems(code string, items ...domain.FulfillmentItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[code] = items
}

// Stock возвращает текущий остаток.
func (m *MockService) Stock(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[code]
}

func (m *MockService) Reserve(_ context.Context, req domain.ReserveRequest) (domain.InventoryAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reserveCalls++
	if m.ReserveErr != nil {
		return domain.InventoryAck{}, m.ReserveErr
	}
	if _, dup := m.reserved[req.OrderID]; dup {
		return domain.InventoryAck{OK: true, Message: "already reserved"}, nil
	}
	if !m.Unlimited {
		if m.stock[req.ProductCode] < req.Quantity {
			return domain.InventoryAck{OK: false, Message: fmt.Sprintf("stok %s tidak cukup", req.ProductCode)}, nil
		}
		m.stock[req.ProductCode] -= req.Quantity
	}
	m.reserved[req.OrderID] = req
	return domain.InventoryAck{OK: true}, nil
}

func (m *MockService) Finalize(_ context.Context, orderID string, _ int64) (domain.Fulfillment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.finalizeCalls++
	if m.FinalizeErr != nil {
		return domain.Fulfillment{}, m.FinalizeErr
	}
	req, ok := m.reserved[orderID]
	if !ok {
		return domain.Fulfillment{OK: false, Message: "order not reserved"}, nil
	}
	delete(m.reserved, orderID)
	return domain.Fulfillment{OK: true, Items: append([]domain.FulfillmentItem(nil), m.items[req.ProductCode]...)}, nil
}

func (m *MockService) Release(_ context.Context, orderID string) (domain.InventoryAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releaseCalls++
	if m.ReleaseErr != nil {
		return domain.InventoryAck{}, m.ReleaseErr
	}
	req, ok := m.reserved[orderID]
	if !ok {
		return domain.InventoryAck{OK: true, Message: "nothing to release"}, nil
	}
	delete(m.reserved, orderID)
	if !m.Unlimited {
		m.stock[req.ProductCode] += req.Quantity
	}
	return domain.InventoryAck{OK: true}, nil
}

// Calls возвращает счётчики вызовов reserve, finalize и release.
func (m *MockService) Calls() (reserve, finalize, release int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserveCalls, m.finalizeCalls, m.releaseCalls
}

var _ domain.InventoryService = (*MockService)(nil)
