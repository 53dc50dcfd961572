package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// dedupGuardInMemory — ограниченное по времени множество финализированных order_id.
type dedupGuardInMemory struct {
	mu    sync.RWMutex
	items map[string]time.Time
}

// NewDedupGuard создаёт in-memory реализацию DedupGuard.
func NewDedupGuard() domain.DedupGuard {
	return &dedupGuardInMemory{
		items: make(map[string]time.Time),
	}
}

// Remember запоминает заказ до момента until. Повторный вызов продлевает срок.
func (g *dedupGuardInMemory) Remember(orderID string, until time.Time) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.ErrOrderIDRequired
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if current, ok := g.items[orderID]; ok && current.After(until) {
		return nil
	}
	g.items[orderID] = until
	return nil
}

// Contains сообщает, помнит ли guard заказ на момент now. Просроченные записи не считаются.
func (g *dedupGuardInMemory) Contains(orderID string, now time.Time) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	until, ok := g.items[strings.TrimSpace(orderID)]
	if !ok {
		return false, nil
	}
	return now.Before(until), nil
}

func (g *dedupGuardInMemory) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for id, until := range g.items {
		if until.After(before) {
			continue
		}

		delete(g.items, id)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}

	return removed, nil
}

var _ domain.DedupGuard = (*dedupGuardInMemory)(nil)
