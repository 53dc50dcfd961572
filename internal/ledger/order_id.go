package ledger

import (
	"fmt"
	"sync"
	"time"
)

// idGenerator выдаёт order_id вида PREFIX-<unix millis>.
// Миллисекунды строго возрастают в пределах процесса.
type idGenerator struct {
	mu     sync.Mutex
	prefix string
	clock  func() time.Time
	last   int64
}

func newIDGenerator(prefix string, clock func() time.Time) *idGenerator {
	if clock == nil {
		clock = time.Now
	}
	return &idGenerator{prefix: prefix, clock: clock}
}

// Next возвращает новый идентификатор.
func (g *idGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.clock().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return fmt.Sprintf("%s-%d", g.prefix, ms)
}
