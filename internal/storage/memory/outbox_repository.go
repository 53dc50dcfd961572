package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

type outboxState uint8

const (
	statePending outboxState = iota
	stateSent
	stateParked
)

type outboxItem struct {
	msg   domain.OutboxMessage
	state outboxState
	seq   uint64
}

// OutboxRepository — очередь событий заказов в памяти процесса.
// Используется, когда журнал не хранится в PostgreSQL.
type OutboxRepository struct {
	mu    sync.Mutex
	seq   uint64
	items map[string]*outboxItem
	now   func() time.Time
}

// NewOutboxRepository создаёт пустую очередь.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		items: make(map[string]*outboxItem),
		now:   time.Now,
	}
}

func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if existing, ok := r.items[msg.ID]; ok {
		return existing.msg, nil
	}

	now := r.now().UTC()
	msg.Attempts = 0
	msg.LastError = ""
	msg.CreatedAt = now
	if msg.NextAttemptAt.IsZero() {
		msg.NextAttemptAt = now
	}

	r.seq++
	r.items[msg.ID] = &outboxItem{msg: msg, state: statePending, seq: r.seq}
	return msg, nil
}

func (r *OutboxRepository) Due(_ context.Context, now time.Time, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	r.mu.Lock()
	// Только старейшее pending-событие каждого заказа: порядок внутри заказа сохраняется.
	heads := make(map[string]*outboxItem)
	for _, it := range r.items {
		if it.state != statePending {
			continue
		}
		if head, ok := heads[it.msg.OrderID]; !ok || it.seq < head.seq {
			heads[it.msg.OrderID] = it
		}
	}
	due := make([]*outboxItem, 0, len(heads))
	for _, it := range heads {
		if !it.msg.NextAttemptAt.After(now) {
			due = append(due, it)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]domain.OutboxMessage, len(due))
	for i, it := range due {
		out[i] = it.msg
	}
	r.mu.Unlock()

	return out, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.update(id, func(it *outboxItem) {
		it.state = stateSent
		it.msg.Attempts++
	})
}

func (r *OutboxRepository) Reschedule(_ context.Context, id string, next time.Time, lastErr string) error {
	return r.update(id, func(it *outboxItem) {
		it.msg.Attempts++
		it.msg.LastError = lastErr
		it.msg.NextAttemptAt = next.UTC()
	})
}

func (r *OutboxRepository) Park(_ context.Context, id string, lastErr string) error {
	return r.update(id, func(it *outboxItem) {
		it.state = stateParked
		it.msg.Attempts++
		it.msg.LastError = lastErr
	})
}

func (r *OutboxRepository) Stats(context.Context) (domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.OutboxStats
	for _, it := range r.items {
		switch it.state {
		case statePending:
			stats.Pending++
			if stats.OldestPendingAt.IsZero() || it.msg.CreatedAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = it.msg.CreatedAt
			}
		case stateParked:
			stats.Parked++
		}
	}
	return stats, nil
}

// update меняет только pending-сообщение.
func (r *OutboxRepository) update(id string, fn func(*outboxItem)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[id]
	if !ok || it.state != statePending {
		return domain.ErrOutboxMessageNotFound
	}
	fn(it)
	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
