package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// journalRepositoryInMemory хранит журнал продаж в памяти.
type journalRepositoryInMemory struct {
	mu      sync.RWMutex
	byOrder map[string][]domain.JournalEntry
	all     []domain.JournalEntry
}

// NewJournalRepository создаёт in-memory реализацию JournalRepository.
func NewJournalRepository() domain.JournalRepository {
	return &journalRepositoryInMemory{byOrder: make(map[string][]domain.JournalEntry)}
}

// Append добавляет запись в журнал.
func (r *journalRepositoryInMemory) Append(_ context.Context, entry domain.JournalEntry) error {
	if entry.OrderID == "" || entry.Type == "" {
		return domain.ErrJournalEntryInvalid
	}
	if entry.Occurred.IsZero() {
		entry.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	events := append(r.byOrder[entry.OrderID], entry)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	r.byOrder[entry.OrderID] = events
	r.all = append(r.all, entry)

	return nil
}

// List возвращает записи заказа в хронологическом порядке.
func (r *journalRepositoryInMemory) List(_ context.Context, orderID string) ([]domain.JournalEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.byOrder[orderID]
	result := make([]domain.JournalEntry, len(events))
	copy(result, events)
	return result, nil
}

// Recent возвращает последние limit записей, новые первыми.
func (r *journalRepositoryInMemory) Recent(_ context.Context, limit int) ([]domain.JournalEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.all) {
		limit = len(r.all)
	}

	result := make([]domain.JournalEntry, 0, limit)
	for i := len(r.all) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, r.all[i])
	}
	return result, nil
}

var _ domain.JournalRepository = (*journalRepositoryInMemory)(nil)
