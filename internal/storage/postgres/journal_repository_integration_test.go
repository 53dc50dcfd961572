package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

func TestJournalRepository_PostgresFlow(t *testing.T) {
	store := migratedStore(t)
	repo := NewJournalRepository(store)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	entries := []domain.JournalEntry{
		{OrderID: "PBS-1", Type: domain.JournalOrderCreated, BuyerRef: "62811@c.us", ProductCode: "NFX1", Quantity: 1, Total: 35000, Occurred: base},
		{OrderID: "PBS-2", Type: domain.JournalOrderCreated, BuyerRef: "62812@c.us", ProductCode: "SPO3B", Quantity: 2, Total: 50000, Occurred: base.Add(time.Second)},
		{OrderID: "PBS-1", Type: domain.JournalOrderFinalized, BuyerRef: "62811@c.us", ProductCode: "NFX1", Quantity: 1, Total: 35000, Occurred: base.Add(2 * time.Second)},
		{OrderID: "PBS-2", Type: domain.JournalOrderReleased, Reason: "timeout", Occurred: base.Add(3 * time.Second)},
	}
	for _, e := range entries {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("append %s/%s: %v", e.OrderID, e.Type, err)
		}
	}

	list, err := repo.List(ctx, "PBS-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Type != domain.JournalOrderCreated || list[1].Type != domain.JournalOrderFinalized {
		t.Fatalf("unexpected order history: %+v", list)
	}
	if list[0].Total != 35000 || !list[0].Occurred.Equal(base) {
		t.Fatalf("unexpected first entry: %+v", list[0])
	}

	recent, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Reason != "timeout" || recent[1].Type != domain.JournalOrderFinalized {
		t.Fatalf("unexpected recent entries: %+v", recent)
	}
}

func TestJournalRepository_PostgresRejectsInvalidEntry(t *testing.T) {
	store := migratedStore(t)
	repo := NewJournalRepository(store)

	err := repo.Append(context.Background(), domain.JournalEntry{OrderID: "PBS-1"})
	if !errors.Is(err, domain.ErrJournalEntryInvalid) {
		t.Fatalf("expected ErrJournalEntryInvalid, got %v", err)
	}
}
