package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

func TestOutboxRepository_RetryLifecycle(t *testing.T) {
	store := migratedStore(t)
	repo := NewOutboxRepository(store)
	ctx := context.Background()

	created, err := repo.Enqueue(ctx, domain.OutboxMessage{
		OrderID:   "PBS-1",
		EventType: domain.JournalOrderCreated,
		Payload:   []byte(`{"order_id":"PBS-1"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Zero(t, created.Attempts)

	released, err := repo.Enqueue(ctx, domain.OutboxMessage{
		ID:        "evt-released",
		OrderID:   "PBS-2",
		EventType: domain.JournalOrderReleased,
	})
	require.NoError(t, err)
	require.Equal(t, "evt-released", released.ID)
	require.JSONEq(t, `{}`, string(released.Payload))

	now := time.Now()
	due, err := repo.Due(ctx, now.Add(time.Second), 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, created.ID, due[0].ID, "due keeps enqueue order")

	require.NoError(t, repo.Reschedule(ctx, released.ID, now.Add(time.Hour), "broker down"))
	due, err = repo.Due(ctx, now.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	due, err = repo.Due(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, 1, due[1].Attempts)
	require.Equal(t, "broker down", due[1].LastError)

	require.NoError(t, repo.MarkSent(ctx, created.ID))
	require.NoError(t, repo.Park(ctx, released.ID, "rejected"))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.OutboxStats{Parked: 1}, stats)
}

func TestOutboxRepository_EnqueueReturnsStoredRow(t *testing.T) {
	store := migratedStore(t)
	repo := NewOutboxRepository(store)
	ctx := context.Background()

	first, err := repo.Enqueue(ctx, domain.OutboxMessage{
		ID:        "evt-1",
		OrderID:   "PBS-1",
		EventType: domain.JournalOrderCreated,
		Payload:   []byte(`{"order_id":"PBS-1"}`),
	})
	require.NoError(t, err)

	again, err := repo.Enqueue(ctx, domain.OutboxMessage{ID: "evt-1", OrderID: "PBS-other"})
	require.NoError(t, err)
	require.Equal(t, first.OrderID, again.OrderID)
	require.Equal(t, first.CreatedAt, again.CreatedAt)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Pending)
	require.False(t, stats.OldestPendingAt.IsZero())
}

func TestOutboxRepository_TransitionsRequirePendingRow(t *testing.T) {
	store := migratedStore(t)
	repo := NewOutboxRepository(store)
	ctx := context.Background()

	require.ErrorIs(t, repo.MarkSent(ctx, "missing"), domain.ErrOutboxMessageNotFound)
	require.ErrorIs(t, repo.Park(ctx, "missing", "x"), domain.ErrOutboxMessageNotFound)

	msg, err := repo.Enqueue(ctx, domain.OutboxMessage{OrderID: "PBS-3", EventType: domain.JournalOrderFinalized})
	require.NoError(t, err)
	require.NoError(t, repo.MarkSent(ctx, msg.ID))

	require.ErrorIs(t, repo.MarkSent(ctx, msg.ID), domain.ErrOutboxMessageNotFound)
	require.ErrorIs(t, repo.Reschedule(ctx, msg.ID, time.Now(), "late"), domain.ErrOutboxMessageNotFound)
}

func TestOutboxRepository_DueReturnsOrderHeadOnly(t *testing.T) {
	store := migratedStore(t)
	repo := NewOutboxRepository(store)
	ctx := context.Background()

	created, err := repo.Enqueue(ctx, domain.OutboxMessage{OrderID: "PBS-7", EventType: domain.JournalOrderCreated})
	require.NoError(t, err)
	finalized, err := repo.Enqueue(ctx, domain.OutboxMessage{OrderID: "PBS-7", EventType: domain.JournalOrderFinalized})
	require.NoError(t, err)
	other, err := repo.Enqueue(ctx, domain.OutboxMessage{OrderID: "PBS-8", EventType: domain.JournalOrderCreated})
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, repo.Reschedule(ctx, created.ID, now.Add(time.Hour), "broker down"))

	due, err := repo.Due(ctx, now.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, other.ID, due[0].ID, "later event of a blocked order must wait")

	require.NoError(t, repo.Park(ctx, created.ID, "rejected"))
	due, err = repo.Due(ctx, now.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, finalized.ID, due[0].ID)
}
