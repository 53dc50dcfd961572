package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

const defaultDueLimit = 100

// OutboxRepository — очередь событий заказов в таблице order_events_outbox.
type OutboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository создаёт очередь поверх Store.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{db: store.DB()}
}

// Enqueue вставляет событие; повтор с тем же ID возвращает сохранённую строку.
func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if msg.NextAttemptAt.IsZero() {
		msg.NextAttemptAt = now
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO order_events_outbox (id, order_id, event_type, payload, next_attempt_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
			RETURNING id, order_id, event_type, payload, attempts, last_error, next_attempt_at, created_at
		)
		SELECT * FROM inserted
		UNION ALL
		SELECT id, order_id, event_type, payload, attempts, last_error, next_attempt_at, created_at
		FROM order_events_outbox WHERE id = $1
		LIMIT 1
	`, msg.ID, msg.OrderID, msg.EventType, payloadOrEmpty(msg.Payload), msg.NextAttemptAt.UTC(), now)

	stored, err := scanOutbox(row)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message %s: %w", msg.ID, err)
	}
	return stored, nil
}

// Due отдаёт готовые к отправке сообщения: по одному, старейшему, на заказ.
func (r *OutboxRepository) Due(ctx context.Context, now time.Time, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultDueLimit
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, event_type, payload, attempts, last_error, next_attempt_at, created_at
		FROM order_events_outbox o
		WHERE state = 'pending' AND next_attempt_at <= $1
		  AND NOT EXISTS (
			SELECT 1 FROM order_events_outbox prev
			WHERE prev.order_id = o.order_id AND prev.state = 'pending' AND prev.seq < o.seq
		  )
		ORDER BY seq
		LIMIT $2
	`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query due outbox messages: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboxMessage
	for rows.Next() {
		msg, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}
	return out, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.transition(ctx, id, `
		UPDATE order_events_outbox
		SET state = 'sent', attempts = attempts + 1, sent_at = NOW()
		WHERE id = $1 AND state = 'pending'
	`, id)
}

func (r *OutboxRepository) Reschedule(ctx context.Context, id string, next time.Time, lastErr string) error {
	return r.transition(ctx, id, `
		UPDATE order_events_outbox
		SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
		WHERE id = $1 AND state = 'pending'
	`, id, lastErr, next.UTC())
}

func (r *OutboxRepository) Park(ctx context.Context, id string, lastErr string) error {
	return r.transition(ctx, id, `
		UPDATE order_events_outbox
		SET state = 'parked', attempts = attempts + 1, last_error = $2
		WHERE id = $1 AND state = 'pending'
	`, id, lastErr)
}

func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE state = 'pending'),
			COUNT(*) FILTER (WHERE state = 'parked'),
			MIN(created_at) FILTER (WHERE state = 'pending')
		FROM order_events_outbox
	`).Scan(&stats.Pending, &stats.Parked, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("query outbox stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

// transition применяет UPDATE к pending-строке; ноль затронутых строк — ErrOutboxMessageNotFound.
func (r *OutboxRepository) transition(ctx context.Context, id, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update outbox message %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update outbox message %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrOutboxMessageNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutbox(row rowScanner) (domain.OutboxMessage, error) {
	var msg domain.OutboxMessage
	err := row.Scan(&msg.ID, &msg.OrderID, &msg.EventType, &msg.Payload,
		&msg.Attempts, &msg.LastError, &msg.NextAttemptAt, &msg.CreatedAt)
	msg.NextAttemptAt = msg.NextAttemptAt.UTC()
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, err
}

// payloadOrEmpty подставляет пустой объект: колонка JSONB NOT NULL.
func payloadOrEmpty(p []byte) string {
	if len(p) == 0 {
		return "{}"
	}
	return string(p)
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
