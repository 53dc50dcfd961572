package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

const defaultRecentLimit = 50

type journalRepository struct {
	db *sql.DB
}

// NewJournalRepository создаёт журнал продаж в PostgreSQL.
func NewJournalRepository(store *Store) domain.JournalRepository {
	return &journalRepository{db: store.DB()}
}

func (r *journalRepository) Append(ctx context.Context, entry domain.JournalEntry) error {
	if strings.TrimSpace(entry.OrderID) == "" || strings.TrimSpace(entry.Type) == "" {
		return domain.ErrJournalEntryInvalid
	}
	if entry.Occurred.IsZero() {
		entry.Occurred = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO sales_journal (order_id, type, reason, buyer_ref, product_code, quantity, total, occurred)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.OrderID, entry.Type, entry.Reason, entry.BuyerRef, entry.ProductCode, entry.Quantity, entry.Total, entry.Occurred); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

func (r *journalRepository) List(ctx context.Context, orderID string) ([]domain.JournalEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, type, reason, buyer_ref, product_code, quantity, total, occurred
		FROM sales_journal
		WHERE order_id = $1
		ORDER BY occurred ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	return scanEntries(rows)
}

func (r *journalRepository) Recent(ctx context.Context, limit int) ([]domain.JournalEntry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, type, reason, buyer_ref, product_code, quantity, total, occurred
		FROM sales_journal
		ORDER BY occurred DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent journal entries: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]domain.JournalEntry, error) {
	defer rows.Close()

	entries := make([]domain.JournalEntry, 0)
	for rows.Next() {
		var e domain.JournalEntry
		if err := rows.Scan(&e.OrderID, &e.Type, &e.Reason, &e.BuyerRef, &e.ProductCode, &e.Quantity, &e.Total, &e.Occurred); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Occurred = e.Occurred.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}
	return entries, nil
}

var _ domain.JournalRepository = (*journalRepository)(nil)
