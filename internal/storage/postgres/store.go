// Package postgres — необязательное хранилище журнала продаж и outbox событий.
// Заказы в ожидании оплаты сюда не пишутся: журнал только для аудита.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	pingTimeout = 5 * time.Second
	opTimeout   = 5 * time.Second
)

// ErrStoreNotInitialized — вызов на nil Store или закрытом подключении.
var ErrStoreNotInitialized = errors.New("postgres store is not initialized")

// Pool — лимиты пула database/sql.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DefaultPool рассчитан на один экземпляр бота: журнал пишет реестр заказов,
// outbox читает единственный воркер.
func DefaultPool() Pool {
	return Pool{MaxOpen: 10, MaxIdle: 5, MaxLifetime: 30 * time.Minute, MaxIdleTime: 5 * time.Minute}
}

// Option меняет параметры Open.
type Option func(*Pool)

// WithMaxOpenConns ограничивает число подключений; idle не больше open.
func WithMaxOpenConns(n int) Option {
	return func(p *Pool) {
		if n <= 0 {
			return
		}
		p.MaxOpen = n
		p.MaxIdle = min(p.MaxIdle, n)
	}
}

// Store — пул подключений к базе журнала.
type Store struct {
	db *sql.DB
}

// Open открывает пул через pgx и проверяет доступность базы.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	pool := DefaultPool()
	for _, opt := range opts {
		opt(&pool)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)
	db.SetConnMaxIdleTime(pool.MaxIdleTime)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping — проверка здоровья журнала.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStoreNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Collector экспортирует sql.DBStats пула с меткой db_name="journal".
func (s *Store) Collector() prometheus.Collector {
	return collectors.NewDBStatsCollector(s.db, "journal")
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
