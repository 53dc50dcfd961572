// Package dedup очищает dedup guard от записей с истёкшим окном.
package dedup

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/metrics"
)

const (
	defaultSweepInterval  = time.Minute
	defaultSweepBatchSize = 500
)

// Options задает параметры очистки.
type Options struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	Metrics   *metrics.SweepMetrics
	Clock     func() time.Time
}

// Option настраивает Sweeper.
type Option func(*Options)

// WithLogger задает logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между проходами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithBatchSize задает размер одного удаления.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) {
		opts.BatchSize = batchSize
	}
}

func WithMetrics(m *metrics.SweepMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// Sweeper периодически удаляет order_id, чьё окно дедупликации закончилось.
type Sweeper struct {
	guard     domain.DedupGuard
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	metrics   *metrics.SweepMetrics
	now       func() time.Time
}

// NewSweeper создает воркер очистки.
func NewSweeper(guard domain.DedupGuard, options ...Option) *Sweeper {
	opts := Options{
		Interval:  defaultSweepInterval,
		BatchSize: defaultSweepBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "dedup-sweeper")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatchSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Sweeper{
		guard:     guard,
		logger:    logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		metrics:   opts.Metrics,
		now:       opts.Clock,
	}
}

// Run чистит guard до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.guard == nil {
		s.logger.Warn("dedup sweeper is disabled: guard is nil")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	deleted, err := s.DeleteExpired(ctx, s.now())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.metrics.RecordRun("error", deleted)
		s.logger.WithError(err).Warn("dedup sweep failed")
		return
	}

	s.metrics.RecordRun("ok", deleted)
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Debug("dedup sweep completed")
	}
}

// DeleteExpired удаляет все записи с окном до before порциями batchSize.
func (s *Sweeper) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = s.now()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := s.guard.DeleteExpired(before, s.batchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		s.metrics.AddDeleted(deleted)

		if deleted < s.batchSize {
			return total, nil
		}
	}
}
