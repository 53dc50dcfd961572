package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/metrics"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 5
	defaultRetryBaseDelay = 2 * time.Second
	maxRetryDelay         = 5 * time.Minute
)

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	Metrics        *metrics.OutboxMetrics
	Clock          func() time.Time
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) { opts.Logger = logger }
}

// WithDLQPublisher получает события, припаркованные после последней попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) { opts.DLQPublisher = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) { opts.PollInterval = interval }
}

func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) { opts.BatchSize = batchSize }
}

// WithMaxAttempts — сколько раз публиковать событие, прежде чем припарковать его.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) { opts.MaxAttempts = maxAttempts }
}

// WithRetryBaseDelay — задержка перед второй попыткой; дальше она растёт экспоненциально.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) { opts.RetryBaseDelay = delay }
}

func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(opts *WorkerOptions) { opts.Metrics = m }
}

func WithClock(clock func() time.Time) Option {
	return func(opts *WorkerOptions) { opts.Clock = clock }
}

// Worker переносит события заказов из outbox в брокер.
//
// За один проход каждое готовое сообщение публикуется ровно один раз.
// Неудача переносит следующую попытку на время из экспоненциального backoff,
// а последняя неудачная попытка паркует сообщение и копирует его в DLQ.
type Worker struct {
	repo         domain.OutboxRepository
	publisher    domain.OutboxPublisher
	dlqPublisher domain.OutboxPublisher
	logger       *log.Entry
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	baseDelay    time.Duration
	metrics      *metrics.OutboxMetrics
	now          func() time.Time
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-worker")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Worker{
		repo:         repo,
		publisher:    publisher,
		dlqPublisher: opts.DLQPublisher,
		logger:       logger,
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		maxAttempts:  opts.MaxAttempts,
		baseDelay:    opts.RetryBaseDelay,
		metrics:      opts.Metrics,
		now:          opts.Clock,
	}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один проход по готовым сообщениям.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	w.processBatch(ctx)
}

// Drain публикует готовые сообщения, пока проходы что-то отправляют.
// Вызывается при остановке после того, как реестр записал события shutdown.
func (w *Worker) Drain(ctx context.Context) int {
	if w.repo == nil || w.publisher == nil {
		return 0
	}

	total := 0
	for ctx.Err() == nil {
		sent, pulled := w.processBatch(ctx)
		total += sent
		if pulled == 0 || sent == 0 {
			break
		}
	}
	if total > 0 {
		w.logger.WithField("sent", total).Info("outbox drained")
	}
	return total
}

func (w *Worker) processBatch(ctx context.Context) (sent, pulled int) {
	defer w.refreshBacklog(ctx)

	due, err := w.repo.Due(ctx, w.now(), w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to load due outbox messages")
		return 0, 0
	}

	for _, msg := range due {
		if ctx.Err() != nil {
			break
		}
		if w.deliver(ctx, msg) {
			sent++
		}
	}
	return sent, len(due)
}

// deliver делает одну попытку публикации и записывает её исход.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) bool {
	logger := w.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"order_id":   msg.OrderID,
		"event_type": msg.EventType,
		"attempt":    msg.Attempts + 1,
	})

	pubErr := w.publisher.Publish(ctx, msg)
	if pubErr == nil {
		w.metrics.RecordPublish("sent")
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			logger.WithError(err).Warn("failed to mark outbox message as sent")
		}
		return true
	}
	if errors.Is(pubErr, context.Canceled) || errors.Is(pubErr, context.DeadlineExceeded) {
		return false
	}

	if msg.Attempts+1 < w.maxAttempts {
		delay := w.retryDelay(msg.Attempts + 1)
		w.metrics.RecordPublish("retry_error")
		logger.WithError(pubErr).WithField("retry_in", delay).Warn("outbox publish failed, rescheduled")
		if err := w.repo.Reschedule(ctx, msg.ID, w.now().Add(delay), pubErr.Error()); err != nil {
			logger.WithError(err).Warn("failed to reschedule outbox message")
		}
		return false
	}

	w.metrics.RecordPublish("parked")
	logger.WithError(pubErr).Error("outbox publish attempts exhausted, parking message")

	parked := msg
	parked.Attempts++
	parked.LastError = pubErr.Error()
	if w.dlqPublisher != nil {
		if err := w.dlqPublisher.Publish(ctx, parked); err != nil {
			w.metrics.RecordPublish("dlq_failed")
			logger.WithError(err).Warn("failed to copy parked message to DLQ")
		}
	}
	if err := w.repo.Park(ctx, msg.ID, parked.LastError); err != nil {
		logger.WithError(err).Warn("failed to park outbox message")
	}
	return false
}

// retryDelay — пауза после failures подряд неудачных попыток.
func (w *Worker) retryDelay(failures int) time.Duration {
	if w.baseDelay <= 0 {
		return 0
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.baseDelay
	policy.MaxInterval = max(maxRetryDelay, w.baseDelay)
	policy.MaxElapsedTime = 0
	policy.RandomizationFactor = 0
	policy.Reset()

	delay := policy.NextBackOff()
	for i := 1; i < failures; i++ {
		delay = policy.NextBackOff()
	}
	return delay
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	stats, err := w.repo.Stats(context.WithoutCancel(ctx))
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	var age time.Duration
	if stats.Pending > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetBacklog(stats.Pending, stats.Parked, age)
}
