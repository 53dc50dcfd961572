package health

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

// OutboxStats — источник размера очереди событий.
type OutboxStats interface {
	Stats(ctx context.Context) (domain.OutboxStats, error)
}

// OutboxChecker: degraded, если есть припаркованные события или старейшее
// pending ждёт дольше maxLag; unhealthy, если очередь не отвечает.
type OutboxChecker struct {
	outbox OutboxStats
	maxLag time.Duration
	now    func() time.Time
}

func NewOutboxChecker(outbox OutboxStats, maxLag time.Duration) *OutboxChecker {
	return &OutboxChecker{outbox: outbox, maxLag: maxLag, now: time.Now}
}

func (c *OutboxChecker) Check(ctx context.Context) Check {
	start := time.Now()
	check := Check{Name: "outbox", Status: StatusHealthy}

	stats, err := c.outbox.Stats(ctx)
	switch {
	case err != nil:
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	case stats.Parked > 0:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d events parked after exhausting publish attempts", stats.Parked)
	case c.maxLag > 0 && stats.Pending > 0 && c.now().Sub(stats.OldestPendingAt) > c.maxLag:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d events pending, oldest since %s",
			stats.Pending, stats.OldestPendingAt.UTC().Format(time.RFC3339))
	}
	check.Duration = time.Since(start)
	return check
}
