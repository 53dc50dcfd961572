package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics — метрики публикации событий из outbox.
type OutboxMetrics struct {
	publishAttempts  *prometheus.CounterVec
	pendingRecords   prometheus.Gauge
	parkedRecords    prometheus.Gauge
	oldestPendingAge prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики outbox worker.
func NewOutboxMetrics(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &OutboxMetrics{
		publishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shopbot_outbox_publish_attempts_total",
			Help: "Outbox publish attempts grouped by result",
		}, []string{"result"}),
		pendingRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shopbot_outbox_pending_records",
			Help: "Current number of pending records in the outbox",
		}),
		parkedRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shopbot_outbox_parked_records",
			Help: "Outbox records parked after exhausting publish attempts",
		}),
		oldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shopbot_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
	}
}

// RecordPublish учитывает попытку публикации: sent, retry_error, parked, dlq_failed.
func (m *OutboxMetrics) RecordPublish(result string) {
	if m == nil {
		return
	}
	m.publishAttempts.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер и возраст backlog.
func (m *OutboxMetrics) SetBacklog(pending, parked int, oldest time.Duration) {
	if m == nil {
		return
	}
	m.pendingRecords.Set(float64(pending))
	m.parkedRecords.Set(float64(parked))
	if oldest < 0 {
		oldest = 0
	}
	m.oldestPendingAge.Set(oldest.Seconds())
}

// SweepMetrics — метрики очистки dedup guard.
type SweepMetrics struct {
	runs        *prometheus.CounterVec
	deleted     prometheus.Counter
	lastDeleted prometheus.Gauge
}

// NewSweepMetrics регистрирует метрики очистки.
func NewSweepMetrics(registerer prometheus.Registerer) *SweepMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &SweepMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shopbot_dedup_sweep_runs_total",
			Help: "Dedup guard sweep runs grouped by result",
		}, []string{"result"}),
		deleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shopbot_dedup_sweep_deleted_total",
			Help: "Expired dedup records removed",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shopbot_dedup_sweep_last_deleted",
			Help: "Records removed during the last sweep run",
		}),
	}
}

func (m *SweepMetrics) RecordRun(result string, deleted int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	if result == "ok" {
		m.lastDeleted.Set(float64(deleted))
	}
}

func (m *SweepMetrics) AddDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deleted.Add(float64(n))
}

// PendingRecords и ParkedRecords открывают gauges для проверок в тестах других пакетов.
func (m *OutboxMetrics) PendingRecords() prometheus.Gauge { return m.pendingRecords }

func (m *OutboxMetrics) ParkedRecords() prometheus.Gauge { return m.parkedRecords }
