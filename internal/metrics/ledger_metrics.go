package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics содержит метрики реестра заказов и приёма webhook.
// Все методы безопасны для nil-получателя: компоненты без метрик просто их не пишут.
type LedgerMetrics struct {
	ordersCreated      prometheus.Counter
	ordersFinalized    prometheus.Counter
	ordersReleased     *prometheus.CounterVec
	reservationDenied  prometheus.Counter
	duplicateTerminal  *prometheus.CounterVec
	pendingOrders      prometheus.Gauge
	settleDuration     prometheus.Histogram
	webhookRequests    *prometheus.CounterVec
	notificationErrors *prometheus.CounterVec
	inventoryErrors    *prometheus.CounterVec
}

// NewLedgerMetrics регистрирует метрики в DefaultRegisterer.
func NewLedgerMetrics() *LedgerMetrics {
	return NewLedgerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewLedgerMetricsWithRegisterer регистрирует метрики в переданном registry.
func NewLedgerMetricsWithRegisterer(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LedgerMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shopbot_orders_created_total",
			Help: "Total number of orders registered after a successful reservation",
		}),
		ordersFinalized: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shopbot_orders_finalized_total",
			Help: "Total number of orders finalized after payment settlement",
		}),
		ordersReleased: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shopbot_orders_released_total",
			Help: "Total number of released orders grouped by reason",
		}, []string{"reason"}),
		reservationDenied: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shopbot_reservation_denied_total",
			Help: "Total number of order attempts denied by inventory",
		}),
		duplicateTerminal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shopbot_terminal_noop_total",
			Help: "Terminal requests that found no pending order grouped by outcome",
		}, []string{"outcome"}),
		pendingOrders: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shopbot_orders_pending",
			Help: "Number of orders waiting for payment",
		}),
		settleDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shopbot_order_settle_seconds",
			Help:    "Time from order creation to payment settlement",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		webhookRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shopbot_webhook_requests_total",
			Help: "Payment webhook requests grouped by result",
		}, []string{"result"}),
		notificationErrors: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shopbot_notification_failures_total",
			Help: "Failed chat notification operations grouped by operation",
		}, []string{"op"}),
		inventoryErrors: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shopbot_inventory_errors_total",
			Help: "Inventory call failures grouped by action",
		}, []string{"action"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *LedgerMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordOrderFinalized считает финализацию и время от создания до оплаты.
func (m *LedgerMetrics) RecordOrderFinalized(sinceCreated time.Duration) {
	if m == nil {
		return
	}
	m.ordersFinalized.Inc()
	if sinceCreated > 0 {
		m.settleDuration.Observe(sinceCreated.Seconds())
	}
}

// RecordOrderReleased считает освобождение резерва по причине.
func (m *LedgerMetrics) RecordOrderReleased(reason string) {
	if m == nil {
		return
	}
	m.ordersReleased.WithLabelValues(reason).Inc()
}

// RecordReservationDenied считает отказ склада.
func (m *LedgerMetrics) RecordReservationDenied() {
	if m == nil {
		return
	}
	m.reservationDenied.Inc()
}

// RecordTerminalNoop считает finalize/release, которые не нашли заказ.
func (m *LedgerMetrics) RecordTerminalNoop(outcome string) {
	if m == nil {
		return
	}
	m.duplicateTerminal.WithLabelValues(outcome).Inc()
}

// SetPendingOrders выставляет число заказов в ожидании оплаты.
func (m *LedgerMetrics) SetPendingOrders(n int) {
	if m == nil {
		return
	}
	m.pendingOrders.Set(float64(n))
}

// RecordWebhook считает обработанный webhook по результату.
func (m *LedgerMetrics) RecordWebhook(result string) {
	if m == nil {
		return
	}
	m.webhookRequests.WithLabelValues(result).Inc()
}

// RecordNotificationFailure считает ошибку send/revoke.
func (m *LedgerMetrics) RecordNotificationFailure(op string) {
	if m == nil {
		return
	}
	m.notificationErrors.WithLabelValues(op).Inc()
}

// RecordInventoryError считает ошибку вызова склада.
func (m *LedgerMetrics) RecordInventoryError(action string) {
	if m == nil {
		return
	}
	m.inventoryErrors.WithLabelValues(action).Inc()
}
