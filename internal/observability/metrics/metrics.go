package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking flows.
type BookingMetrics struct {
	slotQueries    *prometheus.CounterVec
	slotsReturned  prometheus.Counter
	holdsCreated   prometheus.Counter
	confirmations  *prometheus.CounterVec
	webhookTotal   *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		slotQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runcall",
			Subsystem: "availability",
			Name:      "slot_queries_total",
			Help:      "Total slot queries, labelled by whether any calendar was scanned",
		}, []string{"scanned"}),
		slotsReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runcall",
			Subsystem: "availability",
			Name:      "slots_returned_total",
			Help:      "Total slots returned to clients",
		}),
		holdsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runcall",
			Subsystem: "bookings",
			Name:      "holds_created_total",
			Help:      "Total booking holds created",
		}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runcall",
			Subsystem: "bookings",
			Name:      "confirmations_total",
			Help:      "Total confirmation attempts by outcome",
		}, []string{"outcome"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runcall",
			Subsystem: "payments",
			Name:      "webhook_total",
			Help:      "Total Stripe webhooks by event type and status",
		}, []string{"event_type", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "runcall",
			Subsystem: "payments",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of Stripe webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.slotQueries, m.slotsReturned, m.holdsCreated, m.confirmations, m.webhookTotal, m.webhookLatency)
	return m
}

func (m *BookingMetrics) ObserveSlotQuery(calendarsScanned, slots int) {
	if m == nil {
		return
	}
	scanned := "false"
	if calendarsScanned > 0 {
		scanned = "true"
	}
	m.slotQueries.WithLabelValues(scanned).Inc()
	m.slotsReturned.Add(float64(slots))
}

func (m *BookingMetrics) ObserveHoldCreated() {
	if m == nil {
		return
	}
	m.holdsCreated.Inc()
}

// ObserveConfirmation records a confirmation attempt outcome:
// confirmed, noop, retriable_error, rejected.
func (m *BookingMetrics) ObserveConfirmation(outcome string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveWebhook(eventType, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(eventType, status).Inc()
}

func (m *BookingMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}
