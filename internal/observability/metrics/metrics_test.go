package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewBookingMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveSlotQuery(3, 12)
	m.ObserveSlotQuery(0, 0)
	m.ObserveHoldCreated()
	m.ObserveConfirmation("confirmed")
	m.ObserveConfirmation("noop")
	m.ObserveWebhook("checkout.session.completed", "ok")
	m.ObserveWebhookLatency("checkout.session.completed", 0.2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"runcall_availability_slot_queries_total",
		"runcall_availability_slots_returned_total",
		"runcall_bookings_holds_created_total",
		"runcall_bookings_confirmations_total",
		"runcall_payments_webhook_total",
		"runcall_payments_webhook_latency_seconds",
	} {
		if !names[want] {
			t.Errorf("missing metric %s", want)
		}
	}
}

func TestNilReceiverSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveSlotQuery(1, 1)
	m.ObserveHoldCreated()
	m.ObserveConfirmation("confirmed")
	m.ObserveWebhook("x", "ok")
	m.ObserveWebhookLatency("x", 0.1)
}
