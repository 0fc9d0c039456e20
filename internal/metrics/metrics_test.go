package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("Failed to get counter: %v", err)
	}
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.Registry() == nil {
		t.Fatal("Registry() returned nil")
	}

	m.MutationsTotal.WithLabelValues("extensions", "CREATE").Inc()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected registered metric families")
	}
	for _, f := range families {
		if !strings.HasPrefix(f.GetName(), "phonebook_") {
			t.Errorf("metric %q is missing the phonebook_ prefix", f.GetName())
		}
	}
}

func TestGlobalMetrics(t *testing.T) {
	if Global() != nil {
		t.Error("Global() should be nil before SetGlobal")
	}

	m := New()
	SetGlobal(m)
	if Global() != m {
		t.Error("Global() did not return the set metrics")
	}
	SetGlobal(nil)
}

func TestIncMutation(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncMutation("extensions", "CREATE")
	IncMutation("extensions", "CREATE")
	IncMutation("queues", "DELETE")

	if v := counterValue(t, m.MutationsTotal, "extensions", "CREATE"); v != 2 {
		t.Errorf("Expected counter value 2, got %f", v)
	}
	if v := counterValue(t, m.MutationsTotal, "queues", "DELETE"); v != 1 {
		t.Errorf("Expected counter value 1, got %f", v)
	}
}

func TestBroadcastCounters(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncBroadcastPublished("extensions")
	IncBroadcastDelivered("extensions")
	IncBroadcastDelivered("extensions")
	IncBroadcastDropped("api")

	if v := counterValue(t, m.BroadcastPublishedTotal, "extensions"); v != 1 {
		t.Errorf("published = %f, want 1", v)
	}
	if v := counterValue(t, m.BroadcastDeliveredTotal, "extensions"); v != 2 {
		t.Errorf("delivered = %f, want 2", v)
	}
	if v := counterValue(t, m.BroadcastDroppedTotal, "api"); v != 1 {
		t.Errorf("dropped = %f, want 1", v)
	}
}

func TestAuditGauges(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	SetAuditEntries(42)
	IncAuditErrors()

	if v := gaugeValue(t, m.AuditEntries); v != 42 {
		t.Errorf("audit entries = %f, want 42", v)
	}

	var metric dto.Metric
	if err := m.AuditErrorsTotal.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("audit errors = %f, want 1", metric.Counter.GetValue())
	}
}

func TestEventClients(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	AddEventClients(1)
	AddEventClients(1)
	AddEventClients(-1)

	if v := gaugeValue(t, m.EventClients); v != 1 {
		t.Errorf("event clients = %f, want 1", v)
	}
}

func TestReloadCounters(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncReload("extensions", "ok")
	IncReload("extensions", "error")
	IncStaleReload("extensions")
	IncLogin("success")

	if v := counterValue(t, m.ReloadsTotal, "extensions", "ok"); v != 1 {
		t.Errorf("reloads ok = %f, want 1", v)
	}
	if v := counterValue(t, m.StaleReloadsTotal, "extensions"); v != 1 {
		t.Errorf("stale reloads = %f, want 1", v)
	}
	if v := counterValue(t, m.LoginsTotal, "success"); v != 1 {
		t.Errorf("logins = %f, want 1", v)
	}
}

func TestHelpersNilSafe(t *testing.T) {
	SetGlobal(nil)

	// Should not panic when global metrics is nil
	IncMutation("extensions", "CREATE")
	IncStoreError("extensions")
	SetAuditEntries(1)
	IncAuditErrors()
	IncBroadcastPublished("queues")
	IncBroadcastDelivered("queues")
	IncBroadcastDropped("api")
	IncReload("queues", "ok")
	IncStaleReload("queues")
	AddEventClients(1)
	IncLogin("failed")
}
