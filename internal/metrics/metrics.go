package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the phonebook service
type Metrics struct {
	// Repository counters
	MutationsTotal *prometheus.CounterVec
	StoreErrors    *prometheus.CounterVec

	// Audit log
	AuditEntries     prometheus.Gauge
	AuditErrorsTotal prometheus.Counter

	// Broadcast
	BroadcastPublishedTotal *prometheus.CounterVec
	BroadcastDeliveredTotal *prometheus.CounterVec
	BroadcastDroppedTotal   *prometheus.CounterVec

	// Realtime watchers
	ReloadsTotal      *prometheus.CounterVec
	StaleReloadsTotal *prometheus.CounterVec
	EventClients      prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec
	LoginsTotal               *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonebook_mutations_total",
				Help: "Total number of successful collection mutations",
			},
			[]string{"collection", "action"},
		),
		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonebook_store_errors_total",
				Help: "Total number of failed record store writes",
			},
			[]string{"collection"},
		),

		AuditEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "phonebook_audit_entries",
				Help: "Number of entries currently retained in the audit log",
			},
		),
		AuditErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "phonebook_audit_errors_total",
				Help: "Total number of audit entries that could not be persisted",
			},
		),

		BroadcastPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonebook_broadcast_published_total",
				Help: "Total number of change events published",
			},
			[]string{"type"},
		),
		BroadcastDeliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonebook_broadcast_delivered_total",
				Help: "Total number of change events delivered to subscribers",
			},
			[]string{"type"},
		),
		BroadcastDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonebook_broadcast_dropped_total",
				Help: "Total number of change events dropped by full endpoint queues",
			},
			[]string{"endpoint"},
		),

		ReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonebook_realtime_reloads_total",
				Help: "Total number of snapshot reloads by watcher and result",
			},
			[]string{"watcher", "result"},
		),
		StaleReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonebook_realtime_stale_reloads_total",
				Help: "Total number of reload results discarded because a newer reload was applied",
			},
			[]string{"watcher"},
		),
		EventClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "phonebook_event_clients",
				Help: "Number of connected WebSocket event clients",
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonebook_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phonebook_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonebook_api_errors_total",
				Help: "Total number of API errors by route surface",
			},
			[]string{"surface", "error_type"},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phonebook_logins_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "phonebook_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "phonebook_storage_used_bytes",
				Help: "BoltDB file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.MutationsTotal,
		m.StoreErrors,
		m.AuditEntries,
		m.AuditErrorsTotal,
		m.BroadcastPublishedTotal,
		m.BroadcastDeliveredTotal,
		m.BroadcastDroppedTotal,
		m.ReloadsTotal,
		m.StaleReloadsTotal,
		m.EventClients,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.LoginsTotal,
		m.UptimeSeconds,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncMutation increments the mutation counter
func IncMutation(collection, action string) {
	if m := Global(); m != nil {
		m.MutationsTotal.WithLabelValues(collection, action).Inc()
	}
}

// IncStoreError increments the store write error counter
func IncStoreError(collection string) {
	if m := Global(); m != nil {
		m.StoreErrors.WithLabelValues(collection).Inc()
	}
}

// SetAuditEntries sets the retained audit entries gauge
func SetAuditEntries(n int) {
	if m := Global(); m != nil {
		m.AuditEntries.Set(float64(n))
	}
}

// IncAuditErrors increments the audit error counter
func IncAuditErrors() {
	if m := Global(); m != nil {
		m.AuditErrorsTotal.Inc()
	}
}

// IncBroadcastPublished increments the published event counter
func IncBroadcastPublished(eventType string) {
	if m := Global(); m != nil {
		m.BroadcastPublishedTotal.WithLabelValues(eventType).Inc()
	}
}

// IncBroadcastDelivered increments the delivered event counter
func IncBroadcastDelivered(eventType string) {
	if m := Global(); m != nil {
		m.BroadcastDeliveredTotal.WithLabelValues(eventType).Inc()
	}
}

// IncBroadcastDropped increments the dropped event counter
func IncBroadcastDropped(endpoint string) {
	if m := Global(); m != nil {
		m.BroadcastDroppedTotal.WithLabelValues(endpoint).Inc()
	}
}

// IncReload increments the reload counter for a watcher
func IncReload(watcher, result string) {
	if m := Global(); m != nil {
		m.ReloadsTotal.WithLabelValues(watcher, result).Inc()
	}
}

// IncStaleReload increments the discarded reload counter for a watcher
func IncStaleReload(watcher string) {
	if m := Global(); m != nil {
		m.StaleReloadsTotal.WithLabelValues(watcher).Inc()
	}
}

// AddEventClients adjusts the connected event clients gauge
func AddEventClients(delta int) {
	if m := Global(); m != nil {
		m.EventClients.Add(float64(delta))
	}
}

// IncLogin increments the login counter
func IncLogin(result string) {
	if m := Global(); m != nil {
		m.LoginsTotal.WithLabelValues(result).Inc()
	}
}
