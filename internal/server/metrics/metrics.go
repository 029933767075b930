// Package metrics exposes Prometheus counters for the enclave pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "enclave"

type Metrics struct {
	registry *prometheus.Registry

	signups       prometheus.Counter
	receipts      prometheus.Counter
	attestations  *prometheus.CounterVec
	reports       *prometheus.CounterVec
	auditFailures *prometheus.CounterVec
	externalCalls *prometheus.CounterVec
	safeAPICalls  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		signups: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "signups_total", Help: "Signups recorded.",
		}),
		receipts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "receipts_total", Help: "User-data receipts issued.",
		}),
		attestations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deletion_attestations_total", Help: "Deletion attestations by ledger outcome.",
		}, []string{"ledger"}),
		reports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reports_generated_total", Help: "Reports generated, split into new and replaced.",
		}, []string{"result"}),
		auditFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "audit_append_failures_total", Help: "Audit appends that failed and were dropped.",
		}, []string{"action"}),
		externalCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "external_calls_total", Help: "Best-effort external calls by target and status.",
		}, []string{"target", "status"}),
		safeAPICalls: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "safe_api_calls_total", Help: "Calls to the watch-history endpoint.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Signup() {
	if m != nil {
		m.signups.Inc()
	}
}

func (m *Metrics) Receipt() {
	if m != nil {
		m.receipts.Inc()
	}
}

func (m *Metrics) Attestation(ledgerStatus string) {
	if m != nil {
		m.attestations.WithLabelValues(ledgerStatus).Inc()
	}
}

func (m *Metrics) Report(replaced bool) {
	if m == nil {
		return
	}
	result := "new"
	if replaced {
		result = "replaced"
	}
	m.reports.WithLabelValues(result).Inc()
}

func (m *Metrics) AuditFailure(action string) {
	if m != nil {
		m.auditFailures.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) ExternalCall(target, status string) {
	if m != nil {
		m.externalCalls.WithLabelValues(target, status).Inc()
	}
}

func (m *Metrics) SafeAPICall() {
	if m != nil {
		m.safeAPICalls.Inc()
	}
}
