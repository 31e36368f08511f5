// Package monitoring exposes pipeline counters for scraping and watches the
// run ledger for failure spikes.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	documents      *prometheus.CounterVec
	identities     prometheus.Counter
	appends        prometheus.Counter
	fallbacks      *prometheus.CounterVec
	testsPerReport prometheus.Histogram
}

// NewMetrics creates and registers the pipeline counters.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labvault_documents_total",
			Help: "Documents processed, by final status.",
		}, []string{"status"}),
		identities: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labvault_identities_created_total",
			Help: "Patient identities created.",
		}),
		appends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labvault_reports_appended_total",
			Help: "Reports appended to a patient vault.",
		}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labvault_matcher_fallbacks_total",
			Help: "Assisted name matches that fell back to the rule-based score.",
		}, []string{"reason"}),
		testsPerReport: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "labvault_test_results_per_report",
			Help:    "Test results extracted per report.",
			Buckets: []float64{0, 1, 5, 10, 20, 40, 80},
		}),
	}
	m.registry.MustRegister(m.documents, m.identities, m.appends, m.fallbacks, m.testsPerReport)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// DocumentProcessed counts one document under its final status.
func (m *Metrics) DocumentProcessed(status string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(status).Inc()
}

// Admitted records one vault admission.
func (m *Metrics) Admitted(isNew bool, testCount int) {
	if m == nil {
		return
	}
	if isNew {
		m.identities.Inc()
	}
	m.appends.Inc()
	m.testsPerReport.Observe(float64(testCount))
}

// MatcherFallback counts a collaborator fallback by reason.
func (m *Metrics) MatcherFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}
