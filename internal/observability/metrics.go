package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters the dispatch and reconciliation flows report.
// Methods are nil-safe so services can treat the dependency as optional.
type Metrics struct {
	dispatchTotal    *prometheus.CounterVec
	inboundDocuments *prometheus.CounterVec
	mappingsApplied  *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		dispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payrun_dispatch_total",
			Help: "Dispatch attempts by result.",
		}, []string{"result"}),
		inboundDocuments: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payrun_inbound_documents_total",
			Help: "Inbound acknowledgment documents by result.",
		}, []string{"result"}),
		mappingsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payrun_ack_mappings_applied_total",
			Help: "Acknowledgment mappings applied by normalized status.",
		}, []string{"status"}),
		jobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payrun_job_duration_seconds",
			Help:    "Background job duration by job name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

func (m *Metrics) RecordDispatch(result string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordInboundDocument(result string) {
	if m == nil {
		return
	}
	m.inboundDocuments.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordMappingApplied(status string) {
	if m == nil {
		return
	}
	m.mappingsApplied.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveJobDuration(job string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}
