// Package monitoring holds Prometheus instrumentation and the realtime
// prediction event stream.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the prediction service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	PredictSeconds  prometheus.Histogram
	PredictedLabels *prometheus.CounterVec
	ModelLoaded     prometheus.Gauge
	CacheHitsTotal  prometheus.Counter
}

// NewMetrics creates and registers all serving metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mlserve_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "status"}),

		PredictSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mlserve_predict_seconds",
			Help:    "Time spent inside the classifier per request",
			Buckets: prometheus.DefBuckets,
		}),

		PredictedLabels: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mlserve_predicted_labels_total",
			Help: "Served predictions by class label",
		}, []string{"label"}),

		ModelLoaded: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mlserve_model_loaded",
			Help: "1 when a classifier/metadata pair is loaded, else 0",
		}),

		CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mlserve_prediction_cache_hits_total",
			Help: "Single predictions answered from the LRU cache",
		}),
	}
}

// RecordRequest counts one handled request.
func (m *Metrics) RecordRequest(route, status string) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
}

// RecordPredict records classifier latency and the served label.
func (m *Metrics) RecordPredict(seconds float64, label string) {
	m.PredictSeconds.Observe(seconds)
	m.PredictedLabels.WithLabelValues(label).Inc()
}

// SetModelLoaded flips the readiness gauge.
func (m *Metrics) SetModelLoaded(loaded bool) {
	if loaded {
		m.ModelLoaded.Set(1)
		return
	}
	m.ModelLoaded.Set(0)
}
