package webpay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives one observation per operation call.
type MetricsRecorder interface {
	// RecordOperation records the outcome of an operation: "success",
	// "transport_error", "invalid_signature", "signing_error" or "error".
	RecordOperation(operation, result string, duration time.Duration)
	// RecordSignatureFailure records a response rejected by the verifier.
	RecordSignatureFailure(operation string)
}

// NoopMetricsRecorder discards all metrics.
type NoopMetricsRecorder struct{}

// NewNoopMetricsRecorder creates a recorder that discards all metrics.
func NewNoopMetricsRecorder() *NoopMetricsRecorder {
	return &NoopMetricsRecorder{}
}

func (*NoopMetricsRecorder) RecordOperation(string, string, time.Duration) {}

func (*NoopMetricsRecorder) RecordSignatureFailure(string) {}

// PrometheusMetricsRecorder records metrics using Prometheus.
type PrometheusMetricsRecorder struct {
	operationsTotal        *prometheus.CounterVec
	operationDuration      *prometheus.HistogramVec
	signatureFailuresTotal *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder creates a new Prometheus metrics recorder
// using the default Prometheus registry.
func NewPrometheusMetricsRecorder() *PrometheusMetricsRecorder {
	return NewPrometheusMetricsRecorderWithRegistry(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsRecorderWithRegistry creates a new Prometheus metrics
// recorder with a custom registry. Use this for testing.
func NewPrometheusMetricsRecorderWithRegistry(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	operationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webpay_operations_total",
		Help: "Total Webpay operation calls by result",
	}, []string{"operation", "result"})

	operationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webpay_operation_duration_seconds",
		Help:    "Webpay operation latency, including signing and verification",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	signatureFailuresTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webpay_signature_failures_total",
		Help: "Total Webpay responses rejected by signature verification",
	}, []string{"operation"})

	reg.MustRegister(
		operationsTotal,
		operationDuration,
		signatureFailuresTotal,
	)

	return &PrometheusMetricsRecorder{
		operationsTotal:        operationsTotal,
		operationDuration:      operationDuration,
		signatureFailuresTotal: signatureFailuresTotal,
	}
}

// RecordOperation records an operation outcome and its latency.
func (p *PrometheusMetricsRecorder) RecordOperation(operation, result string, duration time.Duration) {
	p.operationsTotal.WithLabelValues(operation, result).Inc()
	p.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSignatureFailure records a rejected response.
func (p *PrometheusMetricsRecorder) RecordSignatureFailure(operation string) {
	p.signatureFailuresTotal.WithLabelValues(operation).Inc()
}

var (
	_ MetricsRecorder = (*NoopMetricsRecorder)(nil)
	_ MetricsRecorder = (*PrometheusMetricsRecorder)(nil)
)
