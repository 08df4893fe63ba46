package webpay

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

// recordingMetrics is a test double that implements MetricsRecorder.
type recordingMetrics struct {
	operations        []operationCall
	signatureFailures []string
}

type operationCall struct {
	operation string
	result    string
}

func (m *recordingMetrics) RecordOperation(operation, result string, _ time.Duration) {
	m.operations = append(m.operations, operationCall{operation, result})
}

func (m *recordingMetrics) RecordSignatureFailure(operation string) {
	m.signatureFailures = append(m.signatureFailures, operation)
}

// TestNoopMetricsRecorder_NoPanic verifies NoopMetricsRecorder methods don't panic.
func TestNoopMetricsRecorder_NoPanic(t *testing.T) {
	r := NewNoopMetricsRecorder()

	r.RecordOperation("initTransaction", "success", time.Second)
	r.RecordOperation("initTransaction", "transport_error", 0)
	r.RecordSignatureFailure("initTransaction")
}

// TestPrometheusMetricsRecorder_Operations verifies the operation counter is labelled by result.
func TestPrometheusMetricsRecorder_Operations(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusMetricsRecorderWithRegistry(reg)

	r.RecordOperation("initTransaction", "success", 10*time.Millisecond)
	r.RecordOperation("initTransaction", "success", 20*time.Millisecond)
	r.RecordOperation("initTransaction", "invalid_signature", 5*time.Millisecond)
	r.RecordOperation("nullify", "transport_error", time.Second)

	if got := testutil.ToFloat64(r.operationsTotal.WithLabelValues("initTransaction", "success")); got != 2 {
		t.Errorf("initTransaction success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.operationsTotal.WithLabelValues("initTransaction", "invalid_signature")); got != 1 {
		t.Errorf("initTransaction invalid_signature count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.operationsTotal.WithLabelValues("nullify", "transport_error")); got != 1 {
		t.Errorf("nullify transport_error count = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	var histogram *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "webpay_operation_duration_seconds" {
			histogram = mf
		}
	}
	if histogram == nil {
		t.Fatal("webpay_operation_duration_seconds not registered")
	}
	if histogram.GetType() != dto.MetricType_HISTOGRAM {
		t.Errorf("duration metric type = %v, want HISTOGRAM", histogram.GetType())
	}
	var samples uint64
	for _, m := range histogram.GetMetric() {
		samples += m.GetHistogram().GetSampleCount()
	}
	if samples != 4 {
		t.Errorf("duration samples = %d, want 4", samples)
	}
}

// TestPrometheusMetricsRecorder_SignatureFailures verifies the rejection counter.
func TestPrometheusMetricsRecorder_SignatureFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusMetricsRecorderWithRegistry(reg)

	r.RecordSignatureFailure("getTransactionResult")
	r.RecordSignatureFailure("getTransactionResult")

	if got := testutil.ToFloat64(r.signatureFailuresTotal.WithLabelValues("getTransactionResult")); got != 2 {
		t.Errorf("signature failures = %v, want 2", got)
	}
}

// TestPrometheusMetricsRecorder_DuplicateRegistration verifies a registry rejects a second recorder.
func TestPrometheusMetricsRecorder_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusMetricsRecorderWithRegistry(reg)

	defer func() {
		if recover() == nil {
			t.Error("second registration did not panic")
		}
	}()
	NewPrometheusMetricsRecorderWithRegistry(reg)
}
