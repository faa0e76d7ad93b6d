package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func histogramCount(t *testing.T, h prometheus.Observer) uint64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := h.(prometheus.Metric).Write(metric); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	return metric.GetHistogram().GetSampleCount()
}

func TestNewDashboardMetrics_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewDashboardMetricsWithRegisterer(reg)
	second := NewDashboardMetricsWithRegisterer(reg)

	first.RecordReport(OutcomeOK, 10*time.Millisecond, 42)
	if got := counterValue(t, second.reports.WithLabelValues(OutcomeOK)); got != 1 {
		t.Fatalf("expected shared collector after re-registration, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}
}

func TestRecordReport(t *testing.T) {
	m := NewDashboardMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordReport(OutcomeOK, 20*time.Millisecond, 100)
	m.RecordReport(OutcomeInvalidFilter, 0, 0)
	m.RecordReport(OutcomeError, 0, 0)

	if got := counterValue(t, m.reports.WithLabelValues(OutcomeOK)); got != 1 {
		t.Fatalf("expected 1 ok report, got %v", got)
	}
	if got := counterValue(t, m.reports.WithLabelValues(OutcomeInvalidFilter)); got != 1 {
		t.Fatalf("expected 1 invalid filter report, got %v", got)
	}
	if got := histogramCount(t, m.reportDuration); got != 1 {
		t.Fatalf("duration must be observed only for successful reports, got %d samples", got)
	}
	if got := histogramCount(t, m.filteredRows); got != 1 {
		t.Fatalf("expected 1 rows sample, got %d", got)
	}
}

func TestRecordSection(t *testing.T) {
	m := NewDashboardMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordSection("rfm", 3*time.Millisecond)
	m.RecordSection("rfm", 4*time.Millisecond)
	m.RecordSection("daily", time.Millisecond)

	if got := histogramCount(t, m.sectionDuration.WithLabelValues("rfm")); got != 2 {
		t.Fatalf("expected 2 rfm samples, got %d", got)
	}
}

func TestRecordDatasetLoad(t *testing.T) {
	m := NewDashboardMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordDatasetLoad(nil, 1500, time.Second)
	m.RecordDatasetLoad(errors.New("broken csv"), 0, 0)

	gauge := &dto.Metric{}
	if err := m.datasetRows.Write(gauge); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if got := gauge.GetGauge().GetValue(); got != 1500 {
		t.Fatalf("failed load must not reset rows gauge, got %v", got)
	}
	if got := counterValue(t, m.datasetLoads.WithLabelValues(OutcomeError)); got != 1 {
		t.Fatalf("expected 1 failed load, got %v", got)
	}
}

func TestRecordSnapshot(t *testing.T) {
	m := NewDashboardMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordSnapshot(nil)
	m.RecordSnapshot(errors.New("kafka down"))
	m.RecordSnapshot(nil)

	if got := counterValue(t, m.snapshots.WithLabelValues(OutcomeOK)); got != 2 {
		t.Fatalf("expected 2 published snapshots, got %v", got)
	}
	if got := counterValue(t, m.snapshots.WithLabelValues(OutcomeError)); got != 1 {
		t.Fatalf("expected 1 failed snapshot, got %v", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *DashboardMetrics
	m.RecordReport(OutcomeOK, time.Second, 1)
	m.RecordSection("daily", time.Second)
	m.RecordDatasetLoad(nil, 1, time.Second)
	m.RecordSnapshot(nil)
}
