package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы операций для label "outcome".
const (
	OutcomeOK            = "ok"
	OutcomeError         = "error"
	OutcomeInvalidFilter = "invalid_filter"
)

// DashboardMetrics содержит метрики построения отчётов и загрузки датасета.
type DashboardMetrics struct {
	reports         *prometheus.CounterVec
	reportDuration  prometheus.Histogram
	sectionDuration *prometheus.HistogramVec
	filteredRows    prometheus.Histogram

	datasetRows  prometheus.Gauge
	datasetLoads *prometheus.CounterVec
	loadDuration prometheus.Histogram

	snapshots *prometheus.CounterVec
}

// NewDashboardMetrics регистрирует метрики в DefaultRegisterer.
func NewDashboardMetrics() *DashboardMetrics {
	return NewDashboardMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewDashboardMetricsWithRegisterer регистрирует метрики в переданном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewDashboardMetricsWithRegisterer(registerer prometheus.Registerer) *DashboardMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &DashboardMetrics{
		reports: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oda_reports_total",
			Help: "Total number of dashboard reports requested, by outcome",
		}, []string{"outcome"}), "oda_reports_total"),
		reportDuration: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oda_report_duration_seconds",
			Help:    "Duration of full dashboard report computation in seconds",
			Buckets: prometheus.DefBuckets,
		}), "oda_report_duration_seconds"),
		sectionDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oda_report_section_duration_seconds",
			Help:    "Duration of individual report sections in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"section"}), "oda_report_section_duration_seconds"),
		filteredRows: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oda_report_rows",
			Help:    "Number of dataset rows matched by report filters",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		}), "oda_report_rows"),
		datasetRows: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oda_dataset_rows",
			Help: "Number of rows in the currently loaded dataset snapshot",
		}), "oda_dataset_rows"),
		datasetLoads: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oda_dataset_loads_total",
			Help: "Total number of dataset load attempts, by outcome",
		}, []string{"outcome"}), "oda_dataset_loads_total"),
		loadDuration: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oda_dataset_load_duration_seconds",
			Help:    "Duration of dataset load into storage in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}), "oda_dataset_load_duration_seconds"),
		snapshots: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oda_snapshots_published_total",
			Help: "Total number of KPI snapshots published, by outcome",
		}, []string{"outcome"}), "oda_snapshots_published_total"),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, collector T, name string) T {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

// RecordReport учитывает построенный отчёт: исход, длительность и число строк выборки.
func (m *DashboardMetrics) RecordReport(outcome string, duration time.Duration, rows int) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(outcome).Inc()
	if outcome != OutcomeOK {
		return
	}
	m.reportDuration.Observe(duration.Seconds())
	m.filteredRows.Observe(float64(rows))
}

// RecordSection записывает время расчёта одного раздела отчёта.
func (m *DashboardMetrics) RecordSection(section string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sectionDuration.WithLabelValues(section).Observe(duration.Seconds())
}

// RecordDatasetLoad учитывает загрузку датасета; при успехе обновляет число строк.
func (m *DashboardMetrics) RecordDatasetLoad(err error, rows int, duration time.Duration) {
	if m == nil {
		return
	}
	if err != nil {
		m.datasetLoads.WithLabelValues(OutcomeError).Inc()
		return
	}
	m.datasetLoads.WithLabelValues(OutcomeOK).Inc()
	m.datasetRows.Set(float64(rows))
	m.loadDuration.Observe(duration.Seconds())
}

// RecordSnapshot учитывает попытку публикации KPI-снимка.
func (m *DashboardMetrics) RecordSnapshot(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.snapshots.WithLabelValues(outcome).Inc()
}
