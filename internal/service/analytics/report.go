package analytics

import (
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

const (
	defaultTopN             = 5
	defaultMaxScatterPoints = 5000
)

// Разделы отчёта; используются как label метрик.
const (
	SectionStats      = "stats"
	SectionMonthly    = "monthly"
	SectionDaily      = "daily"
	SectionCategories = "categories"
	SectionRFM        = "rfm"
	SectionStatuses   = "statuses"
	SectionStates     = "states"
	SectionClustering = "clustering"
)

// Options управляет размерами топ-списков и диаграммы рассеяния.
type Options struct {
	TopN             int
	MaxScatterPoints int
	Now              func() time.Time
	// Observe, если задан, получает время расчёта каждого раздела.
	Observe func(section string, d time.Duration)
}

// DefaultOptions возвращает параметры дашборда по умолчанию.
func DefaultOptions() Options {
	return Options{
		TopN:             defaultTopN,
		MaxScatterPoints: defaultMaxScatterPoints,
		Now:              time.Now,
	}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.TopN <= 0 {
		o.TopN = def.TopN
	}
	if o.MaxScatterPoints <= 0 {
		o.MaxScatterPoints = def.MaxScatterPoints
	}
	if o.Now == nil {
		o.Now = def.Now
	}
	return o
}

func (o Options) timed(section string, fn func() error) error {
	started := time.Now()
	err := fn()
	if o.Observe != nil {
		o.Observe(section, time.Since(started))
	}
	return err
}

// Build считает все разделы дашборда для уже отфильтрованных записей.
func Build(records []domain.OrderRecord, filter domain.Filter, opts Options) (domain.Report, error) {
	opts = opts.normalized()

	report := domain.Report{
		GeneratedAt: opts.Now().UTC(),
		Start:       filter.Start,
		End:         filter.End,
		Status:      filter.Status,
		Rows:        len(records),
	}

	steps := []struct {
		section string
		run     func() error
	}{
		{SectionStats, func() error { report.Stats = OrderStats(records); return nil }},
		{SectionMonthly, func() error { report.Monthly = MonthlyOrders(records); return nil }},
		{SectionDaily, func() error { report.Daily = DailyOrders(records); return nil }},
		{SectionCategories, func() (err error) {
			report.Categories, err = CategoryPerformance(records, opts.TopN)
			return err
		}},
		{SectionRFM, func() error { report.RFM = RFM(records, opts.TopN); return nil }},
		{SectionStatuses, func() (err error) {
			report.Statuses, err = StatusCounts(records)
			return err
		}},
		{SectionStates, func() error { report.States = SalesByState(records); return nil }},
		{SectionClustering, func() error { report.Clustering = Clustering(records, opts.MaxScatterPoints); return nil }},
	}

	for _, step := range steps {
		if err := opts.timed(step.section, step.run); err != nil {
			return domain.Report{}, fmt.Errorf("%s: %w", step.section, err)
		}
	}
	return report, nil
}
