// Package dashboard связывает хранилище датасета, аналитику и метрики:
// это единая точка входа для веб-интерфейса, gRPC и фоновых воркеров.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/oda/internal/domain"
	"github.com/vladislavdragonenkov/oda/internal/metrics"
	"github.com/vladislavdragonenkov/oda/internal/service/analytics"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 1000
)

// Sidebar: значения по умолчанию для элементов фильтра.
type Sidebar struct {
	Bounds   domain.DateRange     `json:"bounds"`
	Statuses []domain.OrderStatus `json:"statuses"`
	Rows     int                  `json:"rows"`
}

// RecordsPage: страница сырых строк выборки.
type RecordsPage struct {
	Total   int                  `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
	Records []domain.OrderRecord `json:"records"`
}

// RecordsLoader читает датасет из источника (файл, S3, ...).
type RecordsLoader interface {
	Load(ctx context.Context, path string) ([]domain.OrderRecord, error)
}

// DatasetLoadedNotifier получает уведомление об успешной загрузке снимка.
type DatasetLoadedNotifier interface {
	PublishDatasetLoaded(source string, rows int, period domain.DateRange) error
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает запись prometheus-метрик.
func WithMetrics(m *metrics.DashboardMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAnalyticsOptions переопределяет размеры топ-списков и диаграммы рассеяния.
func WithAnalyticsOptions(opts analytics.Options) Option {
	return func(s *Service) {
		s.analytics = opts
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLoader задаёт загрузчик для Reload.
func WithLoader(loader RecordsLoader) Option {
	return func(s *Service) {
		s.loader = loader
	}
}

// WithDatasetNotifier задаёт получателя события о загрузке датасета.
func WithDatasetNotifier(notifier DatasetLoadedNotifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// Service строит отчёты дашборда поверх хранилища датасета.
type Service struct {
	repo      domain.DatasetRepository
	loader    RecordsLoader
	notifier  DatasetLoadedNotifier
	metrics   *metrics.DashboardMetrics
	logger    *log.Entry
	analytics analytics.Options
	now       func() time.Time
}

// NewService создаёт сервис дашборда.
func NewService(repo domain.DatasetRepository, options ...Option) *Service {
	s := &Service{
		repo:      repo,
		logger:    log.WithField("component", "dashboard-service"),
		analytics: analytics.DefaultOptions(),
		now:       time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Report валидирует фильтр и строит полный отчёт по выборке.
func (s *Service) Report(ctx context.Context, filter domain.Filter) (domain.Report, error) {
	started := time.Now()

	filter, err := s.normalizeFilter(ctx, filter)
	if err != nil {
		s.metrics.RecordReport(outcomeOf(err), time.Since(started), 0)
		return domain.Report{}, err
	}

	records, err := s.repo.Find(ctx, filter)
	if err != nil {
		s.metrics.RecordReport(metrics.OutcomeError, time.Since(started), 0)
		return domain.Report{}, fmt.Errorf("find records: %w", err)
	}

	opts := s.analytics
	opts.Now = s.now
	opts.Observe = s.metrics.RecordSection

	report, err := analytics.Build(records, filter, opts)
	if err != nil {
		s.metrics.RecordReport(metrics.OutcomeError, time.Since(started), len(records))
		return domain.Report{}, fmt.Errorf("build report: %w", err)
	}

	duration := time.Since(started)
	s.metrics.RecordReport(metrics.OutcomeOK, duration, len(records))
	s.logger.WithFields(log.Fields{
		"start":    formatDate(filter.Start),
		"end":      formatDate(filter.End),
		"status":   filter.Status,
		"rows":     len(records),
		"duration": duration.String(),
	}).Debug("report built")

	return report, nil
}

// Sidebar возвращает границы дат и варианты статуса; ALL всегда первый.
func (s *Service) Sidebar(ctx context.Context) (Sidebar, error) {
	bounds, err := s.repo.Bounds(ctx)
	if err != nil {
		return Sidebar{}, fmt.Errorf("dataset bounds: %w", err)
	}
	statuses, err := s.repo.Statuses(ctx)
	if err != nil {
		return Sidebar{}, fmt.Errorf("dataset statuses: %w", err)
	}
	rows, err := s.repo.Count(ctx)
	if err != nil {
		return Sidebar{}, fmt.Errorf("dataset count: %w", err)
	}

	options := make([]domain.OrderStatus, 0, len(statuses)+1)
	options = append(options, domain.StatusAll)
	options = append(options, statuses...)

	return Sidebar{
		Bounds:   bounds,
		Statuses: options,
		Rows:     rows,
	}, nil
}

// DefaultFilter: весь период датасета и статус ALL.
func (s *Service) DefaultFilter(ctx context.Context) (domain.Filter, error) {
	bounds, err := s.repo.Bounds(ctx)
	if err != nil {
		return domain.Filter{}, fmt.Errorf("dataset bounds: %w", err)
	}
	return domain.NewFilter(bounds.Min, bounds.Max, domain.StatusAll), nil
}

// Records возвращает страницу строк выборки в порядке загрузки.
func (s *Service) Records(ctx context.Context, filter domain.Filter, limit, offset int) (RecordsPage, error) {
	filter, err := s.normalizeFilter(ctx, filter)
	if err != nil {
		return RecordsPage{}, err
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.repo.Find(ctx, filter)
	if err != nil {
		return RecordsPage{}, fmt.Errorf("find records: %w", err)
	}

	page := RecordsPage{
		Total:   len(records),
		Limit:   limit,
		Offset:  offset,
		Records: []domain.OrderRecord{},
	}
	if offset >= len(records) {
		return page, nil
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	page.Records = records[offset:end]
	return page, nil
}

// Summary собирает KPI-снимок по всему датасету без фильтров.
func (s *Service) Summary(ctx context.Context) (domain.Snapshot, error) {
	bounds, err := s.repo.Bounds(ctx)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("dataset bounds: %w", err)
	}
	records, err := s.repo.Find(ctx, domain.NewFilter(time.Time{}, time.Time{}, domain.StatusAll))
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("find records: %w", err)
	}

	categories, err := analytics.CategoryPerformance(records, 1)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("category performance: %w", err)
	}

	snapshot := domain.Snapshot{
		ID:          uuid.NewString(),
		GeneratedAt: s.now().UTC(),
		Rows:        len(records),
		Period:      bounds,
		Stats:       analytics.OrderStats(records),
		TopState:    analytics.TopState(records),
	}
	if len(categories.Best) > 0 {
		snapshot.TopCategory = categories.Best[0].Category
	}
	return snapshot, nil
}

// Reload перечитывает датасет из источника и атомарно заменяет снимок в хранилище.
func (s *Service) Reload(ctx context.Context, source string) (int, error) {
	if s.loader == nil {
		return 0, errors.New("dataset loader is not configured")
	}

	started := time.Now()
	records, err := s.loader.Load(ctx, source)
	if err == nil {
		err = s.repo.Replace(ctx, records)
	}
	s.metrics.RecordDatasetLoad(err, len(records), time.Since(started))
	if err != nil {
		return 0, fmt.Errorf("reload dataset: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"source":   source,
		"rows":     len(records),
		"duration": time.Since(started).String(),
	}).Info("dataset reloaded")

	if s.notifier != nil {
		bounds, boundsErr := s.repo.Bounds(ctx)
		if boundsErr != nil && !errors.Is(boundsErr, domain.ErrDatasetEmpty) {
			s.logger.WithError(boundsErr).Warn("failed to read dataset bounds for notification")
		}
		if notifyErr := s.notifier.PublishDatasetLoaded(source, len(records), bounds); notifyErr != nil {
			s.logger.WithError(notifyErr).Warn("failed to publish dataset loaded event")
		}
	}

	return len(records), nil
}

// normalizeFilter приводит фильтр к календарным датам и проверяет статус по датасету.
func (s *Service) normalizeFilter(ctx context.Context, filter domain.Filter) (domain.Filter, error) {
	filter = domain.NewFilter(filter.Start, filter.End, filter.Status)
	if err := filter.Validate(); err != nil {
		return domain.Filter{}, err
	}
	if filter.AllStatuses() {
		return filter, nil
	}

	statuses, err := s.repo.Statuses(ctx)
	if err != nil {
		return domain.Filter{}, fmt.Errorf("dataset statuses: %w", err)
	}
	for _, status := range statuses {
		if status == filter.Status {
			return filter, nil
		}
	}
	return domain.Filter{}, fmt.Errorf("%w: %q", domain.ErrUnknownStatus, filter.Status)
}

func outcomeOf(err error) string {
	if domain.IsInvalidFilter(err) {
		return metrics.OutcomeInvalidFilter
	}
	return metrics.OutcomeError
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}
