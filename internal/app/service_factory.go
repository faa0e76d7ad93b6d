package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/oda/internal/dataset"
	"github.com/vladislavdragonenkov/oda/internal/domain"
	"github.com/vladislavdragonenkov/oda/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/oda/internal/metrics"
	"github.com/vladislavdragonenkov/oda/internal/service/analytics"
	"github.com/vladislavdragonenkov/oda/internal/service/dashboard"
)

// newDashboardService собирает сервис дашборда. С publisher события о загрузке датасета уходят в Kafka.
func newDashboardService(
	repo domain.DatasetRepository,
	cfg Config,
	dashboardMetrics *metrics.DashboardMetrics,
	publisher *kafka.SnapshotTopicPublisher,
	logger *log.Entry,
) *dashboard.Service {
	options := []dashboard.Option{
		dashboard.WithLogger(logger),
		dashboard.WithMetrics(dashboardMetrics),
		dashboard.WithAnalyticsOptions(analyticsOptions(cfg)),
		dashboard.WithLoader(dataset.NewLoader(logger.WithField("layer", "dataset"))),
	}
	if publisher != nil {
		options = append(options, dashboard.WithDatasetNotifier(publisher))
	}
	return dashboard.NewService(repo, options...)
}

func analyticsOptions(cfg Config) analytics.Options {
	opts := analytics.DefaultOptions()
	if cfg.TopN > 0 {
		opts.TopN = cfg.TopN
	}
	if cfg.MaxScatterPoints > 0 {
		opts.MaxScatterPoints = cfg.MaxScatterPoints
	}
	return opts
}
