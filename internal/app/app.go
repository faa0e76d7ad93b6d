package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	healthcheck "github.com/vladislavdragonenkov/oda/internal/health"
	"github.com/vladislavdragonenkov/oda/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/oda/internal/metrics"
	"github.com/vladislavdragonenkov/oda/internal/service/snapshot"
	"github.com/vladislavdragonenkov/oda/internal/service/web"
	"github.com/vladislavdragonenkov/oda/internal/version"
)

// Run поднимает дашборд: веб на HTTPAddr, gRPC, ops-сервер метрик и фоновые воркеры Kafka.
// Возвращает ctx.Err() после штатной остановки.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return err
	}
	defer deps.close(logger)

	// Kafka опциональна: без брокеров снимки и команды перезагрузки отключены.
	kafkaProducer, _ := initKafkaProducer(cfg, logger.WithField("layer", "kafka"))
	defer closeKafka(kafkaProducer, logger)

	var publisher *kafka.SnapshotTopicPublisher
	if kafkaProducer != nil {
		publisher = kafka.NewSnapshotPublisher(kafkaProducer, kafka.TopicSnapshots)
	}

	dashboardMetrics := metrics.NewDashboardMetrics()
	svc := newDashboardService(deps.repo, cfg, dashboardMetrics, publisher, logger.WithField("layer", "service"))

	if cfg.LoadOnStart {
		if _, err := svc.Reload(ctx, cfg.DatasetPath); err != nil {
			return fmt.Errorf("load dataset %s: %w", cfg.DatasetPath, err)
		}
	}

	healthHandler := healthcheck.NewHandler(version.Version())
	healthHandler.Register("dataset", healthcheck.DatasetLoaded(deps.repo))
	if deps.storageChecker != nil {
		healthHandler.Register("storage", deps.storageChecker)
	}
	if kafkaProducer != nil {
		healthHandler.RegisterOptional("kafka", healthcheck.CheckerFunc(kafkaProducer.Ping))
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	webServer, err := web.NewServer(svc, web.Config{
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		PageSize:  cfg.PageSize,
	}, logger.WithField("layer", "http"))
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return err
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return err
	}
	httpSrv := &http.Server{
		Handler:           webServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer, healthServer := newGRPCServer(svc, logger)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	var afterReload func()
	if publisher != nil {
		worker := snapshot.NewWorker(svc, publisher,
			snapshot.WithLogger(logger.WithField("layer", "snapshot")),
			snapshot.WithMetrics(dashboardMetrics),
			snapshot.WithInterval(cfg.SnapshotInterval),
		)
		afterReload = worker.Trigger
		go func() {
			defer close(workerDone)
			worker.Run(workerCtx)
		}()
	} else {
		close(workerDone)
	}

	consumer, err := startReloadConsumer(workerCtx, cfg, svc, kafkaProducer, afterReload, logger.WithField("layer", "kafka"))
	if err != nil {
		logger.WithError(err).Warn("failed to start reload consumer, continuing without it")
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("дашборд доступен по адресу http://%s", httpLis.Addr())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	shutdownWorkers(cancelWorkers, workerDone, logger)
	stopConsumer(consumer, logger)
	gracefulStopGRPC(grpcServer, healthServer, cfg.ShutdownTimeout, logger)
	shutdownHTTP(httpSrv, logger)
	shutdownHTTP(metricsSrv, logger)
	return runErr
}

// shutdownWorkers отменяет фоновые воркеры и ждёт их завершения.
func shutdownWorkers(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("snapshot worker did not stop in time")
	}
}
