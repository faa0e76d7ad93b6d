package app

import (
	"context"
	"errors"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	grpcsvc "github.com/vladislavdragonenkov/oda/internal/service/grpc"
)

const defaultShutdownTimeout = 5 * time.Second

// grpcServerMetrics регистрирует метрики gRPC в reg; при повторном Run берёт уже зарегистрированные.
func grpcServerMetrics(reg prometheus.Registerer, logger *log.Entry) *promgrpc.ServerMetrics {
	m := promgrpc.NewServerMetrics()
	err := reg.Register(m)

	var already prometheus.AlreadyRegisteredError
	switch {
	case err == nil:
	case errors.As(err, &already):
		if existing, ok := already.ExistingCollector.(*promgrpc.ServerMetrics); ok {
			return existing
		}
	default:
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return m
}

// loggingInterceptor пишет в лог каждый вызов; внутренние ошибки сервера уровнем warn.
func loggingInterceptor(logger *log.Entry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		entry := logger.WithFields(log.Fields{
			"method":      info.FullMethod,
			"code":        code.String(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if code == codes.Internal || code == codes.Unknown {
			entry.WithError(err).Warn("grpc call failed")
		} else {
			entry.Debug("grpc call")
		}
		return resp, err
	}
}

// newGRPCServer поднимает AnalyticsService с метриками, reflection (для grpcurl и loadtest) и health.
func newGRPCServer(d grpcsvc.Dashboard, logger *log.Entry) (*grpc.Server, *health.Server) {
	logger = logger.WithField("layer", "grpc")
	metrics := grpcServerMetrics(prometheus.DefaultRegisterer, logger)

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		metrics.UnaryServerInterceptor(),
		loggingInterceptor(logger),
	))
	grpcsvc.RegisterAnalyticsServer(server, grpcsvc.NewAnalyticsService(d, logger))
	metrics.InitializeMetrics(server)
	reflection.Register(server)

	healthServer := health.NewServer()
	for _, service := range []string{"", grpcsvc.AnalyticsServiceName} {
		healthServer.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(server, healthServer)

	return server, healthServer
}

// gracefulStopGRPC переводит health в NOT_SERVING и ждёт активные вызовы не дольше timeout.
func gracefulStopGRPC(server *grpc.Server, healthServer *health.Server, timeout time.Duration, logger *log.Entry) {
	if server == nil {
		return
	}
	if healthServer != nil {
		healthServer.Shutdown()
	}
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		server.GracefulStop()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-stopped:
	case <-timer.C:
		logger.WithField("timeout", timeout).Warn("grpc graceful stop timed out, forcing stop")
		server.Stop()
	}
}
