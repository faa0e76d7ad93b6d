package app

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestGRPCServerMetrics_ReusesRegistered(t *testing.T) {
	registry := prometheus.NewRegistry()
	logger := log.WithField("test", "grpc-metrics")

	first := grpcServerMetrics(registry, logger)
	second := grpcServerMetrics(registry, logger)
	assert.Same(t, first, second)
}

func TestLoggingInterceptor(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	interceptor := loggingInterceptor(log.NewEntry(logger))
	info := &grpc.UnaryServerInfo{FullMethod: "/oda.v1.AnalyticsService/GetReport"}

	resp, err := interceptor(context.Background(), "req", info, func(context.Context, any) (any, error) {
		return "resp", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "resp", resp)
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, log.DebugLevel, hook.LastEntry().Level)
	assert.Equal(t, "OK", hook.LastEntry().Data["code"])

	cases := map[codes.Code]log.Level{
		codes.InvalidArgument: log.DebugLevel,
		codes.Internal:        log.WarnLevel,
	}
	for code, level := range cases {
		hook.Reset()
		_, err := interceptor(context.Background(), "req", info, func(context.Context, any) (any, error) {
			return nil, status.Error(code, "boom")
		})
		assert.Equal(t, code, status.Code(err))
		require.Len(t, hook.AllEntries(), 1)
		assert.Equal(t, level, hook.LastEntry().Level, code.String())
		assert.Equal(t, info.FullMethod, hook.LastEntry().Data["method"])
	}
}
