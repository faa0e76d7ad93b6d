package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// analyticsClient: часть gRPC-клиента дашборда, которую нагружает тест.
type analyticsClient interface {
	GetReport(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetSidebar(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

// scenario выполняет i-й сценарий и возвращает код результата для сводки.
type scenario func(ctx context.Context, i int) (code string, err error)

// reportFilter перебирает статусы по кругу, даты одинаковы для всех сценариев.
func reportFilter(cfg config, i int) map[string]string {
	filter := map[string]string{"status": cfg.statuses[i%len(cfg.statuses)]}
	if cfg.start != "" {
		filter["start"] = cfg.start
	}
	if cfg.end != "" {
		filter["end"] = cfg.end
	}
	return filter
}

// timed выполняет call с таймаутом и записывает его в серию name.
func timed(rec *recorder, name string, timeout time.Duration, call func(context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	code, err := call(ctx)
	rec.observe(name, time.Since(start), code, err == nil)
	return code, err
}

// grpcScenario: (опционально GetSidebar) и GetReport; клиенты берутся по кругу.
func grpcScenario(clients []analyticsClient, cfg config, rec *recorder) scenario {
	withSidebar := cfg.mode == modeSidebarReport

	return func(_ context.Context, i int) (string, error) {
		client := clients[i%len(clients)]

		if withSidebar {
			code, err := timed(rec, "GetSidebar", cfg.timeout, func(ctx context.Context) (string, error) {
				_, err := client.GetSidebar(ctx, &structpb.Struct{})
				return status.Code(err).String(), err
			})
			if err != nil {
				return code, err
			}
		}

		fields := make(map[string]any)
		for k, v := range reportFilter(cfg, i) {
			fields[k] = v
		}
		req, err := structpb.NewStruct(fields)
		if err != nil {
			return codes.InvalidArgument.String(), err
		}

		return timed(rec, "GetReport", cfg.timeout, func(ctx context.Context) (string, error) {
			resp, err := client.GetReport(ctx, req)
			if err != nil {
				return status.Code(err).String(), err
			}
			if _, ok := resp.GetFields()["rows"]; !ok {
				return codes.Internal.String(), status.Error(codes.Internal, "report response has no rows field")
			}
			return codes.OK.String(), nil
		})
	}
}

// httpScenario запрашивает JSON-отчёт веб-сервера.
func httpScenario(client *http.Client, cfg config, rec *recorder) scenario {
	return func(_ context.Context, i int) (string, error) {
		query := url.Values{}
		for k, v := range reportFilter(cfg, i) {
			query.Set(k, v)
		}
		target := (&url.URL{Scheme: "http", Host: cfg.httpAddr, Path: "/api/v1/report", RawQuery: query.Encode()}).String()

		return timed(rec, "GET /api/v1/report", cfg.timeout, func(ctx context.Context) (string, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return "HTTP_ERROR", err
			}
			resp, err := client.Do(req)
			if err != nil {
				return "HTTP_ERROR", err
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)

			code := "HTTP_" + strconv.Itoa(resp.StatusCode)
			if resp.StatusCode != http.StatusOK {
				return code, fmt.Errorf("unexpected status %d", resp.StatusCode)
			}
			return code, nil
		})
	}
}
