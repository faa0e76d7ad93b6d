// Package grpcsvc отдаёт агрегаты дашборда по gRPC.
package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/oda/internal/domain"
	"github.com/vladislavdragonenkov/oda/internal/service/dashboard"
)

// Dashboard: операции сервиса дашборда, нужные gRPC-слою.
type Dashboard interface {
	Report(ctx context.Context, filter domain.Filter) (domain.Report, error)
	Sidebar(ctx context.Context) (dashboard.Sidebar, error)
}

// AnalyticsService реализует AnalyticsServer поверх dashboard.Service.
type AnalyticsService struct {
	dashboard Dashboard
	logger    *log.Entry
}

var _ AnalyticsServer = (*AnalyticsService)(nil)

// NewAnalyticsService конструирует сервис с зависимостями.
func NewAnalyticsService(d Dashboard, logger *log.Entry) *AnalyticsService {
	if logger == nil {
		logger = log.New().WithField("component", "analytics-grpc")
	}
	return &AnalyticsService{
		dashboard: d,
		logger:    logger,
	}
}

// GetReport строит отчёт по фильтру из полей start, end (YYYY-MM-DD) и status.
func (s *AnalyticsService) GetReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	filter, err := filterFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	report, err := s.dashboard.Report(ctx, filter)
	if err != nil {
		return nil, s.toStatus(err, "build report")
	}
	return s.toStruct(report)
}

// GetSidebar возвращает границы дат и варианты статуса.
func (s *AnalyticsService) GetSidebar(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	sidebar, err := s.dashboard.Sidebar(ctx)
	if err != nil {
		return nil, s.toStatus(err, "load sidebar")
	}
	return s.toStruct(sidebar)
}

func (s *AnalyticsService) toStatus(err error, op string) error {
	switch {
	case domain.IsInvalidFilter(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrDatasetEmpty):
		return status.Error(codes.FailedPrecondition, "dataset is not loaded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.WithError(err).Errorf("failed to %s", op)
		return status.Error(codes.Internal, "internal error")
	}
}

// toStruct переводит значение в Struct через JSON, чтобы ответ совпадал с HTTP API.
func (s *AnalyticsService) toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode response")
		return nil, status.Error(codes.Internal, "internal error")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		s.logger.WithError(err).Error("failed to convert response")
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func filterFromStruct(req *structpb.Struct) (domain.Filter, error) {
	fields := req.GetFields()

	start, err := dateField(fields, "start")
	if err != nil {
		return domain.Filter{}, err
	}
	end, err := dateField(fields, "end")
	if err != nil {
		return domain.Filter{}, err
	}
	statusValue := fields["status"].GetStringValue()

	return domain.NewFilter(start, end, domain.OrderStatus(statusValue)), nil
}

func dateField(fields map[string]*structpb.Value, name string) (time.Time, error) {
	raw := strings.TrimSpace(fields[name].GetStringValue())
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", name)
	}
	return t, nil
}
