package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Полные имена методов AnalyticsService.
const (
	AnalyticsServiceName    = "oda.v1.AnalyticsService"
	MethodGetReport         = "/oda.v1.AnalyticsService/GetReport"
	MethodGetSidebar        = "/oda.v1.AnalyticsService/GetSidebar"
	analyticsServiceProtoID = "oda/v1/analytics.proto"
)

// AnalyticsServer: серверная часть AnalyticsService. Запросы и ответы
// передаются как google.protobuf.Struct с теми же полями, что и JSON API.
type AnalyticsServer interface {
	GetReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetSidebar(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// AnalyticsServiceDesc описывает сервис для grpc.Server.RegisterService.
var AnalyticsServiceDesc = grpc.ServiceDesc{
	ServiceName: AnalyticsServiceName,
	HandlerType: (*AnalyticsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetReport", Handler: getReportHandler},
		{MethodName: "GetSidebar", Handler: getSidebarHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: analyticsServiceProtoID,
}

// RegisterAnalyticsServer регистрирует реализацию на gRPC-сервере.
func RegisterAnalyticsServer(registrar grpc.ServiceRegistrar, srv AnalyticsServer) {
	registrar.RegisterService(&AnalyticsServiceDesc, srv)
}

func getReportHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyticsServer).GetReport(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetReport}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AnalyticsServer).GetReport(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getSidebarHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyticsServer).GetSidebar(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetSidebar}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AnalyticsServer).GetSidebar(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// AnalyticsClient: клиент AnalyticsService.
type AnalyticsClient struct {
	cc grpc.ClientConnInterface
}

// NewAnalyticsClient создаёт клиента поверх соединения.
func NewAnalyticsClient(cc grpc.ClientConnInterface) *AnalyticsClient {
	return &AnalyticsClient{cc: cc}
}

// GetReport запрашивает отчёт; req может содержать start, end, status.
func (c *AnalyticsClient) GetReport(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetReport, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSidebar запрашивает границы дат и список статусов.
func (c *AnalyticsClient) GetSidebar(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetSidebar, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
