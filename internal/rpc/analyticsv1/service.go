package analyticsv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "meteretl.analytics.v1.AnalyticsService"

const (
	AnalyticsService_ListActiveAgreements_FullMethodName        = "/" + ServiceName + "/ListActiveAgreements"
	AnalyticsService_ListHalfHourlyConsumption_FullMethodName   = "/" + ServiceName + "/ListHalfHourlyConsumption"
	AnalyticsService_ListDailyProductConsumption_FullMethodName = "/" + ServiceName + "/ListDailyProductConsumption"
	AnalyticsService_GetMeterpointHistory_FullMethodName        = "/" + ServiceName + "/GetMeterpointHistory"
)

type AnalyticsServiceClient interface {
	ListActiveAgreements(ctx context.Context, in *ListActiveAgreementsRequest, opts ...grpc.CallOption) (*ListActiveAgreementsResponse, error)
	ListHalfHourlyConsumption(ctx context.Context, in *ListHalfHourlyConsumptionRequest, opts ...grpc.CallOption) (*ListHalfHourlyConsumptionResponse, error)
	ListDailyProductConsumption(ctx context.Context, in *ListDailyProductConsumptionRequest, opts ...grpc.CallOption) (*ListDailyProductConsumptionResponse, error)
	GetMeterpointHistory(ctx context.Context, in *GetMeterpointHistoryRequest, opts ...grpc.CallOption) (*GetMeterpointHistoryResponse, error)
}

type analyticsServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAnalyticsServiceClient(cc grpc.ClientConnInterface) AnalyticsServiceClient {
	return &analyticsServiceClient{cc: cc}
}

func (c *analyticsServiceClient) ListActiveAgreements(ctx context.Context, in *ListActiveAgreementsRequest, opts ...grpc.CallOption) (*ListActiveAgreementsResponse, error) {
	return invoke[ListActiveAgreementsResponse](ctx, c.cc, AnalyticsService_ListActiveAgreements_FullMethodName, in, opts)
}

func (c *analyticsServiceClient) ListHalfHourlyConsumption(ctx context.Context, in *ListHalfHourlyConsumptionRequest, opts ...grpc.CallOption) (*ListHalfHourlyConsumptionResponse, error) {
	return invoke[ListHalfHourlyConsumptionResponse](ctx, c.cc, AnalyticsService_ListHalfHourlyConsumption_FullMethodName, in, opts)
}

func (c *analyticsServiceClient) ListDailyProductConsumption(ctx context.Context, in *ListDailyProductConsumptionRequest, opts ...grpc.CallOption) (*ListDailyProductConsumptionResponse, error) {
	return invoke[ListDailyProductConsumptionResponse](ctx, c.cc, AnalyticsService_ListDailyProductConsumption_FullMethodName, in, opts)
}

func (c *analyticsServiceClient) GetMeterpointHistory(ctx context.Context, in *GetMeterpointHistoryRequest, opts ...grpc.CallOption) (*GetMeterpointHistoryResponse, error) {
	return invoke[GetMeterpointHistoryResponse](ctx, c.cc, AnalyticsService_GetMeterpointHistory_FullMethodName, in, opts)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	req, err := ToStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}
	resp := new(Resp)
	if err := FromStruct(out, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// AnalyticsServiceServer is the server API for AnalyticsService.
// Implementations must embed UnimplementedAnalyticsServiceServer.
type AnalyticsServiceServer interface {
	ListActiveAgreements(context.Context, *ListActiveAgreementsRequest) (*ListActiveAgreementsResponse, error)
	ListHalfHourlyConsumption(context.Context, *ListHalfHourlyConsumptionRequest) (*ListHalfHourlyConsumptionResponse, error)
	ListDailyProductConsumption(context.Context, *ListDailyProductConsumptionRequest) (*ListDailyProductConsumptionResponse, error)
	GetMeterpointHistory(context.Context, *GetMeterpointHistoryRequest) (*GetMeterpointHistoryResponse, error)
	mustEmbedUnimplementedAnalyticsServiceServer()
}

type UnimplementedAnalyticsServiceServer struct{}

func (UnimplementedAnalyticsServiceServer) ListActiveAgreements(context.Context, *ListActiveAgreementsRequest) (*ListActiveAgreementsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListActiveAgreements not implemented")
}

func (UnimplementedAnalyticsServiceServer) ListHalfHourlyConsumption(context.Context, *ListHalfHourlyConsumptionRequest) (*ListHalfHourlyConsumptionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListHalfHourlyConsumption not implemented")
}

func (UnimplementedAnalyticsServiceServer) ListDailyProductConsumption(context.Context, *ListDailyProductConsumptionRequest) (*ListDailyProductConsumptionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListDailyProductConsumption not implemented")
}

func (UnimplementedAnalyticsServiceServer) GetMeterpointHistory(context.Context, *GetMeterpointHistoryRequest) (*GetMeterpointHistoryResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetMeterpointHistory not implemented")
}

func (UnimplementedAnalyticsServiceServer) mustEmbedUnimplementedAnalyticsServiceServer() {}

func RegisterAnalyticsServiceServer(s grpc.ServiceRegistrar, srv AnalyticsServiceServer) {
	s.RegisterService(&AnalyticsService_ServiceDesc, srv)
}

func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(AnalyticsServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed := new(Req)
			if err := FromStruct(req.(*structpb.Struct), typed); err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}
			resp, err := call(srv.(AnalyticsServiceServer), ctx, typed)
			if err != nil {
				return nil, err
			}
			out, err := ToStruct(resp)
			if err != nil {
				return nil, status.Error(codes.Internal, err.Error())
			}
			return out, nil
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, handler)
	}
}

var AnalyticsService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalyticsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListActiveAgreements",
			Handler:    unaryHandler(AnalyticsService_ListActiveAgreements_FullMethodName, AnalyticsServiceServer.ListActiveAgreements),
		},
		{
			MethodName: "ListHalfHourlyConsumption",
			Handler:    unaryHandler(AnalyticsService_ListHalfHourlyConsumption_FullMethodName, AnalyticsServiceServer.ListHalfHourlyConsumption),
		},
		{
			MethodName: "ListDailyProductConsumption",
			Handler:    unaryHandler(AnalyticsService_ListDailyProductConsumption_FullMethodName, AnalyticsServiceServer.ListDailyProductConsumption),
		},
		{
			MethodName: "GetMeterpointHistory",
			Handler:    unaryHandler(AnalyticsService_GetMeterpointHistory_FullMethodName, AnalyticsServiceServer.GetMeterpointHistory),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "analytics/v1/analytics.proto",
}
