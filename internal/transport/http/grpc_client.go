package httpserver

import (
	"context"
	"time"

	"github.com/milad/meteretl/internal/rpc/analyticsv1"
	"google.golang.org/grpc"
)

// AnalyticsClient is the subset of the gRPC client the gateway needs, to keep tests simple.
type AnalyticsClient interface {
	ListActiveAgreements(ctx context.Context, in *analyticsv1.ListActiveAgreementsRequest, opts ...grpc.CallOption) (*analyticsv1.ListActiveAgreementsResponse, error)
	ListHalfHourlyConsumption(ctx context.Context, in *analyticsv1.ListHalfHourlyConsumptionRequest, opts ...grpc.CallOption) (*analyticsv1.ListHalfHourlyConsumptionResponse, error)
	ListDailyProductConsumption(ctx context.Context, in *analyticsv1.ListDailyProductConsumptionRequest, opts ...grpc.CallOption) (*analyticsv1.ListDailyProductConsumptionResponse, error)
	GetMeterpointHistory(ctx context.Context, in *analyticsv1.GetMeterpointHistoryRequest, opts ...grpc.CallOption) (*analyticsv1.GetMeterpointHistoryResponse, error)
}

var _ AnalyticsClient = analyticsv1.AnalyticsServiceClient(nil)

func parseOptionalRFC3339(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		// allow nano timestamps too (RFC3339Nano is a superset)
		t2, err2 := time.Parse(time.RFC3339Nano, v)
		if err2 != nil {
			return nil, err
		}
		t = t2
	}
	tt := t.UTC()
	return &tt, nil
}
