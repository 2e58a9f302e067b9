package grpcserver

import (
	"context"
	"errors"
	"time"

	"github.com/milad/meteretl/internal/domain"
	"github.com/milad/meteretl/internal/rpc/analyticsv1"
	"github.com/milad/meteretl/internal/service"
	"github.com/milad/meteretl/internal/transform"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Server struct {
	analyticsv1.UnimplementedAnalyticsServiceServer
	svc *service.AnalyticsService
	log *zap.Logger
}

func New(svc *service.AnalyticsService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{svc: svc, log: log}
}

func (s *Server) ListActiveAgreements(ctx context.Context, req *analyticsv1.ListActiveAgreementsRequest) (*analyticsv1.ListActiveAgreementsResponse, error) {
	if req == nil || req.ReferenceDate == "" {
		return nil, status.Error(codes.InvalidArgument, "reference_date is required")
	}

	rows, err := s.svc.ListActiveAgreements(ctx, req.ReferenceDate)
	if err != nil {
		return nil, s.toStatus("ListActiveAgreements", err)
	}

	out := make([]*analyticsv1.ActiveAgreement, 0, len(rows))
	for _, r := range rows {
		out = append(out, &analyticsv1.ActiveAgreement{
			AgreementID:  r.AgreementID,
			MeterpointID: r.MeterpointID,
			DisplayName:  r.DisplayName,
			IsVariable:   r.IsVariable,
		})
	}
	ref, _ := transform.NormalizeReferenceDate(req.ReferenceDate)
	return &analyticsv1.ListActiveAgreementsResponse{
		ReferenceDate: domain.FormatDate(ref),
		Agreements:    out,
	}, nil
}

func (s *Server) ListHalfHourlyConsumption(ctx context.Context, req *analyticsv1.ListHalfHourlyConsumptionRequest) (*analyticsv1.ListHalfHourlyConsumptionResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	res, err := s.svc.ListHalfHourlyPage(ctx, utc(req.Start), utc(req.End), int(req.PageSize), req.PageToken)
	if err != nil {
		return nil, s.toStatus("ListHalfHourlyConsumption", err)
	}

	out := make([]*analyticsv1.HalfHourlyConsumption, 0, len(res.Rows))
	for _, r := range res.Rows {
		out = append(out, &analyticsv1.HalfHourlyConsumption{
			Datetime:            r.Datetime,
			MeterpointCount:     int64(r.MeterpointCount),
			TotalConsumptionKWh: r.TotalConsumptionKWh,
		})
	}
	return &analyticsv1.ListHalfHourlyConsumptionResponse{
		Rows:          out,
		NextPageToken: res.NextPageToken,
	}, nil
}

func (s *Server) ListDailyProductConsumption(ctx context.Context, req *analyticsv1.ListDailyProductConsumptionRequest) (*analyticsv1.ListDailyProductConsumptionResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	rows, err := s.svc.ListDailyProductConsumption(ctx, utc(req.Start), utc(req.End))
	if err != nil {
		return nil, s.toStatus("ListDailyProductConsumption", err)
	}

	out := make([]*analyticsv1.DailyProductConsumption, 0, len(rows))
	for _, r := range rows {
		out = append(out, &analyticsv1.DailyProductConsumption{
			ProductDisplayName:  r.ProductDisplayName,
			Date:                domain.FormatDate(r.Date),
			MeterpointCount:     int64(r.MeterpointCount),
			TotalConsumptionKWh: r.TotalConsumptionKWh,
		})
	}
	return &analyticsv1.ListDailyProductConsumptionResponse{Rows: out}, nil
}

func (s *Server) GetMeterpointHistory(ctx context.Context, req *analyticsv1.GetMeterpointHistoryRequest) (*analyticsv1.GetMeterpointHistoryResponse, error) {
	if req == nil || req.MeterpointID == "" {
		return nil, status.Error(codes.InvalidArgument, "meterpoint_id is required")
	}

	rows, err := s.svc.MeterpointHistory(ctx, req.MeterpointID)
	if err != nil {
		return nil, s.toStatus("GetMeterpointHistory", err)
	}

	out := make([]*analyticsv1.MeterpointAgreement, 0, len(rows))
	for _, r := range rows {
		a := &analyticsv1.MeterpointAgreement{
			AgreementID:  r.AgreementID,
			MeterpointID: r.MeterpointID,
			Region:       r.Region,
			ProductID:    r.ProductID,
			DisplayName:  r.DisplayName,
			IsVariable:   r.IsVariable,
			AccountID:    r.AccountID,
		}
		if !r.ValidFrom.IsZero() {
			a.ValidFrom = domain.FormatDate(r.ValidFrom)
		}
		if r.ValidTo != nil {
			a.ValidTo = domain.FormatDate(*r.ValidTo)
		}
		out = append(out, a)
	}
	return &analyticsv1.GetMeterpointHistoryResponse{
		MeterpointID: req.MeterpointID,
		Agreements:   out,
	}, nil
}

func (s *Server) toStatus(method string, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidTimeRange),
		errors.Is(err, service.ErrInvalidPagination),
		errors.Is(err, service.ErrInvalidArgument),
		errors.Is(err, transform.ErrInvalidReferenceDate):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.log.Error("grpc call failed", zap.String("method", method), zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
