package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/milad/meteretl/internal/domain"
	"github.com/milad/meteretl/internal/repo"
	"github.com/milad/meteretl/internal/transform"
)

var ErrInvalidTimeRange = errors.New("invalid time range")
var ErrInvalidPagination = errors.New("invalid pagination")
var ErrInvalidArgument = errors.New("invalid argument")

const (
	// MaxUnpagedRange is a guardrail against accidentally returning huge responses
	// when pagination is not used.
	MaxUnpagedRange = 31 * 24 * time.Hour
	MaxPageSize     = 5_000
)

type HalfHourlyPage struct {
	Rows          []domain.HalfHourlyConsumption
	NextPageToken string
}

// AnalyticsService answers read queries over the loaded readings and reference tables.
// Every call recomputes its result through the transform package.
type AnalyticsService struct {
	readings repo.ReadingRepository
	refs     repo.ReferenceRepository
}

func NewAnalyticsService(readings repo.ReadingRepository, refs repo.ReferenceRepository) *AnalyticsService {
	return &AnalyticsService{readings: readings, refs: refs}
}

func (s *AnalyticsService) ListActiveAgreements(ctx context.Context, referenceDate string) ([]domain.ActiveAgreement, error) {
	ref, err := transform.NormalizeReferenceDate(referenceDate)
	if err != nil {
		return nil, err
	}
	agreements, err := s.refs.Agreements(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.refs.Products(ctx)
	if err != nil {
		return nil, err
	}
	return transform.New(transform.Inputs{Agreements: agreements, Products: products}).ActiveAgreements(ref)
}

func (s *AnalyticsService) ListHalfHourly(ctx context.Context, startInclusive *time.Time, endExclusive *time.Time) ([]domain.HalfHourlyConsumption, error) {
	res, err := s.ListHalfHourlyPage(ctx, startInclusive, endExclusive, 0, "")
	return res.Rows, err
}

func (s *AnalyticsService) ListHalfHourlyPage(
	ctx context.Context,
	startInclusive *time.Time,
	endExclusive *time.Time,
	pageSize int,
	pageToken string,
) (HalfHourlyPage, error) {
	if err := checkRange(startInclusive, endExclusive, pageSize <= 0); err != nil {
		return HalfHourlyPage{}, err
	}

	offset, err := parseOffsetToken(pageSize, pageToken)
	if err != nil {
		return HalfHourlyPage{}, err
	}
	if pageSize < 0 {
		return HalfHourlyPage{}, fmt.Errorf("%w: page_size must be >= 0", ErrInvalidPagination)
	}
	if pageSize > MaxPageSize {
		return HalfHourlyPage{}, fmt.Errorf("%w: page_size too large (max %d)", ErrInvalidPagination, MaxPageSize)
	}

	readings, err := s.readings.List(ctx, startInclusive, endExclusive)
	if err != nil {
		return HalfHourlyPage{}, err
	}
	rows := transform.New(transform.Inputs{Readings: readings}).HalfHourlyConsumption()
	if offset > len(rows) {
		return HalfHourlyPage{}, fmt.Errorf("%w: page_token out of range", ErrInvalidPagination)
	}

	if pageSize == 0 {
		return HalfHourlyPage{Rows: rows}, nil
	}
	if offset == len(rows) {
		return HalfHourlyPage{}, nil
	}

	end := offset + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	next := ""
	if end < len(rows) {
		next = strconv.Itoa(end)
	}
	return HalfHourlyPage{
		Rows:          rows[offset:end],
		NextPageToken: next,
	}, nil
}

// ListDailyProductConsumption aggregates the readings in [start, end) per product and day.
// Both bounds are required and the range is capped at MaxUnpagedRange.
func (s *AnalyticsService) ListDailyProductConsumption(ctx context.Context, startInclusive *time.Time, endExclusive *time.Time) ([]domain.DailyProductConsumption, error) {
	if startInclusive == nil || endExclusive == nil {
		return nil, fmt.Errorf("%w: start and end are required", ErrInvalidTimeRange)
	}
	if err := checkRange(startInclusive, endExclusive, true); err != nil {
		return nil, err
	}

	readings, err := s.readings.List(ctx, startInclusive, endExclusive)
	if err != nil {
		return nil, err
	}
	agreements, err := s.refs.Agreements(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.refs.Products(ctx)
	if err != nil {
		return nil, err
	}
	return transform.New(transform.Inputs{
		Readings:   readings,
		Agreements: agreements,
		Products:   products,
	}).DailyProductConsumption(), nil
}

// MeterpointHistory returns every agreement a meterpoint has had, oldest first,
// joined to its product and the meterpoint's region.
func (s *AnalyticsService) MeterpointHistory(ctx context.Context, meterpointID string) ([]domain.MeterpointAgreement, error) {
	if meterpointID == "" {
		return nil, fmt.Errorf("%w: meterpoint id is required", ErrInvalidArgument)
	}
	agreements, err := s.refs.AgreementsForMeterpoint(ctx, meterpointID)
	if err != nil {
		return nil, err
	}
	products, err := s.refs.Products(ctx)
	if err != nil {
		return nil, err
	}
	meterpoints, err := s.refs.Meterpoints(ctx)
	if err != nil {
		return nil, err
	}

	var region *string
	for _, m := range meterpoints {
		if m.MeterpointID == meterpointID {
			r := m.Region
			region = &r
			break
		}
	}
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		if _, dup := byID[p.ProductID]; !dup {
			byID[p.ProductID] = p
		}
	}

	out := make([]domain.MeterpointAgreement, 0, len(agreements))
	for _, a := range agreements {
		row := domain.MeterpointAgreement{
			AgreementID:  a.AgreementID,
			MeterpointID: a.MeterpointID,
			Region:       region,
			ProductID:    a.ProductID,
			AccountID:    a.AccountID,
			ValidFrom:    a.ValidFrom,
			ValidTo:      a.ValidTo,
		}
		if p, ok := byID[a.ProductID]; ok {
			name, variable := p.DisplayName, p.IsVariable
			row.DisplayName = &name
			row.IsVariable = &variable
		}
		out = append(out, row)
	}
	return out, nil
}

func checkRange(startInclusive, endExclusive *time.Time, unpaged bool) error {
	if startInclusive == nil || endExclusive == nil {
		return nil
	}
	// Keep it strict and predictable: [start, end) where start must be < end.
	if !startInclusive.Before(*endExclusive) {
		return fmt.Errorf("%w: start must be before end", ErrInvalidTimeRange)
	}
	if unpaged && endExclusive.Sub(*startInclusive) > MaxUnpagedRange {
		return fmt.Errorf("%w: range too large without pagination (max %s)", ErrInvalidTimeRange, MaxUnpagedRange)
	}
	return nil
}

func parseOffsetToken(pageSize int, pageToken string) (int, error) {
	if pageToken == "" {
		return 0, nil
	}
	if pageSize <= 0 {
		return 0, fmt.Errorf("%w: page_token requires page_size", ErrInvalidPagination)
	}
	n, err := strconv.Atoi(pageToken)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid page_token", ErrInvalidPagination)
	}
	return n, nil
}
