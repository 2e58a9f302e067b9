package memrepo

import (
	"context"
	"sort"
	"time"

	"github.com/milad/meteretl/internal/domain"
	"github.com/milad/meteretl/internal/repo"
)

var (
	_ repo.ReadingRepository   = (*Readings)(nil)
	_ repo.ReferenceRepository = (*Reference)(nil)
)

// Readings is an in-memory reading repository, loaded once at startup.
type Readings struct {
	readings []domain.Reading // sorted ascending by IntervalStart, then MeterpointID
}

func NewReadings(readings []domain.Reading) *Readings {
	cp := append([]domain.Reading(nil), readings...)
	sort.SliceStable(cp, func(i, j int) bool {
		if !cp[i].IntervalStart.Equal(cp[j].IntervalStart) {
			return cp[i].IntervalStart.Before(cp[j].IntervalStart)
		}
		return cp[i].MeterpointID < cp[j].MeterpointID
	})
	return &Readings{readings: cp}
}

func (r *Readings) List(ctx context.Context, startInclusive *time.Time, endExclusive *time.Time) ([]domain.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	readings := r.readings
	if startInclusive != nil {
		start := *startInclusive
		i := sort.Search(len(readings), func(i int) bool { return !readings[i].IntervalStart.Before(start) })
		readings = readings[i:]
	}
	if endExclusive != nil {
		end := *endExclusive
		j := sort.Search(len(readings), func(i int) bool { return !readings[i].IntervalStart.Before(end) })
		readings = readings[:j]
	}

	out := append([]domain.Reading(nil), readings...)
	return out, nil
}

// Reference holds reference tables in memory.
type Reference struct {
	agreements  []domain.Agreement
	products    []domain.Product
	meterpoints []domain.Meterpoint
}

func NewReference(agreements []domain.Agreement, products []domain.Product, meterpoints []domain.Meterpoint) *Reference {
	return &Reference{
		agreements:  append([]domain.Agreement(nil), agreements...),
		products:    append([]domain.Product(nil), products...),
		meterpoints: append([]domain.Meterpoint(nil), meterpoints...),
	}
}

func (r *Reference) Agreements(ctx context.Context) ([]domain.Agreement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]domain.Agreement(nil), r.agreements...), nil
}

func (r *Reference) Products(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]domain.Product(nil), r.products...), nil
}

func (r *Reference) Meterpoints(ctx context.Context) ([]domain.Meterpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]domain.Meterpoint(nil), r.meterpoints...), nil
}

func (r *Reference) AgreementsForMeterpoint(ctx context.Context, meterpointID string) ([]domain.Agreement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Agreement
	for _, a := range r.agreements {
		if a.MeterpointID == meterpointID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ValidFrom.Before(out[j].ValidFrom) })
	return out, nil
}

// AgreementDateRange returns the earliest start and latest end over all agreements.
// Agreements without a start date do not count towards from.
func (r *Reference) AgreementDateRange(ctx context.Context) (from time.Time, to *time.Time, err error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, nil, err
	}
	for _, a := range r.agreements {
		if !a.ValidFrom.IsZero() && (from.IsZero() || a.ValidFrom.Before(from)) {
			from = a.ValidFrom
		}
		if a.ValidTo != nil && (to == nil || a.ValidTo.After(*to)) {
			end := *a.ValidTo
			to = &end
		}
	}
	return from, to, nil
}
