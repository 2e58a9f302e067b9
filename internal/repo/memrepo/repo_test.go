package memrepo

import (
	"context"
	"testing"
	"time"

	"github.com/milad/meteretl/internal/domain"
)

func TestReadings_ListFiltersByTimeRange(t *testing.T) {
	t.Parallel()

	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewReadings([]domain.Reading{
		{MeterpointID: "M1", IntervalStart: base.Add(60 * time.Minute), ConsumptionDelta: 3},
		{MeterpointID: "M1", IntervalStart: base, ConsumptionDelta: 1},
		{MeterpointID: "M1", IntervalStart: base.Add(30 * time.Minute), ConsumptionDelta: 2},
	})

	start := base.Add(30 * time.Minute)
	end := base.Add(60 * time.Minute)

	out, err := r.List(context.Background(), &start, &end)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got, want := len(out), 1; got != want {
		t.Fatalf("len(out)=%d want %d", got, want)
	}
	if got, want := out[0].ConsumptionDelta, 2.0; got != want {
		t.Fatalf("out[0].ConsumptionDelta=%v want %v", got, want)
	}
}

func TestReadings_ListUnboundedIsSorted(t *testing.T) {
	t.Parallel()

	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewReadings([]domain.Reading{
		{MeterpointID: "M2", IntervalStart: base},
		{MeterpointID: "M1", IntervalStart: base.Add(30 * time.Minute)},
		{MeterpointID: "M1", IntervalStart: base},
	})

	out, err := r.List(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if out[0].MeterpointID != "M1" || out[1].MeterpointID != "M2" || !out[2].IntervalStart.Equal(base.Add(30*time.Minute)) {
		t.Fatalf("unexpected order: %+v", out)
	}
}

func TestReference_AgreementsForMeterpoint(t *testing.T) {
	t.Parallel()

	d := func(s string) time.Time {
		v, err := domain.ParseDate(s)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", s, err)
		}
		return v
	}
	r := NewReference([]domain.Agreement{
		{AgreementID: 2, MeterpointID: "M1", ValidFrom: d("2021-01-01")},
		{AgreementID: 3, MeterpointID: "M2", ValidFrom: d("2020-01-01")},
		{AgreementID: 1, MeterpointID: "M1", ValidFrom: d("2020-01-01")},
	}, nil, nil)

	out, err := r.AgreementsForMeterpoint(context.Background(), "M1")
	if err != nil {
		t.Fatalf("AgreementsForMeterpoint: %v", err)
	}
	if got, want := len(out), 2; got != want {
		t.Fatalf("len(out)=%d want %d", got, want)
	}
	if out[0].AgreementID != 1 || out[1].AgreementID != 2 {
		t.Fatalf("unexpected order: %+v", out)
	}
}

func TestReference_AgreementDateRange(t *testing.T) {
	t.Parallel()

	d := func(s string) time.Time {
		v, err := domain.ParseDate(s)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", s, err)
		}
		return v
	}
	early, late := d("2021-03-31"), d("2022-12-31")
	r := NewReference([]domain.Agreement{
		{AgreementID: 1, ValidFrom: d("2021-01-01"), ValidTo: &early},
		{AgreementID: 2, ValidTo: &late},
		{AgreementID: 3, ValidFrom: d("2020-06-01")},
	}, nil, nil)

	from, to, err := r.AgreementDateRange(context.Background())
	if err != nil {
		t.Fatalf("AgreementDateRange: %v", err)
	}
	if want := d("2020-06-01"); !from.Equal(want) {
		t.Fatalf("from=%v want %v", from, want)
	}
	if to == nil || !to.Equal(late) {
		t.Fatalf("to=%v want %v", to, late)
	}

	from, to, err = NewReference(nil, nil, nil).AgreementDateRange(context.Background())
	if err != nil || !from.IsZero() || to != nil {
		t.Fatalf("empty reference: from=%v to=%v err=%v", from, to, err)
	}
}

func TestReference_RespectsCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewReference(nil, nil, nil).Agreements(ctx); err == nil {
		t.Fatalf("expected error, got nil")
	}
}
