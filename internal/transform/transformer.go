// Package transform derives the analytics tables from readings and reference data.
//
// A Transformer never mutates its inputs and keeps no state between calls: every
// method re-derives its output from the tables it was built with, so repeated
// calls with the same inputs return identical results.
package transform

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/milad/meteretl/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrInvalidReferenceDate is returned when a reference date has the wrong type or format.
var ErrInvalidReferenceDate = errors.New("invalid reference date")

// Inputs are the four tables a Transformer works on. They are treated as read-only.
type Inputs struct {
	Readings    []domain.Reading
	Agreements  []domain.Agreement
	Products    []domain.Product
	Meterpoints []domain.Meterpoint
}

type Transformer struct {
	in Inputs

	productsByID     map[string][]domain.Product
	agreementsByMP   map[string][]domain.Agreement
	knownMeterpoints map[string]struct{}
}

func New(in Inputs) *Transformer {
	t := &Transformer{
		in:               in,
		productsByID:     make(map[string][]domain.Product, len(in.Products)),
		agreementsByMP:   make(map[string][]domain.Agreement),
		knownMeterpoints: make(map[string]struct{}, len(in.Meterpoints)),
	}
	for _, p := range in.Products {
		t.productsByID[p.ProductID] = append(t.productsByID[p.ProductID], p)
	}
	for _, a := range in.Agreements {
		t.agreementsByMP[a.MeterpointID] = append(t.agreementsByMP[a.MeterpointID], a)
	}
	for _, m := range in.Meterpoints {
		t.knownMeterpoints[m.MeterpointID] = struct{}{}
	}
	return t
}

// NormalizeReferenceDate accepts an ISO date string or a time.Time and returns the calendar date.
func NormalizeReferenceDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case string:
		d, err := domain.ParseDate(x)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidReferenceDate, err)
		}
		return d, nil
	case time.Time:
		if x.IsZero() {
			return time.Time{}, fmt.Errorf("%w: zero time", ErrInvalidReferenceDate)
		}
		return domain.DateOf(x), nil
	case *time.Time:
		if x == nil {
			return time.Time{}, fmt.Errorf("%w: nil time", ErrInvalidReferenceDate)
		}
		return NormalizeReferenceDate(*x)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidReferenceDate, v)
	}
}

// ActiveAgreements returns every agreement valid on referenceDate, left-joined to its
// product and ordered by agreement id. Unmatched products leave DisplayName and
// IsVariable nil.
func (t *Transformer) ActiveAgreements(referenceDate any) ([]domain.ActiveAgreement, error) {
	ref, err := NormalizeReferenceDate(referenceDate)
	if err != nil {
		return nil, err
	}

	out := []domain.ActiveAgreement{}
	for _, a := range t.in.Agreements {
		if !a.ActiveOn(ref) {
			continue
		}
		products := t.productsByID[a.ProductID]
		if len(products) == 0 {
			out = append(out, domain.ActiveAgreement{AgreementID: a.AgreementID, MeterpointID: a.MeterpointID})
			continue
		}
		for _, p := range products {
			name, variable := p.DisplayName, p.IsVariable
			out = append(out, domain.ActiveAgreement{
				AgreementID:  a.AgreementID,
				MeterpointID: a.MeterpointID,
				DisplayName:  &name,
				IsVariable:   &variable,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].AgreementID < out[j].AgreementID })
	return out, nil
}

// UnknownMeterpoints lists reading meterpoints missing from the meterpoint table, sorted.
func (t *Transformer) UnknownMeterpoints() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range t.in.Readings {
		if _, ok := t.knownMeterpoints[r.MeterpointID]; ok {
			continue
		}
		if _, dup := seen[r.MeterpointID]; dup {
			continue
		}
		seen[r.MeterpointID] = struct{}{}
		out = append(out, r.MeterpointID)
	}
	sort.Strings(out)
	return out
}

// group accumulates one aggregation bucket.
type group struct {
	meterpoints map[string]struct{}
	total       decimal.Decimal
}

func newGroup() *group {
	return &group{meterpoints: make(map[string]struct{}), total: decimal.Zero}
}

func (g *group) add(r domain.Reading) {
	g.meterpoints[r.MeterpointID] = struct{}{}
	g.total = g.total.Add(decimal.NewFromFloat(r.ConsumptionDelta))
}
