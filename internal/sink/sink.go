// Package sink defines where a pipeline run delivers its output tables.
//
// Every write is a full replace: a sink drops whatever the previous run left in the
// target tables and stores the new rows. Appending across runs is not supported.
package sink

import (
	"context"
	"time"

	"github.com/milad/meteretl/internal/domain"
)

// Table names shared by all sinks.
const (
	TableActiveAgreements        = "active_agreements"
	TableHalfHourlyConsumption   = "halfhourly_consumption"
	TableDailyProductConsumption = "daily_product_consumption"

	TableRawReadings    = "raw_meter_readings"
	TableRawAgreements  = "raw_agreements"
	TableRawProducts    = "raw_products"
	TableRawMeterpoints = "raw_meterpoints"
)

// Tables is one run's analytics output plus its load metadata.
type Tables struct {
	RunID         string
	ReferenceDate time.Time
	LoadedAt      time.Time

	ActiveAgreements []domain.ActiveAgreement
	HalfHourly       []domain.HalfHourlyConsumption
	DailyProduct     []domain.DailyProductConsumption
}

// RowCounts returns the number of rows per analytics table.
func (t *Tables) RowCounts() map[string]int {
	return map[string]int{
		TableActiveAgreements:        len(t.ActiveAgreements),
		TableHalfHourlyConsumption:   len(t.HalfHourly),
		TableDailyProductConsumption: len(t.DailyProduct),
	}
}

// Sink stores the analytics tables.
type Sink interface {
	Name() string
	WriteTables(ctx context.Context, t *Tables) error
}

// Raw is the extracted input, stored as-is before transformation.
type Raw struct {
	RunID    string
	LoadedAt time.Time

	Readings    []domain.Reading
	Agreements  []domain.Agreement
	Products    []domain.Product
	Meterpoints []domain.Meterpoint
}

// RowCounts returns the number of rows per raw table.
func (r *Raw) RowCounts() map[string]int {
	return map[string]int{
		TableRawReadings:    len(r.Readings),
		TableRawAgreements:  len(r.Agreements),
		TableRawProducts:    len(r.Products),
		TableRawMeterpoints: len(r.Meterpoints),
	}
}

// RawWriter is implemented by sinks that also keep a raw layer.
type RawWriter interface {
	WriteRaw(ctx context.Context, r *Raw) error
}
