package postgres

import (
	"strings"

	"github.com/lib/pq"
	"github.com/milad/meteretl/internal/sink"
)

type column struct {
	name string
	typ  string
}

type table struct {
	name    string
	columns []column
}

func (t table) columnNames() []string {
	out := make([]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.name
	}
	return out
}

func (t table) createSQL(schema string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(qualified(schema, t.name))
	b.WriteString(" (\n")
	for i, c := range t.columns {
		b.WriteString("\t")
		b.WriteString(pq.QuoteIdentifier(c.name))
		b.WriteString(" ")
		b.WriteString(c.typ)
		if i < len(t.columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

func qualified(schema, name string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(name)
}

// Raw readings carry no primary key: the same (meterpoint, interval) may arrive in
// more than one input file and is stored as received.
var (
	rawReadingsTable = table{sink.TableRawReadings, []column{
		{"interval_start", "TIMESTAMPTZ NOT NULL"},
		{"consumption_delta", "DOUBLE PRECISION NOT NULL"},
		{"meterpoint_id", "TEXT NOT NULL"},
		{"run_id", "UUID NOT NULL"},
		{"loaded_at", "TIMESTAMPTZ NOT NULL"},
	}}
	rawAgreementsTable = table{sink.TableRawAgreements, []column{
		{"agreement_id", "BIGINT NOT NULL"},
		{"meterpoint_id", "TEXT NOT NULL"},
		{"product_id", "TEXT NOT NULL"},
		{"account_id", "TEXT"},
		{"agreement_valid_from", "DATE"},
		{"agreement_valid_to", "DATE"},
		{"run_id", "UUID NOT NULL"},
		{"loaded_at", "TIMESTAMPTZ NOT NULL"},
	}}
	rawProductsTable = table{sink.TableRawProducts, []column{
		{"product_id", "TEXT NOT NULL"},
		{"display_name", "TEXT"},
		{"is_variable", "BOOLEAN"},
		{"run_id", "UUID NOT NULL"},
		{"loaded_at", "TIMESTAMPTZ NOT NULL"},
	}}
	rawMeterpointsTable = table{sink.TableRawMeterpoints, []column{
		{"meterpoint_id", "TEXT NOT NULL"},
		{"region", "TEXT"},
		{"run_id", "UUID NOT NULL"},
		{"loaded_at", "TIMESTAMPTZ NOT NULL"},
	}}

	activeAgreementsTable = table{sink.TableActiveAgreements, []column{
		{"agreement_id", "BIGINT NOT NULL"},
		{"meterpoint_id", "TEXT NOT NULL"},
		{"display_name", "TEXT"},
		{"is_variable", "BOOLEAN"},
		{"reference_date", "DATE NOT NULL"},
		{"run_id", "UUID NOT NULL"},
		{"loaded_at", "TIMESTAMPTZ NOT NULL"},
	}}
	halfHourlyTable = table{sink.TableHalfHourlyConsumption, []column{
		{"datetime", "TIMESTAMPTZ NOT NULL"},
		{"meterpoint_count", "INTEGER NOT NULL"},
		{"total_consumption_kwh", "DOUBLE PRECISION NOT NULL"},
		{"run_id", "UUID NOT NULL"},
		{"loaded_at", "TIMESTAMPTZ NOT NULL"},
	}}
	dailyProductTable = table{sink.TableDailyProductConsumption, []column{
		{"product_display_name", "TEXT NOT NULL"},
		{"date", "DATE NOT NULL"},
		{"meterpoint_count", "INTEGER NOT NULL"},
		{"total_consumption_kwh", "DOUBLE PRECISION NOT NULL"},
		{"run_id", "UUID NOT NULL"},
		{"loaded_at", "TIMESTAMPTZ NOT NULL"},
	}}

	runsTable = table{"etl_runs", []column{
		{"run_id", "UUID PRIMARY KEY"},
		{"reference_date", "DATE NOT NULL"},
		{"loaded_at", "TIMESTAMPTZ NOT NULL"},
		{"active_agreements_rows", "INTEGER NOT NULL"},
		{"halfhourly_rows", "INTEGER NOT NULL"},
		{"daily_product_rows", "INTEGER NOT NULL"},
	}}
)
