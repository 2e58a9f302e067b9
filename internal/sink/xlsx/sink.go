// Package xlsx writes the analytics tables into an Excel workbook for analysts,
// one sheet per table plus a run summary sheet.
package xlsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/milad/meteretl/internal/domain"
	"github.com/milad/meteretl/internal/sink"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var _ sink.Sink = (*Sink)(nil)

const summarySheet = "run"

type Sink struct {
	path string
	log  *zap.Logger
}

func New(path string, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{path: path, log: log.With(zap.String("sink", "xlsx"))}
}

func (s *Sink) Name() string { return "xlsx" }

// WriteTables replaces the workbook at the sink's path. The file is written to a
// temporary name first and renamed into place.
func (s *Sink) WriteTables(ctx context.Context, t *sink.Tables) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename default sheet: %w", err)
	}
	summary := [][]any{
		{"run_id", t.RunID},
		{"reference_date", domain.FormatDate(t.ReferenceDate)},
		{"loaded_at", t.LoadedAt.UTC().Format(time.RFC3339)},
	}
	counts := t.RowCounts()
	tables := make([]string, 0, len(counts))
	for table := range counts {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		summary = append(summary, []any{table + "_rows", counts[table]})
	}
	if err := writeSheet(f, summarySheet, nil, summary); err != nil {
		return err
	}

	active := make([][]any, 0, len(t.ActiveAgreements))
	for _, a := range t.ActiveAgreements {
		var name, variable any
		if a.DisplayName != nil {
			name = *a.DisplayName
		}
		if a.IsVariable != nil {
			variable = *a.IsVariable
		}
		active = append(active, []any{a.AgreementID, a.MeterpointID, name, variable})
	}
	if err := writeSheet(f, sink.TableActiveAgreements,
		[]any{"agreement_id", "meterpoint_id", "display_name", "is_variable"}, active); err != nil {
		return err
	}

	half := make([][]any, 0, len(t.HalfHourly))
	for _, h := range t.HalfHourly {
		half = append(half, []any{h.Datetime.UTC().Format(time.RFC3339), h.MeterpointCount, h.TotalConsumptionKWh})
	}
	if err := writeSheet(f, sink.TableHalfHourlyConsumption,
		[]any{"datetime", "meterpoint_count", "total_consumption_kwh"}, half); err != nil {
		return err
	}

	daily := make([][]any, 0, len(t.DailyProduct))
	for _, d := range t.DailyProduct {
		daily = append(daily, []any{d.ProductDisplayName, domain.FormatDate(d.Date), d.MeterpointCount, d.TotalConsumptionKWh})
	}
	if err := writeSheet(f, sink.TableDailyProductConsumption,
		[]any{"product_display_name", "date", "meterpoint_count", "total_consumption_kwh"}, daily); err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	tmp := s.path + ".tmp.xlsx"
	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}

	s.log.Info("workbook written", zap.String("path", s.path), zap.String("run_id", t.RunID))
	return nil
}

func writeSheet(f *excelize.File, name string, header []any, rows [][]any) error {
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return fmt.Errorf("sheet %s: %w", name, err)
	}
	if idx < 0 {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("new sheet %s: %w", name, err)
		}
	}

	row := 1
	if header != nil {
		if err := f.SetSheetRow(name, "A1", &header); err != nil {
			return fmt.Errorf("sheet %s header: %w", name, err)
		}
		row++
	}
	for _, values := range rows {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", name, row, err)
		}
		row++
	}
	return nil
}
