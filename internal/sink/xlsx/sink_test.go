package xlsx

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/milad/meteretl/internal/domain"
	"github.com/milad/meteretl/internal/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
)

func TestSink_WriteTables_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "analytics.xlsx")
	ref := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	name := "Agile"
	variable := true

	tables := &sink.Tables{
		RunID:         "3f1c6d2e-0000-4000-8000-000000000001",
		ReferenceDate: ref,
		LoadedAt:      ref.Add(8*time.Hour + 30*time.Minute),
		ActiveAgreements: []domain.ActiveAgreement{
			{AgreementID: 1, MeterpointID: "M1", DisplayName: &name, IsVariable: &variable},
			{AgreementID: 2, MeterpointID: "M2"},
		},
		HalfHourly: []domain.HalfHourlyConsumption{
			{Datetime: ref, MeterpointCount: 2, TotalConsumptionKWh: 4},
		},
		DailyProduct: []domain.DailyProductConsumption{
			{ProductDisplayName: name, Date: ref, MeterpointCount: 1, TotalConsumptionKWh: 1.5},
		},
	}

	s := New(path, zaptest.NewLogger(t))
	require.NoError(t, s.WriteTables(context.Background(), tables))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{
		summarySheet,
		sink.TableActiveAgreements,
		sink.TableHalfHourlyConsumption,
		sink.TableDailyProductConsumption,
	}, f.GetSheetList())

	rows, err := f.GetRows(sink.TableActiveAgreements)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"agreement_id", "meterpoint_id", "display_name", "is_variable"}, rows[0])
	assert.Equal(t, []string{"1", "M1", "Agile", "TRUE"}, rows[1])
	require.GreaterOrEqual(t, len(rows[2]), 2)
	assert.Equal(t, []string{"2", "M2"}, rows[2][:2])
	for _, cell := range rows[2][2:] {
		assert.Empty(t, cell, "missing product leaves cells empty")
	}

	rows, err = f.GetRows(sink.TableHalfHourlyConsumption)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2021-01-01T00:00:00Z", "2", "4"}, rows[1])

	rows, err = f.GetRows(sink.TableDailyProductConsumption)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Agile", "2021-01-01", "1", "1.5"}, rows[1])

	rows, err = f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"run_id", tables.RunID}, rows[0])
	assert.Equal(t, []string{"reference_date", "2021-01-01"}, rows[1])

	_, err = os.Stat(path + ".tmp.xlsx")
	assert.True(t, os.IsNotExist(err), "temporary file is renamed away")
}

func TestSink_WriteTables_Replaces(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "analytics.xlsx")
	s := New(path, nil)
	ctx := context.Background()

	first := &sink.Tables{RunID: "a", HalfHourly: []domain.HalfHourlyConsumption{
		{Datetime: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), MeterpointCount: 1, TotalConsumptionKWh: 1},
		{Datetime: time.Date(2021, 1, 1, 0, 30, 0, 0, time.UTC), MeterpointCount: 1, TotalConsumptionKWh: 1},
	}}
	require.NoError(t, s.WriteTables(ctx, first))
	require.NoError(t, s.WriteTables(ctx, &sink.Tables{RunID: "b"}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sink.TableHalfHourlyConsumption)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "only the header remains")
}
