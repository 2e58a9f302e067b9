package influx

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/milad/meteretl/internal/domain"
	"github.com/milad/meteretl/internal/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeWriter struct {
	calls  int
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoint(_ context.Context, point ...*write.Point) error {
	f.calls++
	f.points = append(f.points, point...)
	return f.err
}

type fakeDeleter struct {
	predicates []string
}

func (f *fakeDeleter) DeleteWithName(_ context.Context, _, _ string, _, _ time.Time, predicate string) error {
	f.predicates = append(f.predicates, predicate)
	return nil
}

func lines(points []*write.Point) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = strings.TrimSpace(write.PointToLineProtocol(p, time.Second))
	}
	return out
}

func testTables() *sink.Tables {
	ref := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	fixed, agile := "Fixed 12M", "Agile"
	no, yes := false, true
	return &sink.Tables{
		RunID:         "run-1",
		ReferenceDate: ref,
		ActiveAgreements: []domain.ActiveAgreement{
			{AgreementID: 1, MeterpointID: "M1", DisplayName: &fixed, IsVariable: &no},
			{AgreementID: 2, MeterpointID: "M2", DisplayName: &fixed, IsVariable: &no},
			{AgreementID: 3, MeterpointID: "M3", DisplayName: &agile, IsVariable: &yes},
			{AgreementID: 4, MeterpointID: "M4"},
		},
		HalfHourly: []domain.HalfHourlyConsumption{
			{Datetime: ref, MeterpointCount: 2, TotalConsumptionKWh: 4},
		},
		DailyProduct: []domain.DailyProductConsumption{
			{ProductDisplayName: fixed, Date: ref, MeterpointCount: 2, TotalConsumptionKWh: 3.5},
		},
	}
}

func TestPoints_LineProtocol(t *testing.T) {
	t.Parallel()

	got := lines(Points(testTables()))
	require.Len(t, got, 5)

	assert.True(t, strings.HasPrefix(got[0], "halfhourly_consumption "), got[0])
	assert.Contains(t, got[0], "meterpoint_count=2i")
	assert.Contains(t, got[0], "total_consumption_kwh=4")
	assert.True(t, strings.HasSuffix(got[0], " 1609459200"), got[0])

	assert.True(t, strings.HasPrefix(got[1], `daily_product_consumption,product=Fixed\ 12M `), got[1])
	assert.Contains(t, got[1], "total_consumption_kwh=3.5")

	// Active agreements are counted per product, sorted by product name.
	assert.True(t, strings.HasPrefix(got[2], "active_agreements,is_variable=true,product=Agile "), got[2])
	assert.Contains(t, got[2], "agreement_count=1i")
	assert.True(t, strings.HasPrefix(got[3], `active_agreements,is_variable=false,product=Fixed\ 12M `), got[3])
	assert.Contains(t, got[3], "agreement_count=2i")
	assert.True(t, strings.HasPrefix(got[4], "active_agreements,is_variable=unknown,product=unknown "), got[4])
}

func TestSink_WriteTables(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	d := &fakeDeleter{}
	s := New(w, zaptest.NewLogger(t))
	s.deleter = d

	require.NoError(t, s.WriteTables(context.Background(), testTables()))
	assert.Equal(t, 1, w.calls)
	assert.Len(t, w.points, 5)
	assert.Equal(t, []string{
		`_measurement="halfhourly_consumption"`,
		`_measurement="daily_product_consumption"`,
		`_measurement="active_agreements"`,
	}, d.predicates)
}

func TestSink_WriteTables_Batches(t *testing.T) {
	t.Parallel()

	tables := &sink.Tables{RunID: "run-2"}
	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < batchSize+1; i++ {
		tables.HalfHourly = append(tables.HalfHourly, domain.HalfHourlyConsumption{
			Datetime: base.Add(time.Duration(i) * 30 * time.Minute), MeterpointCount: 1, TotalConsumptionKWh: 1,
		})
	}

	w := &fakeWriter{}
	require.NoError(t, New(w, nil).WriteTables(context.Background(), tables))
	assert.Equal(t, 2, w.calls)
	assert.Len(t, w.points, batchSize+1)
}

func TestSink_WriteTables_PropagatesError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	err := New(&fakeWriter{err: boom}, nil).WriteTables(context.Background(), testTables())
	assert.ErrorIs(t, err, boom)
}
