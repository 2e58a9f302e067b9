package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/milad/meteretl/internal/domain"
	"github.com/milad/meteretl/internal/notify"
	"github.com/milad/meteretl/internal/readings"
	"github.com/milad/meteretl/internal/repo/memrepo"
	"github.com/milad/meteretl/internal/sink"
	"github.com/milad/meteretl/internal/transform"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSink struct {
	name   string
	err    error
	tables *sink.Tables
	writes int
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) WriteTables(_ context.Context, t *sink.Tables) error {
	s.writes++
	if s.err != nil {
		return s.err
	}
	s.tables = t
	return nil
}

// warehouseSink keeps a raw layer and can report what it holds.
type warehouseSink struct {
	recordingSink
	raw      *sink.Raw
	override map[string]int64
}

func (s *warehouseSink) WriteRaw(_ context.Context, r *sink.Raw) error {
	s.raw = r
	return nil
}

func (s *warehouseSink) LoadedRowCounts(context.Context) (map[string]int64, error) {
	if s.override != nil {
		return s.override, nil
	}
	out := map[string]int64{"etl_runs": 1}
	for table, n := range s.tables.RowCounts() {
		out[table] = int64(n)
	}
	return out, nil
}

// stampingSink also reports when each table was last loaded. stale entries are
// reported as left behind by an earlier run.
type stampingSink struct {
	warehouseSink
	stale map[string]time.Time
	err   error
}

func (s *stampingSink) LastLoadTimes(context.Context) (map[string]time.Time, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]time.Time)
	for table := range s.tables.RowCounts() {
		out[table] = s.tables.LoadedAt
	}
	for table, at := range s.stale {
		out[table] = at
	}
	return out, nil
}

type captureNotifier struct {
	events []notify.RunCompleted
	err    error
}

func (n *captureNotifier) Notify(_ context.Context, ev notify.RunCompleted) error {
	n.events = append(n.events, ev)
	return n.err
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

func readingsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"2021-01-01_a.json": `{"columns":["interval_start","consumption_delta","meterpoint_id"],"data":[
			["2021-01-01T00:00:00",1.5,"M1"],
			["2021-01-01T00:00:00",2.5,"M2"]]}`,
		"2021-01-01_b.json": `{"columns":["interval_start","consumption_delta","meterpoint_id"],"data":[
			["2021-01-01T00:30:00",1.0,"M1"],
			["2021-01-01T00:30:00",0.5,"M9"]]}`,
		"broken.json": `{"columns":`,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func reference(t *testing.T) *memrepo.Reference {
	t.Helper()
	to := date(t, "2021-06-30")
	return memrepo.NewReference(
		[]domain.Agreement{
			{AgreementID: 1, MeterpointID: "M1", ProductID: "P1", AccountID: "A1", ValidFrom: date(t, "2020-01-01")},
			{AgreementID: 2, MeterpointID: "M2", ProductID: "P2", AccountID: "A2", ValidFrom: date(t, "2021-01-01"), ValidTo: &to},
		},
		[]domain.Product{
			{ProductID: "P1", DisplayName: "Agile", IsVariable: true},
			{ProductID: "P2", DisplayName: "Fixed 12M", IsVariable: false},
		},
		[]domain.Meterpoint{{MeterpointID: "M1", Region: "North"}, {MeterpointID: "M2", Region: "South"}},
	)
}

func newTestPipeline(t *testing.T, dir string, sinks []sink.Sink, n notify.Notifier) (*Pipeline, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	p := New(Options{ReadingsDir: dir, SortReadings: true, Metrics: m}, reference(t), sinks, n, zaptest.NewLogger(t))
	clock := time.Date(2021, 1, 2, 8, 30, 0, 0, time.UTC)
	p.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	p.newRunID = func() string { return "run-1" }
	return p, m
}

func TestRun_LoadsEverySink(t *testing.T) {
	t.Parallel()

	wh := &warehouseSink{recordingSink: recordingSink{name: "warehouse"}}
	book := &recordingSink{name: "workbook"}
	n := &captureNotifier{}
	p, m := newTestPipeline(t, readingsDir(t), []sink.Sink{wh, book}, n)

	rep, err := p.Run(context.Background(), "2021-01-01")
	require.NoError(t, err)

	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, date(t, "2021-01-01"), rep.ReferenceDate)
	assert.Equal(t, []string{"warehouse", "workbook"}, rep.Sinks)
	assert.Equal(t, []string{"M9"}, rep.UnknownMeterpoints)
	assert.Equal(t, 4, rep.Summary.TotalReadings)
	assert.Equal(t, map[string]int{
		sink.TableActiveAgreements:        2,
		sink.TableHalfHourlyConsumption:   2,
		sink.TableDailyProductConsumption: 2,
	}, rep.Rows)

	require.NotNil(t, wh.raw, "raw layer goes to sinks that keep one")
	assert.Len(t, wh.raw.Readings, 4)
	assert.Equal(t, "run-1", wh.raw.RunID)

	require.Same(t, wh.tables, book.tables, "every sink gets the same tables")
	tables := book.tables
	assert.Equal(t, "run-1", tables.RunID)
	assert.False(t, tables.LoadedAt.IsZero())
	assert.Equal(t, []domain.HalfHourlyConsumption{
		{Datetime: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), MeterpointCount: 2, TotalConsumptionKWh: 4},
		{Datetime: time.Date(2021, 1, 1, 0, 30, 0, 0, time.UTC), MeterpointCount: 2, TotalConsumptionKWh: 1.5},
	}, tables.HalfHourly)
	assert.Equal(t, []domain.DailyProductConsumption{
		{ProductDisplayName: "Agile", Date: date(t, "2021-01-01"), MeterpointCount: 1, TotalConsumptionKWh: 2.5},
		{ProductDisplayName: "Fixed 12M", Date: date(t, "2021-01-01"), MeterpointCount: 1, TotalConsumptionKWh: 2.5},
	}, tables.DailyProduct)

	require.Len(t, n.events, 1)
	ev := n.events[0]
	assert.Equal(t, notify.StatusSucceeded, ev.Status)
	assert.Equal(t, "2021-01-01", ev.ReferenceDate)
	assert.Empty(t, ev.Error)
	assert.Equal(t, rep.Rows, ev.Rows)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(notify.StatusSucceeded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.inputFiles.WithLabelValues("valid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inputFiles.WithLabelValues("skipped")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.rowsWritten.WithLabelValues("warehouse", sink.TableRawReadings)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rowsWritten.WithLabelValues("workbook", sink.TableHalfHourlyConsumption)))
	assert.Equal(t, 5, testutil.CollectAndCount(m.stageDuration))
}

func TestRun_InvalidReferenceDateStopsBeforeExtract(t *testing.T) {
	t.Parallel()

	s := &recordingSink{name: "workbook"}
	n := &captureNotifier{}
	p, m := newTestPipeline(t, filepath.Join(t.TempDir(), "missing"), []sink.Sink{s}, n)

	rep, err := p.Run(context.Background(), "01/01/2021")
	require.Error(t, err)
	assert.ErrorIs(t, err, transform.ErrInvalidReferenceDate)
	assert.Nil(t, rep)
	assert.Zero(t, s.writes)
	assert.Empty(t, n.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(notify.StatusFailed)))
}

func TestRun_NoValidInputFails(t *testing.T) {
	t.Parallel()

	s := &recordingSink{name: "workbook"}
	n := &captureNotifier{}
	p, _ := newTestPipeline(t, t.TempDir(), []sink.Sink{s}, n)

	_, err := p.Run(context.Background(), "2021-01-01")
	assert.ErrorIs(t, err, readings.ErrNoValidInput)
	assert.Zero(t, s.writes)
	require.Len(t, n.events, 1)
	assert.Equal(t, notify.StatusFailed, n.events[0].Status)
	assert.Contains(t, n.events[0].Error, stageExtract)
}

func TestRun_SinkFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	s := &recordingSink{name: "warehouse", err: boom}
	n := &captureNotifier{}
	p, m := newTestPipeline(t, readingsDir(t), []sink.Sink{s}, n)

	rep, err := p.Run(context.Background(), "2021-01-01")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "load: warehouse")
	require.NotNil(t, rep)
	assert.Equal(t, "run-1", rep.RunID)

	require.Len(t, n.events, 1)
	assert.Equal(t, notify.StatusFailed, n.events[0].Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(notify.StatusFailed)))
}

func TestRun_LoadMismatch(t *testing.T) {
	t.Parallel()

	wh := &warehouseSink{
		recordingSink: recordingSink{name: "warehouse"},
		override:      map[string]int64{sink.TableActiveAgreements: 2, sink.TableHalfHourlyConsumption: 1},
	}
	p, _ := newTestPipeline(t, readingsDir(t), []sink.Sink{wh}, nil)

	_, err := p.Run(context.Background(), "2021-01-01")
	assert.ErrorIs(t, err, ErrLoadMismatch)
}

func TestRun_NotifyFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	n := &captureNotifier{err: errors.New("broker down")}
	p, _ := newTestPipeline(t, readingsDir(t), []sink.Sink{&recordingSink{name: "workbook"}}, n)

	_, err := p.Run(context.Background(), date(t, "2021-01-01"))
	require.NoError(t, err)
	assert.Len(t, n.events, 1)
}

func TestExtract_ReferenceTables(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(t, readingsDir(t), nil, nil)
	ex, err := p.Extract(context.Background())
	require.NoError(t, err)

	assert.Len(t, ex.Inputs.Readings, 4)
	assert.Len(t, ex.Inputs.Agreements, 2)
	assert.Len(t, ex.Inputs.Products, 2)
	assert.Len(t, ex.Inputs.Meterpoints, 2)
	assert.Equal(t, 2, ex.Readings.Batches)
	assert.Len(t, ex.Readings.Skipped, 1)
	assert.Equal(t, 3, ex.Summary.UniqueMeterpoints)
	assert.InDelta(t, 5.5, ex.Summary.TotalConsumption, 1e-9)
}

func TestExtract_LogsAgreementDateRange(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	p := New(Options{ReadingsDir: readingsDir(t)}, reference(t), nil, nil, zap.New(core))

	_, err := p.Extract(context.Background())
	require.NoError(t, err)

	entries := logs.FilterMessage("agreement date range").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "2020-01-01", fields["valid_from"])
	assert.Equal(t, "2021-06-30", fields["valid_to"])
}

func TestRun_LogsLastLoadTimes(t *testing.T) {
	t.Parallel()

	earlier := time.Date(2020, 12, 31, 8, 30, 0, 0, time.UTC)
	wh := &stampingSink{
		warehouseSink: warehouseSink{recordingSink: recordingSink{name: "warehouse"}},
		stale:         map[string]time.Time{"legacy_table": earlier},
	}
	core, logs := observer.New(zapcore.InfoLevel)
	p := New(Options{ReadingsDir: readingsDir(t)}, reference(t), []sink.Sink{wh}, nil, zap.New(core))

	_, err := p.Run(context.Background(), "2021-01-01")
	require.NoError(t, err)

	loaded := logs.FilterMessage("table last loaded").All()
	require.Len(t, loaded, 3)
	for _, e := range loaded {
		fields := e.ContextMap()
		assert.Equal(t, "warehouse", fields["sink"])
		assert.Equal(t, wh.tables.LoadedAt, fields["last_loaded_at"])
	}
	assert.Equal(t, sink.TableActiveAgreements, loaded[0].ContextMap()["table"], "tables are logged in name order")

	stale := logs.FilterMessage("table not stamped by this run").All()
	require.Len(t, stale, 1)
	assert.Equal(t, "legacy_table", stale[0].ContextMap()["table"])
	assert.Equal(t, earlier, stale[0].ContextMap()["last_loaded_at"])
}

func TestRun_LastLoadTimesErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	wh := &stampingSink{
		warehouseSink: warehouseSink{recordingSink: recordingSink{name: "warehouse"}},
		err:           errors.New("catalog unavailable"),
	}
	core, logs := observer.New(zapcore.WarnLevel)
	p := New(Options{ReadingsDir: readingsDir(t)}, reference(t), []sink.Sink{wh}, nil, zap.New(core))

	_, err := p.Run(context.Background(), "2021-01-01")
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("last load times unavailable").Len())
}
