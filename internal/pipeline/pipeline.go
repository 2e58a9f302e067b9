// Package pipeline runs one ETL pass: extract the reading files and reference
// tables, store the raw layer, derive the analytics tables, load them into every
// configured sink, check what landed and announce the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/milad/meteretl/internal/domain"
	"github.com/milad/meteretl/internal/notify"
	"github.com/milad/meteretl/internal/readings"
	"github.com/milad/meteretl/internal/repo"
	"github.com/milad/meteretl/internal/sink"
	"github.com/milad/meteretl/internal/transform"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrLoadMismatch is returned when a sink reports a different row count than was written.
var ErrLoadMismatch = errors.New("loaded row count mismatch")

const (
	stageExtract   = "extract"
	stageLoadRaw   = "load_raw"
	stageTransform = "transform"
	stageLoad      = "load"
	stageValidate  = "validate"
)

// TableCounter is implemented by reference sources that can report their table sizes.
type TableCounter interface {
	TableCounts(ctx context.Context) (map[string]int64, error)
}

// AgreementDateRanger is implemented by reference sources that can report the
// span of their agreement validity windows. to is nil when no agreement ends.
type AgreementDateRanger interface {
	AgreementDateRange(ctx context.Context) (from time.Time, to *time.Time, err error)
}

// Inspector is implemented by sinks that can report what they hold after a load.
type Inspector interface {
	LoadedRowCounts(ctx context.Context) (map[string]int64, error)
}

// LoadTimer is implemented by sinks that stamp rows with their load time. Tables
// without stamped rows are left out.
type LoadTimer interface {
	LastLoadTimes(ctx context.Context) (map[string]time.Time, error)
}

type Options struct {
	ReadingsDir  string
	SortReadings bool
	Metrics      *Metrics
}

type Pipeline struct {
	opts     Options
	source   repo.ReferenceRepository
	sinks    []sink.Sink
	notifier notify.Notifier
	metrics  *Metrics
	log      *zap.Logger

	now      func() time.Time
	newRunID func() string
}

func New(opts Options, source repo.ReferenceRepository, sinks []sink.Sink, notifier notify.Notifier, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	m := opts.Metrics
	if m == nil {
		m = NewMetrics(prometheus.NewRegistry())
	}
	return &Pipeline{
		opts:     opts,
		source:   source,
		sinks:    sinks,
		notifier: notifier,
		metrics:  m,
		log:      log,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// Extracted is the input of one run.
type Extracted struct {
	Readings readings.Result
	Summary  readings.Summary
	Inputs   transform.Inputs
}

// Report describes a finished run.
type Report struct {
	RunID              string
	ReferenceDate      time.Time
	StartedAt          time.Time
	FinishedAt         time.Time
	Sinks              []string
	Rows               map[string]int
	Summary            readings.Summary
	UnknownMeterpoints []string
}

// Extract loads the reading files and the three reference tables. The reference
// tables are fetched concurrently.
func (p *Pipeline) Extract(ctx context.Context) (*Extracted, error) {
	res, err := readings.LoadDir(p.opts.ReadingsDir, readings.Options{Sort: p.opts.SortReadings, Logger: p.log})
	p.metrics.inputFiles.WithLabelValues("valid").Add(float64(res.Batches))
	p.metrics.inputFiles.WithLabelValues("skipped").Add(float64(len(res.Skipped)))
	if err != nil {
		return nil, err
	}

	out := &Extracted{Readings: res, Summary: readings.Summarize(res.Readings)}
	out.Inputs.Readings = res.Readings

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Inputs.Agreements, err = p.source.Agreements(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		out.Inputs.Products, err = p.source.Products(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		out.Inputs.Meterpoints, err = p.source.Meterpoints(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reference tables: %w", err)
	}

	s := out.Summary
	p.log.Info("readings summary",
		zap.Int("total_readings", s.TotalReadings),
		zap.Int("unique_meterpoints", s.UniqueMeterpoints),
		zap.Time("start", s.Start),
		zap.Time("end", s.End),
		zap.Float64("total_consumption", s.TotalConsumption),
		zap.Float64("average_consumption", s.AverageConsumption),
	)
	if tc, ok := p.source.(TableCounter); ok {
		counts, err := tc.TableCounts(ctx)
		if err != nil {
			p.log.Warn("source table counts unavailable", zap.Error(err))
		} else {
			for _, name := range sortedKeys(counts) {
				p.log.Info("source table", zap.String("table", name), zap.Int64("rows", counts[name]))
			}
		}
	}
	if dr, ok := p.source.(AgreementDateRanger); ok {
		from, to, err := dr.AgreementDateRange(ctx)
		if err != nil {
			p.log.Warn("agreement date range unavailable", zap.Error(err))
		} else {
			validFrom, validTo := "none", "none"
			if !from.IsZero() {
				validFrom = domain.FormatDate(from)
			}
			if to != nil {
				validTo = domain.FormatDate(*to)
			}
			p.log.Info("agreement date range", zap.String("valid_from", validFrom), zap.String("valid_to", validTo))
		}
	}
	return out, nil
}

// Run executes one full pass for referenceDate. The reference date is validated
// before anything is read. A RunCompleted event is sent for every run that gets
// past validation, whatever its outcome.
func (p *Pipeline) Run(ctx context.Context, referenceDate any) (*Report, error) {
	ref, err := transform.NormalizeReferenceDate(referenceDate)
	if err != nil {
		p.metrics.runs.WithLabelValues(notify.StatusFailed).Inc()
		return nil, err
	}

	rep := &Report{
		RunID:         p.newRunID(),
		ReferenceDate: ref,
		StartedAt:     p.now().UTC(),
		Sinks:         p.sinkNames(),
	}
	log := p.log.With(zap.String("run_id", rep.RunID), zap.String("reference_date", domain.FormatDate(ref)))
	log.Info("etl run started", zap.Strings("sinks", rep.Sinks))

	runErr := p.run(ctx, log, rep)
	rep.FinishedAt = p.now().UTC()

	status := notify.StatusSucceeded
	if runErr != nil {
		status = notify.StatusFailed
	}
	p.metrics.runs.WithLabelValues(status).Inc()

	ev := notify.RunCompleted{
		RunID:         rep.RunID,
		Status:        status,
		ReferenceDate: domain.FormatDate(ref),
		StartedAt:     rep.StartedAt,
		FinishedAt:    rep.FinishedAt,
		Sinks:         rep.Sinks,
		Rows:          rep.Rows,
	}
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	if err := p.notifier.Notify(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn("run event not delivered", zap.Error(err))
	}

	if runErr != nil {
		log.Error("etl run failed", zap.Error(runErr), zap.Duration("took", rep.FinishedAt.Sub(rep.StartedAt)))
		return rep, runErr
	}
	log.Info("etl run finished", zap.Duration("took", rep.FinishedAt.Sub(rep.StartedAt)))
	return rep, nil
}

func (p *Pipeline) run(ctx context.Context, log *zap.Logger, rep *Report) error {
	var ex *Extracted
	if err := p.stage(log, stageExtract, func() error {
		var err error
		ex, err = p.Extract(ctx)
		return err
	}); err != nil {
		return err
	}
	rep.Summary = ex.Summary

	if err := p.stage(log, stageLoadRaw, func() error {
		raw := &sink.Raw{
			RunID:       rep.RunID,
			LoadedAt:    rep.StartedAt,
			Readings:    ex.Inputs.Readings,
			Agreements:  ex.Inputs.Agreements,
			Products:    ex.Inputs.Products,
			Meterpoints: ex.Inputs.Meterpoints,
		}
		for _, s := range p.sinks {
			rw, ok := s.(sink.RawWriter)
			if !ok {
				continue
			}
			if err := rw.WriteRaw(ctx, raw); err != nil {
				return fmt.Errorf("%s: %w", s.Name(), err)
			}
			p.countRows(s.Name(), raw.RowCounts())
		}
		return nil
	}); err != nil {
		return err
	}

	tables := &sink.Tables{RunID: rep.RunID, ReferenceDate: rep.ReferenceDate}
	if err := p.stage(log, stageTransform, func() error {
		t := transform.New(ex.Inputs)
		active, err := t.ActiveAgreements(rep.ReferenceDate)
		if err != nil {
			return err
		}
		tables.ActiveAgreements = active
		tables.HalfHourly = t.HalfHourlyConsumption()
		tables.DailyProduct = t.DailyProductConsumption()

		if unknown := t.UnknownMeterpoints(); len(unknown) > 0 {
			rep.UnknownMeterpoints = unknown
			log.Warn("readings reference unknown meterpoints", zap.Strings("meterpoints", unknown))
		}
		return nil
	}); err != nil {
		return err
	}
	rep.Rows = tables.RowCounts()

	if err := p.stage(log, stageLoad, func() error {
		// Warehouses keep microseconds; stamp at that precision so LoadTimer results compare equal.
		tables.LoadedAt = p.now().UTC().Truncate(time.Microsecond)
		for _, s := range p.sinks {
			if err := s.WriteTables(ctx, tables); err != nil {
				return fmt.Errorf("%s: %w", s.Name(), err)
			}
			p.countRows(s.Name(), rep.Rows)
		}
		return nil
	}); err != nil {
		return err
	}

	return p.stage(log, stageValidate, func() error {
		for _, s := range p.sinks {
			in, ok := s.(Inspector)
			if !ok {
				continue
			}
			loaded, err := in.LoadedRowCounts(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", s.Name(), err)
			}
			for _, table := range sortedKeys(rep.Rows) {
				want := int64(rep.Rows[table])
				got, ok := loaded[table]
				log.Info("loaded table",
					zap.String("sink", s.Name()),
					zap.String("table", table),
					zap.Int64("rows", got),
				)
				if !ok || got != want {
					return fmt.Errorf("%s.%s: %w: wrote %d, found %d", s.Name(), table, ErrLoadMismatch, want, got)
				}
			}
		}
		for _, s := range p.sinks {
			lt, ok := s.(LoadTimer)
			if !ok {
				continue
			}
			times, err := lt.LastLoadTimes(ctx)
			if err != nil {
				log.Warn("last load times unavailable", zap.String("sink", s.Name()), zap.Error(err))
				continue
			}
			for _, table := range sortedKeys(times) {
				at := times[table]
				if !at.Equal(tables.LoadedAt) {
					log.Warn("table not stamped by this run",
						zap.String("sink", s.Name()),
						zap.String("table", table),
						zap.Time("last_loaded_at", at),
					)
					continue
				}
				log.Info("table last loaded",
					zap.String("sink", s.Name()),
					zap.String("table", table),
					zap.Time("last_loaded_at", at),
				)
			}
		}
		return nil
	})
}

func (p *Pipeline) stage(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	took := time.Since(start)
	p.metrics.stageDuration.WithLabelValues(name).Observe(took.Seconds())
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Info("stage finished", zap.String("stage", name), zap.Duration("took", took))
	return nil
}

func (p *Pipeline) countRows(sinkName string, counts map[string]int) {
	for table, n := range counts {
		p.metrics.rowsWritten.WithLabelValues(sinkName, table).Add(float64(n))
	}
}

func (p *Pipeline) sinkNames() []string {
	names := make([]string, 0, len(p.sinks))
	for _, s := range p.sinks {
		names = append(names, s.Name())
	}
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
