// Package influx writes the analytics tables to an InfluxDB v2 bucket as time series.
//
// Measurements:
//
//	halfhourly_consumption     time=slot start, fields meterpoint_count, total_consumption_kwh
//	daily_product_consumption  time=date, tag product, fields meterpoint_count, total_consumption_kwh
//	active_agreements          time=reference date, tags product and is_variable, field agreement_count
package influx

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/milad/meteretl/internal/sink"
	"go.uber.org/zap"
)

var _ sink.Sink = (*Sink)(nil)

const (
	measurementHalfHourly       = "halfhourly_consumption"
	measurementDailyProduct     = "daily_product_consumption"
	measurementActiveAgreements = "active_agreements"

	unknownProduct = "unknown"
	batchSize      = 5_000
)

// PointWriter is the subset of api.WriteAPIBlocking the sink uses.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Deleter is the subset of api.DeleteAPI the sink uses to clear previous loads.
type Deleter interface {
	DeleteWithName(ctx context.Context, orgName, bucketName string, start, stop time.Time, predicate string) error
}

type Options struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type Sink struct {
	writer  PointWriter
	deleter Deleter
	org     string
	bucket  string
	close   func()
	log     *zap.Logger
}

// Open creates a client and verifies the server is healthy.
func Open(ctx context.Context, opts Options, log *zap.Logger) (*Sink, error) {
	client := influxdb2.NewClient(opts.URL, opts.Token)
	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb %s: %w", opts.URL, err)
	}
	s := New(client.WriteAPIBlocking(opts.Org, opts.Bucket), log)
	s.deleter = client.DeleteAPI()
	s.org, s.bucket = opts.Org, opts.Bucket
	s.close = client.Close
	return s, nil
}

// New builds a sink over w. Without a Deleter, points from earlier runs are only
// overwritten where series and timestamps coincide.
func New(w PointWriter, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{writer: w, close: func() {}, log: log.With(zap.String("sink", "influx"))}
}

func (s *Sink) Name() string { return "influx" }

func (s *Sink) Close() error {
	s.close()
	return nil
}

func (s *Sink) WriteTables(ctx context.Context, t *sink.Tables) error {
	if s.deleter != nil {
		for _, m := range []string{measurementHalfHourly, measurementDailyProduct, measurementActiveAgreements} {
			if err := s.deleter.DeleteWithName(ctx, s.org, s.bucket,
				time.Unix(0, 0), time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC),
				`_measurement="`+m+`"`,
			); err != nil {
				return fmt.Errorf("clear %s: %w", m, err)
			}
		}
	}

	points := Points(t)
	for start := 0; start < len(points); start += batchSize {
		end := min(start+batchSize, len(points))
		if err := s.writer.WritePoint(ctx, points[start:end]...); err != nil {
			return fmt.Errorf("write points %d-%d: %w", start, end, err)
		}
	}
	s.log.Info("analytics points written", zap.String("run_id", t.RunID), zap.Int("points", len(points)))
	return nil
}

// Points converts the analytics tables into InfluxDB points.
func Points(t *sink.Tables) []*write.Point {
	points := make([]*write.Point, 0, len(t.HalfHourly)+len(t.DailyProduct))

	for _, row := range t.HalfHourly {
		points = append(points, write.NewPoint(measurementHalfHourly,
			map[string]string{},
			map[string]interface{}{
				"meterpoint_count":      row.MeterpointCount,
				"total_consumption_kwh": row.TotalConsumptionKWh,
				"run_id":                t.RunID,
			},
			row.Datetime,
		))
	}

	for _, row := range t.DailyProduct {
		points = append(points, write.NewPoint(measurementDailyProduct,
			map[string]string{"product": row.ProductDisplayName},
			map[string]interface{}{
				"meterpoint_count":      row.MeterpointCount,
				"total_consumption_kwh": row.TotalConsumptionKWh,
				"run_id":                t.RunID,
			},
			row.Date,
		))
	}

	return append(points, activeAgreementPoints(t)...)
}

type productKey struct {
	product  string
	variable string
}

func activeAgreementPoints(t *sink.Tables) []*write.Point {
	counts := make(map[productKey]int)
	for _, a := range t.ActiveAgreements {
		k := productKey{product: unknownProduct, variable: unknownProduct}
		if a.DisplayName != nil {
			k.product = *a.DisplayName
		}
		if a.IsVariable != nil {
			k.variable = strconv.FormatBool(*a.IsVariable)
		}
		counts[k]++
	}

	keys := make([]productKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].product != keys[j].product {
			return keys[i].product < keys[j].product
		}
		return keys[i].variable < keys[j].variable
	})

	out := make([]*write.Point, 0, len(keys))
	for _, k := range keys {
		out = append(out, write.NewPoint(measurementActiveAgreements,
			map[string]string{"product": k.product, "is_variable": k.variable},
			map[string]interface{}{"agreement_count": counts[k], "run_id": t.RunID},
			t.ReferenceDate,
		))
	}
	return out
}
