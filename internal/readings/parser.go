package readings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/milad/meteretl/internal/domain"
	"go.uber.org/zap"
)

const (
	colIntervalStart    = "interval_start"
	colConsumptionDelta = "consumption_delta"
	colMeterpointID     = "meterpoint_id"
)

// ErrNoValidInput is returned when not a single batch survived validation.
var ErrNoValidInput = errors.New("no valid reading input")

// Readings must fall in [minTimestamp, maxTimestamp).
var (
	minTimestamp = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	maxTimestamp = time.Date(2201, 1, 1, 0, 0, 0, 0, time.UTC)
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Batch is one raw reading file: a column list and positional rows.
type Batch struct {
	Source  string
	Columns []string
	Data    [][]json.RawMessage
}

// SkippedBatch records why a batch was rejected.
type SkippedBatch struct {
	Source string
	Err    error
}

// Result is the unified reading table built from all valid batches.
type Result struct {
	Readings []domain.Reading
	Batches  int
	Skipped  []SkippedBatch
}

type Options struct {
	// Sort orders readings by (meterpoint_id, interval_start). Presentation only.
	Sort   bool
	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// DecodeBatch decodes a `{"columns": [...], "data": [[...], ...]}` document.
// Extra keys (for example a pandas "index") are ignored.
func DecodeBatch(r io.Reader, source string) (Batch, error) {
	var doc struct {
		Columns []string            `json:"columns"`
		Data    [][]json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Batch{}, fmt.Errorf("decode %s: %w", source, err)
	}
	if doc.Columns == nil || doc.Data == nil {
		return Batch{}, fmt.Errorf("decode %s: missing columns or data", source)
	}
	return Batch{Source: source, Columns: doc.Columns, Data: doc.Data}, nil
}

// Normalize validates every batch, skips the invalid ones with a warning and
// concatenates the rest into one table. If nothing is valid, the returned error
// wraps ErrNoValidInput together with every per-batch cause.
func Normalize(batches []Batch, opts Options) (Result, error) {
	log := opts.logger()

	var res Result
	for _, b := range batches {
		rs, err := parseBatch(b)
		if err != nil {
			log.Warn("skipping invalid reading batch", zap.String("source", b.Source), zap.Error(err))
			res.Skipped = append(res.Skipped, SkippedBatch{Source: b.Source, Err: err})
			continue
		}
		res.Readings = append(res.Readings, rs...)
		res.Batches++
	}

	if res.Batches == 0 {
		causes := []error{ErrNoValidInput}
		for _, s := range res.Skipped {
			causes = append(causes, fmt.Errorf("%s: %w", s.Source, s.Err))
		}
		return res, errors.Join(causes...)
	}

	if res.Readings == nil {
		res.Readings = []domain.Reading{}
	}
	if opts.Sort {
		SortByMeterpoint(res.Readings)
	}
	return res, nil
}

// SortByMeterpoint orders readings by meterpoint id, then interval start.
func SortByMeterpoint(rs []domain.Reading) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].MeterpointID != rs[j].MeterpointID {
			return rs[i].MeterpointID < rs[j].MeterpointID
		}
		return rs[i].IntervalStart.Before(rs[j].IntervalStart)
	})
}

func parseBatch(b Batch) ([]domain.Reading, error) {
	idx, err := columnIndex(b.Columns)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Reading, 0, len(b.Data))
	for i, row := range b.Data {
		rowNum := i + 1
		if len(row) != len(b.Columns) {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", rowNum, len(b.Columns), len(row))
		}
		ts, err := parseTimestamp(row[idx[colIntervalStart]])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse %s: %w", rowNum, colIntervalStart, err)
		}
		delta, err := parseConsumption(row[idx[colConsumptionDelta]])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse %s: %w", rowNum, colConsumptionDelta, err)
		}
		mp, err := parseMeterpointID(row[idx[colMeterpointID]])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse %s: %w", rowNum, colMeterpointID, err)
		}
		out = append(out, domain.Reading{
			MeterpointID:     mp,
			IntervalStart:    ts,
			ConsumptionDelta: delta,
		})
	}
	return out, nil
}

// columnIndex requires the column set to be exactly the three reading columns.
func columnIndex(cols []string) (map[string]int, error) {
	want := []string{colIntervalStart, colConsumptionDelta, colMeterpointID}
	if len(cols) != len(want) {
		return nil, fmt.Errorf("unexpected columns %q (want %q)", strings.Join(cols, ","), strings.Join(want, ","))
	}
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, dup := idx[c]; dup {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		idx[c] = i
	}
	for _, c := range want {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("unexpected columns %q (want %q)", strings.Join(cols, ","), strings.Join(want, ","))
		}
	}
	return idx, nil
}

func decodeCell(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// parseTimestamp accepts ISO strings (naive values are UTC) or epoch milliseconds.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	v, err := decodeCell(raw)
	if err != nil {
		return time.Time{}, err
	}
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return checkTimestampRange(t)
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", x)
	case json.Number:
		ms, err := x.Float64()
		if err != nil {
			return time.Time{}, err
		}
		if math.IsNaN(ms) || ms < float64(minTimestamp.UnixMilli()) || ms >= float64(maxTimestamp.UnixMilli()) {
			return time.Time{}, fmt.Errorf("epoch milliseconds %s out of range", x.String())
		}
		return time.UnixMilli(int64(ms)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected value %s", string(raw))
	}
}

func checkTimestampRange(t time.Time) (time.Time, error) {
	if t.Before(minTimestamp) || !t.Before(maxTimestamp) {
		return time.Time{}, fmt.Errorf("timestamp %s outside %d-%d", t.Format(time.RFC3339), minTimestamp.Year(), maxTimestamp.Year()-1)
	}
	return t, nil
}

func parseConsumption(raw json.RawMessage) (float64, error) {
	v, err := decodeCell(raw)
	if err != nil {
		return 0, err
	}
	var f float64
	switch x := v.(type) {
	case json.Number:
		f, err = x.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("unexpected value %s", string(raw))
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid consumption %v", f)
	}
	return f, nil
}

func parseMeterpointID(raw json.RawMessage) (string, error) {
	v, err := decodeCell(raw)
	if err != nil {
		return "", err
	}
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return "", errors.New("empty meterpoint id")
		}
		return x, nil
	case json.Number:
		return x.String(), nil
	default:
		return "", fmt.Errorf("unexpected value %s", string(raw))
	}
}
