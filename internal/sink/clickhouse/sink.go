// Package clickhouse stores the analytics tables in ClickHouse MergeTree tables.
//
// ClickHouse has no multi-table transactions, so a write truncates and reloads each
// table in turn. A failed run can leave some tables from the previous load.
package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/milad/meteretl/internal/sink"
	"go.uber.org/zap"
)

var _ sink.Sink = (*Sink)(nil)

type Options struct {
	Addr     string
	Database string
	Username string
	Password string
}

type Sink struct {
	conn     driver.Conn
	database string
	log      *zap.Logger
}

// Open connects and pings the server.
func Open(ctx context.Context, opts Options) (driver.Conn, error) {
	conn, err := ch.Open(&ch.Options{
		Addr: []string{opts.Addr},
		Auth: ch.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse %s: %w", opts.Addr, err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse %s: %w", opts.Addr, err)
	}
	return conn, nil
}

func New(conn driver.Conn, database string, log *zap.Logger) *Sink {
	if database == "" {
		database = "default"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{conn: conn, database: database, log: log.With(zap.String("sink", "clickhouse"))}
}

func (s *Sink) Name() string { return "clickhouse" }

func (s *Sink) Close() error {
	return s.conn.Close()
}

func (s *Sink) WriteTables(ctx context.Context, t *sink.Tables) error {
	runID, err := uuid.Parse(t.RunID)
	if err != nil {
		return fmt.Errorf("run id %q: %w", t.RunID, err)
	}
	if err := s.conn.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+quote(s.database)); err != nil {
		return fmt.Errorf("create database %s: %w", s.database, err)
	}

	if err := s.replace(ctx, activeAgreementsDDL, sink.TableActiveAgreements, len(t.ActiveAgreements), func(b driver.Batch, i int) error {
		x := t.ActiveAgreements[i]
		return b.Append(x.AgreementID, x.MeterpointID, x.DisplayName, x.IsVariable, t.ReferenceDate, runID, t.LoadedAt)
	}); err != nil {
		return err
	}
	if err := s.replace(ctx, halfHourlyDDL, sink.TableHalfHourlyConsumption, len(t.HalfHourly), func(b driver.Batch, i int) error {
		x := t.HalfHourly[i]
		return b.Append(x.Datetime, uint32(x.MeterpointCount), x.TotalConsumptionKWh, runID, t.LoadedAt)
	}); err != nil {
		return err
	}
	if err := s.replace(ctx, dailyProductDDL, sink.TableDailyProductConsumption, len(t.DailyProduct), func(b driver.Batch, i int) error {
		x := t.DailyProduct[i]
		return b.Append(x.ProductDisplayName, x.Date, uint32(x.MeterpointCount), x.TotalConsumptionKWh, runID, t.LoadedAt)
	}); err != nil {
		return err
	}

	s.log.Info("analytics tables written",
		zap.String("database", s.database),
		zap.String("run_id", t.RunID),
		zap.Int(sink.TableActiveAgreements, len(t.ActiveAgreements)),
		zap.Int(sink.TableHalfHourlyConsumption, len(t.HalfHourly)),
		zap.Int(sink.TableDailyProductConsumption, len(t.DailyProduct)),
	)
	return nil
}

func (s *Sink) replace(ctx context.Context, ddl, table string, n int, appendRow func(b driver.Batch, i int) error) error {
	name := quote(s.database) + "." + quote(table)
	if err := s.conn.Exec(ctx, fmt.Sprintf(ddl, name)); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if err := s.conn.Exec(ctx, "TRUNCATE TABLE "+name); err != nil {
		return fmt.Errorf("truncate %s: %w", name, err)
	}
	if n == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+name)
	if err != nil {
		return fmt.Errorf("prepare %s: %w", name, err)
	}
	for i := 0; i < n; i++ {
		if err := appendRow(batch, i); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append %s row %d: %w", name, i, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	return nil
}

func quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "\\`") + "`"
}

// DDL templates; %s is the qualified table name.
const (
	activeAgreementsDDL = `CREATE TABLE IF NOT EXISTS %s (
	agreement_id Int64,
	meterpoint_id String,
	display_name Nullable(String),
	is_variable Nullable(Bool),
	reference_date Date,
	run_id UUID,
	loaded_at DateTime64(3, 'UTC')
) ENGINE = MergeTree ORDER BY agreement_id`

	halfHourlyDDL = `CREATE TABLE IF NOT EXISTS %s (
	datetime DateTime64(3, 'UTC'),
	meterpoint_count UInt32,
	total_consumption_kwh Float64,
	run_id UUID,
	loaded_at DateTime64(3, 'UTC')
) ENGINE = MergeTree ORDER BY datetime`

	dailyProductDDL = `CREATE TABLE IF NOT EXISTS %s (
	product_display_name String,
	date Date,
	meterpoint_count UInt32,
	total_consumption_kwh Float64,
	run_id UUID,
	loaded_at DateTime64(3, 'UTC')
) ENGINE = MergeTree ORDER BY (date, product_display_name)`
)
