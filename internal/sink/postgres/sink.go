// Package postgres stores raw inputs and analytics tables in PostgreSQL.
//
// Each write runs in one transaction: ensure tables, TRUNCATE, then COPY the new rows.
// Readers see either the previous run's tables or the new ones, never a mix.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/milad/meteretl/internal/domain"
	"github.com/milad/meteretl/internal/sink"
	"go.uber.org/zap"
)

var (
	_ sink.Sink      = (*Sink)(nil)
	_ sink.RawWriter = (*Sink)(nil)
)

type Options struct {
	RawSchema       string
	AnalyticsSchema string
}

type Sink struct {
	db   *sql.DB
	opts Options
	log  *zap.Logger
}

// Open connects to dsn and configures the connection pool.
func Open(dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 4
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func New(db *sql.DB, opts Options, log *zap.Logger) *Sink {
	if opts.RawSchema == "" {
		opts.RawSchema = "raw_data"
	}
	if opts.AnalyticsSchema == "" {
		opts.AnalyticsSchema = "analytics"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{db: db, opts: opts, log: log.With(zap.String("sink", "postgres"))}
}

func (s *Sink) Name() string { return "postgres" }

func (s *Sink) Close() error {
	return s.db.Close()
}

func (s *Sink) EnsureSchemas(ctx context.Context) error {
	for _, schema := range []string{s.opts.RawSchema, s.opts.AnalyticsSchema} {
		if _, err := s.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(schema)); err != nil {
			return fmt.Errorf("create schema %s: %w", schema, err)
		}
	}
	return nil
}

func (s *Sink) WriteRaw(ctx context.Context, r *sink.Raw) error {
	if err := s.EnsureSchemas(ctx); err != nil {
		return err
	}
	schema := s.opts.RawSchema
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := replace(ctx, tx, schema, rawReadingsTable, len(r.Readings), func(i int) []any {
			x := r.Readings[i]
			return []any{x.IntervalStart, x.ConsumptionDelta, x.MeterpointID, r.RunID, r.LoadedAt}
		}); err != nil {
			return err
		}
		if err := replace(ctx, tx, schema, rawAgreementsTable, len(r.Agreements), func(i int) []any {
			x := r.Agreements[i]
			return []any{
				x.AgreementID, x.MeterpointID, x.ProductID, nullIfEmpty(x.AccountID),
				nullZeroDate(x.ValidFrom), nullDate(x.ValidTo), r.RunID, r.LoadedAt,
			}
		}); err != nil {
			return err
		}
		if err := replace(ctx, tx, schema, rawProductsTable, len(r.Products), func(i int) []any {
			x := r.Products[i]
			return []any{x.ProductID, nullIfEmpty(x.DisplayName), x.IsVariable, r.RunID, r.LoadedAt}
		}); err != nil {
			return err
		}
		return replace(ctx, tx, schema, rawMeterpointsTable, len(r.Meterpoints), func(i int) []any {
			x := r.Meterpoints[i]
			return []any{x.MeterpointID, nullIfEmpty(x.Region), r.RunID, r.LoadedAt}
		})
	})
}

func (s *Sink) WriteTables(ctx context.Context, t *sink.Tables) error {
	if err := s.EnsureSchemas(ctx); err != nil {
		return err
	}
	schema := s.opts.AnalyticsSchema
	refDate := domain.FormatDate(t.ReferenceDate)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := replace(ctx, tx, schema, activeAgreementsTable, len(t.ActiveAgreements), func(i int) []any {
			x := t.ActiveAgreements[i]
			return []any{x.AgreementID, x.MeterpointID, nullString(x.DisplayName), nullBool(x.IsVariable), refDate, t.RunID, t.LoadedAt}
		}); err != nil {
			return err
		}
		if err := replace(ctx, tx, schema, halfHourlyTable, len(t.HalfHourly), func(i int) []any {
			x := t.HalfHourly[i]
			return []any{x.Datetime, x.MeterpointCount, x.TotalConsumptionKWh, t.RunID, t.LoadedAt}
		}); err != nil {
			return err
		}
		if err := replace(ctx, tx, schema, dailyProductTable, len(t.DailyProduct), func(i int) []any {
			x := t.DailyProduct[i]
			return []any{x.ProductDisplayName, domain.FormatDate(x.Date), x.MeterpointCount, x.TotalConsumptionKWh, t.RunID, t.LoadedAt}
		}); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, runsTable.createSQL(schema)); err != nil {
			return fmt.Errorf("create %s: %w", runsTable.name, err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO `+qualified(schema, runsTable.name)+`
			 (run_id, reference_date, loaded_at, active_agreements_rows, halfhourly_rows, daily_product_rows)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			t.RunID, refDate, t.LoadedAt, len(t.ActiveAgreements), len(t.HalfHourly), len(t.DailyProduct),
		)
		if err != nil {
			return fmt.Errorf("record run %s: %w", t.RunID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("analytics tables written",
		zap.String("schema", schema),
		zap.String("run_id", t.RunID),
		zap.Int(sink.TableActiveAgreements, len(t.ActiveAgreements)),
		zap.Int(sink.TableHalfHourlyConsumption, len(t.HalfHourly)),
		zap.Int(sink.TableDailyProductConsumption, len(t.DailyProduct)),
	)
	return nil
}

func (s *Sink) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// replace creates t if needed, empties it and bulk loads n rows through COPY.
func replace(ctx context.Context, tx *sql.Tx, schema string, t table, n int, row func(i int) []any) error {
	if _, err := tx.ExecContext(ctx, t.createSQL(schema)); err != nil {
		return fmt.Errorf("create %s.%s: %w", schema, t.name, err)
	}
	if _, err := tx.ExecContext(ctx, "TRUNCATE TABLE "+qualified(schema, t.name)); err != nil {
		return fmt.Errorf("truncate %s.%s: %w", schema, t.name, err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema(schema, t.name, t.columnNames()...))
	if err != nil {
		return fmt.Errorf("copy %s.%s: %w", schema, t.name, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return fmt.Errorf("copy %s.%s row %d: %w", schema, t.name, i, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flush %s.%s: %w", schema, t.name, err)
	}
	return nil
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullDate(p *time.Time) any {
	if p == nil {
		return nil
	}
	return domain.FormatDate(*p)
}

func nullZeroDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return domain.FormatDate(t)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
