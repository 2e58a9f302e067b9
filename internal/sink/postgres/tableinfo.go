package postgres

import (
	"context"
	"fmt"
	"time"
)

// TableInfo describes one table after a load.
type TableInfo struct {
	RowCount   int64
	LastUpdate *time.Time // MAX(loaded_at); nil when the table has no loaded_at column or no rows
	Columns    []string
}

// TableInfo reports row count, last load time and columns for every table in schema.
// An empty schema means the analytics schema.
func (s *Sink) TableInfo(ctx context.Context, schema string) (map[string]TableInfo, error) {
	if schema == "" {
		schema = s.opts.AnalyticsSchema
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name, column_name
		 FROM information_schema.columns
		 WHERE table_schema = $1
		 ORDER BY table_name, ordinal_position`,
		schema,
	)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", schema, err)
	}
	info := make(map[string]TableInfo)
	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan column: %w", err)
		}
		ti := info[tableName]
		ti.Columns = append(ti.Columns, columnName)
		info[tableName] = ti
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", schema, err)
	}

	for name, ti := range info {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+qualified(schema, name)).Scan(&ti.RowCount); err != nil {
			return nil, fmt.Errorf("count %s.%s: %w", schema, name, err)
		}
		if hasColumn(ti.Columns, "loaded_at") {
			var last *time.Time
			if err := s.db.QueryRowContext(ctx, "SELECT MAX(loaded_at) FROM "+qualified(schema, name)).Scan(&last); err != nil {
				return nil, fmt.Errorf("last load of %s.%s: %w", schema, name, err)
			}
			ti.LastUpdate = last
		}
		info[name] = ti
	}
	return info, nil
}

func hasColumn(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}

// LoadedRowCounts returns the row count of every table in the analytics schema.
func (s *Sink) LoadedRowCounts(ctx context.Context) (map[string]int64, error) {
	info, err := s.TableInfo(ctx, s.opts.AnalyticsSchema)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(info))
	for name, ti := range info {
		counts[name] = ti.RowCount
	}
	return counts, nil
}

// LastLoadTimes returns MAX(loaded_at) of every non-empty analytics table.
func (s *Sink) LastLoadTimes(ctx context.Context) (map[string]time.Time, error) {
	info, err := s.TableInfo(ctx, s.opts.AnalyticsSchema)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(info))
	for name, ti := range info {
		if ti.LastUpdate != nil {
			out[name] = ti.LastUpdate.UTC()
		}
	}
	return out, nil
}
