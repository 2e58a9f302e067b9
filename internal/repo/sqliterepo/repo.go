// Package sqliterepo reads the reference tables (agreement, product, meterpoint)
// from the SQLite source database.
//
// Expected source schema:
//
//	agreement(agreement_id, agreement_valid_from, agreement_valid_to, product_id, meterpoint_id, account_id)
//	product(id, product_id, display_name, is_variable)
//	meterpoint(meterpoint_id, region)
//
// Date columns may hold ISO dates or timestamps; they are normalized to calendar dates.
package sqliterepo

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/milad/meteretl/internal/domain"
	"github.com/milad/meteretl/internal/repo"

	_ "github.com/mattn/go-sqlite3"
)

var _ repo.ReferenceRepository = (*Repo)(nil)

const agreementColumns = `agreement_id, meterpoint_id, product_id, account_id, agreement_valid_from, agreement_valid_to`

// Repo is a read-only view over the source database.
type Repo struct {
	db *sql.DB
}

// Open opens the database file at path read-only. The file must exist.
func Open(path string) (*Repo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("source database %q: %w", path, err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open source database %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping source database %q: %w", path, err)
	}
	return &Repo{db: db}, nil
}

// New wraps an already opened database. The caller keeps ownership of db.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Close() error {
	return r.db.Close()
}

func (r *Repo) Agreements(ctx context.Context) ([]domain.Agreement, error) {
	return r.queryAgreements(ctx, `SELECT `+agreementColumns+` FROM agreement`)
}

func (r *Repo) AgreementsForMeterpoint(ctx context.Context, meterpointID string) ([]domain.Agreement, error) {
	return r.queryAgreements(ctx,
		`SELECT `+agreementColumns+` FROM agreement WHERE meterpoint_id = ? ORDER BY agreement_valid_from`,
		meterpointID,
	)
}

func (r *Repo) queryAgreements(ctx context.Context, query string, args ...any) ([]domain.Agreement, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agreements: %w", err)
	}
	defer rows.Close()

	var out []domain.Agreement
	for rows.Next() {
		var (
			a         domain.Agreement
			accountID sql.NullString
			validFrom sql.NullString
			validTo   sql.NullString
		)
		if err := rows.Scan(&a.AgreementID, &a.MeterpointID, &a.ProductID, &accountID, &validFrom, &validTo); err != nil {
			return nil, fmt.Errorf("scan agreement: %w", err)
		}
		a.AccountID = accountID.String
		if validFrom.Valid && strings.TrimSpace(validFrom.String) != "" {
			if a.ValidFrom, err = domain.ParseDate(validFrom.String); err != nil {
				return nil, fmt.Errorf("agreement %d: valid_from: %w", a.AgreementID, err)
			}
		}
		if validTo.Valid && strings.TrimSpace(validTo.String) != "" {
			to, err := domain.ParseDate(validTo.String)
			if err != nil {
				return nil, fmt.Errorf("agreement %d: valid_to: %w", a.AgreementID, err)
			}
			a.ValidTo = &to
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agreements: %w", err)
	}
	return out, nil
}

func (r *Repo) Products(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT product_id, display_name, is_variable FROM product`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var (
			p          domain.Product
			name       sql.NullString
			isVariable sql.NullBool
		)
		if err := rows.Scan(&p.ProductID, &name, &isVariable); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.DisplayName = name.String
		p.IsVariable = isVariable.Bool
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

func (r *Repo) Meterpoints(ctx context.Context) ([]domain.Meterpoint, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT meterpoint_id, region FROM meterpoint`)
	if err != nil {
		return nil, fmt.Errorf("query meterpoints: %w", err)
	}
	defer rows.Close()

	var out []domain.Meterpoint
	for rows.Next() {
		var (
			m      domain.Meterpoint
			region sql.NullString
		)
		if err := rows.Scan(&m.MeterpointID, &region); err != nil {
			return nil, fmt.Errorf("scan meterpoint: %w", err)
		}
		m.Region = region.String
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meterpoints: %w", err)
	}
	return out, nil
}

// TableCounts returns the row count of every table in the source database.
func (r *Repo) TableCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	counts := make(map[string]int64, len(names))
	for _, name := range names {
		var n int64
		q := `SELECT COUNT(*) FROM "` + strings.ReplaceAll(name, `"`, `""`) + `"`
		if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		counts[name] = n
	}
	return counts, nil
}

// AgreementDateRange returns the earliest valid_from and latest valid_to in the agreement table.
// Missing dates are ignored. to is nil when no agreement has an end date.
func (r *Repo) AgreementDateRange(ctx context.Context) (from time.Time, to *time.Time, err error) {
	var minFrom, maxTo sql.NullString
	err = r.db.QueryRowContext(ctx,
		`SELECT MIN(NULLIF(TRIM(agreement_valid_from), '')), MAX(NULLIF(TRIM(agreement_valid_to), '')) FROM agreement`,
	).Scan(&minFrom, &maxTo)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("agreement date range: %w", err)
	}
	if minFrom.Valid {
		if from, err = domain.ParseDate(minFrom.String); err != nil {
			return time.Time{}, nil, err
		}
	}
	if maxTo.Valid && strings.TrimSpace(maxTo.String) != "" {
		t, err := domain.ParseDate(maxTo.String)
		if err != nil {
			return time.Time{}, nil, err
		}
		to = &t
	}
	return from, to, nil
}
