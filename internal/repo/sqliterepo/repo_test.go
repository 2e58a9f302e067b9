package sqliterepo

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `
CREATE TABLE agreement (
	agreement_id INTEGER PRIMARY KEY,
	agreement_valid_from DATE NOT NULL,
	agreement_valid_to TEXT,
	product_id TEXT NOT NULL,
	meterpoint_id TEXT NOT NULL,
	account_id TEXT
);
CREATE TABLE product (
	id INTEGER PRIMARY KEY,
	product_id TEXT NOT NULL,
	display_name TEXT,
	is_variable INTEGER
);
CREATE TABLE meterpoint (
	meterpoint_id TEXT PRIMARY KEY,
	region TEXT
);
INSERT INTO agreement VALUES (1, '2020-01-01', NULL, 'P1', 'M1', 'A1');
INSERT INTO agreement VALUES (2, '2019-06-01', '2020-05-31 00:00:00', 'P2', 'M1', NULL);
INSERT INTO agreement VALUES (3, '2021-02-01', '', 'P1', 'M2', 'A2');
INSERT INTO product VALUES (10, 'P1', 'Fixed 12M', 0);
INSERT INTO product VALUES (11, 'P2', 'Agile', 1);
INSERT INTO meterpoint VALUES ('M1', 'north');
INSERT INTO meterpoint VALUES ('M2', NULL);
`

func newFixtureDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "case_study.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(fixture)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return path
}

func TestRepo_ReadsReferenceTables(t *testing.T) {
	t.Parallel()

	r, err := Open(newFixtureDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	ctx := context.Background()

	agreements, err := r.Agreements(ctx)
	require.NoError(t, err)
	require.Len(t, agreements, 3)

	byID := map[int64]int{}
	for i, a := range agreements {
		byID[a.AgreementID] = i
	}
	a1 := agreements[byID[1]]
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), a1.ValidFrom)
	assert.Nil(t, a1.ValidTo)
	assert.Equal(t, "A1", a1.AccountID)

	a2 := agreements[byID[2]]
	require.NotNil(t, a2.ValidTo)
	assert.Equal(t, time.Date(2020, 5, 31, 0, 0, 0, 0, time.UTC), *a2.ValidTo)
	assert.Empty(t, a2.AccountID)

	assert.Nil(t, agreements[byID[3]].ValidTo, "empty valid_to is open-ended")

	products, err := r.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	byProduct := map[string]bool{}
	for _, p := range products {
		byProduct[p.DisplayName] = p.IsVariable
	}
	assert.Equal(t, map[string]bool{"Fixed 12M": false, "Agile": true}, byProduct)

	meterpoints, err := r.Meterpoints(ctx)
	require.NoError(t, err)
	require.Len(t, meterpoints, 2)
}

func TestRepo_AgreementsForMeterpoint(t *testing.T) {
	t.Parallel()

	r, err := Open(newFixtureDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	history, err := r.AgreementsForMeterpoint(context.Background(), "M1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(2), history[0].AgreementID)
	assert.Equal(t, int64(1), history[1].AgreementID)
}

func TestRepo_TableCountsAndDateRange(t *testing.T) {
	t.Parallel()

	r, err := Open(newFixtureDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	ctx := context.Background()

	counts, err := r.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"agreement": 3, "meterpoint": 2, "product": 2}, counts)

	from, _, err := r.AgreementDateRange(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC), from)
}

func TestOpen_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Open(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}

func TestRepo_AgreementWithoutStartDate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "case_study.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
CREATE TABLE agreement (
	agreement_id INTEGER PRIMARY KEY,
	agreement_valid_from TEXT,
	agreement_valid_to TEXT,
	product_id TEXT NOT NULL,
	meterpoint_id TEXT NOT NULL,
	account_id TEXT
);
INSERT INTO agreement VALUES (1, NULL, '2021-12-31', 'P1', 'M1', 'A1');
INSERT INTO agreement VALUES (2, '  ', NULL, 'P1', 'M2', 'A2');
INSERT INTO agreement VALUES (3, '2020-03-01', NULL, 'P1', 'M3', 'A3');
`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	r, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	ctx := context.Background()

	agreements, err := r.Agreements(ctx)
	require.NoError(t, err, "missing start dates do not abort the load")
	require.Len(t, agreements, 3)

	day := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, a := range agreements {
		switch a.AgreementID {
		case 1, 2:
			assert.True(t, a.ValidFrom.IsZero(), "agreement %d", a.AgreementID)
			assert.False(t, a.ActiveOn(day), "agreement %d is never active", a.AgreementID)
		case 3:
			assert.True(t, a.ActiveOn(day))
		}
	}

	from, to, err := r.AgreementDateRange(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), from)
	require.NotNil(t, to)
	assert.Equal(t, time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC), *to)
}
