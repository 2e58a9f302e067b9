package readings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadDir_SkipsAndWarns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "01.json", `{"columns":["interval_start","consumption_delta","meterpoint_id"],"data":[["2021-01-01T00:00:00",1.5,"M1"]]}`)
	writeFile(t, dir, "02.json", `{"columns":["interval_start","consumption_delta","meterpoint_id"],"data":[["2021-01-01T00:00:00",2.5,"M2"]]}`)
	writeFile(t, dir, "03.json", `{broken`)
	writeFile(t, dir, "04.json", `{"columns":["ts","value","id"],"data":[]}`)
	writeFile(t, dir, "notes.txt", `ignored`)

	core, logs := observer.New(zapcore.WarnLevel)
	res, err := LoadDir(dir, Options{Logger: zap.New(core)})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Batches)
	assert.Len(t, res.Readings, 2)
	assert.Len(t, res.Skipped, 2)
	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, "M1", res.Readings[0].MeterpointID, "files are read in name order")
}

func TestLoadDir_AllInvalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.json", `[]`)

	_, err := LoadDir(dir, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoValidInput))
}

func TestLoadDir_EmptyDir(t *testing.T) {
	t.Parallel()

	_, err := LoadDir(t.TempDir(), Options{})
	assert.ErrorIs(t, err, ErrNoValidInput)
}

func TestLoadDir_MissingDir(t *testing.T) {
	t.Parallel()

	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
