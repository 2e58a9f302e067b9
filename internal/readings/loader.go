package readings

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// LoadDir reads every *.json file in dir, in filename order, and normalizes them.
// Files that cannot be opened or decoded are skipped like invalid batches.
func LoadDir(dir string, opts Options) (Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Result{}, fmt.Errorf("readings dir %q: %w", dir, err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("readings dir %q: not a directory", dir)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return Result{}, fmt.Errorf("glob %q: %w", dir, err)
	}
	sort.Strings(paths)

	log := opts.logger()
	log.Info("processing reading files", zap.String("dir", dir), zap.Int("files", len(paths)))

	var (
		batches    []Batch
		unreadable []SkippedBatch
	)
	for _, p := range paths {
		b, err := decodeFile(p)
		if err != nil {
			log.Warn("skipping unreadable reading file", zap.String("source", p), zap.Error(err))
			unreadable = append(unreadable, SkippedBatch{Source: p, Err: err})
			continue
		}
		batches = append(batches, b)
	}

	res, err := Normalize(batches, opts)
	res.Skipped = append(unreadable, res.Skipped...)
	if err != nil {
		if len(unreadable) > 0 {
			return res, fmt.Errorf("readings dir %q: %w (%d unreadable files)", dir, err, len(unreadable))
		}
		return res, fmt.Errorf("readings dir %q: %w", dir, err)
	}

	log.Info("processed reading files",
		zap.Int("valid", res.Batches),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("readings", len(res.Readings)),
	)
	return res, nil
}

func decodeFile(path string) (Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return Batch{}, err
	}
	defer f.Close()
	return DecodeBatch(f, path)
}
