package tabular

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"globalsig/domain/core"
	"globalsig/ports"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// DefaultNullColumn is the column holding null-hypothesis test statistics
const DefaultNullColumn = "q0"

// nullFilePattern extracts the mass hypothesis from names like q0_1000.csv
var nullFilePattern = regexp.MustCompile(`^q0_(\d+)\.(?i:csv|xlsx)$`)

// MassFromFileName parses the mass out of a null-sample file name
func MassFromFileName(path string) (int, error) {
	m := nullFilePattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, fmt.Errorf("%w: %s does not match q0_<mass>.csv", core.ErrInvalidInput, path)
	}
	return strconv.Atoi(m[1])
}

// NullSampleFiles loads one null sample per q0_<mass> file
type NullSampleFiles struct {
	Paths []string
	// MaxConcurrency bounds parallel file reads; zero means one goroutine per file
	MaxConcurrency int
	Logger         *zap.SugaredLogger
}

var _ ports.NullSampleSource = (*NullSampleFiles)(nil)

// NewNullSampleFiles creates a null-sample source over the given files
func NewNullSampleFiles(paths []string, logger *zap.SugaredLogger) *NullSampleFiles {
	return &NullSampleFiles{Paths: paths, Logger: logger}
}

type massSample struct {
	mass   int
	path   string
	sample []float64
}

// ReadNullSamples reads every file concurrently and keys the samples by mass
func (n *NullSampleFiles) ReadNullSamples(ctx context.Context) (map[int][]float64, error) {
	if len(n.Paths) == 0 {
		return nil, fmt.Errorf("%w: no null-sample files given", core.ErrMissingNullDistribution)
	}

	p := pool.NewWithResults[massSample]().WithContext(ctx).WithCancelOnError().WithFirstError()
	if n.MaxConcurrency > 0 {
		p = p.WithMaxGoroutines(n.MaxConcurrency)
	}
	for _, path := range n.Paths {
		path := path
		p.Go(func(ctx context.Context) (massSample, error) {
			if err := ctx.Err(); err != nil {
				return massSample{}, err
			}
			mass, err := MassFromFileName(path)
			if err != nil {
				return massSample{}, err
			}
			sample, err := ReadNullSampleFile(path, n.Logger)
			if err != nil {
				return massSample{}, err
			}
			return massSample{mass: mass, path: path, sample: sample}, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}

	out := make(map[int][]float64, len(results))
	seen := make(map[int]string, len(results))
	for _, r := range results {
		if prev, dup := seen[r.mass]; dup {
			return nil, fmt.Errorf("%w: mass %d provided by both %s and %s",
				core.ErrInvalidInput, r.mass, prev, r.path)
		}
		seen[r.mass] = r.path
		out[r.mass] = r.sample
	}
	if n.Logger != nil {
		n.Logger.Infof("[NullSamples] Loaded %d null distributions", len(out))
	}
	return out, nil
}

// ReadNullSampleFile reads the q0 column of one file, or its only column when unnamed
func ReadNullSampleFile(path string, logger *zap.SugaredLogger) ([]float64, error) {
	table, err := NewTableReader(path, logger).ReadTable()
	if err != nil {
		return nil, err
	}

	col := DefaultNullColumn
	if !table.HasColumn(col) {
		if len(table.Headers) != 1 {
			return nil, fmt.Errorf("%w: %s has no %s column", core.ErrInvalidInput, path, DefaultNullColumn)
		}
		col = table.Headers[0]
	}

	sample := make([]float64, 0, len(table.Rows))
	for i, row := range table.Rows {
		if row[col] == "" {
			continue
		}
		v, err := parseFloat(row, col)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		sample = append(sample, v)
	}
	if len(sample) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrEmptySample, path)
	}
	return sample, nil
}
