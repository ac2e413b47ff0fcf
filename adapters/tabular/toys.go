package tabular

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"globalsig/domain/core"
	"globalsig/domain/toys"
	"globalsig/ports"

	"go.uber.org/zap"
)

// Accepted header spellings, first match wins
var (
	toyIndexColumns      = []string{"toyindex", "index", "toy_index"}
	seedColumns          = []string{"seed"}
	massColumns          = []string{"mass"}
	testStatisticColumns = []string{"q0", "test_statistic"}
	signalColumns        = []string{"muhat", "fitted_signal_strength"}
	muRangeColumns       = []string{"mu_range"}
	uncondStatusColumns  = []string{"uncond_status", "unconditional_status", "status_uncond"}
	condStatusColumns    = []string{"cond_status", "conditional_status", "status_cond"}
	uncondCovQualColumns = []string{"uncond_covqual", "uncond_cov_qual"}
	condCovQualColumns   = []string{"cond_covqual", "cond_cov_qual"}
)

// ToyFile reads a toy fit table from a CSV or XLSX file
type ToyFile struct {
	Path string
	// DefaultMass is used when the table has no mass column (single-mass local tables)
	DefaultMass int
	Logger      *zap.SugaredLogger
}

var _ ports.ToySource = (*ToyFile)(nil)

// NewToyFile creates a toy source for the given path
func NewToyFile(path string, logger *zap.SugaredLogger) *ToyFile {
	return &ToyFile{Path: path, Logger: logger}
}

// ReadToys parses every data row into a ToyRecord
func (f *ToyFile) ReadToys(ctx context.Context) ([]toys.ToyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	table, err := NewTableReader(f.Path, f.Logger).ReadTable()
	if err != nil {
		return nil, err
	}
	records, err := ParseToyTable(table, f.DefaultMass)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	if f.Logger != nil {
		f.Logger.Infof("[ToyFile] Read %d toy records from %s", len(records), f.Path)
	}
	return records, nil
}

type toyColumns struct {
	index, seed, mass, q0, muhat, muRange     string
	uncond, cond, uncondCovQual, condCovQual string
}

// ParseToyTable maps table rows onto toy records.
// Index, test statistic, fitted strength and both status columns are required;
// mass is required unless defaultMass is positive.
func ParseToyTable(table *Table, defaultMass int) ([]toys.ToyRecord, error) {
	var cols toyColumns
	required := []struct {
		dst     *string
		aliases []string
	}{
		{&cols.index, toyIndexColumns},
		{&cols.q0, testStatisticColumns},
		{&cols.muhat, signalColumns},
		{&cols.uncond, uncondStatusColumns},
		{&cols.cond, condStatusColumns},
	}
	for _, c := range required {
		name, ok := table.resolveColumn(c.aliases...)
		if !ok {
			return nil, fmt.Errorf("%w: missing column %s", core.ErrInvalidInput, c.aliases[0])
		}
		*c.dst = name
	}
	var ok bool
	if cols.mass, ok = table.resolveColumn(massColumns...); !ok && defaultMass <= 0 {
		return nil, fmt.Errorf("%w: missing column mass", core.ErrInvalidInput)
	}
	cols.seed, _ = table.resolveColumn(seedColumns...)
	cols.muRange, _ = table.resolveColumn(muRangeColumns...)
	cols.uncondCovQual, _ = table.resolveColumn(uncondCovQualColumns...)
	cols.condCovQual, _ = table.resolveColumn(condCovQualColumns...)

	records := make([]toys.ToyRecord, 0, len(table.Rows))
	for i, row := range table.Rows {
		rec, err := parseToyRow(row, cols, defaultMass)
		if err != nil {
			// +2: header row and 1-based numbering
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseToyRow(row RawRowData, cols toyColumns, defaultMass int) (toys.ToyRecord, error) {
	var (
		rec toys.ToyRecord
		err error
	)
	if rec.ToyIndex, err = parseInt(row, cols.index); err != nil {
		return rec, err
	}
	if rec.TestStatistic, err = parseFloat(row, cols.q0); err != nil {
		return rec, err
	}
	if rec.FittedSignalStrength, err = parseFloat(row, cols.muhat); err != nil {
		return rec, err
	}
	if rec.UnconditionalStatus, err = parseInt(row, cols.uncond); err != nil {
		return rec, err
	}
	if rec.ConditionalStatus, err = parseInt(row, cols.cond); err != nil {
		return rec, err
	}

	rec.Mass = defaultMass
	if cols.mass != "" {
		if rec.Mass, err = parseInt(row, cols.mass); err != nil {
			return rec, err
		}
	}
	if cols.seed != "" {
		if rec.Seed, err = parseInt(row, cols.seed); err != nil {
			return rec, err
		}
	}
	if cols.muRange != "" {
		if rec.MuRange, err = parseFloat(row, cols.muRange); err != nil {
			return rec, err
		}
	}
	if cols.uncondCovQual != "" {
		if rec.UnconditionalCovQual, err = parseInt(row, cols.uncondCovQual); err != nil {
			return rec, err
		}
	}
	if cols.condCovQual != "" {
		if rec.ConditionalCovQual, err = parseInt(row, cols.condCovQual); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// parseFloat accepts any float spelling including nan
func parseFloat(row RawRowData, col string) (float64, error) {
	v, err := strconv.ParseFloat(row[col], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: column %s: %q is not a number", core.ErrInvalidInput, col, row[col])
	}
	return v, nil
}

// parseInt accepts integral floats such as "1000.0" written by dataframe exports
func parseInt(row RawRowData, col string) (int, error) {
	s := row[col]
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: column %s: %q is not an integer", core.ErrInvalidInput, col, s)
	}
	return int(f), nil
}
