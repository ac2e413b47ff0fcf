package tabular

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"globalsig/domain/core"
	"globalsig/domain/toys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeXLSX(t *testing.T, path, sheet string, rows [][]interface{}) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != DefaultSheet {
		require.NoError(t, f.SetSheetName(DefaultSheet, sheet))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

const toyCSV = `index,seed,mass,q0,muhat,mu_range,uncond_status,cond_status,uncond_covQual,cond_covQual
0,11,1000,1.5,0.2,4,0,0,3,3
0,11,1100,0.0,-0.1,4,0,0,3,3
1,12,1000,nan,0.0,4,4,0,1,3
1,12,1100,2.25,0.3,4.0,0.0,0,3,3
`

func TestToyFile_CSV(t *testing.T) {
	path := writeFile(t, t.TempDir(), "toys.csv", toyCSV)

	records, err := NewToyFile(path, nil).ReadToys(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, toys.ToyRecord{
		ToyIndex: 0, Seed: 11, Mass: 1000, TestStatistic: 1.5, FittedSignalStrength: 0.2, MuRange: 4,
		UnconditionalCovQual: 3, ConditionalCovQual: 3,
	}, records[0])
	assert.Equal(t, 4, records[2].UnconditionalStatus)
	assert.True(t, records[2].FitFailed())
	assert.True(t, records[2].TestStatistic != records[2].TestStatistic, "nan cell parses to NaN")
	assert.Equal(t, 0, records[3].UnconditionalStatus)
}

func TestToyFile_Aliases(t *testing.T) {
	path := writeFile(t, t.TempDir(), "toys.csv",
		"toy_index,mass,test_statistic,fitted_signal_strength,unconditional_status,conditional_status\n"+
			"3,1200,4,1.1,0,0\n")

	records, err := NewToyFile(path, nil).ReadToys(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].ToyIndex)
	assert.Equal(t, 1200, records[0].Mass)
	assert.Equal(t, 4.0, records[0].TestStatistic)
	assert.Equal(t, 1.1, records[0].FittedSignalStrength)
}

func TestToyFile_DefaultMass(t *testing.T) {
	path := writeFile(t, t.TempDir(), "local.csv",
		"index,seed,q0,muhat,uncond_status,cond_status\n0,5,1,0.1,0,0\n")

	_, err := NewToyFile(path, nil).ReadToys(context.Background())
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	src := &ToyFile{Path: path, DefaultMass: 1000}
	records, err := src.ReadToys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000, records[0].Mass)
	assert.Equal(t, 5, records[0].Seed)
}

func TestToyFile_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"missing status column", "index,mass,q0,muhat,uncond_status\n0,1000,1,0,0\n"},
		{"bad float", "index,mass,q0,muhat,uncond_status,cond_status\n0,1000,abc,0,0,0\n"},
		{"fractional index", "index,mass,q0,muhat,uncond_status,cond_status\n0.5,1000,1,0,0,0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "toys.csv", tt.content)
			_, err := NewToyFile(path, nil).ReadToys(context.Background())
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}

	_, err := NewToyFile(filepath.Join(dir, "absent.csv"), nil).ReadToys(context.Background())
	assert.Error(t, err)

	header := writeFile(t, dir, "header.csv", "index,mass,q0,muhat,uncond_status,cond_status\n")
	_, err = NewToyFile(header, nil).ReadToys(context.Background())
	assert.Error(t, err)
}

func TestToyFile_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toys.xlsx")
	writeXLSX(t, path, DefaultSheet, [][]interface{}{
		{"index", "mass", "q0", "muhat", "uncond_status", "cond_status"},
		{0, 1000, 2.5, 0.4, 0, 0},
		{1, 1000, 0.5, -0.2, 0, 3},
	})

	records, err := NewToyFile(path, nil).ReadToys(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2.5, records[0].TestStatistic)
	assert.Equal(t, 3, records[1].ConditionalStatus)
}

func TestTableReader_FirstSheetFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "null.xlsx")
	writeXLSX(t, path, "fits", [][]interface{}{{"q0"}, {1.0}, {2.0}})

	table, err := NewTableReader(path, nil).ReadTable()
	require.NoError(t, err)
	assert.Equal(t, []string{"q0"}, table.Headers)
	assert.Len(t, table.Rows, 2)
}

func TestMassFromFileName(t *testing.T) {
	mass, err := MassFromFileName("/data/null/q0_1250.csv")
	require.NoError(t, err)
	assert.Equal(t, 1250, mass)

	mass, err = MassFromFileName("q0_900.XLSX")
	require.NoError(t, err)
	assert.Equal(t, 900, mass)

	_, err = MassFromFileName("toys_1000.csv")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestNullSampleFiles_ReadsAllMasses(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, mass := range []int{1000, 1100, 1200} {
		path := filepath.Join(dir, NullSampleFileName(mass))
		require.NoError(t, WriteNullSample(path, []float64{0, 0.5, float64(mass) / 1000}))
		paths = append(paths, path)
	}

	src := NewNullSampleFiles(paths, nil)
	src.MaxConcurrency = 2
	samples, err := src.ReadNullSamples(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, []float64{0, 0.5, 1.1}, samples[1100])
}

func TestNullSampleFiles_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewNullSampleFiles(nil, nil).ReadNullSamples(context.Background())
	assert.ErrorIs(t, err, core.ErrMissingNullDistribution)

	bad := writeFile(t, dir, "sample.csv", "q0\n1\n")
	_, err = NewNullSampleFiles([]string{bad}, nil).ReadNullSamples(context.Background())
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	csvPath := writeFile(t, dir, "q0_1000.csv", "q0\n1\n")
	xlsxPath := filepath.Join(dir, "q0_1000.xlsx")
	require.NoError(t, WriteNullSample(xlsxPath, []float64{2}))
	_, err = NewNullSampleFiles([]string{csvPath, xlsxPath}, nil).ReadNullSamples(context.Background())
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	wide := writeFile(t, dir, "q0_1300.csv", "a,b\n1,2\n")
	_, err = NewNullSampleFiles([]string{wide}, nil).ReadNullSamples(context.Background())
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestReadNullSampleFile_UnnamedColumn(t *testing.T) {
	path := writeFile(t, t.TempDir(), "q0_1000.csv", "stat\n0.1\n\n0.2\n")
	sample, err := ReadNullSampleFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, sample)
}

func TestWriteNullSample_RoundTripXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q0_1000.xlsx")
	require.NoError(t, WriteNullSample(path, []float64{0, 1.25, 3}))

	sample, err := ReadNullSampleFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1.25, 3}, sample)
}

func TestWriteFailedFits(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFailedFits(&buf, []toys.ToyKey{{ToyIndex: 2, Mass: 1700}, {ToyIndex: 5, Mass: 1000}})
	require.NoError(t, err)
	assert.Equal(t, "2,1700\n5,1000\n", buf.String())
}
