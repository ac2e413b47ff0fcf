package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"globalsig/domain/toys"

	"github.com/xuri/excelize/v2"
)

// NullSampleFileName returns the conventional file name for a mass
func NullSampleFileName(mass int) string {
	return fmt.Sprintf("q0_%d.csv", mass)
}

// WriteNullSample writes the sample as a single q0 column, CSV or XLSX by extension
func WriteNullSample(path string, sample []float64) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return writeNullSampleExcel(path, sample)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := csv.NewWriter(file)
	rows := make([][]string, 0, len(sample)+1)
	rows = append(rows, []string{DefaultNullColumn})
	for _, v := range sample {
		rows = append(rows, []string{strconv.FormatFloat(v, 'g', -1, 64)})
	}
	if err := w.WriteAll(rows); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}

func writeNullSampleExcel(path string, sample []float64) error {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(DefaultSheet)
	if err != nil {
		return fmt.Errorf("failed to open stream writer: %w", err)
	}
	if err := sw.SetRow("A1", []interface{}{DefaultNullColumn}); err != nil {
		return err
	}
	for i, v := range sample {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, []interface{}{v}); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// WriteFailedFits writes headerless toyindex,mass lines for the failed fits
func WriteFailedFits(w io.Writer, keys []toys.ToyKey) error {
	cw := csv.NewWriter(w)
	for _, k := range keys {
		if err := cw.Write([]string{strconv.Itoa(k.ToyIndex), strconv.Itoa(k.Mass)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
