// Package export renders detection results as xlsx workbooks.
package export

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"seizure-detection/eeg"
)

// sheetNameLimit is the hard cap Excel places on sheet names.
const sheetNameLimit = 31

// Column headers are matched against a reference workbook in priority
// order, including a legacy variant with a trailing space that still
// appears in older annotation sheets.
var (
	startTimeKeys = []string{"Start time", "Start Time", "start time", "start time "}
	endTimeKeys   = []string{"End time", "End Time", "end time", "end time "}
)

// ColumnLabels names the two header cells of every result sheet.
type ColumnLabels struct {
	Start string
	End   string
}

// DefaultLabels returns the headers used when no reference table is
// supplied or none of its columns are recognized.
func DefaultLabels() ColumnLabels {
	return ColumnLabels{Start: startTimeKeys[0], End: endTimeKeys[0]}
}

// LabelsFromReference reads the header row of a reference workbook and
// adopts its start/end column names when both are recognized. Any
// failure falls back to DefaultLabels alongside the error, so callers
// can log and continue.
func LabelsFromReference(r io.Reader) (ColumnLabels, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return DefaultLabels(), fmt.Errorf("open reference workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return DefaultLabels(), errors.New("reference workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return DefaultLabels(), fmt.Errorf("read reference sheet: %w", err)
	}
	if len(rows) == 0 {
		return DefaultLabels(), nil
	}

	header := rows[0]
	start, okStart := findLabel(header, startTimeKeys)
	end, okEnd := findLabel(header, endTimeKeys)
	if okStart && okEnd {
		return ColumnLabels{Start: start, End: end}, nil
	}
	return DefaultLabels(), nil
}

// findLabel returns the first key present in the header. Keys are tried
// in priority order and matched exactly, trailing spaces included.
func findLabel(header []string, keys []string) (string, bool) {
	for _, key := range keys {
		for _, cell := range header {
			if cell == key {
				return key, true
			}
		}
	}
	return "", false
}

// Workbook builds the result workbook. A single recording writes into
// the default sheet; multiple recordings get one sheet each, named
// after their files.
func Workbook(results []eeg.FileResult, labels ColumnLabels) (*excelize.File, error) {
	wb := excelize.NewFile()
	defaultSheet := wb.GetSheetName(0)

	if len(results) == 1 {
		if err := writeSheet(wb, defaultSheet, results[0].Intervals, labels); err != nil {
			return nil, err
		}
		return wb, nil
	}

	used := make(map[string]bool)
	for i, res := range results {
		name := sheetName(res.Filename, i+1, used)
		if i == 0 {
			if err := wb.SetSheetName(defaultSheet, name); err != nil {
				return nil, fmt.Errorf("rename sheet for %s: %w", res.Filename, err)
			}
		} else {
			if _, err := wb.NewSheet(name); err != nil {
				return nil, fmt.Errorf("add sheet for %s: %w", res.Filename, err)
			}
		}
		if err := writeSheet(wb, name, res.Intervals, labels); err != nil {
			return nil, err
		}
	}
	return wb, nil
}

// Filename derives the download name for a result set.
func Filename(results []eeg.FileResult) string {
	if len(results) == 1 {
		return baseFilename(results[0].Filename, "predictions") + "_predictions.xlsx"
	}
	return "batch_predictions.xlsx"
}

func writeSheet(wb *excelize.File, sheet string, intervals []eeg.Interval, labels ColumnLabels) error {
	if err := wb.SetCellValue(sheet, "A1", labels.Start); err != nil {
		return fmt.Errorf("write header on %s: %w", sheet, err)
	}
	if err := wb.SetCellValue(sheet, "B1", labels.End); err != nil {
		return fmt.Errorf("write header on %s: %w", sheet, err)
	}
	for i, interval := range intervals {
		row := i + 2
		if err := wb.SetCellValue(sheet, fmt.Sprintf("A%d", row), interval.Start); err != nil {
			return fmt.Errorf("write row %d on %s: %w", row, sheet, err)
		}
		if err := wb.SetCellValue(sheet, fmt.Sprintf("B%d", row), interval.End); err != nil {
			return fmt.Errorf("write row %d on %s: %w", row, sheet, err)
		}
	}
	return nil
}

// sheetName builds a unique sheet name for the idx-th file (1-based).
// Collisions get a _N suffix, re-truncating the base so the result
// still fits the sheet name limit.
func sheetName(filename string, idx int, used map[string]bool) string {
	fallback := fmt.Sprintf("File%d", idx)
	base := sanitizeSheetBase(baseFilename(filename, fallback))

	candidate := clipSheetName(base, sheetNameLimit)
	if candidate == "" {
		candidate = fallback
	}
	suffix := 1
	for used[candidate] {
		suffixStr := fmt.Sprintf("_%d", suffix)
		trunc := sheetNameLimit - len(suffixStr)
		if trunc > 0 {
			candidate = clipSheetName(base, trunc) + suffixStr
		} else {
			candidate = fallback + suffixStr
		}
		suffix++
	}
	used[candidate] = true
	return candidate
}

// sanitizeSheetBase strips the characters Excel rejects in sheet names,
// plus apostrophes at either end.
func sanitizeSheetBase(name string) string {
	base := name
	for _, ch := range []string{"\\", "/", "?", "*", "[", "]", ":"} {
		base = strings.ReplaceAll(base, ch, "_")
	}
	return strings.Trim(base, "'")
}

// clipSheetName truncates to n runes without leaving a trailing
// apostrophe behind.
func clipSheetName(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return strings.TrimRight(string(r), "'")
}

func baseFilename(name, fallback string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if stem == "" {
		return fallback
	}
	return stem
}
