package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"seizure-detection/eeg"
)

func TestWorkbookSingleFile(t *testing.T) {
	t.Parallel()

	results := []eeg.FileResult{
		{
			Filename: "chb01_03.edf",
			Intervals: []eeg.Interval{
				{Start: "2.00", End: "6.00"},
				{Start: "8.00", End: "10.00"},
			},
		},
	}

	wb, err := Workbook(results, DefaultLabels())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) != 1 || sheets[0] != "Sheet1" {
		t.Fatalf("expected single default sheet, got %v", sheets)
	}

	rows, err := wb.GetRows("Sheet1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]string{
		{"Start time", "End time"},
		{"2.00", "6.00"},
		{"8.00", "10.00"},
	}
	assertRows(t, want, rows)
}

func TestWorkbookMultipleFiles(t *testing.T) {
	t.Parallel()

	results := []eeg.FileResult{
		{
			Filename:  "chb01_03.edf",
			Intervals: []eeg.Interval{{Start: "2.00", End: "6.00"}},
		},
		{
			Filename:  "chb01_04.edf",
			Intervals: nil,
		},
		{
			Filename:  "chb02_16.edf",
			Intervals: []eeg.Interval{{Start: "0.00", End: "4.00"}},
		},
	}

	wb, err := Workbook(results, DefaultLabels())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	wantSheets := []string{"chb01_03", "chb01_04", "chb02_16"}
	if len(sheets) != len(wantSheets) {
		t.Fatalf("expected %d sheets, got %v", len(wantSheets), sheets)
	}
	for i, want := range wantSheets {
		if sheets[i] != want {
			t.Fatalf("expected sheet %d to be %q, got %q", i, want, sheets[i])
		}
	}

	rows, err := wb.GetRows("chb01_03")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertRows(t, [][]string{{"Start time", "End time"}, {"2.00", "6.00"}}, rows)

	// A file with no detections still gets a sheet with just the header.
	rows, err = wb.GetRows("chb01_04")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertRows(t, [][]string{{"Start time", "End time"}}, rows)
}

func TestWorkbookCustomLabels(t *testing.T) {
	t.Parallel()

	results := []eeg.FileResult{
		{Filename: "a.edf", Intervals: []eeg.Interval{{Start: "1.00", End: "2.00"}}},
	}

	wb, err := Workbook(results, ColumnLabels{Start: "start time ", End: "End Time"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer wb.Close()

	rows, err := wb.GetRows("Sheet1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertRows(t, [][]string{{"start time ", "End Time"}, {"1.00", "2.00"}}, rows)
}

func TestWorkbookDuplicateFilenames(t *testing.T) {
	t.Parallel()

	results := []eeg.FileResult{
		{Filename: "session.edf"},
		{Filename: "session.edf"},
		{Filename: "session.edf"},
	}

	wb, err := Workbook(results, DefaultLabels())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	wantSheets := []string{"session", "session_1", "session_2"}
	for i, want := range wantSheets {
		if sheets[i] != want {
			t.Fatalf("expected sheet %d to be %q, got %q", i, want, sheets[i])
		}
	}
}

func TestWorkbookSanitizesSheetNames(t *testing.T) {
	t.Parallel()

	results := []eeg.FileResult{
		{Filename: "b\\c[d]e:f*g?.edf"},
		{Filename: "normal.edf"},
	}

	wb, err := Workbook(results, DefaultLabels())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if sheets[0] != "b_c_d_e_f_g_" {
		t.Fatalf("expected sanitized sheet name, got %q", sheets[0])
	}
	if sheets[1] != "normal" {
		t.Fatalf("expected sheet name normal, got %q", sheets[1])
	}
}

func TestSheetNameTruncation(t *testing.T) {
	t.Parallel()

	used := make(map[string]bool)
	long := strings.Repeat("a", 40) + ".edf"

	first := sheetName(long, 1, used)
	if first != strings.Repeat("a", 31) {
		t.Fatalf("expected 31-rune name, got %q (len %d)", first, len(first))
	}

	// A collision appends _N after re-truncating the untruncated base.
	second := sheetName(long, 2, used)
	if second != strings.Repeat("a", 29)+"_1" {
		t.Fatalf("expected truncated suffixed name, got %q", second)
	}
}

func TestSheetNameFallbacks(t *testing.T) {
	t.Parallel()

	used := make(map[string]bool)

	if got := sheetName(".edf", 3, used); got != "File3" {
		t.Fatalf("expected fallback File3, got %q", got)
	}
	if got := sheetName("'quoted'.edf", 4, used); got != "quoted" {
		t.Fatalf("expected apostrophes trimmed, got %q", got)
	}
}

func TestFindLabelPriority(t *testing.T) {
	t.Parallel()

	// Keys are matched in priority order, not header order.
	header := []string{"start time", "Start time"}
	got, ok := findLabel(header, startTimeKeys)
	if !ok || got != "Start time" {
		t.Fatalf("expected priority match Start time, got %q (ok=%v)", got, ok)
	}

	if _, ok := findLabel([]string{"patient", "onset"}, startTimeKeys); ok {
		t.Fatal("expected no match for unrelated headers")
	}
}

func TestLabelsFromReference(t *testing.T) {
	t.Parallel()

	raw := buildReference(t, []string{"patient", "start time ", "End Time"})
	labels, err := LabelsFromReference(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if labels.Start != "start time " || labels.End != "End Time" {
		t.Fatalf("expected labels from reference, got %+v", labels)
	}
}

func TestLabelsFromReferencePartialMatch(t *testing.T) {
	t.Parallel()

	// Both columns must be recognized, otherwise both fall back.
	raw := buildReference(t, []string{"Start time", "finish"})
	labels, err := LabelsFromReference(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if labels != DefaultLabels() {
		t.Fatalf("expected default labels, got %+v", labels)
	}
}

func TestLabelsFromReferenceEmptySheet(t *testing.T) {
	t.Parallel()

	raw := buildReference(t, nil)
	labels, err := LabelsFromReference(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if labels != DefaultLabels() {
		t.Fatalf("expected default labels, got %+v", labels)
	}
}

func TestLabelsFromReferenceUnreadable(t *testing.T) {
	t.Parallel()

	labels, err := LabelsFromReference(strings.NewReader("not an xlsx file"))
	if err == nil {
		t.Fatal("expected error for unreadable workbook")
	}
	if labels != DefaultLabels() {
		t.Fatalf("expected default labels with error, got %+v", labels)
	}
}

func TestFilename(t *testing.T) {
	t.Parallel()

	single := []eeg.FileResult{{Filename: "chb01_03.edf"}}
	if got := Filename(single); got != "chb01_03_predictions.xlsx" {
		t.Fatalf("expected chb01_03_predictions.xlsx, got %q", got)
	}

	multi := []eeg.FileResult{{Filename: "a.edf"}, {Filename: "b.edf"}}
	if got := Filename(multi); got != "batch_predictions.xlsx" {
		t.Fatalf("expected batch_predictions.xlsx, got %q", got)
	}

	nameless := []eeg.FileResult{{Filename: ".edf"}}
	if got := Filename(nameless); got != "predictions_predictions.xlsx" {
		t.Fatalf("expected fallback name, got %q", got)
	}
}

func assertRows(t *testing.T, want, got [][]string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("row %d: expected %v, got %v", i, want[i], got[i])
		}
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Fatalf("row %d col %d: expected %q, got %q", i, j, want[i][j], got[i][j])
			}
		}
	}
}

func buildReference(t *testing.T, header []string) []byte {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()
	for i, label := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := wb.SetCellValue("Sheet1", cell, label); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := wb.Write(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return buf.Bytes()
}
