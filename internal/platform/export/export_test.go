package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestPDFReport_Render(t *testing.T) {
	r := NewPDFReport("Patient Queue Report", "March 2025", time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC), "Report generated from Test Clinic")
	r.Summary([]SummaryItem{{Label: "Total Patients", Value: "3"}, {Label: "Priority Cases", Value: "1"}})
	r.Section("Entries")

	rows := make([][]string, 120)
	for i := range rows {
		rows[i] = []string{fmt.Sprint(i + 1), "PAT00001", "José Dela Cruz", "Regular", strings.Repeat("cough ", 20), "Waiting", "09:15 AM"}
	}
	r.Table(Table{
		Columns: []Column{
			{Header: "Queue #", Width: 0.10, Align: AlignCenter},
			{Header: "Patient ID", Width: 0.15},
			{Header: "Patient Name", Width: 0.20},
			{Header: "Priority", Width: 0.12, Align: AlignCenter},
			{Header: "Complaint", Width: 0.18},
			{Header: "Status", Width: 0.15},
			{Header: "Check-in Time", Width: 0.10},
		},
		Rows:      rows,
		Highlight: func(i int) bool { return i%5 == 0 },
	})
	r.KeyValues([][2]string{{"Allergies", ""}, {"Notes", "Stable"}})
	r.Paragraph("Follow up in two weeks.")

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, r.pdf.PageCount(), 1, "long tables should span pages")
}

func TestPDFReport_EmptyTable(t *testing.T) {
	r := NewPDFReport("Lab Results Report", "", time.Now(), "footer")
	r.Table(Table{Columns: []Column{{Header: "Test", Width: 1}}})

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	assert.NotZero(t, buf.Len())
}

func TestPDFReport_Fit(t *testing.T) {
	r := NewPDFReport("t", "", time.Now(), "")
	r.pdf.SetFont(fontFamily, "", 8)

	assert.Equal(t, "short", r.fit("short", 50))

	long := r.fit(strings.Repeat("abcdef", 30), 20)
	assert.True(t, strings.HasSuffix(long, "..."))
	assert.LessOrEqual(t, r.pdf.GetStringWidth(long), 20.0)
}

func TestValueOrNA(t *testing.T) {
	assert.Equal(t, "N/A", valueOrNA("  "))
	assert.Equal(t, "x", valueOrNA("x"))
}

func TestWorkbook_Sheets(t *testing.T) {
	wb, err := NewWorkbook()
	require.NoError(t, err)

	require.NoError(t, wb.AddSheet("Summary", []string{"Month", "Total Visits"}, [][]interface{}{
		{"2025-01", 4},
		{"2025-02", 0},
	}))
	require.NoError(t, wb.AddSheet("2025-01", []string{"Queue #", "Patient"}, [][]interface{}{{1, "Ana Santos"}}))

	var buf bytes.Buffer
	require.NoError(t, wb.Write(&buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "2025-01"}, f.GetSheetList())

	rows, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Month", "Total Visits"}, {"2025-01", "4"}, {"2025-02", "0"}}, rows)

	rows, err = f.GetRows("2025-01")
	require.NoError(t, err)
	assert.Equal(t, "Ana Santos", rows[1][1])
}

func TestWorkbook_Empty(t *testing.T) {
	wb, err := NewWorkbook()
	require.NoError(t, err)
	assert.Error(t, wb.Write(&bytes.Buffer{}))
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "a-b-c", SheetName("a/b:c"))
	assert.Equal(t, "Sheet", SheetName("  "))
	assert.Len(t, []rune(SheetName(strings.Repeat("x", 40))), maxSheetName)
}

func TestBarChartPNG(t *testing.T) {
	var buf bytes.Buffer
	err := BarChartPNG(&buf, "Monthly Visits", []Bar{
		{Label: "2025-01", Value: 12},
		{Label: "2025-02", Value: 0},
		{Label: "2025-03", Value: 7},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}

func TestBarChartPNG_AllZero(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, BarChartPNG(&buf, "Monthly Visits", []Bar{{Label: "2025-01"}, {Label: "2025-02"}}))
	assert.NotZero(t, buf.Len())
}

func TestBarChartPNG_NoData(t *testing.T) {
	err := BarChartPNG(&bytes.Buffer{}, "x", nil)
	assert.True(t, errors.Is(err, ErrNoData))
}
