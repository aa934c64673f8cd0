package medicine

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/clinic/clinic/pkg/dates"
)

var ErrUnsupportedFormat = errors.New("unsupported file format, upload a .csv or .xlsx file")

// Catalogue column headers, matched case-insensitively.
const (
	colName           = "name"
	colCategory       = "category"
	colDosageForm     = "dosage form"
	colStrength       = "strength"
	colManufacturer   = "manufacturer"
	colIndication     = "indication"
	colClassification = "classification"
	colStock          = "stock"
	colExpiration     = "expiration date"
)

var expirationLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
}

// FormatFromFilename maps an upload's extension to "csv" or "xlsx".
func FormatFromFilename(name string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "csv", nil
	case ".xlsx", ".xlsm":
		return "xlsx", nil
	}
	return "", ErrUnsupportedFormat
}

// ReadRows returns every row of a csv file or of the first worksheet of an
// xlsx workbook.
func ReadRows(r io.Reader, format string) ([][]string, error) {
	switch format {
	case "csv":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		rows, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		return rows, nil
	case "xlsx":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		file, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		defer func() { _ = file.Close() }()

		sheetName := file.GetSheetName(0)
		if sheetName == "" {
			return nil, fmt.Errorf("no worksheet found")
		}
		return file.GetRows(sheetName)
	}
	return nil, ErrUnsupportedFormat
}

func normalizeHeader(header string) string {
	return strings.ToLower(strings.Join(strings.Fields(header), " "))
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// parseExpiration accepts ISO dates, US-style dates and Excel serials.
func parseExpiration(value string) (*dates.Date, error) {
	if value == "" {
		return nil, nil
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return nil, fmt.Errorf("invalid expiration date %q", value)
		}
		return &dates.Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}, nil
	}
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &dates.Date{Time: t}, nil
		}
	}
	return nil, fmt.Errorf("invalid expiration date %q", value)
}

// ParsedRow is one catalogue line. Err is set when the line could not be
// turned into a medicine.
type ParsedRow struct {
	Line     int
	Medicine *Medicine
	Err      error
}

// ParseCatalogue maps spreadsheet rows to medicines. The first row is the
// header; blank rows are dropped and reported in skipped.
func ParseCatalogue(rows [][]string) (parsed []ParsedRow, skipped int, err error) {
	if len(rows) == 0 {
		return nil, 0, fmt.Errorf("file is empty")
	}
	index := map[string]int{}
	for i, h := range rows[0] {
		index[normalizeHeader(h)] = i
	}
	nameIdx, ok := index[colName]
	if !ok {
		return nil, 0, fmt.Errorf("missing %q column", "Name")
	}
	col := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		return -1
	}

	for i, row := range rows[1:] {
		line := i + 2
		if isBlank(row) {
			skipped++
			continue
		}
		m := &Medicine{
			Name:           cellValue(row, nameIdx),
			Category:       cellValue(row, col(colCategory)),
			DosageForm:     cellValue(row, col(colDosageForm)),
			Strength:       cellValue(row, col(colStrength)),
			Manufacturer:   cellValue(row, col(colManufacturer)),
			Indication:     cellValue(row, col(colIndication)),
			Classification: cellValue(row, col(colClassification)),
		}
		if stock := cellValue(row, col(colStock)); stock != "" {
			n, err := strconv.ParseFloat(strings.ReplaceAll(stock, ",", ""), 64)
			if err != nil || n != float64(int(n)) {
				parsed = append(parsed, ParsedRow{Line: line, Err: fmt.Errorf("invalid stock %q", stock)})
				continue
			}
			m.Stocks = int(n)
		}
		exp, err := parseExpiration(cellValue(row, col(colExpiration)))
		if err != nil {
			parsed = append(parsed, ParsedRow{Line: line, Err: err})
			continue
		}
		m.ExpirationDate = exp
		if err := m.Validate(); err != nil {
			parsed = append(parsed, ParsedRow{Line: line, Err: err})
			continue
		}
		parsed = append(parsed, ParsedRow{Line: line, Medicine: m})
	}
	return parsed, skipped, nil
}
