package checklist

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/hazyhaar/regcheck/document"
)

// Fixed checklist column order.
const (
	colOrdinal = iota
	colProductCode
	colProductName
	colIdentifier
	colExpiresOn
	colManufacturer
	colApplicant
)

// DateLayout is the expiration date format used by the sources.
const DateLayout = "02.01.2006"

// FileFeed is a checklist loaded from a spreadsheet or CSV export.
type FileFeed struct {
	*SliceFeed
	path string
}

// Path returns the file the feed was loaded from.
func (f *FileFeed) Path() string { return f.path }

// OpenFile loads a checklist exported by the inventory application.
// Supported formats: .xlsx (first sheet) and .csv (UTF-8 or Windows-1251,
// ';' or ',' separated). A header row is skipped when its first cell is not
// a number.
func OpenFile(path string) (*FileFeed, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path)
	case ".csv", ".txt":
		rows, err = readCSV(path)
	default:
		return nil, fmt.Errorf("checklist: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	var records []document.Record
	for i, cells := range rows {
		if i == 0 && !isOrdinal(cell(cells, colOrdinal)) {
			continue
		}
		if cell(cells, colIdentifier) == "" && cell(cells, colProductCode) == "" {
			continue
		}
		records = append(records, document.Record{
			ProductCode:  cell(cells, colProductCode),
			ProductName:  cell(cells, colProductName),
			Identifier:   cell(cells, colIdentifier),
			ExpiresOn:    normalizeDate(cell(cells, colExpiresOn)),
			Manufacturer: cell(cells, colManufacturer),
			Applicant:    cell(cells, colApplicant),
		})
	}
	return &FileFeed{SliceFeed: NewSliceFeed(records), path: path}, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("checklist: open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0), excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("checklist: read rows: %w", err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("checklist: read %s: %w", path, err)
	}
	data, err = decodeText(data)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = detectComma(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("checklist: parse csv: %w", err)
	}
	return rows, nil
}

// decodeText returns UTF-8 text. The inventory application exports
// Windows-1251 unless told otherwise.
func decodeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return data, nil
	}
	out, _, err := transform.Bytes(charmap.Windows1251.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("checklist: decode windows-1251: %w", err)
	}
	return out, nil
}

func detectComma(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) >= bytes.Count(line, []byte(",")) && bytes.Contains(line, []byte(";")) {
		return ';'
	}
	return ','
}

// normalizeDate renders spreadsheet serial dates and ISO dates as dd.mm.yyyy.
// Anything else is returned trimmed.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 100000 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t.Format(DateLayout)
		}
	}
	for _, layout := range []string{DateLayout, "2006-01-02", "02.01.06", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout)
		}
	}
	return s
}

func isOrdinal(s string) bool {
	_, err := strconv.Atoi(strings.TrimSpace(s))
	return err == nil
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return strings.TrimSpace(cells[i])
	}
	return ""
}
