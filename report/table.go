// Package report keeps the result table: one spreadsheet row per processed
// document. Columns are positional and stable across runs because the
// pipeline re-reads the file on startup to rebuild its caches.
package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hazyhaar/regcheck/document"
)

// SheetName is the worksheet holding the results.
const SheetName = "Results"

// TimeLayout is the layout of the "Checked at" column.
const TimeLayout = "2006-01-02 15:04:05"

// Column positions. Never reorder: existing result files depend on them.
const (
	colNumber = iota
	colProductCode
	colProductName
	colIdentifier
	colExpiresOn
	colManufacturer
	colApplicant
	colStatus
	colApplicantReg
	colApplicantAddress
	colApplicantRegistryAddress
	colManufacturerReg
	colManufacturerAddress
	colManufacturerRegistryAddress
	colDocumentName
	colRegulation
	colStandards
	colStandardStatus
	colVerdict
	colInspector
	colCheckedAt
	colVerified
	columnCount
)

// Headers are the column titles written on the first row.
var Headers = [columnCount]string{
	"№", "Product code", "Product name", "Document", "Valid until",
	"Manufacturer", "Applicant", "Site status",
	"Applicant OGRN", "Applicant address (document)", "Applicant address (registry)",
	"Manufacturer OGRN", "Manufacturer address (document)", "Manufacturer address (registry)",
	"Document name", "Regulation", "Standards", "Standard status",
	"Address check", "Inspector", "Checked at", "Verified",
}

// Table is the in-memory result table bound to a spreadsheet file.
// It is owned by a single orchestrator and not safe for concurrent use.
type Table struct {
	path string
	rows []document.Row
}

// Open loads the result table at path. A missing file yields an empty table.
func Open(path string) (*Table, error) {
	t := &Table{path: path}

	f, err := excelize.OpenFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", path, err)
	}
	defer f.Close()

	sheet := SheetName
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("report: read rows: %w", err)
	}

	for i, cells := range rows {
		if i == 0 || isEmpty(cells) {
			continue
		}
		row, err := decodeRow(cells)
		if err != nil {
			return nil, fmt.Errorf("report: row %d: %w", i+1, err)
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// Path returns the spreadsheet path.
func (t *Table) Path() string { return t.path }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns a copy of the rows in insertion order.
func (t *Table) Rows() []document.Row {
	out := make([]document.Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Last returns the most recently appended row.
func (t *Table) Last() (document.Row, bool) {
	if len(t.rows) == 0 {
		return document.Row{}, false
	}
	return t.rows[len(t.rows)-1], true
}

// Append adds a row. Call Save to persist it.
func (t *Table) Append(r document.Row) {
	t.rows = append(t.rows, r)
}

// syncFile flushes the temp file before it replaces the table.
var syncFile = (*os.File).Sync

// Save writes the whole table to a synced temp file and renames it over the
// previous one.
func (t *Table) Save() error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("report: rename sheet: %w", err)
	}

	header := make([]any, columnCount)
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("report: header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(columnCount, 1)
		f.SetCellStyle(SheetName, "A1", last, style)
	}

	for i, r := range t.rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := encodeRow(r)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("report: row %d: %w", i+2, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(columnCount)
	f.SetColWidth(SheetName, "B", lastCol, 22)

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("report: create tmp: %w", err)
	}
	if err := f.Write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("report: write: %w", err)
	}
	if err := syncFile(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("report: sync tmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("report: close tmp: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("report: rename: %w", err)
	}
	return nil
}

func encodeRow(r document.Row) []any {
	rec, res := r.Record, r.Result
	out := make([]any, columnCount)
	out[colNumber] = rec.Index + 1
	out[colProductCode] = rec.ProductCode
	out[colProductName] = rec.ProductName
	out[colIdentifier] = rec.Identifier
	out[colExpiresOn] = rec.ExpiresOn
	out[colManufacturer] = rec.Manufacturer
	out[colApplicant] = rec.Applicant
	out[colStatus] = res.Status
	out[colApplicantReg] = res.Applicant.RegNumber
	out[colApplicantAddress] = res.Applicant.Address
	out[colApplicantRegistryAddress] = res.Applicant.RegistryAddress
	out[colManufacturerReg] = res.Manufacturer.RegNumber
	out[colManufacturerAddress] = res.Manufacturer.Address
	out[colManufacturerRegistryAddress] = res.Manufacturer.RegistryAddress
	out[colDocumentName] = res.DocumentName
	out[colRegulation] = res.Regulation
	out[colStandards] = res.Standards
	out[colStandardStatus] = res.StandardStatus
	out[colVerdict] = string(res.Verdict)
	out[colInspector] = res.Inspector
	out[colCheckedAt] = ""
	if !res.CheckedAt.IsZero() {
		out[colCheckedAt] = res.CheckedAt.Format(TimeLayout)
	}
	out[colVerified] = ""
	if r.Verified {
		out[colVerified] = "yes"
	}
	return out
}

func decodeRow(cells []string) (document.Row, error) {
	get := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}

	n, err := strconv.Atoi(get(colNumber))
	if err != nil || n < 1 {
		return document.Row{}, fmt.Errorf("bad row number %q", get(colNumber))
	}

	var checked time.Time
	if s := get(colCheckedAt); s != "" {
		checked, err = time.ParseInLocation(TimeLayout, s, time.Local)
		if err != nil {
			return document.Row{}, fmt.Errorf("bad timestamp %q: %w", s, err)
		}
	}

	return document.Row{
		Record: document.Record{
			Index:        n - 1,
			ProductCode:  get(colProductCode),
			ProductName:  get(colProductName),
			Identifier:   get(colIdentifier),
			ExpiresOn:    get(colExpiresOn),
			Manufacturer: get(colManufacturer),
			Applicant:    get(colApplicant),
		},
		Result: document.Result{
			Status: get(colStatus),
			Applicant: document.Party{
				RegNumber:       get(colApplicantReg),
				Address:         get(colApplicantAddress),
				RegistryAddress: get(colApplicantRegistryAddress),
			},
			Manufacturer: document.Party{
				RegNumber:       get(colManufacturerReg),
				Address:         get(colManufacturerAddress),
				RegistryAddress: get(colManufacturerRegistryAddress),
			},
			DocumentName:   get(colDocumentName),
			Regulation:     get(colRegulation),
			Standards:      get(colStandards),
			StandardStatus: get(colStandardStatus),
			Verdict:        document.ParseVerdict(get(colVerdict)),
			Inspector:      get(colInspector),
			CheckedAt:      checked,
		},
		Verified: get(colVerified) == "yes",
	}, nil
}

func isEmpty(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
