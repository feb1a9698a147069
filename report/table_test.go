package report

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/regcheck/document"
)

func sampleRow(i int) document.Row {
	return document.Row{
		Record: document.Record{
			Index:        i,
			ProductCode:  "00-0001",
			ProductName:  "Чайник электрический",
			Identifier:   "ЕАЭС N RU Д-RU.РА01.В.39739/23",
			ExpiresOn:    "01.02.2028",
			Manufacturer: "ООО Завод",
			Applicant:    "ООО Импорт",
		},
		Result: document.Result{
			Status: "ДЕЙСТВУЕТ",
			Applicant: document.Party{
				RegNumber:       "1027700132195",
				Address:         "г. Москва, ул. Ленина, д. 5",
				RegistryAddress: "МОСКВА УЛИЦА ЛЕНИНА ДОМ 5",
			},
			Manufacturer:   document.Party{RegNumber: document.NoRegNumber},
			Standards:      "ГОСТ 12.2.007.0-75",
			StandardStatus: "Действует",
			Verdict:        document.VerdictNoRegNumber,
			Inspector:      "ivanova",
			CheckedAt:      time.Date(2026, 3, 4, 10, 11, 12, 0, time.Local),
		},
		Verified: true,
	}
}

func TestOpen_Missing(t *testing.T) {
	tbl, err := Open(filepath.Join(t.TempDir(), "results.xlsx"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if tbl.Len() != 0 {
		t.Fatalf("len: got %d, want 0", tbl.Len())
	}
	if _, ok := tbl.Last(); ok {
		t.Fatal("empty table has no last row")
	}
}

func TestSaveReopen(t *testing.T) {
	// WHAT: Rows written to the spreadsheet read back field for field.
	path := filepath.Join(t.TempDir(), "out", "results.xlsx")
	tbl, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	tbl.Append(sampleRow(0))
	passThrough := document.Row{Record: document.Record{Index: 1, Identifier: "12345"}}
	tbl.Append(passThrough)
	if err := tbl.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if again.Len() != 2 {
		t.Fatalf("len: got %d, want 2", again.Len())
	}
	rows := again.Rows()
	want := sampleRow(0)
	got := rows[0]
	if got.Record != want.Record {
		t.Fatalf("record: got %+v, want %+v", got.Record, want.Record)
	}
	if got.Result.Applicant != want.Result.Applicant {
		t.Fatalf("applicant: got %+v, want %+v", got.Result.Applicant, want.Result.Applicant)
	}
	if got.Result.Manufacturer.RegNumber != document.NoRegNumber {
		t.Fatalf("manufacturer reg: got %q", got.Result.Manufacturer.RegNumber)
	}
	if got.Result.Verdict != document.VerdictNoRegNumber {
		t.Fatalf("verdict: got %q", got.Result.Verdict)
	}
	if !got.Result.CheckedAt.Equal(want.Result.CheckedAt) {
		t.Fatalf("checked at: got %v, want %v", got.Result.CheckedAt, want.Result.CheckedAt)
	}
	if !got.Verified {
		t.Fatal("verified flag lost")
	}

	last, _ := again.Last()
	if last.Record.Index != 1 || last.Verified || last.Result.Verdict != document.VerdictNotEvaluated {
		t.Fatalf("pass-through row: got %+v", last)
	}
}

func TestRows_ReturnsCopy(t *testing.T) {
	tbl, _ := Open(filepath.Join(t.TempDir(), "r.xlsx"))
	tbl.Append(sampleRow(0))
	rows := tbl.Rows()
	rows[0].Result.Status = "changed"
	if r, _ := tbl.Last(); r.Result.Status != "ДЕЙСТВУЕТ" {
		t.Fatal("Rows must not expose internal storage")
	}
}

func TestSave_SyncsBeforeRename(t *testing.T) {
	// WHAT: A failed flush leaves the previous spreadsheet in place.
	path := filepath.Join(t.TempDir(), "results.xlsx")
	tbl, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	tbl.Append(sampleRow(0))
	if err := tbl.Save(); err != nil {
		t.Fatal(err)
	}

	orig := syncFile
	t.Cleanup(func() { syncFile = orig })
	syncFile = func(*os.File) error { return errors.New("disk gone") }
	tbl.Append(sampleRow(1))
	if err := tbl.Save(); err == nil {
		t.Fatal("save: want sync error")
	}

	syncFile = orig
	again, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.Len() != 1 {
		t.Fatalf("rows after failed save: got %d, want 1", again.Len())
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("dir entries: got %d, want only the table", len(entries))
	}
}
