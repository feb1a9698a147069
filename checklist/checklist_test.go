package checklist

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/hazyhaar/regcheck/document"
)

func TestSliceFeed(t *testing.T) {
	ctx := context.Background()
	f := NewSliceFeed([]document.Record{{Identifier: "a", Index: 7}, {Identifier: "b"}})

	r, err := f.Read(ctx)
	if err != nil || r.Identifier != "a" || r.Index != 0 {
		t.Fatalf("first: got %+v, %v", r, err)
	}
	// Read does not move the cursor.
	if again, _ := f.Read(ctx); again != r {
		t.Fatal("read must be idempotent")
	}
	f.Advance(ctx)
	if r, _ := f.Read(ctx); r.Identifier != "b" || r.Index != 1 {
		t.Fatalf("second: got %+v", r)
	}
	f.Advance(ctx)
	if _, err := f.Read(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("end: got %v, want io.EOF", err)
	}
	f.Advance(ctx)
	if _, err := f.Read(ctx); !errors.Is(err, io.EOF) {
		t.Fatal("advance past end must stay at EOF")
	}
	f.Rewind()
	if r, _ := f.Read(ctx); r.Identifier != "a" {
		t.Fatal("rewind")
	}
}

func TestSliceFeed_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSliceFeed([]document.Record{{}}).Read(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestOpenFile_CSVWindows1251(t *testing.T) {
	// WHAT: A cp1251 export with a header and ';' separators decodes to UTF-8.
	text := "№;Код;Товар;Документ;Срок;Изготовитель;Заявитель\n" +
		"1;00-01;Чайник;ЕАЭС N RU Д-RU.РА01.В.39739/23;2028-02-01;ООО Завод;ООО Импорт\n" +
		"2;00-02;Утюг;12345;01.03.2027;Завод;Импорт\n"
	enc, err := charmap.Windows1251.NewEncoder().String(text)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "list.csv")
	if err := os.WriteFile(path, []byte(enc), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if f.Len() != 2 {
		t.Fatalf("len: got %d, want 2", f.Len())
	}
	r, _ := f.Read(context.Background())
	if r.ProductName != "Чайник" || r.Identifier != "ЕАЭС N RU Д-RU.РА01.В.39739/23" {
		t.Fatalf("decoded: got %+v", r)
	}
	if r.ExpiresOn != "01.02.2028" {
		t.Fatalf("date: got %q, want 01.02.2028", r.ExpiresOn)
	}
}

func TestOpenFile_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.xlsx")
	x := excelize.NewFile()
	sheet := x.GetSheetName(0)
	x.SetSheetRow(sheet, "A1", &[]any{1, "00-01", "Чайник", "РОСС RU С-RU.АЯ46.В.12345", 46784, "Завод", "Импорт"})
	x.SetSheetRow(sheet, "A2", &[]any{2, "00-02", "Утюг", "", "", "", ""})
	if err := x.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	x.Close()

	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if f.Len() != 2 {
		t.Fatalf("len: got %d, want 2 (no header row)", f.Len())
	}
	r, _ := f.Read(context.Background())
	if r.ExpiresOn != "01.02.2028" {
		t.Fatalf("serial date: got %q, want 01.02.2028", r.ExpiresOn)
	}
}

func TestOpenFile_Unsupported(t *testing.T) {
	if _, err := OpenFile("list.ods"); err == nil {
		t.Fatal("expected error")
	}
}
