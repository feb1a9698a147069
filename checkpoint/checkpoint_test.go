package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "progress.txt"))
	n, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 0 {
		t.Fatalf("position: got %d, want 0", n)
	}
}

func TestSaveLoad(t *testing.T) {
	// WHAT: Saved position survives a reload; no .tmp file is left behind.
	path := filepath.Join(t.TempDir(), "state", "progress.txt")
	s := New(path)
	if err := s.Save(41); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(42); err != nil {
		t.Fatalf("save: %v", err)
	}

	n, err := New(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 42 {
		t.Fatalf("position: got %d, want 42", n)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir entries: got %d, want only the checkpoint", len(entries))
	}
}

func TestSave_SyncsBeforeRename(t *testing.T) {
	// WHAT: The temp file is flushed before it replaces the checkpoint, and
	// a failed flush keeps the old value.
	path := filepath.Join(t.TempDir(), "progress.txt")
	s := New(path)
	if err := s.Save(7); err != nil {
		t.Fatal(err)
	}

	orig := syncFile
	t.Cleanup(func() { syncFile = orig })
	var synced []string
	syncFile = func(f *os.File) error {
		synced = append(synced, f.Name())
		return orig(f)
	}
	if err := s.Save(8); err != nil {
		t.Fatal(err)
	}
	if len(synced) != 1 || synced[0] == path {
		t.Fatalf("synced: got %v, want one temp file", synced)
	}

	syncFile = func(*os.File) error { return errors.New("disk gone") }
	if err := s.Save(9); err == nil {
		t.Fatal("save: want sync error")
	}
	if n, _ := s.Load(); n != 8 {
		t.Fatalf("position after failed save: got %d, want 8", n)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("dir entries: got %d, want only the checkpoint", len(entries))
	}
}

func TestLoad_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	os.WriteFile(path, []byte("row seven"), 0o644)
	if _, err := New(path).Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_Whitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.txt")
	os.WriteFile(path, []byte("  17\r\n"), 0o644)
	n, err := New(path).Load()
	if err != nil || n != 17 {
		t.Fatalf("got %d, %v; want 17, nil", n, err)
	}
}

func TestSave_Negative(t *testing.T) {
	if err := New(filepath.Join(t.TempDir(), "p")).Save(-1); err == nil {
		t.Fatal("expected error for negative position")
	}
}
