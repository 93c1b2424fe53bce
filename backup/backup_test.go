package backup

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateCopiesExistingFiles(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.txt"), "hello")
	mustWrite(t, filepath.Join(root, "sub", "b.txt"), "world")

	dir, err := Create(root, []string{"a.txt", "sub/b.txt", "missing.txt"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil || string(got) != "hello" {
		t.Errorf("a.txt backup = %q, err %v", got, err)
	}
	got, err = os.ReadFile(filepath.Join(dir, "sub", "b.txt"))
	if err != nil || string(got) != "world" {
		t.Errorf("sub/b.txt backup = %q, err %v", got, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "missing.txt")); !os.IsNotExist(err) {
		t.Errorf("missing.txt should not have been backed up")
	}
}

func TestCreateSkipsNonexistentFiles(t *testing.T) {
	root := t.TempDir()
	dir, err := Create(root, []string{"nope.txt"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("backup dir should still be created: %v", err)
	}
}

func TestCreateRejectsNonDirectoryRoot(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "notadir")
	mustWrite(t, file, "x")
	if _, err := Create(file, nil); err == nil {
		t.Fatal("expected error for non-directory root")
	}
}

func TestIsBackupDir(t *testing.T) {
	cases := map[string]bool{
		".applydiff_backup_20260101_120000/a.txt": true,
		"src/a.txt":                                false,
		".applydiff_backup_20260101_120000":        true,
	}
	for rel, want := range cases {
		if got := IsBackupDir(filepath.FromSlash(rel)); got != want {
			t.Errorf("IsBackupDir(%q) = %v, want %v", rel, got, want)
		}
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
