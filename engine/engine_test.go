package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestInitSessionThenApplyPatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "hello world\n")

	e, _, err := InitSession(root)
	if err != nil {
		t.Fatalf("InitSession: %v", err)
	}

	patchText := ">>> file: a.txt\n--- from\nhello world\n--- to\ngoodbye world\n<<<\n"
	out, err := e.ApplyPatch(patchText)
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if len(out.Log) != 1 || !strings.HasPrefix(out.Log[0], "✔") {
		t.Fatalf("got log %v", out.Log)
	}
	if out.State.ExchangeCount != 1 {
		t.Errorf("exchange_count = %d, want 1", out.State.ExchangeCount)
	}

	got, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	if string(got) != "goodbye world\n" {
		t.Errorf("got %q", got)
	}
}

func TestApplyPatchCreatesBackup(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "original\n")

	e, _, err := InitSession(root)
	if err != nil {
		t.Fatalf("InitSession: %v", err)
	}

	patchText := ">>> file: a.txt | mode=replace\n--- to\nnew contents\n<<<\n"
	if _, err := e.ApplyPatch(patchText); err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, ent := range entries {
		if strings.HasPrefix(ent.Name(), ".applydiff_backup_") {
			found = true
		}
	}
	if !found {
		t.Error("expected a backup directory to be created")
	}
}

func TestApplyPatchCountsLocatorErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "some content\n")

	e, _, err := InitSession(root)
	if err != nil {
		t.Fatalf("InitSession: %v", err)
	}

	patchText := ">>> file: a.txt | fuzz=0.95\n--- from\ncompletely unrelated text that will not match\n--- to\nx\n<<<\n"
	out, err := e.ApplyPatch(patchText)
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if !strings.HasPrefix(out.Log[0], "❌") {
		t.Fatalf("expected a failed block, got %v", out.Log)
	}
	if out.State.TotalErrors != 1 {
		t.Errorf("total_errors = %d, want 1", out.State.TotalErrors)
	}
}

func TestPreviewPatchDoesNotWriteOrBumpExchangeCount(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "keep me\n")

	e, _, err := InitSession(root)
	if err != nil {
		t.Fatalf("InitSession: %v", err)
	}

	patchText := ">>> file: a.txt\n--- from\nkeep me\n--- to\nchanged\n<<<\n"
	out, err := e.PreviewPatch(patchText)
	if err != nil {
		t.Fatalf("PreviewPatch: %v", err)
	}
	if out.Diff == "" {
		t.Error("expected a non-empty diff")
	}
	got, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	if string(got) != "keep me\n" {
		t.Errorf("preview must not write, got %q", got)
	}
	if out.State.ExchangeCount != 0 {
		t.Errorf("preview must not bump exchange_count, got %d", out.State.ExchangeCount)
	}
}

func TestReapplyingSameBlockYieldsNoMatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "the original line\n")

	e, _, err := InitSession(root)
	if err != nil {
		t.Fatalf("InitSession: %v", err)
	}

	patchText := ">>> file: a.txt\n--- from\nthe original line\n--- to\nthe changed line\n<<<\n"
	if _, err := e.ApplyPatch(patchText); err != nil {
		t.Fatalf("first ApplyPatch: %v", err)
	}

	out, err := e.ApplyPatch(patchText)
	if err != nil {
		t.Fatalf("second ApplyPatch: %v", err)
	}
	if !strings.HasPrefix(out.Log[0], "❌") {
		t.Errorf("expected NoMatch on reapply, got %v", out.Log)
	}
}

func TestRefreshSessionZeroesCounters(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "x\n")

	e, _, err := InitSession(root)
	if err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	e.ApplyPatch(">>> file: a.txt | fuzz=0.95\n--- from\nnot present anywhere\n--- to\ny\n<<<\n")

	st, err := e.RefreshSession()
	if err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}
	if st.ExchangeCount != 0 || st.TotalErrors != 0 {
		t.Errorf("got %+v", st)
	}
}

func TestResolveFileRequestEndToEnd(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "line1\nline2\nline3\n")

	e, _, err := InitSession(root)
	if err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	out, err := e.ResolveFileRequest("path: a.txt\nrange: lines 1-2\n")
	if err != nil {
		t.Fatalf("ResolveFileRequest: %v", err)
	}
	if !strings.Contains(out, "line1") || !strings.Contains(out, "line2") || strings.Contains(out, "line3") {
		t.Errorf("got %q", out)
	}
}

func TestGetSessionBriefingIncludesCounters(t *testing.T) {
	root := t.TempDir()
	e, _, err := InitSession(root)
	if err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	briefing := e.GetSessionBriefing()
	if !strings.Contains(briefing, "Exchange Count: 0/10") {
		t.Errorf("got %q", briefing)
	}
}
