// Package apply implements C6: the orchestrator that takes a parsed
// patch.Block, validates its target path, dispatches on mode, and writes
// the result — backed by locate (Classic mode) and a unified-diff preview
// for dry runs.
package apply

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/diff"

	"github.com/junovhs/applydiff/aerr"
	"github.com/junovhs/applydiff/locate"
	"github.com/junovhs/applydiff/patch"
)

// Result mirrors locate.Result: the byte range touched and the confidence
// score, reported back to the caller per block.
type Result struct {
	StartByte int
	EndByte   int
	Score     float64
	Diff      string // unified diff; populated only in dry-run mode
}

// Applier orchestrates path guard -> read -> dispatch -> write for one
// block at a time. It retains no state across calls beyond its root and
// logger.
type Applier struct {
	Root   string
	DryRun bool
	Log    *slog.Logger
}

// New constructs an Applier, validating that root is a directory.
func New(root string, dryRun bool, log *slog.Logger) (*Applier, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, aerr.New(aerr.Validation, aerr.CodeValidationFail, "project root is not a directory").WithContext(root)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Applier{Root: root, DryRun: dryRun, Log: log}, nil
}

// ApplyBlock runs the full contract for one block: path guard, read,
// dispatch on mode, and (unless dry-run) write. Attrs attached to ctx (rid,
// op) ride along on every record locate.Find emits for Classic-mode blocks.
func (a *Applier) ApplyBlock(ctx context.Context, b patch.Block) (Result, error) {
	if err := guardPath(b.File); err != nil {
		return Result{}, err
	}
	path := filepath.Join(a.Root, filepath.FromSlash(b.File))

	content, err := readOrEmpty(path, b)
	if err != nil {
		return Result{}, err
	}

	switch b.Mode {
	case patch.Replace:
		return a.applyReplace(path, b, content)
	case patch.Regex:
		return a.applyRegex(path, b, content)
	default:
		return a.applyClassic(ctx, path, b, content)
	}
}

func guardPath(rel string) error {
	if filepath.IsAbs(rel) {
		return aerr.New(aerr.Validation, aerr.CodePathTraversal, "patch path escapes target directory").WithContext(rel)
	}
	clean := filepath.ToSlash(filepath.Clean(rel))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return aerr.New(aerr.Validation, aerr.CodePathTraversal, "patch path escapes target directory").WithContext(rel)
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return aerr.New(aerr.Validation, aerr.CodePathTraversal, "patch path escapes target directory").WithContext(rel)
		}
	}
	return nil
}

// readOrEmpty reads path as UTF-8 text, treating "not found" as an empty
// string so Classic-mode append/create and Replace-mode fresh writes work
// without a preceding file.
func readOrEmpty(path string, b patch.Block) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && (b.Mode != patch.Classic || strings.TrimSpace(b.From) == "") {
			return "", nil
		}
		return "", aerr.Newf(aerr.File, aerr.CodeFileReadFailed, "failed to read %s: %v", b.File, err).WithFile(b.File)
	}
	return string(data), nil
}

func (a *Applier) applyClassic(ctx context.Context, path string, b patch.Block, content string) (Result, error) {
	if strings.TrimSpace(b.From) == "" {
		return a.applyAppend(path, b, content)
	}

	m, err := locate.Find(ctx, content, b.From, b.Fuzz, a.Log)
	if err != nil {
		return Result{}, attachFile(err, b.File)
	}

	toText := harmonizeEOL(content[m.StartByte:m.EndByte], b.To)
	newContent := content[:m.StartByte] + toText + content[m.EndByte:]

	if err := a.write(path, b.File, newContent); err != nil {
		return Result{}, err
	}

	res := Result{StartByte: m.StartByte, EndByte: m.EndByte, Score: m.Score}
	if a.DryRun {
		res.Diff = unifiedDiff(b.File, content, newContent)
	}
	return res, nil
}

func (a *Applier) applyAppend(path string, b patch.Block, content string) (Result, error) {
	newContent := content
	if newContent != "" && !strings.HasSuffix(newContent, "\n") && b.To != "" {
		newContent += "\n"
	}
	newContent += b.To

	if err := a.write(path, b.File, newContent); err != nil {
		return Result{}, err
	}

	res := Result{StartByte: len(content), EndByte: len(content), Score: 1.0}
	if a.DryRun {
		res.Diff = unifiedDiff(b.File, content, newContent)
	}
	return res, nil
}

func (a *Applier) applyReplace(path string, b patch.Block, content string) (Result, error) {
	if err := a.write(path, b.File, b.To); err != nil {
		return Result{}, err
	}
	res := Result{StartByte: 0, EndByte: len(content), Score: 1.0}
	if a.DryRun {
		res.Diff = unifiedDiff(b.File, content, b.To)
	}
	return res, nil
}

func (a *Applier) applyRegex(path string, b patch.Block, content string) (Result, error) {
	re, err := regexp.Compile(b.From)
	if err != nil {
		return Result{}, aerr.Newf(aerr.Apply, aerr.CodeRegexError, "invalid regular expression: %v", err).WithFile(b.File)
	}

	newContent := re.ReplaceAllString(content, b.To)

	if err := a.write(path, b.File, newContent); err != nil {
		return Result{}, err
	}

	res := Result{StartByte: 0, EndByte: len(content), Score: 1.0}
	if a.DryRun {
		res.Diff = unifiedDiff(b.File, content, newContent)
	}
	return res, nil
}

func (a *Applier) write(path, relFile, content string) error {
	if a.DryRun {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return aerr.Newf(aerr.File, aerr.CodeFileWriteFailed, "failed to create parent dir for %s: %v", relFile, err).WithFile(relFile)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return aerr.Newf(aerr.File, aerr.CodeFileWriteFailed, "failed to write %s: %v", relFile, err).WithFile(relFile)
	}
	return nil
}

// harmonizeEOL forces to's trailing newline style to match matchedSlice's,
// converting CRLF<->LF as needed, and adding matchedSlice's EOL if to has
// none at all. If matchedSlice has no trailing newline, to is left as-is.
func harmonizeEOL(matchedSlice, to string) string {
	var matchedNL string
	switch {
	case strings.HasSuffix(matchedSlice, "\r\n"):
		matchedNL = "\r\n"
	case strings.HasSuffix(matchedSlice, "\n"):
		matchedNL = "\n"
	default:
		return to
	}

	switch {
	case strings.HasSuffix(to, "\r\n"):
		if matchedNL == "\n" {
			return strings.TrimSuffix(to, "\r\n") + "\n"
		}
		return to
	case strings.HasSuffix(to, "\n"):
		if matchedNL == "\r\n" {
			return strings.TrimSuffix(to, "\n") + "\r\n"
		}
		return to
	default:
		return to + matchedNL
	}
}

func attachFile(err error, file string) error {
	if e, ok := err.(*aerr.Error); ok {
		return e.WithFile(file)
	}
	return err
}

func unifiedDiff(name, before, after string) string {
	var b strings.Builder
	if err := diff.Text(name, name, before, after, &b); err != nil {
		return fmt.Sprintf("(diff generation failed: %v)\n", err)
	}
	return b.String()
}
