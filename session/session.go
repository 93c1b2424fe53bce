// Package session implements C7: the long-lived, per-project-root object
// that tracks file metrics and drift counters across a run of apply calls,
// persisted as JSON under <root>/.applydiff/session.json.
package session

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/junovhs/applydiff/aerr"
	"github.com/junovhs/applydiff/backup"
)

// StateDir and StateFile name the session's on-disk location relative to
// the project root.
const (
	StateDir  = ".applydiff"
	StateFile = "session.json"
)

// MaxStateFileBytes bounds what Load will accept as a session document; a
// larger file is treated as corruption rather than read in full.
const MaxStateFileBytes = 5 * 1024 * 1024

// ErrorBudget and ExchangeBudget are the thresholds the briefing warns
// against (spec's "N/3" and "N/10").
const (
	ErrorBudget    = 3
	ExchangeBudget = 10
)

// FileMetrics is per-file bookkeeping, keyed by project-relative path.
type FileMetrics struct {
	OriginalHash string `json:"original_hash"`
	PatchCount   uint32 `json:"patch_count"`
}

// FormatVersion is the session document's own schema version, bumped
// whenever State gains or changes a field in a way that breaks older
// readers. Not named in spec.md's data model; supplements it so a future
// format change has somewhere to record compatibility.
const FormatVersion = "1.0.0"

// State is the persisted document. ProjectRoot is never serialized.
type State struct {
	Format        string                 `json:"format_version"`
	LastRefreshTS time.Time              `json:"last_refresh_ts"`
	ExchangeCount uint32                 `json:"exchange_count"`
	TotalErrors   uint32                 `json:"total_errors"`
	FileMetrics   map[string]FileMetrics `json:"file_metrics"`
	KeystoneFiles []string               `json:"keystone_files"`
	ProjectRoot   string                 `json:"-"`
}

// Session owns a State exclusively while mutating it; callers observe by
// taking Snapshot, a value copy.
type Session struct {
	state State
}

// Snapshot returns a value copy of the current state.
func (s *Session) Snapshot() State {
	cp := s.state
	cp.FileMetrics = make(map[string]FileMetrics, len(s.state.FileMetrics))
	for k, v := range s.state.FileMetrics {
		cp.FileMetrics[k] = v
	}
	cp.KeystoneFiles = append([]string(nil), s.state.KeystoneFiles...)
	return cp
}

func statePath(root string) string {
	return filepath.Join(root, StateDir, StateFile)
}

// Init walks root (excluding .applydiff and any .applydiff_backup_* tree),
// hashes every file with MD5, seeds FileMetrics, writes the state file, and
// returns the new Session.
func Init(root string) (*Session, error) {
	s := &Session{state: State{
		Format:        FormatVersion,
		LastRefreshTS: time.Now().UTC(),
		FileMetrics:   make(map[string]FileMetrics),
		ProjectRoot:   root,
	}}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if rel == StateDir || backup.IsBackupDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(filepath.ToSlash(rel), StateDir+"/") || backup.IsBackupDir(rel) {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		sum := md5.Sum(data)
		s.state.FileMetrics[filepath.ToSlash(rel)] = FileMetrics{OriginalHash: hex.EncodeToString(sum[:])}
		return nil
	})
	if err != nil {
		return nil, aerr.Newf(aerr.File, aerr.CodeFileReadFailed, "failed to index project tree: %v", err).WithPath(root)
	}

	if err := s.save(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the JSON state file if present, else creates a fresh one via
// Init.
func Load(root string) (*Session, error) {
	path := statePath(root)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Init(root)
		}
		return nil, aerr.Newf(aerr.Session, aerr.CodeSessionReadFailed, "failed to stat session file: %v", err).WithPath(path)
	}
	if info.Size() > MaxStateFileBytes {
		return nil, aerr.Newf(aerr.Session, aerr.CodeSessionCorrupt,
			"session file is %d bytes, exceeding the %d byte limit", info.Size(), MaxStateFileBytes).WithPath(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, aerr.Newf(aerr.Session, aerr.CodeSessionReadFailed, "failed to read session file: %v", err).WithPath(path)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, aerr.Newf(aerr.Session, aerr.CodeSessionCorrupt, "session file is not valid JSON: %v", err).WithPath(path)
	}
	if err := checkFormatCompatible(st.Format); err != nil {
		return nil, err
	}
	if st.FileMetrics == nil {
		st.FileMetrics = make(map[string]FileMetrics)
	}
	if st.Format == "" {
		st.Format = FormatVersion
	}
	st.ProjectRoot = root
	return &Session{state: st}, nil
}

// checkFormatCompatible rejects a session file from a strictly newer major
// format version than this build understands; an empty or missing format
// field (pre-versioning session files) is treated as compatible.
func checkFormatCompatible(format string) error {
	if format == "" {
		return nil
	}
	fileVer, err := semver.NewVersion(format)
	if err != nil {
		return aerr.Newf(aerr.Session, aerr.CodeSessionCorrupt, "session file has an unparseable format_version %q", format)
	}
	ourVer := semver.MustParse(FormatVersion)
	if fileVer.Major() > ourVer.Major() {
		return aerr.Newf(aerr.Session, aerr.CodeSessionCorrupt,
			"session file format %s is newer than this build supports (%s)", format, FormatVersion)
	}
	return nil
}

// save serializes the state as pretty-printed JSON and writes it
// atomically: write to a sibling temp file, then rename over the target.
func (s *Session) save() error {
	dir := filepath.Join(s.state.ProjectRoot, StateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return aerr.Newf(aerr.Session, aerr.CodeSessionWriteFailed, "failed to create session directory: %v", err).WithPath(dir)
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return aerr.Newf(aerr.Session, aerr.CodeSessionWriteFailed, "failed to serialize session: %v", err)
	}

	target := statePath(s.state.ProjectRoot)
	tmp, err := os.CreateTemp(dir, "session.*.json.tmp")
	if err != nil {
		return aerr.Newf(aerr.Session, aerr.CodeSessionWriteFailed, "failed to create temp session file: %v", err).WithPath(dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return aerr.Newf(aerr.Session, aerr.CodeSessionWriteFailed, "failed to write temp session file: %v", err).WithPath(tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return aerr.Newf(aerr.Session, aerr.CodeSessionWriteFailed, "failed to sync temp session file: %v", err).WithPath(tmpName)
	}
	if err := tmp.Close(); err != nil {
		return aerr.Newf(aerr.Session, aerr.CodeSessionWriteFailed, "failed to close temp session file: %v", err).WithPath(tmpName)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return aerr.Newf(aerr.Session, aerr.CodeSessionWriteFailed, "failed to rename temp session file: %v", err).WithPath(target)
	}
	return nil
}

// Save persists the current state; exported so callers other than this
// package's own mutators (e.g. a caller wanting to force-flush after
// inspecting a Snapshot) can invoke it directly.
func (s *Session) Save() error { return s.save() }

// BeginApply increments exchange_count once per apply_patch invocation and
// saves. Call exactly once per apply call, regardless of block count.
func (s *Session) BeginApply() error {
	s.state.ExchangeCount = satAdd32(s.state.ExchangeCount, 1)
	return s.save()
}

// RecordBlockError increments total_errors for a per-block Locator/Regex
// failure.
func (s *Session) RecordBlockError() error {
	s.state.TotalErrors = satAdd32(s.state.TotalErrors, 1)
	return s.save()
}

// RecordBlockSuccess increments the given path's patch_count, seeding a
// FileMetrics entry (with an empty hash) if the file was not present at
// init time.
func (s *Session) RecordBlockSuccess(relPath string) error {
	fm := s.state.FileMetrics[relPath]
	fm.PatchCount = satAdd32(fm.PatchCount, 1)
	s.state.FileMetrics[relPath] = fm
	return s.save()
}

// Refresh zeroes exchange_count and total_errors and updates
// last_refresh_ts.
func (s *Session) Refresh() error {
	s.state.ExchangeCount = 0
	s.state.TotalErrors = 0
	s.state.LastRefreshTS = time.Now().UTC()
	return s.save()
}

func satAdd32(v uint32, delta uint32) uint32 {
	sum := v + delta
	if sum < v {
		return ^uint32(0)
	}
	return sum
}

// GenerateBriefing renders the dynamic session-status prompt described in
// spec.md §4.7: counters, drift warnings, keystone files, and the classic
// patch format literal.
func (s *Session) GenerateBriefing() string {
	var b strings.Builder
	fmt.Fprintln(&b, "[SESSION CONTEXT]")
	fmt.Fprintf(&b, "- Exchange Count: %d/%d\n", s.state.ExchangeCount, ExchangeBudget)
	fmt.Fprintf(&b, "- Prediction Errors: %d/%d\n", s.state.TotalErrors, ErrorBudget)

	switch {
	case s.state.TotalErrors >= ErrorBudget:
		b.WriteString("\n!! DRIFT LIKELY - HIGH ERROR COUNT !!\n")
	case s.state.ExchangeCount >= ExchangeBudget:
		b.WriteString("\n!! EXCHANGE LIMIT REACHED !!\n")
	}

	if len(s.state.KeystoneFiles) > 0 {
		b.WriteString("\n[KEYSTONE FILES (CRITICAL)]\n")
		for _, f := range s.state.KeystoneFiles {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	b.WriteString("\n[ACTION TEMPLATE]\n")
	b.WriteString("Goal: <...>\n")
	b.WriteString("Evidence: <PASTE COMPILER/TEST ERRORS HERE.>\n\n")

	b.WriteString("[APPLYDIFF PATCH FORMAT]\n")
	b.WriteString(">>> file: <path> [| mode=replace]\n")
	b.WriteString("--- from\n<...>\n")
	b.WriteString("--- to\n<...>\n")
	b.WriteString("<<<\n")

	return b.String()
}

// StaticPromptGuide returns the fixed system prompt that tells an upstream
// LLM how to emit blocks this engine can apply — distinct from
// GenerateBriefing's per-session status, mirroring the original
// implementation's split between a static AI prompt and a dynamic
// per-session briefing.
func StaticPromptGuide() string {
	lines := []string{
		"You are a code editor. Output ONLY patch blocks in this exact format:",
		"",
		">>> file: RELATIVE/PATH | fuzz=0.85",
		"--- from",
		"<exact old text (may be empty to append)>",
		"--- to",
		"<new text>",
		"<<<",
		"",
		"Rules:",
		"- Paths are relative to the selected folder.",
		"- One block per file; multiple blocks allowed back-to-back.",
		"- If appending, leave 'from' empty and put content in 'to'.",
		"- Keep 'from' minimal & exact where possible; set fuzz 0.1..1.0 as needed.",
		"- Prefer replacing whole functions/methods over tiny line-only edits when changing code.",
		"- If a block fails to match, reply again with only corrected block(s).",
		"- No code fences, no commentary, no leading or trailing text.",
		"",
		"Example:",
		">>> file: hello.txt | fuzz=1.0",
		"--- from",
		"Hello world",
		"--- to",
		"Hello brave new world",
		"<<<",
	}
	return strings.Join(lines, "\n")
}
