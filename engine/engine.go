// Package engine wires C1-C8 behind the six public commands an outer shell
// calls: init_session, get_session_briefing, refresh_session,
// resolve_file_request, preview_patch, apply_patch. See spec.md §6.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/junovhs/applydiff/aerr"
	"github.com/junovhs/applydiff/apply"
	"github.com/junovhs/applydiff/backup"
	"github.com/junovhs/applydiff/fileresolve"
	"github.com/junovhs/applydiff/patch"
	"github.com/junovhs/applydiff/session"
	"github.com/junovhs/applydiff/skribe"
)

// Engine holds one project's session and logger. Not safe for concurrent
// use — the caller's outer shell is responsible for serializing calls that
// read or mutate Session (see spec.md §5).
type Engine struct {
	Root    string
	Session *session.Session
	Log     *skribe.Logger
}

// InitSession walks root, seeds a fresh session, and returns it. See
// session.Init.
func InitSession(root string) (*Engine, session.State, error) {
	s, err := session.Init(root)
	if err != nil {
		return nil, session.State{}, err
	}
	return &Engine{Root: root, Session: s, Log: skribe.New(skribe.NewRID())}, s.Snapshot(), nil
}

// LoadSession reads an existing session, or creates one if absent.
func LoadSession(root string) (*Engine, session.State, error) {
	s, err := session.Load(root)
	if err != nil {
		return nil, session.State{}, err
	}
	return &Engine{Root: root, Session: s, Log: skribe.New(skribe.NewRID())}, s.Snapshot(), nil
}

// GetSessionBriefing renders the dynamic briefing text for the current
// session state.
func (e *Engine) GetSessionBriefing() string {
	return e.Session.GenerateBriefing()
}

// RefreshSession zeroes drift counters and returns the new snapshot.
func (e *Engine) RefreshSession() (session.State, error) {
	if err := e.Session.Refresh(); err != nil {
		return session.State{}, err
	}
	return e.Session.Snapshot(), nil
}

// ResolveFileRequest is a thin pass-through to fileresolve, read-only and
// independent of session state.
func (e *Engine) ResolveFileRequest(doc string) (string, error) {
	return fileresolve.Resolve(e.Root, doc)
}

// PatchOutcome is the result of one patch text run: a per-block log and,
// for preview calls, a combined unified diff.
type PatchOutcome struct {
	Log   []string // "✔ path: ..." or "❌ path: ..." per block
	Diff  string   // concatenation of each block's diff, preview only
	State session.State
}

// PreviewPatch parses patchText and applies every block in dry-run mode,
// producing a log and a unified diff without touching the session state's
// counters or writing any file.
func (e *Engine) PreviewPatch(patchText string) (PatchOutcome, error) {
	ctx := skribe.ContextWithAttr(e.Log.Context(context.Background()), slog.String("op", "preview_patch"))

	blocks, err := patch.Parse(patchText)
	if err != nil {
		e.Log.Error(ctx, "engine", "preview_patch", err.Error())
		return PatchOutcome{}, err
	}

	a, err := apply.New(e.Root, true, e.Log.Slog())
	if err != nil {
		return PatchOutcome{}, err
	}

	var out PatchOutcome
	var diffs []string
	for _, b := range blocks {
		res, blockErr := a.ApplyBlock(ctx, b)
		if blockErr != nil {
			out.Log = append(out.Log, formatBlockLine(false, b, blockErr))
			continue
		}
		out.Log = append(out.Log, formatBlockLine(true, b, nil))
		if res.Diff != "" {
			diffs = append(diffs, res.Diff)
		}
	}
	e.Log.Info(ctx, "engine", "preview_patch", fmt.Sprintf("previewed %d block(s)", len(blocks)))
	out.Diff = strings.Join(diffs, "")
	out.State = e.Session.Snapshot()
	return out, nil
}

// ApplyPatch parses patchText, backs up every touched file, applies every
// block in order, and updates session counters. exchange_count increments
// exactly once for the call regardless of block count.
func (e *Engine) ApplyPatch(patchText string) (PatchOutcome, error) {
	ctx := skribe.ContextWithAttr(e.Log.Context(context.Background()), slog.String("op", "apply_patch"))

	blocks, err := patch.Parse(patchText)
	if err != nil {
		e.Log.Error(ctx, "engine", "apply_patch", err.Error())
		return PatchOutcome{}, err
	}

	touched := make([]string, 0, len(blocks))
	seen := make(map[string]bool)
	for _, b := range blocks {
		if !seen[b.File] {
			seen[b.File] = true
			touched = append(touched, b.File)
		}
	}
	if _, err := backup.Create(e.Root, touched); err != nil {
		e.Log.Error(ctx, "engine", "backup", err.Error())
		return PatchOutcome{}, err
	}

	if err := e.Session.BeginApply(); err != nil {
		return PatchOutcome{}, err
	}

	a, err := apply.New(e.Root, false, e.Log.Slog())
	if err != nil {
		return PatchOutcome{}, err
	}

	var out PatchOutcome
	var failed int
	for _, b := range blocks {
		_, blockErr := a.ApplyBlock(ctx, b)
		if blockErr != nil {
			out.Log = append(out.Log, formatBlockLine(false, b, blockErr))
			if isCountedError(blockErr) {
				e.Session.RecordBlockError()
			}
			failed++
			continue
		}
		out.Log = append(out.Log, formatBlockLine(true, b, nil))
		e.Session.RecordBlockSuccess(b.File)
	}
	e.Log.Info(ctx, "engine", "apply_patch", fmt.Sprintf("applied %d block(s), %d failed", len(blocks), failed))

	out.State = e.Session.Snapshot()
	return out, nil
}

func isCountedError(err error) bool {
	e, ok := err.(*aerr.Error)
	if !ok {
		return false
	}
	switch e.Code {
	case aerr.CodeNoMatch, aerr.CodeAmbiguousMatch, aerr.CodeRegexError:
		return true
	default:
		return false
	}
}

func formatBlockLine(ok bool, b patch.Block, err error) string {
	mark := "✔"
	if !ok {
		mark = "❌"
	}
	if err != nil {
		return fmt.Sprintf("%s %s: %s", mark, b.File, err.Error())
	}
	return fmt.Sprintf("%s %s", mark, b.File)
}
